package cli

import (
	"net/netip"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/multicast"
	"github.com/vx-labs/backbone-router/network"
)

const (
	FLAG_NAME_CLUSTER = "cluster"
	FLAG_NAME_API     = "api"

	CONSUL_SERVICE_NAME = "bbr_cluster"
)

var (
	ErrInvalidFlag = pkgerrors.New("invalid flag value")
)

// Options is the resolved bbrd configuration.
type Options struct {
	NodeID string
	Join   []string

	UseConsul bool

	Cluster network.Configuration
	API     network.Configuration

	HealthPort int
	DataDir    string

	Rloc16                uint16
	MeshLocalPrefix       netip.Prefix
	Standalone            bool
	RouterSelectionJitter uint8

	BackboneInterface string
	MulticastPort     int
	ThreadInterface   string

	Enabled             bool
	ReferenceDevice     bool
	ReregistrationDelay uint16
	MlrTimeout          uint32
	RegistrationJitter  uint8
	DomainPrefix        *bbr.OnMeshPrefixConfig
}

// DatabasePath returns the bolt database file, or an empty string when
// persistence is disabled.
func (o Options) DatabasePath() string {
	if o.DataDir == "" {
		return ""
	}
	return filepath.Join(o.DataDir, "bbr.db")
}

// LocalOptions returns the role arbitration tuning.
func (o Options) LocalOptions() bbr.Options {
	opts := bbr.DefaultOptions()
	opts.RegistrationJitter = o.RegistrationJitter
	opts.ReregistrationDelay = o.ReregistrationDelay
	opts.MlrTimeout = o.MlrTimeout
	if o.ReferenceDevice {
		opts.MlrTimeoutBounds = nil
	}
	return opts
}

func bindFlag(config *viper.Viper, cmd *cobra.Command, name string) {
	config.BindPFlag(name, cmd.Flags().Lookup(name))
}

// AddFlags registers the bbrd flags on root and binds them into config.
// Every flag can also be set with a BBR_ prefixed environment variable.
func AddFlags(root *cobra.Command, config *viper.Viper) {
	config.SetEnvPrefix("bbr")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	root.Flags().StringP("config", "c", "", "Read configuration from this file")
	bindFlag(config, root, "config")
	root.Flags().StringP("node-id", "", uuid.New().String(), "Unique node id")
	bindFlag(config, root, "node-id")
	root.Flags().StringSliceP("join", "j", []string{}, "Join this node")
	bindFlag(config, root, "join")
	root.Flags().BoolP("use-consul", "", false, "Discover cluster peers using consul")
	bindFlag(config, root, "use-consul")
	root.Flags().IntP("health-port", "", 9000, "Serve health and metrics endpoints on this port")
	bindFlag(config, root, "health-port")
	root.Flags().StringP("data-dir", "d", "", "Persist settings in this directory. Leave empty to disable persistence")
	bindFlag(config, root, "data-dir")
	network.RegisterFlagsForService(root, config, FLAG_NAME_CLUSTER, 3500)
	network.RegisterFlagsForService(root, config, FLAG_NAME_API, 8081)

	root.Flags().StringP("rloc16", "", "0xfffe", "Local RLOC16")
	bindFlag(config, root, "rloc16")
	root.Flags().StringP("mesh-local-prefix", "", "fdde:ad00:beef::/64", "Mesh-local /64 prefix")
	bindFlag(config, root, "mesh-local-prefix")
	root.Flags().BoolP("standalone", "", false, "Consider the node attached even without cluster peers")
	bindFlag(config, root, "standalone")
	root.Flags().Uint8P("router-selection-jitter", "", 120, "Router selection jitter in seconds")
	bindFlag(config, root, "router-selection-jitter")

	root.Flags().StringP("backbone-interface", "", "", "Join backbone multicast groups on this interface. Leave empty to track groups in memory")
	bindFlag(config, root, "backbone-interface")
	root.Flags().IntP("multicast-port", "", multicast.DefaultPort, "Backbone multicast UDP port")
	bindFlag(config, root, "multicast-port")
	root.Flags().StringP("thread-interface", "", "", "Assign the Primary ALOC on this interface. Leave empty to track addresses in memory")
	bindFlag(config, root, "thread-interface")

	root.Flags().BoolP("bbr-enabled", "", false, "Enable the Backbone Router function")
	bindFlag(config, root, "bbr-enabled")
	root.Flags().BoolP("reference-device", "", false, "Accept any MLR timeout")
	bindFlag(config, root, "reference-device")
	root.Flags().Uint16P("reregistration-delay", "", bbr.DefaultReregistrationDelay, "Reregistration delay in seconds")
	bindFlag(config, root, "reregistration-delay")
	root.Flags().Uint32P("mlr-timeout", "", bbr.DefaultMlrTimeout, "Multicast listener registration timeout in seconds")
	bindFlag(config, root, "mlr-timeout")
	root.Flags().Uint8P("registration-jitter", "", bbr.DefaultRegistrationJitter, "Registration jitter in seconds")
	bindFlag(config, root, "registration-jitter")
	root.Flags().StringP("domain-prefix", "", "", "Publish this domain prefix")
	bindFlag(config, root, "domain-prefix")
}

// LoadConfigFile reads the configuration file named by the config flag, if any.
func LoadConfigFile(config *viper.Viper) error {
	path := config.GetString("config")
	if path == "" {
		return nil
	}
	config.SetConfigFile(path)
	return pkgerrors.Wrapf(config.ReadInConfig(), "failed to read configuration file %s", path)
}

func parseRloc16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, pkgerrors.Wrapf(ErrInvalidFlag, "rloc16 %q", s)
	}
	return uint16(v), nil
}

func domainPrefixConfig(s string) (*bbr.OnMeshPrefixConfig, error) {
	if s == "" {
		return nil, nil
	}
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrInvalidFlag, "domain prefix %q", s)
	}
	return &bbr.OnMeshPrefixConfig{
		Prefix:    prefix.Masked(),
		Preferred: true,
		Slaac:     true,
		OnMesh:    true,
		Stable:    true,
		Dp:        true,
	}, nil
}

// OptionsFromConfig resolves the bbrd options from config.
func OptionsFromConfig(config *viper.Viper) (Options, error) {
	opts := Options{
		NodeID:                config.GetString("node-id"),
		Join:                  config.GetStringSlice("join"),
		UseConsul:             config.GetBool("use-consul"),
		HealthPort:            config.GetInt("health-port"),
		DataDir:               config.GetString("data-dir"),
		Standalone:            config.GetBool("standalone"),
		RouterSelectionJitter: uint8(config.GetUint("router-selection-jitter")),
		BackboneInterface:     config.GetString("backbone-interface"),
		MulticastPort:         config.GetInt("multicast-port"),
		ThreadInterface:       config.GetString("thread-interface"),
		Enabled:               config.GetBool("bbr-enabled"),
		ReferenceDevice:       config.GetBool("reference-device"),
		ReregistrationDelay:   uint16(config.GetUint("reregistration-delay")),
		MlrTimeout:            config.GetUint32("mlr-timeout"),
		RegistrationJitter:    uint8(config.GetUint("registration-jitter")),
	}
	if opts.NodeID == "" {
		return opts, pkgerrors.Wrap(ErrInvalidFlag, "empty node id")
	}
	var err error
	opts.Cluster, err = network.ConfigurationFromFlags(config, FLAG_NAME_CLUSTER)
	if err != nil {
		return opts, err
	}
	opts.API, err = network.ConfigurationFromFlags(config, FLAG_NAME_API)
	if err != nil {
		return opts, err
	}
	opts.Rloc16, err = parseRloc16(config.GetString("rloc16"))
	if err != nil {
		return opts, err
	}
	opts.MeshLocalPrefix, err = netip.ParsePrefix(config.GetString("mesh-local-prefix"))
	if err != nil {
		return opts, pkgerrors.Wrapf(ErrInvalidFlag, "mesh-local prefix %q", config.GetString("mesh-local-prefix"))
	}
	opts.DomainPrefix, err = domainPrefixConfig(config.GetString("domain-prefix"))
	if err != nil {
		return opts, err
	}
	return opts, nil
}
