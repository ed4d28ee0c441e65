package api

import (
	"net/netip"

	"github.com/vx-labs/backbone-router/backbone"
	"github.com/vx-labs/backbone-router/bbr"
)

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

type configView struct {
	SequenceNumber      uint8  `json:"sequence_number"`
	ReregistrationDelay uint16 `json:"reregistration_delay"`
	MlrTimeout          uint32 `json:"mlr_timeout"`
	RegistrationJitter  *uint8 `json:"registration_jitter,omitempty"`
}

func newConfigView(config bbr.Config) configView {
	return configView{
		SequenceNumber:      config.SequenceNumber,
		ReregistrationDelay: config.ReregistrationDelay,
		MlrTimeout:          config.MlrTimeout,
	}
}

func (c configView) config() bbr.Config {
	return bbr.Config{
		SequenceNumber:      c.SequenceNumber,
		ReregistrationDelay: c.ReregistrationDelay,
		MlrTimeout:          c.MlrTimeout,
	}
}

type primaryView struct {
	Server16            uint16 `json:"server16"`
	SequenceNumber      uint8  `json:"sequence_number"`
	ReregistrationDelay uint16 `json:"reregistration_delay"`
	MlrTimeout          uint32 `json:"mlr_timeout"`
}

type stateView struct {
	State                     string        `json:"state"`
	Config                    configView    `json:"config"`
	ServiceAdded              bool          `json:"service_added"`
	RegistrationTimeout       uint16        `json:"registration_timeout"`
	Primary                   *primaryView  `json:"primary,omitempty"`
	PrimaryAloc               *netip.Addr   `json:"primary_aloc,omitempty"`
	AllNetworkBackboneRouters netip.Addr    `json:"all_network_backbone_routers"`
	AllDomainBackboneRouters  netip.Addr    `json:"all_domain_backbone_routers"`
	DomainPrefix              *netip.Prefix `json:"domain_prefix,omitempty"`
	MeshLocalPrefix           netip.Prefix  `json:"mesh_local_prefix"`
	Rloc16                    uint16        `json:"rloc16"`
	Attached                  bool          `json:"attached"`
	Leader                    bool          `json:"leader"`
}

func newStateView(status backbone.Status) stateView {
	jitter := status.RegistrationJitter
	view := stateView{
		State:                     status.State.String(),
		Config:                    newConfigView(status.Config),
		ServiceAdded:              status.ServiceAdded,
		RegistrationTimeout:       status.RegistrationTimeout,
		AllNetworkBackboneRouters: status.AllNetworkBackboneRouters,
		AllDomainBackboneRouters:  status.AllDomainBackboneRouters,
		MeshLocalPrefix:           status.MeshLocalPrefix,
		Rloc16:                    status.Rloc16,
		Attached:                  status.Attached,
		Leader:                    status.Leader,
	}
	view.Config.RegistrationJitter = &jitter
	if status.Primary.Server16 != bbr.ShortAddrInvalid {
		view.Primary = &primaryView{
			Server16:            status.Primary.Server16,
			SequenceNumber:      status.Primary.SequenceNumber,
			ReregistrationDelay: status.Primary.ReregistrationDelay,
			MlrTimeout:          status.Primary.MlrTimeout,
		}
	}
	if status.HasPrimaryAloc {
		aloc := status.PrimaryAloc
		view.PrimaryAloc = &aloc
	}
	if status.DomainPrefix.IsValid() {
		prefix := status.DomainPrefix
		view.DomainPrefix = &prefix
	}
	return view
}

type prefixView struct {
	Prefix       netip.Prefix `json:"prefix"`
	Preference   int8         `json:"preference"`
	Preferred    bool         `json:"preferred"`
	Slaac        bool         `json:"slaac"`
	Dhcp         bool         `json:"dhcp"`
	Configure    bool         `json:"configure"`
	DefaultRoute bool         `json:"default_route"`
	OnMesh       bool         `json:"on_mesh"`
	Stable       bool         `json:"stable"`
	NdDns        bool         `json:"nd_dns"`
	Dp           bool         `json:"dp"`
}

func newPrefixView(c bbr.OnMeshPrefixConfig) prefixView {
	return prefixView{
		Prefix:       c.Prefix,
		Preference:   c.Preference,
		Preferred:    c.Preferred,
		Slaac:        c.Slaac,
		Dhcp:         c.Dhcp,
		Configure:    c.Configure,
		DefaultRoute: c.DefaultRoute,
		OnMesh:       c.OnMesh,
		Stable:       c.Stable,
		NdDns:        c.NdDns,
		Dp:           c.Dp,
	}
}

func (p prefixView) config() bbr.OnMeshPrefixConfig {
	return bbr.OnMeshPrefixConfig{
		Prefix:       p.Prefix,
		Preference:   p.Preference,
		Preferred:    p.Preferred,
		Slaac:        p.Slaac,
		Dhcp:         p.Dhcp,
		Configure:    p.Configure,
		DefaultRoute: p.DefaultRoute,
		OnMesh:       p.OnMesh,
		Stable:       p.Stable,
		NdDns:        p.NdDns,
		Dp:           p.Dp,
	}
}

type meshPrefixRequest struct {
	Prefix netip.Prefix `json:"prefix"`
}
