package network

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationFromFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cmd := &cobra.Command{Use: "test"}
		v := viper.New()
		RegisterFlagsForService(cmd, v, "cluster", 3500)
		require.NoError(t, cmd.Flags().Parse([]string{"--cluster-bind-address", "127.0.0.1"}))
		config, err := ConfigurationFromFlags(v, "cluster")
		require.NoError(t, err)
		assert.Equal(t, "cluster", config.Name)
		assert.Equal(t, "127.0.0.1", config.BindAddress)
		assert.Equal(t, 3500, config.BindPort)
		assert.Equal(t, "127.0.0.1", config.AdvertisedAddress)
		assert.Equal(t, 3500, config.AdvertisedPort)
	})
	t.Run("advertised", func(t *testing.T) {
		cmd := &cobra.Command{Use: "test"}
		v := viper.New()
		RegisterFlagsForService(cmd, v, "cluster", 3500)
		require.NoError(t, cmd.Flags().Parse([]string{
			"--cluster-bind-address", "::",
			"--cluster-advertised-address", "fd00::1",
			"--cluster-advertised-port", "4500",
		}))
		config, err := ConfigurationFromFlags(v, "cluster")
		require.NoError(t, err)
		assert.Equal(t, "fd00::1", config.AdvertisedAddress)
		assert.Equal(t, 4500, config.AdvertisedPort)
		assert.Equal(t, 3500, config.BindPort)
	})
	t.Run("random port", func(t *testing.T) {
		v := viper.New()
		v.Set(bindAddressFlagName("api"), "127.0.0.1")
		config, err := ConfigurationFromFlags(v, "api")
		require.NoError(t, err)
		assert.NotZero(t, config.BindPort)
		assert.Equal(t, config.BindPort, config.AdvertisedPort)
	})
	t.Run("invalid address", func(t *testing.T) {
		v := viper.New()
		v.Set(bindAddressFlagName("api"), "not-an-ip")
		_, err := ConfigurationFromFlags(v, "api")
		assert.Equal(t, ErrInvalidAddress, pkgerrors.Cause(err))
	})
	t.Run("invalid port", func(t *testing.T) {
		v := viper.New()
		v.Set(bindAddressFlagName("api"), "127.0.0.1")
		v.Set(bindPortFlagName("api"), 70000)
		_, err := ConfigurationFromFlags(v, "api")
		assert.Equal(t, ErrInvalidPort, pkgerrors.Cause(err))
	})
}

func TestDescribe(t *testing.T) {
	config := Configuration{Name: "api", BindAddress: "::", BindPort: 8081, AdvertisedAddress: "fd00::1", AdvertisedPort: 8081}
	assert.Equal(t, "service api is running on [::]:8081 and exposed on [fd00::1]:8081", config.Describe())
}
