package bbr

import (
	"net/netip"

	"go.uber.org/zap"
)

// SetDomainPrefix replaces the local domain prefix. While enabled, the
// previous prefix is withdrawn from the network data before the new one is
// advertised.
func (l *Local) SetDomainPrefix(config OnMeshPrefixConfig) error {
	config.Dp = true
	if !l.topology.IsValidDomainPrefix(config) {
		return ErrInvalidArgs
	}
	if l.IsEnabled() {
		l.removeDomainPrefixFromNetworkData()
	}
	l.domainPrefixConfig = config
	l.logDomainPrefix("set", nil)
	if l.IsEnabled() {
		l.addDomainPrefixToNetworkData()
	}
	return nil
}

// RemoveDomainPrefix clears the local domain prefix if it matches prefix.
func (l *Local) RemoveDomainPrefix(prefix netip.Prefix) error {
	if !prefix.IsValid() || prefix.Bits() == 0 {
		return ErrInvalidArgs
	}
	if !l.domainPrefixConfig.HasPrefix() || l.domainPrefixConfig.Prefix != prefix {
		return ErrNotFound
	}
	if l.IsEnabled() {
		l.removeDomainPrefixFromNetworkData()
	}
	l.domainPrefixConfig = OnMeshPrefixConfig{}
	return nil
}

// GetDomainPrefix returns the local domain prefix configuration.
func (l *Local) GetDomainPrefix() (OnMeshPrefixConfig, error) {
	if !l.domainPrefixConfig.HasPrefix() {
		return OnMeshPrefixConfig{}, ErrNotFound
	}
	return l.domainPrefixConfig, nil
}

// SetDomainPrefixCallback registers the function notified of domain prefix
// changes. A nil callback disables notifications.
func (l *Local) SetDomainPrefixCallback(callback DomainPrefixCallback) {
	l.domainPrefixCallback = callback
}

func (l *Local) addDomainPrefixToNetworkData() {
	err := ErrNotFound
	if l.domainPrefixConfig.HasPrefix() {
		err = l.netData.AddOnMeshPrefix(l.domainPrefixConfig)
	}
	if err == nil {
		l.netData.HandleServerDataUpdated()
	}
	l.logDomainPrefix("add", err)
}

func (l *Local) removeDomainPrefixFromNetworkData() {
	err := ErrNotFound
	if l.domainPrefixConfig.HasPrefix() {
		err = l.netData.RemoveOnMeshPrefix(l.domainPrefixConfig.Prefix)
	}
	if err == nil {
		l.netData.HandleServerDataUpdated()
	}
	l.logDomainPrefix("remove", err)
}

func (l *Local) logDomainPrefix(action string, err error) {
	l.logger.Info("domain prefix",
		zap.String("action", action),
		zap.Stringer("prefix", l.domainPrefixConfig.Prefix),
		zap.Error(err),
	)
}
