// Package api exposes the local Backbone Router management operations over
// HTTP/JSON.
package api

import (
	"io"
	"net"
	"net/netip"

	"github.com/vx-labs/backbone-router/backbone"
	"github.com/vx-labs/backbone-router/bbr"
	"go.uber.org/zap"
)

// Backend is the Backbone Router service driven by the API.
type Backend interface {
	Status() (backbone.Status, error)
	SetEnabled(enable bool) error
	Reset() error
	Config() (bbr.Config, error)
	SetConfig(config bbr.Config) error
	SetRegistrationJitter(jitter uint8) error
	DomainPrefix() (bbr.OnMeshPrefixConfig, error)
	SetDomainPrefix(config bbr.OnMeshPrefixConfig) error
	RemoveDomainPrefix(prefix netip.Prefix) error
	SetMeshLocalPrefix(prefix netip.Prefix) error
	Backup(out io.Writer) error
}

type Config struct {
	BindAddress string
	TcpPort     int
}

type api struct {
	id        string
	config    Config
	listeners []net.Listener
	backend   Backend
	logger    *zap.Logger
}

func New(id string, logger *zap.Logger, backend Backend, config Config) *api {
	return &api{
		id:      id,
		config:  config,
		backend: backend,
		logger:  logger,
	}
}
