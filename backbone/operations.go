package backbone

import (
	"io"
	"net/netip"

	"github.com/vx-labs/backbone-router/bbr"
	"go.uber.org/zap"
)

// Status is a snapshot of the local Backbone Router and of its view of the mesh.
type Status struct {
	State                     bbr.State
	Config                    bbr.Config
	ServiceAdded              bool
	RegistrationTimeout       uint16
	RegistrationJitter        uint8
	Primary                   bbr.LeaderConfig
	PrimaryAloc               netip.Addr
	HasPrimaryAloc            bool
	AllNetworkBackboneRouters netip.Addr
	AllDomainBackboneRouters  netip.Addr
	DomainPrefix              netip.Prefix
	MeshLocalPrefix           netip.Prefix
	Rloc16                    uint16
	Attached                  bool
	Leader                    bool
}

func (s *Service) Status() (Status, error) {
	var status Status
	err := s.Call(func() error {
		status.State = s.local.State()
		status.Config = s.local.Config()
		status.ServiceAdded = s.local.IsServiceAdded()
		status.RegistrationTimeout = s.local.RegistrationTimeout()
		status.RegistrationJitter = s.local.RegistrationJitter()
		status.Primary = s.leader.Primary()
		status.PrimaryAloc, status.HasPrimaryAloc = s.local.PrimaryAloc()
		status.AllNetworkBackboneRouters = s.local.AllNetworkBackboneRouters()
		status.AllDomainBackboneRouters = s.local.AllDomainBackboneRouters()
		status.DomainPrefix, _ = s.leader.DomainPrefix()
		status.MeshLocalPrefix = s.mesh.MeshLocalPrefix()
		status.Rloc16 = s.mesh.Rloc16()
		status.Attached = s.mesh.IsAttached()
		status.Leader = s.mesh.IsLeader()
		return nil
	})
	return status, err
}

// SetEnabled enables or disables the Backbone Router and persists the choice.
func (s *Service) SetEnabled(enable bool) error {
	return s.Call(func() error {
		s.local.SetEnabled(enable)
		s.enabled = enable
		if s.persistence != nil {
			if err := s.persistence.SaveEnabled(enable); err != nil {
				s.logger.Warn("failed to persist backbone router enabled flag", zap.Error(err))
			}
		}
		return nil
	})
}

func (s *Service) Reset() error {
	return s.Call(func() error {
		if !s.local.IsEnabled() {
			return bbr.ErrInvalidState
		}
		s.local.Reset()
		return nil
	})
}

func (s *Service) Config() (bbr.Config, error) {
	var config bbr.Config
	err := s.Call(func() error {
		config = s.local.Config()
		return nil
	})
	return config, err
}

func (s *Service) SetConfig(config bbr.Config) error {
	return s.Call(func() error {
		return s.local.SetConfig(config)
	})
}

func (s *Service) SetRegistrationJitter(jitter uint8) error {
	return s.Call(func() error {
		s.local.SetRegistrationJitter(jitter)
		return nil
	})
}

func (s *Service) DomainPrefix() (bbr.OnMeshPrefixConfig, error) {
	var config bbr.OnMeshPrefixConfig
	err := s.Call(func() error {
		var err error
		config, err = s.local.GetDomainPrefix()
		return err
	})
	return config, err
}

func (s *Service) SetDomainPrefix(config bbr.OnMeshPrefixConfig) error {
	return s.Call(func() error {
		if err := s.local.SetDomainPrefix(config); err != nil {
			return err
		}
		if s.persistence != nil {
			saved, _ := s.local.GetDomainPrefix()
			if err := s.persistence.SaveDomainPrefix(saved); err != nil {
				s.logger.Warn("failed to persist domain prefix", zap.Error(err))
			}
		}
		return nil
	})
}

func (s *Service) RemoveDomainPrefix(prefix netip.Prefix) error {
	return s.Call(func() error {
		if err := s.local.RemoveDomainPrefix(prefix); err != nil {
			return err
		}
		if s.persistence != nil {
			if err := s.persistence.DeleteDomainPrefix(); err != nil {
				s.logger.Warn("failed to delete persisted domain prefix", zap.Error(err))
			}
		}
		return nil
	})
}

func (s *Service) SetMeshLocalPrefix(prefix netip.Prefix) error {
	return s.Call(func() error {
		return s.mesh.SetMeshLocalPrefix(prefix)
	})
}

// Health reports "warning" while enabled but detached from the mesh.
func (s *Service) Health() string {
	status, err := s.Status()
	if err != nil {
		return "critical"
	}
	if status.State != bbr.StateDisabled && !status.Attached {
		return "warning"
	}
	return "ok"
}

// Snapshotter is implemented by persistence layers able to copy their content.
type Snapshotter interface {
	Snapshot(out io.Writer) error
}

// Backup writes a copy of the persisted settings to out. It fails with
// bbr.ErrNotFound when the persistence layer cannot be copied.
func (s *Service) Backup(out io.Writer) error {
	snapshotter, ok := s.persistence.(Snapshotter)
	if !ok {
		return bbr.ErrNotFound
	}
	return snapshotter.Snapshot(out)
}
