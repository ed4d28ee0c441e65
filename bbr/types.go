package bbr

import (
	"fmt"
	"net/netip"
)

// ShortAddrInvalid is the RLOC16 value reported when no node holds the
// Primary Backbone Router service.
const ShortAddrInvalid uint16 = 0xfffe

// State is the local Backbone Router role.
type State uint8

const (
	StateDisabled State = iota
	StateSecondary
	StatePrimary
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateSecondary:
		return "secondary"
	case StatePrimary:
		return "primary"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// RegisterMode controls whether the service is published unconditionally.
type RegisterMode int

const (
	// DecideBasedOnState only publishes when no other node holds the Primary role.
	DecideBasedOnState RegisterMode = iota
	ForceRegistration
)

// EventKind identifies a notification emitted through the Notifier.
type EventKind int

const (
	EventLocalChanged EventKind = iota
	EventStateChanged
)

func (e EventKind) String() string {
	switch e {
	case EventLocalChanged:
		return "bbr_local_changed"
	case EventStateChanged:
		return "bbr_state_changed"
	default:
		return "unknown"
	}
}

// PrimaryState describes how the Primary service record changed in the
// network data since the previous observation.
type PrimaryState int

const (
	PrimaryNone PrimaryState = iota
	PrimaryAdded
	PrimaryRemoved
	PrimaryToTriggerRereg
	PrimaryRefreshed
	PrimaryUnchanged
)

func (p PrimaryState) String() string {
	switch p {
	case PrimaryNone:
		return "none"
	case PrimaryAdded:
		return "added"
	case PrimaryRemoved:
		return "removed"
	case PrimaryToTriggerRereg:
		return "rereg"
	case PrimaryRefreshed:
		return "refreshed"
	case PrimaryUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// LeaderConfig is the Primary Backbone Router service as observed in the
// network data. Server16 is ShortAddrInvalid when there is no Primary.
type LeaderConfig struct {
	Server16 uint16
	Config
}

// DomainPrefixEvent describes how the network-wide domain prefix changed.
type DomainPrefixEvent int

const (
	DomainPrefixNone DomainPrefixEvent = iota
	DomainPrefixAdded
	DomainPrefixRemoved
	DomainPrefixRefreshed
	DomainPrefixUnchanged
)

func (d DomainPrefixEvent) String() string {
	switch d {
	case DomainPrefixNone:
		return "none"
	case DomainPrefixAdded:
		return "added"
	case DomainPrefixRemoved:
		return "removed"
	case DomainPrefixRefreshed:
		return "refreshed"
	case DomainPrefixUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// DomainPrefixChange is delivered to domain prefix subscribers.
type DomainPrefixChange int

const (
	DomainPrefixChangeAdded DomainPrefixChange = iota
	DomainPrefixChangeRemoved
	DomainPrefixChangeChanged
)

func (d DomainPrefixChange) String() string {
	switch d {
	case DomainPrefixChangeAdded:
		return "added"
	case DomainPrefixChangeRemoved:
		return "removed"
	case DomainPrefixChangeChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// DomainPrefixCallback receives domain prefix changes. prefix is nil when
// the domain prefix disappeared.
type DomainPrefixCallback func(change DomainPrefixChange, prefix *netip.Prefix)

// OnMeshPrefixConfig is an on-mesh prefix with its network data flags.
type OnMeshPrefixConfig struct {
	Prefix       netip.Prefix
	Preference   int8
	Preferred    bool
	Slaac        bool
	Dhcp         bool
	Configure    bool
	DefaultRoute bool
	OnMesh       bool
	Stable       bool
	NdDns        bool
	Dp           bool
}

// HasPrefix reports whether a non-empty prefix is set.
func (c OnMeshPrefixConfig) HasPrefix() bool {
	return c.Prefix.IsValid() && c.Prefix.Bits() > 0
}
