package bbr

import "go.uber.org/zap"

type effect int

const (
	effectSubscribeAllNetwork effect = iota
	effectUnsubscribeGroups
	effectAddPrimaryAloc
	effectRemovePrimaryAloc
	effectSignalStateChanged
)

func (e effect) String() string {
	switch e {
	case effectSubscribeAllNetwork:
		return "subscribe_all_network"
	case effectUnsubscribeGroups:
		return "unsubscribe_groups"
	case effectAddPrimaryAloc:
		return "add_primary_aloc"
	case effectRemovePrimaryAloc:
		return "remove_primary_aloc"
	case effectSignalStateChanged:
		return "signal_state_changed"
	default:
		return "unknown"
	}
}

// transition returns the side effects of moving from one role to another, in
// execution order. Staying in the same role has no effect.
func transition(from, to State) []effect {
	if from == to {
		return nil
	}
	effects := make([]effect, 0, 3)
	if from == StateDisabled {
		effects = append(effects, effectSubscribeAllNetwork)
	}
	if from == StatePrimary {
		effects = append(effects, effectRemovePrimaryAloc)
	} else if to == StatePrimary {
		effects = append(effects, effectAddPrimaryAloc)
	}
	if to == StateDisabled {
		effects = append(effects, effectUnsubscribeGroups)
	}
	return append(effects, effectSignalStateChanged)
}

func (l *Local) setState(to State) {
	effects := transition(l.state, to)
	if len(effects) == 0 {
		return
	}
	from := l.state
	l.state = to
	for _, e := range effects {
		l.apply(e)
	}
	l.logger.Info("backbone router state changed",
		zap.Stringer("from", from), zap.Stringer("to", to))
}

func (l *Local) apply(e effect) {
	switch e {
	case effectSubscribeAllNetwork:
		l.subscribe(&l.allNetworkBackboneRouters, l.topology.MeshLocalPrefix())
	case effectUnsubscribeGroups:
		l.unsubscribe(&l.allNetworkBackboneRouters)
		l.unsubscribe(&l.allDomainBackboneRouters)
	case effectAddPrimaryAloc:
		l.addPrimaryAloc()
	case effectRemovePrimaryAloc:
		l.removePrimaryAloc()
	case effectSignalStateChanged:
		l.notifier.Signal(EventStateChanged)
	}
}

func (l *Local) addPrimaryAloc() {
	l.primaryAloc = PrimaryAlocAddress(l.topology.MeshLocalPrefix())
	if err := l.netif.AddUnicastAddress(l.primaryAloc); err != nil {
		l.logger.Warn("failed to add primary backbone router aloc",
			zap.Stringer("address", l.primaryAloc), zap.Error(err))
	}
	l.hasPrimaryAloc = true
}

func (l *Local) removePrimaryAloc() {
	if !l.hasPrimaryAloc {
		return
	}
	l.hasPrimaryAloc = false
	if err := l.netif.RemoveUnicastAddress(l.primaryAloc); err != nil {
		l.logger.Warn("failed to remove primary backbone router aloc",
			zap.Stringer("address", l.primaryAloc), zap.Error(err))
	}
}
