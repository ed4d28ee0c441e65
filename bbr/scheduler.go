package bbr

// HandleTimeTick drives the registration countdown. Registration is deferred
// while the topology layer reports a pending router selection jitter, and
// the receiver unregisters itself once the countdown is idle.
func (l *Local) HandleTimeTick() {
	if l.topology.RouterSelectionJitterTimeout() == 0 && l.registrationTimeout > 0 {
		l.registrationTimeout--
		if l.registrationTimeout == 0 {
			_ = l.addService(DecideBasedOnState)
		}
	}
	if l.registrationTimeout == 0 {
		l.ticker.UnregisterReceiver(l)
	}
}

// scheduleRegistration arms the countdown with one tick, plus a random
// jitter in [0, registrationJitter] unless this node is the leader.
func (l *Local) scheduleRegistration() {
	l.registrationTimeout = 1
	if !l.topology.IsLeader() {
		l.registrationTimeout += l.random.Uint16InRange(0, uint16(l.registrationJitter)+1)
	}
	l.ticker.RegisterReceiver(l)
}

func (l *Local) cancelRegistration() {
	if l.registrationTimeout == 0 {
		return
	}
	l.registrationTimeout = 0
	l.ticker.UnregisterReceiver(l)
}

// RegistrationTimeout returns the remaining ticks before the next
// registration attempt, 0 when idle.
func (l *Local) RegistrationTimeout() uint16 {
	return l.registrationTimeout
}
