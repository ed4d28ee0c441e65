package bbr

import "go.uber.org/zap"

// addService publishes the Backbone Router service built from the local
// configuration.
func (l *Local) addService(mode RegisterMode) (err error) {
	defer func() { l.logService("add", err) }()

	if l.state == StateDisabled || !l.topology.IsAttached() {
		return ErrInvalidState
	}
	if mode == DecideBasedOnState {
		primary := l.primary.Primary()
		if primary.Server16 != ShortAddrInvalid && primary.Server16 != l.topology.Rloc16() {
			return ErrInvalidState
		}
	}
	if err = l.netData.AddService(l.config); err != nil {
		return err
	}
	l.netData.HandleServerDataUpdated()
	l.isServiceAdded = true
	return nil
}

// removeService withdraws the Backbone Router service. Local bookkeeping is
// cleared even when the store could not remove it.
func (l *Local) removeService() {
	err := l.netData.RemoveService()
	if err == nil {
		l.netData.HandleServerDataUpdated()
	}
	l.isServiceAdded = false
	l.logService("remove", err)
}

func (l *Local) logService(action string, err error) {
	l.logger.Info("backbone router service",
		zap.String("action", action),
		zap.Uint8("sequence_number", l.config.SequenceNumber),
		zap.Uint16("reregistration_delay", l.config.ReregistrationDelay),
		zap.Uint32("mlr_timeout", l.config.MlrTimeout),
		zap.Error(err),
	)
}

// IsServiceAdded reports whether this node believes its service is published.
func (l *Local) IsServiceAdded() bool {
	return l.isServiceAdded
}
