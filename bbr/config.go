package bbr

const (
	DefaultMlrTimeout          uint32 = 3600
	DefaultReregistrationDelay uint16 = 5
	DefaultRegistrationJitter  uint8  = 5

	MinMlrTimeout uint32 = 300
	MaxMlrTimeout uint32 = 0x7fffffff / 1000
)

// Config holds the parameters published in the Backbone Router service.
type Config struct {
	SequenceNumber      uint8
	ReregistrationDelay uint16
	MlrTimeout          uint32
}

// TimeoutBounds restricts the accepted MLR timeout range.
type TimeoutBounds struct {
	Min uint32
	Max uint32
}

// DefaultTimeoutBounds returns the MLR timeout range allowed outside reference devices.
func DefaultTimeoutBounds() *TimeoutBounds {
	return &TimeoutBounds{Min: MinMlrTimeout, Max: MaxMlrTimeout}
}

// Validate checks the configuration. The reregistration delay must be at
// least 1 and lower than half the MLR timeout. bounds may be nil.
func (c Config) Validate(bounds *TimeoutBounds) error {
	if bounds != nil && (c.MlrTimeout < bounds.Min || c.MlrTimeout > bounds.Max) {
		return ErrInvalidArgs
	}
	if c.ReregistrationDelay < 1 {
		return ErrInvalidArgs
	}
	if uint64(c.ReregistrationDelay)*2 >= uint64(c.MlrTimeout) {
		return ErrInvalidArgs
	}
	return nil
}
