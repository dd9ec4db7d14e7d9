package asi

import (
	"errors"
	"fmt"
	"time"

	"github.com/liuyenting/olive-motion-asi/internal/util"
	"github.com/liuyenting/olive-motion-asi/logger"
)

const (
	// DefaultPollInterval is the delay between busy and limit-switch polls.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultCalibrationSpan is the half-width, in physical units, of the
	// implausibly wide limit range applied while searching for the limit
	// switches. It must exceed the full mechanical travel of the stage.
	DefaultCalibrationSpan = 500.0
)

// Config holds all configuration for a Controller.
type Config struct {
	dialect         Dialect
	pollInterval    time.Duration
	calibrationSpan float64
	logger          logger.Logger
}

// NewConfig creates a controller configuration for the given dialect.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(dialect Dialect, opts ...Option) (*Config, error) {
	if !dialect.valid() {
		return nil, errors.New("asi: dialect is not initialized, use MS2000, LX4000 or Tiger")
	}

	cfg := &Config{
		dialect:         dialect,
		pollInterval:    DefaultPollInterval,
		calibrationSpan: DefaultCalibrationSpan,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// Dialect returns the configured dialect, including any framing overrides.
func (cfg *Config) Dialect() Dialect { return cfg.dialect }

// PollInterval returns the delay between busy and limit-switch polls.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// CalibrationSpan returns the limit-search half-width in physical units.
func (cfg *Config) CalibrationSpan() float64 { return cfg.calibrationSpan }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithLogger sets the logger for the controller and everything it creates.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("asi: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithPollInterval sets the delay between busy and limit-switch polls.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("asi: poll interval must be positive")
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithCalibrationSpan sets the limit-search half-width in physical units.
// The span must exceed the stage's mechanical travel so only the limit
// switches can end the search.
func WithCalibrationSpan(units float64) Option {
	return optFunc(func(cfg *Config) error {
		if units <= 0 {
			return errors.New("asi: calibration span must be positive")
		}
		cfg.calibrationSpan = units

		return nil
	})
}

// WithAddressPrefix overrides the dialect's command address prefix.
// An empty prefix disables bus addressing.
func WithAddressPrefix(prefix string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.dialect.addressPrefix = prefix
		return nil
	})
}

// WithCommandTerminator overrides the dialect's command terminator.
func WithCommandTerminator(term []byte) Option {
	return optFunc(func(cfg *Config) error {
		if len(term) == 0 {
			return errors.New("asi: command terminator must not be empty")
		}
		cfg.dialect.commandTerm = util.CloneSlice(term, 0)

		return nil
	})
}

// WithResponseTerminator overrides the dialect's response terminator.
func WithResponseTerminator(term []byte) Option {
	return optFunc(func(cfg *Config) error {
		if len(term) == 0 {
			return errors.New("asi: response terminator must not be empty")
		}
		cfg.dialect.responseTerm = util.CloneSlice(term, 0)

		return nil
	})
}

// WithAckMarkerLen overrides the width of the ":A" success marker. Known
// firmware answers with 2 or 3 marker bytes; validate against the attached
// controller before relying on a non-default value.
func WithAckMarkerLen(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < len(ackMarker) {
			return fmt.Errorf("asi: ack marker length %d shorter than the %q marker", n, ackMarker)
		}
		cfg.dialect.ackMarkerLen = n

		return nil
	})
}
