package serialport

import (
	"errors"
	"fmt"
	"time"

	"github.com/liuyenting/olive-motion-asi/logger"
)

// Option is a functional option for configuring a Port.
type Option interface {
	apply(*Port) error
}

type optFunc func(*Port) error

func (f optFunc) apply(p *Port) error { return f(p) }

// WithBaudRate overrides the default baud rate. The rate must match the
// controller's serial configuration.
func WithBaudRate(rate int) Option {
	return optFunc(func(p *Port) error {
		if rate <= 0 {
			return fmt.Errorf("serialport: invalid baud rate %d", rate)
		}
		p.baudRate = rate

		return nil
	})
}

// WithReadTimeout overrides how long a single device read blocks before the
// read loop re-checks its context. Lower values notice cancellation sooner at
// the cost of more wakeups.
func WithReadTimeout(timeout time.Duration) Option {
	return optFunc(func(p *Port) error {
		if timeout <= 0 {
			return fmt.Errorf("serialport: invalid read timeout %v", timeout)
		}
		p.readTimeout = timeout

		return nil
	})
}

// WithLogger replaces the package default logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(p *Port) error {
		if l == nil {
			return errors.New("serialport: logger must not be nil")
		}
		p.logger = l

		return nil
	})
}
