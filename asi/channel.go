package asi

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/liuyenting/olive-motion-asi/logger"
)

// Channel serializes command/response round-trips over a Transport.
//
// The channel owns the transport handle. Exactly one command is in flight at
// a time: concurrent callers queue on the channel lock, and a command plus its
// reply form one atomic transaction. There is no pipelining.
type Channel struct {
	mu        sync.Mutex
	transport Transport
	logger    logger.Logger
	metrics   ChannelMetrics
}

func newChannel(transport Transport, l logger.Logger) *Channel {
	return &Channel{
		transport: transport,
		logger:    l,
	}
}

// Transact writes one encoded command and blocks until the reply terminator
// arrives, returning the raw reply bytes including the terminator.
//
// The lock is held for the whole round-trip and released on every path, so a
// cancelled context never leaves the channel locked. A closed transport fails
// with ErrNotOpen.
func (ch *Channel) Transact(ctx context.Context, command []byte, terminator []byte) ([]byte, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ch.transport.IsOpen() {
		return nil, ErrNotOpen
	}

	ch.logger.Debug("send command", "wire", strconv.Quote(string(command)))
	if err := ch.transport.Write(command); err != nil {
		ch.metrics.incTransportErrCount()
		return nil, fmt.Errorf("asi: write command: %w", err)
	}
	ch.metrics.incCommandSendCount()

	raw, err := ch.transport.ReadUntil(ctx, terminator)
	if err != nil {
		ch.metrics.incTransportErrCount()
		return nil, fmt.Errorf("asi: read reply: %w", err)
	}
	ch.metrics.incReplyRecvCount()
	ch.logger.Debug("recv reply", "wire", strconv.Quote(string(raw)))

	return raw, nil
}

// Metrics returns the channel's transaction counters.
func (ch *Channel) Metrics() *ChannelMetrics {
	return &ch.metrics
}

// IsOpen reports whether the underlying transport is open.
func (ch *Channel) IsOpen() bool {
	return ch.transport.IsOpen()
}

func (ch *Channel) open() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.transport.Open()
}

func (ch *Channel) close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.transport.Close()
}
