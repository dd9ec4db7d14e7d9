package asi

import (
	"sync/atomic"
)

// ChannelMetrics contains atomic metrics for a command channel.
// Metrics can be used as the value of a prometheus CounterFunc.
type ChannelMetrics struct {
	// CommandSendCount indicates the number of commands written to the transport.
	CommandSendCount atomic.Uint64
	// ReplyRecvCount indicates the number of terminated replies received.
	ReplyRecvCount atomic.Uint64
	// TransportErrCount indicates the number of transport-level failures.
	TransportErrCount atomic.Uint64
	// DeviceErrCount indicates the number of ":N" error replies decoded.
	DeviceErrCount atomic.Uint64
}

func (m *ChannelMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *ChannelMetrics) incReplyRecvCount() {
	m.ReplyRecvCount.Add(1)
}

func (m *ChannelMetrics) incTransportErrCount() {
	m.TransportErrCount.Add(1)
}

func (m *ChannelMetrics) incDeviceErrCount() {
	m.DeviceErrCount.Add(1)
}
