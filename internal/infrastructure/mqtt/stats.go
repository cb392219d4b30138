package mqtt

import "sync/atomic"

type stats struct {
	published     atomic.Int64
	received      atomic.Int64
	handlerErrors atomic.Int64
	disconnects   atomic.Int64
}

// Stats is a snapshot of client counters, exposed on /metrics.
type Stats struct {
	Connected     bool  `json:"connected"`
	Published     int64 `json:"published"`
	Received      int64 `json:"received"`
	HandlerErrors int64 `json:"handler_errors"`
	Disconnects   int64 `json:"disconnects"`
	Subscriptions int   `json:"subscriptions"`
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	c.subMu.RLock()
	subs := len(c.subscriptions)
	c.subMu.RUnlock()

	return Stats{
		Connected:     c.IsConnected(),
		Published:     c.stats.published.Load(),
		Received:      c.stats.received.Load(),
		HandlerErrors: c.stats.handlerErrors.Load(),
		Disconnects:   c.stats.disconnects.Load(),
		Subscriptions: subs,
	}
}
