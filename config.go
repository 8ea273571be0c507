package bridge

import "context"

// ConfigSurface is the external collaborator for the always-available
// configuration surface (spec §6): a black box the main loop polls
// cooperatively, servicing at most one HTTP request per call so polling it
// never blocks the loop longer than that single request takes.
type ConfigSurface interface {
	// Poll services at most one pending request and returns promptly
	// whether or not one was available. ctx bounds how long Poll itself may
	// wait for a request to arrive; it is not a protocol timeout.
	Poll(ctx context.Context) error
}

// ServiceConfig polls the config surface once, logging (but not
// propagating) any error: the config surface is explicitly a best-effort
// black box and must never be allowed to interrupt pairing, framing, or
// hopping.
func ServiceConfig(ctx context.Context, cfg ConfigSurface) {
	if cfg == nil {
		return
	}
	if err := cfg.Poll(ctx); err != nil {
		globalLogger.Debug("bridge: config surface poll error: " + err.Error())
	}
}
