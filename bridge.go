package bridge

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PairingState is the pairing state machine's variant (spec §3). Transitions
// are monotonic per boot: once Paired, a BridgeCore never returns to
// Unpaired except by process restart. Reset only affects persisted state for
// the *next* boot; it never interrupts a running session.
type PairingState int

const (
	Unpaired PairingState = iota
	Paired
)

func (s PairingState) String() string {
	if s == Paired {
		return "paired"
	}
	return "unpaired"
}

// BridgeCore is the shared substrate both roles embed (spec §2). It owns the
// radio singleton, the blob store, the pairing state, and the metrics
// surface. It holds no role-specific state (LinkQuality is Sender-only,
// ChannelState is Receiver-only — spec §3 — and live on *Sender/*Receiver).
//
// Exactly one BridgeCore exists per process: the radio substrate is a
// process-wide singleton (spec §5/§9) and this type assumes it is the sole
// owner of the callbacks registered on it.
type BridgeCore struct {
	mu    sync.Mutex
	radio RadioSubstrate
	store BlobStore
	clock Clock

	state PairingState
	peer  Peer

	metrics *coreMetrics
}

// newBridgeCore performs the shared half of boot (spec §4.2/§4.3 preamble):
// initialize the radio in combo role, start on INIT_CHANNEL, and load a
// persisted peer if one exists and is well-formed — entering Paired before
// any radio traffic, as required. A role (Sender/Receiver) wraps the
// returned core and, if still Unpaired, begins its own discovery procedure.
func newBridgeCore(radio RadioSubstrate, store BlobStore, clock Clock, reg *prometheus.Registry) (*BridgeCore, error) {
	if clock == nil {
		clock = newSystemClock()
	}
	c := &BridgeCore{
		radio:   radio,
		store:   store,
		clock:   clock,
		metrics: newCoreMetrics(reg),
	}

	if err := radio.Init(RoleCombo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRadioInitFailed, err)
	}
	if err := radio.SetChannel(InitChannel); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelSetFailed, err)
	}

	if peer, ok := loadPersistedPeer(store); ok {
		if err := radio.AddPeer(peer.Addr, peer.Key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPeerRegisterFailed, err)
		}
		c.peer = peer
		c.state = Paired
		globalLogger.Info(fmt.Sprintf("bridge: loaded persisted peer %s, starting paired", peer.Addr))
	}

	return c, nil
}

// State returns the current pairing state.
func (c *BridgeCore) State() PairingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PeerInfo returns the current peer record and whether pairing has completed.
func (c *BridgeCore) PeerInfo() (Peer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer, c.state == Paired
}

// Reset implements the externally-exposed reset operation (spec §6): it
// removes the persisted peer blob so the next boot rediscovers. It
// deliberately does not touch c.state — an in-progress session keeps running
// Paired, per spec §3's "reset does not interrupt a running session" and §8
// invariant 5 (idempotent).
func (c *BridgeCore) Reset() error {
	return resetPersistedPeer(c.store)
}

// commitPairing is the single path by which a core leaves Unpaired (spec
// §4.3). Both roles reach it at their own asymmetric commit point (the
// Sender on receiving SEARCH_REPLY, the Receiver on a successful ack for the
// SEARCH_REPLY it sent) with an identical contract: register the peer with
// the radio substrate (enabling encrypted unicast for everything from here
// on), persist it, and only then flip the state. If AddPeer itself fails,
// pairing does not commit, so a later retry (a fresh SEARCH_REPLY exchange)
// can still succeed; a persistence failure, by contrast, is logged and
// non-fatal — the state still commits, and only the next boot is affected.
func (c *BridgeCore) commitPairing(p Peer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Paired {
		return nil
	}
	if err := c.radio.AddPeer(p.Addr, p.Key); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerRegisterFailed, err)
	}
	if err := persistPeer(c.store, p); err != nil {
		globalLogger.Warn(fmt.Sprintf("bridge: %v (will rediscover next boot)", err))
	}
	c.peer = p
	c.state = Paired
	globalLogger.Info(fmt.Sprintf("bridge: paired with %s", p.Addr))
	return nil
}

// decodeFrame wraps Decode with the observability counters from spec §4.10.
// It never changes the wire-level drop-silently semantics of §4.1 — it only
// makes the outcome visible on /metrics.
func (c *BridgeCore) decodeFrame(b []byte) (decodedFrame, bool) {
	f, reason, ok := Decode(b)
	if !ok {
		c.metrics.framesDropped.WithLabelValues(string(reason)).Inc()
		return decodedFrame{}, false
	}
	c.metrics.framesDecoded.WithLabelValues(f.Tag.String()).Inc()
	return f, true
}

// dropWrongState records a frame that decoded fine but does not belong in
// the current PairingState (spec §4.6: "all else dropped").
func (c *BridgeCore) dropWrongState(tag FrameTag) {
	c.metrics.framesDropped.WithLabelValues("wrong_state").Inc()
	globalLogger.Debug(fmt.Sprintf("bridge: dropping %s frame, wrong state %s", tag, c.State()))
}
