package bridge

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ReceiverOption configures optional behavior of a Receiver at construction.
type ReceiverOption func(*receiverOptions)

type receiverOptions struct {
	clock    Clock
	registry *prometheus.Registry
	onData   func([]byte)
}

// WithReceiverClock injects a Clock, overriding the monotonic system clock.
func WithReceiverClock(c Clock) ReceiverOption {
	return func(o *receiverOptions) { o.clock = c }
}

// WithReceiverMetricsRegistry uses the given registry instead of a private
// one created for this Receiver.
func WithReceiverMetricsRegistry(r *prometheus.Registry) ReceiverOption {
	return func(o *receiverOptions) { o.registry = r }
}

// WithOnData registers the payload upcall (spec §6): delivered once per
// valid DATA frame, carrying 0..249 bytes of opaque application payload.
func WithOnData(fn func([]byte)) ReceiverOption {
	return func(o *receiverOptions) { o.onData = fn }
}

// Receiver is the Receiver role (spec §4.3/§4.5): it passively listens,
// answers SEARCH with a freshly generated key, grants channel hops, and
// delivers DATA frames to the application.
type Receiver struct {
	core  *BridgeCore
	radio RadioSubstrate
	clock Clock

	mu             sync.Mutex
	channel        channelState
	pendingPeer    Peer
	hasPendingPeer bool
	hopCandidate   int
	hopInFlight    bool
	onData         func([]byte)
}

// NewReceiver constructs a Receiver, performing the shared boot sequence
// against radio and store before returning. If a well-formed peer blob
// already exists, the returned Receiver starts Paired.
func NewReceiver(radio RadioSubstrate, store BlobStore, opts ...ReceiverOption) (*Receiver, error) {
	var o receiverOptions
	for _, opt := range opts {
		opt(&o)
	}
	core, err := newBridgeCore(radio, store, o.clock, o.registry)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		core:    core,
		radio:   radio,
		clock:   core.clock,
		channel: newChannelState(),
		onData:  o.onData,
	}
	radio.SetOnReceived(r.onReceived)
	radio.SetOnSent(r.onSent)
	return r, nil
}

// State returns the current pairing state.
func (r *Receiver) State() PairingState { return r.core.State() }

// Reset removes the persisted peer blob; see BridgeCore.Reset.
func (r *Receiver) Reset() error { return r.core.Reset() }

// Channel returns the current radio channel.
func (r *Receiver) Channel() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel.current
}

// Registry exposes the prometheus.Registry backing this Receiver's metrics.
func (r *Receiver) Registry() *prometheus.Registry { return r.core.Registry() }

// Tick runs one iteration of the Receiver's cooperative main loop (spec §5).
// The Receiver is purely upcall-driven (passive listen), so the only work
// here is servicing the config surface; busy-waiting between upcalls is
// explicitly permitted by spec §4.3 as long as this happens.
func (r *Receiver) Tick(ctx context.Context, cfg ConfigSurface) {
	ServiceConfig(ctx, cfg)
}

func (r *Receiver) onReceived(addr Addr, frame []byte) {
	f, ok := r.core.decodeFrame(frame)
	if !ok {
		return
	}
	switch r.State() {
	case Unpaired:
		if f.Tag != TagSearch {
			r.core.dropWrongState(f.Tag)
			return
		}
		r.answerSearch(addr)
	case Paired:
		switch f.Tag {
		case TagHopRequest:
			r.answerHopRequest(addr)
		case TagData:
			if r.onData != nil {
				r.onData(f.Payload)
			}
		default:
			r.core.dropWrongState(f.Tag)
		}
	}
}

// answerSearch implements spec §4.3 Receiver step 2: record the requester's
// address, generate a fresh key, and unicast SEARCH_REPLY in the clear (the
// reply is how the key is first transported, so it cannot itself be
// encrypted with that key). Every SEARCH gets a fresh key; only the reply
// that is actually acked wins the race (spec §4.3 rationale).
func (r *Receiver) answerSearch(addr Addr) {
	key := generateKey()
	peer := Peer{Addr: addr, Key: key}

	r.mu.Lock()
	r.pendingPeer = peer
	r.hasPendingPeer = true
	r.mu.Unlock()

	if !r.radio.Send(addr, encodeSearchReply(key)) {
		globalLogger.Debug("bridge: SEARCH_REPLY rejected by radio, will retry on next SEARCH")
	}
}

// answerHopRequest implements spec §4.5 steps 1-2: compute the candidate
// channel without committing, then unicast HOP_REPLY carrying it. Commit
// happens only in onSent, once the reply has actually left the radio.
func (r *Receiver) answerHopRequest(addr Addr) {
	r.mu.Lock()
	candidate := r.channel.candidate()
	r.hopCandidate = candidate
	r.hopInFlight = true
	r.mu.Unlock()

	if !r.radio.Send(addr, encodeHopReply(candidate)) {
		r.mu.Lock()
		r.hopInFlight = false
		r.mu.Unlock()
		globalLogger.Debug("bridge: HOP_REPLY rejected by radio, hop not triggered")
	}
}

func (r *Receiver) onSent(addr Addr, status SentStatus) {
	r.mu.Lock()
	pendingPeer, hasPendingPeer := r.pendingPeer, r.hasPendingPeer
	hopInFlight, hopCandidate := r.hopInFlight, r.hopCandidate
	r.mu.Unlock()

	// Only a positive ack for the most recent SEARCH_REPLY commits pairing
	// (spec §4.3 step 3, the Receiver's asymmetric commit point). A failed
	// ack leaves the Receiver Unpaired, still answering SEARCH frames.
	if r.State() == Unpaired && hasPendingPeer && addr == pendingPeer.Addr {
		r.mu.Lock()
		r.hasPendingPeer = false
		r.mu.Unlock()
		if status == SentOK {
			if err := r.core.commitPairing(pendingPeer); err != nil {
				globalLogger.Error("bridge: receiver failed to commit pairing: " + err.Error())
			}
		}
		return
	}

	// A positive ack for HOP_REPLY is the commit point for the channel
	// change itself (spec §4.5 step 3): only now does the Receiver actually
	// retune, ensuring it never leaves the Sender's channel before the
	// reply carrying the new one has gone out.
	if hopInFlight && r.State() == Paired {
		r.mu.Lock()
		r.hopInFlight = false
		r.mu.Unlock()
		if status != SentOK {
			return
		}
		r.commitHop(hopCandidate)
	}
}

func (r *Receiver) commitHop(candidate int) {
	if err := r.radio.SetChannel(candidate); err != nil {
		globalLogger.Warn("bridge: receiver channel set failed, leaving channel state unchanged: " + err.Error())
		return
	}
	r.mu.Lock()
	r.channel.commit(candidate)
	newCurrent := r.channel.current
	r.mu.Unlock()
	r.core.metrics.channel.Set(float64(newCurrent))
	r.core.metrics.hopsTotal.Inc()
}
