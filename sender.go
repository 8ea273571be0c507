package bridge

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SenderOption configures optional behavior of a Sender at construction.
type SenderOption func(*senderOptions)

type senderOptions struct {
	clock        Clock
	registry     *prometheus.Registry
	onLowQuality func()
}

// WithSenderClock injects a Clock, overriding the monotonic system clock.
// Intended for deterministic tests of the 500ms broadcast cadence.
func WithSenderClock(c Clock) SenderOption {
	return func(o *senderOptions) { o.clock = c }
}

// WithSenderMetricsRegistry uses the given registry instead of a private one
// created for this Sender. Useful when a process hosts more than one
// prometheus collector set.
func WithSenderMetricsRegistry(r *prometheus.Registry) SenderOption {
	return func(o *senderOptions) { o.registry = r }
}

// WithLowQualityHook registers the pure-notification hook invoked on every
// unicast ack report that leaves the link quality estimate below threshold
// (spec §4.4 step 1); while HOP_REQUEST sends keep being rejected, that is
// every such report, not only the first one to cross the threshold. It
// must not block: the Sender calls it synchronously from within its
// on_sent-driven dispatch.
func WithLowQualityHook(fn func()) SenderOption {
	return func(o *senderOptions) { o.onLowQuality = fn }
}

// Sender is the Sender role (spec §4.3/§4.4/§4.7): it broadcasts SEARCH
// pre-pair, sends application DATA post-pair, and drives channel hops by
// watching its own link quality.
type Sender struct {
	core  *BridgeCore
	radio RadioSubstrate
	clock Clock

	mu            sync.Mutex
	quality       linkQuality
	lastBroadcast uint64
	broadcasted   bool
	onLowQuality  func()
}

// NewSender constructs a Sender, performing the shared boot sequence
// (§4.2/§4.3 preamble) against radio and store before returning. If a
// well-formed peer blob already exists, the returned Sender starts Paired
// and never broadcasts SEARCH (scenario 2, §8).
func NewSender(radio RadioSubstrate, store BlobStore, opts ...SenderOption) (*Sender, error) {
	var o senderOptions
	for _, opt := range opts {
		opt(&o)
	}
	core, err := newBridgeCore(radio, store, o.clock, o.registry)
	if err != nil {
		return nil, err
	}
	clock := core.clock

	s := &Sender{
		core:         core,
		radio:        radio,
		clock:        clock,
		quality:      newLinkQuality(),
		onLowQuality: o.onLowQuality,
	}
	radio.SetOnReceived(s.onReceived)
	radio.SetOnSent(s.onSent)
	return s, nil
}

// State returns the current pairing state.
func (s *Sender) State() PairingState { return s.core.State() }

// Reset removes the persisted peer blob; see BridgeCore.Reset.
func (s *Sender) Reset() error { return s.core.Reset() }

// LinkQuality returns the current link-quality estimate, for metrics/UI use.
func (s *Sender) LinkQuality() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality.value64()
}

// Registry exposes the prometheus.Registry backing this Sender's metrics.
func (s *Sender) Registry() *prometheus.Registry { return s.core.Registry() }

// Tick runs one iteration of the Sender's cooperative main loop (spec §5):
// while Unpaired, maybe emit a SEARCH broadcast on the 500ms cadence; then
// service the config surface once. It never blocks beyond what cfg.Poll
// itself takes.
func (s *Sender) Tick(ctx context.Context, cfg ConfigSurface) {
	if s.State() == Unpaired {
		s.maybeBroadcastSearch()
	}
	ServiceConfig(ctx, cfg)
}

func (s *Sender) maybeBroadcastSearch() {
	s.mu.Lock()
	now := s.clock.NowMicros()
	due := !s.broadcasted || now-s.lastBroadcast >= broadcastIntervalMicros
	if due {
		s.lastBroadcast = now
		s.broadcasted = true
	}
	s.mu.Unlock()

	if !due {
		return
	}
	// Broadcast-ack status arrives later at onSent with addr == Broadcast;
	// it is informational only (spec §4.3.4), so the accept/reject return
	// here is not even inspected beyond a debug log.
	if !s.radio.Send(Broadcast, encodeSearch()) {
		globalLogger.Debug("bridge: SEARCH broadcast rejected by radio")
	}
}

// Send is the application-facing transmit surface (spec §4.7). It fails
// synchronously with ErrPayloadTooLarge for invalid lengths; otherwise it
// returns nil as soon as the radio has accepted the frame, long before any
// ack is known. The eventual ack outcome is consumed internally by the link
// quality estimator, never surfaced here.
func (s *Sender) Send(payload []byte) error {
	if err := validateDataPayload(payload); err != nil {
		return err
	}
	peer, paired := s.core.PeerInfo()
	if !paired {
		return ErrSendRejected
	}
	if !s.radio.Send(peer.Addr, encodeData(payload)) {
		return ErrSendRejected
	}
	return nil
}

func (s *Sender) onReceived(addr Addr, frame []byte) {
	f, ok := s.core.decodeFrame(frame)
	if !ok {
		return
	}
	switch s.State() {
	case Unpaired:
		if f.Tag != TagSearchReply {
			s.core.dropWrongState(f.Tag)
			return
		}
		var key Key
		copy(key[:], f.Payload)
		// Asymmetric commit point (spec §4.3/§9): the Sender commits as
		// soon as it has both the address and the key, here on RX — it
		// does not wait for any ack, since it has nothing further to send
		// in the handshake.
		if err := s.core.commitPairing(Peer{Addr: addr, Key: key}); err != nil {
			globalLogger.Error("bridge: sender failed to commit pairing: " + err.Error())
		}
	case Paired:
		switch f.Tag {
		case TagHopReply:
			channel := int(f.Payload[0])
			// The Sender hops immediately on receiving HOP_REPLY and sends
			// no acknowledgement; from its side the hop is complete (spec
			// §4.5). If SetChannel fails here, the Sender and Receiver are
			// left on different channels — the documented hop race in §9 —
			// and no recovery path is attempted, per that section's
			// decision.
			if err := s.radio.SetChannel(channel); err != nil {
				globalLogger.Warn("bridge: sender channel hop failed: " + err.Error())
			}
		default:
			s.core.dropWrongState(f.Tag)
		}
	}
}

func (s *Sender) onSent(addr Addr, status SentStatus) {
	if addr.IsBroadcast() {
		// Informational only; no retry logic is keyed on broadcast acks
		// (spec §4.3.4).
		return
	}
	s.mu.Lock()
	s.quality.observe(status == SentOK)
	low := s.quality.low()
	s.mu.Unlock()
	s.core.metrics.linkQuality.Set(s.LinkQuality())

	if !low {
		return
	}
	peer, paired := s.core.PeerInfo()
	if !paired {
		return
	}
	if s.onLowQuality != nil {
		s.onLowQuality()
	}
	accepted := s.radio.Send(peer.Addr, encodeHopRequest())
	if accepted {
		s.mu.Lock()
		s.quality.reset()
		s.mu.Unlock()
		s.core.metrics.linkQuality.Set(s.LinkQuality())
	}
	// If rejected, quality is left as-is so the next qualifying ack retries
	// (spec §4.4 step 3).
}
