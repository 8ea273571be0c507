package bridge

// Addr is the 6-byte hardware address of a radio endpoint. The all-ones
// value is reserved for broadcast (spec Glossary).
type Addr [6]byte

// Broadcast is the reserved all-ones address used only pre-pair by the Sender.
var Broadcast = Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (a Addr) String() string {
	const hex = "0123456789ABCDEF"
	b := make([]byte, 0, 17)
	for i, v := range a {
		if i > 0 {
			b = append(b, ':')
		}
		b = append(b, hex[v>>4], hex[v&0x0F])
	}
	return string(b)
}

func (a Addr) IsBroadcast() bool { return a == Broadcast }

// Key is the 16-byte symmetric key the radio substrate uses for per-peer
// payload encryption once a peer is registered.
type Key [16]byte

// Role is advertised to the radio substrate at Init time. Both endpoints in
// this system always advertise RoleCombo: they must be able to both send and
// receive, since pairing itself is bidirectional.
type Role int

const (
	RoleCombo Role = iota
)

// SentStatus is the outcome reported asynchronously through OnSent for a
// unicast send. Broadcasts also report a status, but nothing in the core
// keys retry logic on it (spec §4.3.4); it is informational only.
type SentStatus int

const (
	// SentOK means the peer (or, for broadcast, the air) acknowledged receipt
	// at the radio layer.
	SentOK SentStatus = iota
	// SentFailed means the radio's automatic retry budget was exhausted
	// without an ack, or the link otherwise failed to confirm delivery.
	SentFailed
)

// RadioSubstrate is the external collaborator the core is built against
// (spec §6). It models a single-core microcontroller's 2.4 GHz radio: short
// unicast/broadcast datagrams, a selectable channel, and two upcalls that are
// guaranteed (by whatever concrete implementation is supplied) to be
// delivered one at a time, serialized with the caller's main loop.
//
// The core never type-asserts or otherwise depends on a specific
// implementation; exactly one concrete implementation ships in this
// repository, in internal/nrf24radio, adapted from a standalone nRF24L01+
// driver.
type RadioSubstrate interface {
	// Init configures the radio for the given role and must be called before
	// any other method. role is always RoleCombo for this system.
	Init(role Role) error

	// SetChannel switches the radio to the given channel, 1..13. It is
	// called once at boot with InitChannel, then by the Receiver's channel
	// hopper and, following a HOP_REPLY, by the Sender.
	SetChannel(channel int) error

	// AddPeer registers a peer's address and symmetric key with the
	// substrate so that subsequent unicast traffic to/from addr is
	// encrypted. Called exactly once per boot, immediately after pairing
	// completes (or immediately after loading a persisted peer).
	AddPeer(addr Addr, key Key) error

	// Send hands a frame to the radio for transmission to addr (which may be
	// Broadcast, pre-pairing, from the Sender only). It returns true if the
	// radio accepted the frame for transmission — not whether it was
	// ultimately acknowledged, which arrives later through OnSent. A false
	// return corresponds to ErrSendRejected at the caller.
	Send(addr Addr, frame []byte) bool

	// SetOnSent registers the upcall invoked once per unicast Send with its
	// outcome. Broadcasts also report through this upcall; the core treats
	// that report as informational only.
	SetOnSent(fn func(addr Addr, status SentStatus))

	// SetOnReceived registers the upcall invoked once per received frame.
	// The byte slice is only valid for the duration of the call; a
	// conforming implementation must not retain or mutate it afterward, and
	// the core never does.
	SetOnReceived(fn func(addr Addr, frame []byte))
}
