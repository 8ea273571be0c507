// Package nrf24radio adapts the trimmed NRF24L01+ driver in this package to
// bridge.RadioSubstrate, the single external collaborator the core protocol
// package is built against.
//
// Two physical realities the protocol's abstract radio model glosses over
// have to be resolved here:
//
//   - The chip has no concept of an application-level MTU: its payload is a
//     fixed 32 bytes, wildly short of the protocol's 250-byte MTU. Control
//     frames (SEARCH, SEARCH_REPLY, HOP_REQUEST, HOP_REPLY) are all well
//     under that limit even after the encryption overhead below; DATA frames
//     are not, in general. Adapter does not fragment — a DATA payload that
//     would not fit after encryption is rejected synchronously from Send,
//     exactly like any other hardware-level capacity limit (e.g. a full TX
//     FIFO) would be.
//   - The chip's auto-ack hardware pipes only ever talk to one fixed partner
//     address at a time; it carries no notion of "which peer" a frame is
//     from. This link is point-to-point by construction (one Sender, one
//     Receiver, spec §2), so Adapter resolves the entire logical address
//     space the core sees down to two values: Broadcast, and a single
//     sentinel identifying "the other end of the wire".
package nrf24radio

import (
	"context"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"

	bridge "github.com/nullchannel/rcbridge"
)

// rendezvousAddress is the one chip-level pipe address this link ever uses,
// in both directions and both before and after pairing — mirroring the
// teacher driver's own ping-pong demo, which hardcodes the same address on
// both ends. The protocol's own pairing handshake and per-peer encryption
// are what actually separate one logical conversation from another; the
// radio pipe address does not need to.
var rendezvousAddress = Address{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}

// peerSentinel is the one non-broadcast bridge.Addr this adapter ever
// reports: there is exactly one possible remote party on a point-to-point
// link, so there is nothing for a richer address scheme to distinguish.
var peerSentinel = bridge.Addr{0x01}

// nonceOverhead is the wire cost of a DATA frame's AEAD framing: a 4-byte
// monotonic counter plus the 16-byte Poly1305 tag, on top of the 1-byte
// frame tag already present in every frame.
const nonceOverhead = 4 + chacha20poly1305.Overhead

// MaxDataPayload is the largest application payload (spec §4.7) this
// hardware can actually carry once AEAD framing is accounted for:
// 32 (chip payload) - 1 (tag) - 4 (nonce counter) - 16 (auth tag) = 11 bytes.
// Compare to the protocol's nominal 249-byte ceiling, which a mock substrate
// in the core package's tests can satisfy exactly; real hardware cannot.
const MaxDataPayload = maxPayloadBytes - 1 - nonceOverhead

type sentEvent struct {
	status bridge.SentStatus
}

type receivedEvent struct {
	frame []byte
}

// Adapter implements bridge.RadioSubstrate over a Device. Upcalls from the
// chip (received frames, send outcomes) arrive on a background goroutine
// driven by the chip's blocking receive call and its synchronous transmit
// call; Adapter queues them on a single channel and only ever delivers them
// to the core from Pump, called once per iteration of the cooperative main
// loop — the serialization point the core's upcall contract requires.
type Adapter struct {
	dev *Device

	mu      sync.Mutex
	key     *[32]byte
	aead    cipher.AEAD
	sendCtr uint32
	recvHi  uint32

	onSent     func(addr bridge.Addr, status bridge.SentStatus)
	onReceived func(addr bridge.Addr, frame []byte)

	events chan func()

	recvCancel context.CancelFunc
	recvDone   chan struct{}

	closed atomic.Bool
}

// NewAdapter wraps an already-initialized Device. Device bring-up (pin
// binding, SPI connection) is platform-specific; see New in
// hardware-periph.go / hardware-tinygo.go.
func NewAdapter(dev *Device) *Adapter {
	return &Adapter{
		dev:    dev,
		events: make(chan func(), 32),
	}
}

// Init satisfies bridge.RadioSubstrate. Device bring-up already happened in
// New; Init here only starts the background receive loop, since the core
// registers its upcalls (SetOnSent/SetOnReceived) after construction but
// before Init is meaningful to rely on.
func (a *Adapter) Init(role bridge.Role) error {
	ctx, cancel := context.WithCancel(context.Background())
	a.recvCancel = cancel
	a.recvDone = make(chan struct{})
	go a.receiveLoop(ctx)
	return nil
}

func (a *Adapter) receiveLoop(ctx context.Context) {
	defer close(a.recvDone)
	for {
		raw, err := a.dev.ReceiveBlocking(ctx)
		if err != nil {
			return
		}
		frame, ok := a.decodeIncoming(raw)
		if !ok {
			continue
		}
		select {
		case a.events <- func() {
			if a.onReceived != nil {
				a.onReceived(peerSentinel, frame)
			}
		}:
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the receive loop and powers down the chip.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.recvCancel != nil {
		a.recvCancel()
		<-a.recvDone
	}
	return a.dev.Close()
}

// Pump delivers every upcall queued since the last call, in order, on the
// calling goroutine. It never blocks. The cooperative main loop (cmd/rcbridge)
// calls this once per iteration, immediately before Sender.Tick/Receiver.Tick.
func (a *Adapter) Pump() {
	for {
		select {
		case fn := <-a.events:
			fn()
		default:
			return
		}
	}
}

// SetChannel maps the protocol's domain channel (1..13) onto the chip's RF
// channel register. The base is 70, so domain channels 1..13 become chip
// channels 70..82 (2470-2482MHz).
func (a *Adapter) SetChannel(channel int) error {
	const chipChannelBase = 70
	if channel < bridgeMinChannel || channel > bridgeMaxChannel {
		return fmt.Errorf("nrf24radio: channel %d out of range", channel)
	}
	return a.dev.SetChannel(byte(chipChannelBase + (channel - 1)))
}

// bridgeMinChannel/bridgeMaxChannel hold the same values as the exported
// bridge.MinChannel/MaxChannel.
const (
	bridgeMinChannel = 1
	bridgeMaxChannel = 13
)

// AddPeer derives a 256-bit AEAD key from the paired 128-bit key via BLAKE2s
// (the same construction WireGuard uses to turn handshake material into a
// cipher key) and resets the per-session nonce counters. Called exactly once
// per boot.
func (a *Adapter) AddPeer(addr bridge.Addr, key bridge.Key) error {
	sum := blake2s.Sum256(key[:])
	aead, err := chacha20poly1305.New(sum[:])
	if err != nil {
		return fmt.Errorf("nrf24radio: %w", err)
	}
	a.mu.Lock()
	a.key = &sum
	a.aead = aead
	a.sendCtr = 0
	a.recvHi = 0
	a.mu.Unlock()
	return nil
}

// SetOnSent registers the send-outcome upcall.
func (a *Adapter) SetOnSent(fn func(addr bridge.Addr, status bridge.SentStatus)) {
	a.onSent = fn
}

// SetOnReceived registers the frame upcall.
func (a *Adapter) SetOnReceived(fn func(addr bridge.Addr, frame []byte)) {
	a.onReceived = fn
}

// Send encodes frame for the wire (encrypting it first if it is a DATA frame
// and a peer is registered), hands it to the chip, and reports the outcome
// asynchronously through onSent. Broadcasts go out as a no-ack transmission,
// matching the protocol's model where SEARCH has no single recipient to ack
// it; everything else is an acked unicast to the one reachable peer.
func (a *Adapter) Send(addr bridge.Addr, frame []byte) bool {
	wire, ok := a.encodeOutgoing(frame)
	if !ok {
		return false
	}
	broadcast := addr.IsBroadcast()

	go func() {
		var err error
		if broadcast {
			err = a.dev.TransmitNoAck(rendezvousAddress, wire)
		} else {
			err = a.dev.Transmit(rendezvousAddress, wire)
		}
		status := bridge.SentOK
		if err != nil {
			status = bridge.SentFailed
		}
		select {
		case a.events <- func() {
			if a.onSent != nil {
				a.onSent(addr, status)
			}
		}:
		default:
			globalLogger.Warn("nrf24radio: upcall queue full, dropping send outcome")
		}
	}()
	return true
}

// encodeOutgoing prepares frame for the air: DATA frames get AEAD-sealed
// (tag byte kept in clear, payload replaced by nonce||ciphertext||authtag),
// everything else goes out unencrypted exactly as the core built it — the
// handshake frames are how the encryption key itself gets established, so
// they cannot depend on it.
func (a *Adapter) encodeOutgoing(frame []byte) ([]byte, bool) {
	if len(frame) == 0 {
		return nil, false
	}
	if frame[0] != dataFrameTag {
		if len(frame) > maxPayloadBytes {
			return nil, false
		}
		return frame, true
	}

	a.mu.Lock()
	aead := a.aead
	if aead == nil {
		a.mu.Unlock()
		return nil, false
	}
	a.sendCtr++
	ctr := a.sendCtr
	a.mu.Unlock()

	if len(frame)-1 > MaxDataPayload {
		return nil, false
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[chacha20poly1305.NonceSize-4:], ctr)

	sealed := aead.Seal(nil, nonce, frame[1:], nil)
	out := make([]byte, 1+4+len(sealed))
	out[0] = dataFrameTag
	binary.BigEndian.PutUint32(out[1:5], ctr)
	copy(out[5:], sealed)
	return out, true
}

// decodeIncoming is the inverse of encodeOutgoing: it opens a DATA frame's
// AEAD envelope and rejects any counter at or below the highest one already
// seen, a minimal replay guard (not a full sliding-window bitmap — out of
// order delivery is not expected on this link and is simply dropped).
// Non-DATA frames pass through unchanged.
func (a *Adapter) decodeIncoming(wire []byte) ([]byte, bool) {
	if len(wire) == 0 {
		return nil, false
	}
	if wire[0] != dataFrameTag {
		return wire, true
	}
	if len(wire) < 1+4+chacha20poly1305.Overhead {
		return nil, false
	}

	a.mu.Lock()
	aead := a.aead
	recvHi := a.recvHi
	a.mu.Unlock()
	if aead == nil {
		return nil, false
	}

	ctr := binary.BigEndian.Uint32(wire[1:5])
	if ctr <= recvHi {
		return nil, false
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[chacha20poly1305.NonceSize-4:], ctr)

	plain, err := aead.Open(nil, nonce, wire[5:], nil)
	if err != nil {
		return nil, false
	}

	a.mu.Lock()
	if ctr > a.recvHi {
		a.recvHi = ctr
	}
	a.mu.Unlock()

	out := make([]byte, 1+len(plain))
	out[0] = dataFrameTag
	copy(out[1:], plain)
	return out, true
}

// dataFrameTag mirrors bridge.TagData's wire value (5). Kept as an untyped
// constant here rather than importing the frame-tag enum, since this
// package's only contract with the core is the byte slice RadioSubstrate
// already specifies.
const dataFrameTag = 5
