package nrf24radio

import (
	"sync"
	"testing"

	bridge "github.com/nullchannel/rcbridge"
)

// fakeSPI is a minimal in-memory register file satisfying enough of the
// NRF24L01+ command set (register read/write) for Device bring-up and
// SetChannel; it does not model the TX/RX FIFOs.
type fakeSPI struct {
	mu   sync.Mutex
	regs map[byte]byte
}

func newFakeSPI() *fakeSPI { return &fakeSPI{regs: map[byte]byte{}} }

func (f *fakeSPI) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := w[0]
	switch {
	case cmd&0xE0 == _W_REGISTER:
		reg := cmd & 0x1F
		if len(w) > 1 {
			f.regs[reg] = w[1]
		}
	case cmd <= 0x1F:
		if len(r) > 1 {
			r[1] = f.regs[cmd]
		}
	}
	return nil
}

type fakePin struct{}

func (fakePin) Out(Level) error            { return nil }
func (fakePin) In(Pull) error               { return nil }
func (fakePin) Read() Level                 { return Low }
func (fakePin) Watch(Edge, func()) error   { return nil }
func (fakePin) Unwatch() error              { return nil }

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	dev, err := NewWithHardware(HardwareConfig{
		RadioConfig: RadioConfig{ChannelNumber: 70, RxAddr: Address{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}},
		CE:          fakePin{},
	}, newFakeSPI())
	if err != nil {
		t.Fatalf("NewWithHardware() = %v", err)
	}
	return dev
}

func TestAdapterSetChannelMapsDomainToChipRange(t *testing.T) {
	a := NewAdapter(newTestDevice(t))
	if err := a.SetChannel(1); err != nil {
		t.Fatalf("SetChannel(1) = %v", err)
	}
	if err := a.SetChannel(13); err != nil {
		t.Fatalf("SetChannel(13) = %v", err)
	}
}

func TestAdapterSetChannelRejectsOutOfRange(t *testing.T) {
	a := NewAdapter(nil)
	if err := a.SetChannel(0); err == nil {
		t.Fatal("SetChannel(0) = nil, want an error")
	}
	if err := a.SetChannel(14); err == nil {
		t.Fatal("SetChannel(14) = nil, want an error")
	}
}

func TestAdapterEncodeDecodeDataRoundTrip(t *testing.T) {
	a := NewAdapter(nil)
	key := bridge.Key{1, 2, 3, 4}
	if err := a.AddPeer(bridge.Addr{1}, key); err != nil {
		t.Fatalf("AddPeer() = %v", err)
	}

	plain := []byte{byte(dataFrameTag), 'h', 'i'}
	wire, ok := a.encodeOutgoing(plain)
	if !ok {
		t.Fatal("encodeOutgoing() rejected a well-formed DATA frame")
	}
	if len(wire) == len(plain) {
		t.Fatal("encodeOutgoing() did not add AEAD framing")
	}

	got, ok := a.decodeIncoming(wire)
	if !ok {
		t.Fatal("decodeIncoming() rejected its own encodeOutgoing() output")
	}
	if string(got) != string(plain) {
		t.Fatalf("decodeIncoming() = %q, want %q", got, plain)
	}
}

func TestAdapterControlFramesPassThroughInClear(t *testing.T) {
	a := NewAdapter(nil)
	frame := []byte{1}
	wire, ok := a.encodeOutgoing(frame)
	if !ok || string(wire) != string(frame) {
		t.Fatalf("encodeOutgoing(SEARCH) = %q, %v, want unchanged passthrough", wire, ok)
	}
}

func TestAdapterReplayGuardRejectsStaleCounter(t *testing.T) {
	a := NewAdapter(nil)
	key := bridge.Key{9}
	if err := a.AddPeer(bridge.Addr{1}, key); err != nil {
		t.Fatalf("AddPeer() = %v", err)
	}

	plain := []byte{byte(dataFrameTag), 'x'}
	first, _ := a.encodeOutgoing(plain)
	second, _ := a.encodeOutgoing(plain)

	if _, ok := a.decodeIncoming(second); !ok {
		t.Fatal("decodeIncoming() rejected the newer of two frames")
	}
	if _, ok := a.decodeIncoming(first); ok {
		t.Fatal("decodeIncoming() accepted a frame with a counter at or below one already seen")
	}
}

func TestAdapterOversizedDataPayloadRejected(t *testing.T) {
	a := NewAdapter(nil)
	if err := a.AddPeer(bridge.Addr{1}, bridge.Key{1}); err != nil {
		t.Fatalf("AddPeer() = %v", err)
	}

	ok := []byte{byte(dataFrameTag)}
	for i := 0; i < MaxDataPayload; i++ {
		ok = append(ok, 'a')
	}
	if _, accepted := a.encodeOutgoing(ok); !accepted {
		t.Fatalf("encodeOutgoing() rejected a %d-byte payload, the exact limit", MaxDataPayload)
	}

	tooBig := append(ok, 'z')
	if _, accepted := a.encodeOutgoing(tooBig); accepted {
		t.Fatalf("encodeOutgoing() accepted a %d-byte payload, one over the limit", len(tooBig)-1)
	}
}

func TestAdapterEncodeDataWithoutPeerRejected(t *testing.T) {
	a := NewAdapter(nil)
	if _, ok := a.encodeOutgoing([]byte{byte(dataFrameTag), 'x'}); ok {
		t.Fatal("encodeOutgoing() accepted a DATA frame with no peer registered")
	}
}
