package bridge

import (
	"context"
	"testing"
)

func newTestSender(t *testing.T) (*Sender, *mockRadio, *mockStore, *mockClock) {
	t.Helper()
	radio := newMockRadio()
	store := newMockStore()
	clock := &mockClock{}
	s, err := NewSender(radio, store, WithSenderClock(clock))
	if err != nil {
		t.Fatalf("NewSender() = %v", err)
	}
	return s, radio, store, clock
}

func TestSenderBroadcastsSearchOnColdBootAndThenWaits500ms(t *testing.T) {
	s, radio, _, clock := newTestSender(t)
	ctx := context.Background()

	s.Tick(ctx, nil)
	if got := radio.sentCount(); got != 1 {
		t.Fatalf("after first Tick, sentCount = %d, want 1", got)
	}
	last, _ := radio.lastSent()
	if !last.addr.IsBroadcast() || FrameTag(last.frame[0]) != TagSearch {
		t.Fatalf("first send = %+v, want a SEARCH broadcast", last)
	}

	s.Tick(ctx, nil)
	if got := radio.sentCount(); got != 1 {
		t.Fatalf("immediate re-Tick sentCount = %d, want still 1 (cadence not elapsed)", got)
	}

	clock.advance(uint64(broadcastIntervalMicros))
	s.Tick(ctx, nil)
	if got := radio.sentCount(); got != 2 {
		t.Fatalf("after cadence elapsed, sentCount = %d, want 2", got)
	}
}

func TestSenderCommitsPairingOnSearchReply(t *testing.T) {
	s, radio, store, _ := newTestSender(t)

	peerAddr := Addr{1, 2, 3, 4, 5, 6}
	key := Key{7, 7, 7}
	radio.deliver(peerAddr, encodeSearchReply(key))

	if s.State() != Paired {
		t.Fatalf("state after SEARCH_REPLY = %v, want Paired", s.State())
	}
	if got, ok := radio.peers[peerAddr]; !ok || got != key {
		t.Fatal("AddPeer was not called with the reply's address and key")
	}
	if !store.Exists(peerBlobName) {
		t.Fatal("pairing did not persist the peer blob")
	}
}

func TestSenderSendRejectedBeforePairing(t *testing.T) {
	s, _, _, _ := newTestSender(t)
	if err := s.Send([]byte("hi")); err == nil {
		t.Fatal("Send() before pairing = nil, want ErrSendRejected")
	}
}

func TestSenderSendAfterPairing(t *testing.T) {
	s, radio, _, _ := newTestSender(t)
	peerAddr := Addr{9}
	radio.deliver(peerAddr, encodeSearchReply(Key{1}))

	if err := s.Send([]byte("payload")); err != nil {
		t.Fatalf("Send() after pairing = %v", err)
	}
	last, ok := radio.lastSent()
	if !ok || last.addr != peerAddr || FrameTag(last.frame[0]) != TagData {
		t.Fatalf("Send() routed to %+v, want a DATA frame to %v", last, peerAddr)
	}
}

// TestSenderHopTriggersOnLowQuality covers spec §4.4: sustained failed acks
// push link quality below threshold, which synchronously emits HOP_REQUEST
// and resets the estimator once the radio accepts that send.
func TestSenderHopTriggersOnLowQuality(t *testing.T) {
	s, radio, _, _ := newTestSender(t)
	peerAddr := Addr{3}
	radio.deliver(peerAddr, encodeSearchReply(Key{1}))

	hookCalled := false
	s.onLowQuality = func() { hookCalled = true }

	for i := 0; i < 50 && !hookCalled; i++ {
		radio.ack(peerAddr, SentFailed)
	}

	if !hookCalled {
		t.Fatal("low-quality hook was never invoked")
	}
	last, ok := radio.lastSent()
	if !ok || FrameTag(last.frame[0]) != TagHopRequest {
		t.Fatalf("last send after quality dropped = %+v, want HOP_REQUEST", last)
	}
	if s.LinkQuality() != 1.0 {
		t.Fatalf("quality after accepted HOP_REQUEST = %v, want reset to 1.0", s.LinkQuality())
	}
}

func TestSenderBroadcastAckIsInformationalOnly(t *testing.T) {
	s, radio, _, _ := newTestSender(t)
	before := s.LinkQuality()
	radio.ack(Broadcast, SentFailed)
	if s.LinkQuality() != before {
		t.Fatalf("broadcast ack changed link quality: %v -> %v", before, s.LinkQuality())
	}
}

// TestSenderHopsImmediatelyOnHopReply covers spec §4.5: the Sender retunes as
// soon as HOP_REPLY arrives and sends no acknowledgement of its own.
func TestSenderHopsImmediatelyOnHopReply(t *testing.T) {
	s, radio, _, _ := newTestSender(t)
	peerAddr := Addr{4}
	radio.deliver(peerAddr, encodeSearchReply(Key{1}))

	sentBefore := radio.sentCount()
	radio.deliver(peerAddr, encodeHopReply(11))

	if radio.channel != 11 {
		t.Fatalf("radio.channel after HOP_REPLY = %d, want 11", radio.channel)
	}
	if radio.sentCount() != sentBefore {
		t.Fatalf("Sender sent %d frames in response to HOP_REPLY, want 0", radio.sentCount()-sentBefore)
	}
}
