package bridge

import "testing"

func newTestReceiver(t *testing.T) (*Receiver, *mockRadio, *mockStore) {
	t.Helper()
	radio := newMockRadio()
	store := newMockStore()
	r, err := NewReceiver(radio, store)
	if err != nil {
		t.Fatalf("NewReceiver() = %v", err)
	}
	return r, radio, store
}

func TestReceiverAnswersSearchWithFreshKeyInClear(t *testing.T) {
	r, radio, _ := newTestReceiver(t)
	senderAddr := Addr{1, 2, 3, 4, 5, 6}

	radio.deliver(senderAddr, encodeSearch())

	last, ok := radio.lastSent()
	if !ok || last.addr != senderAddr || FrameTag(last.frame[0]) != TagSearchReply {
		t.Fatalf("response to SEARCH = %+v, want a SEARCH_REPLY to %v", last, senderAddr)
	}
	if r.State() != Unpaired {
		t.Fatal("Receiver must not pair before its SEARCH_REPLY is acked")
	}
}

// TestReceiverCommitsOnlyAfterAckSuccess covers spec §4.3's asymmetric commit
// point: the Receiver pairs on a successful ack of its own SEARCH_REPLY, not
// merely on having sent it.
func TestReceiverCommitsOnlyAfterAckSuccess(t *testing.T) {
	r, radio, store := newTestReceiver(t)
	senderAddr := Addr{1}
	radio.deliver(senderAddr, encodeSearch())

	radio.ack(senderAddr, SentFailed)
	if r.State() != Unpaired {
		t.Fatal("Receiver committed pairing on a failed ack")
	}

	radio.deliver(senderAddr, encodeSearch())
	radio.ack(senderAddr, SentOK)
	if r.State() != Paired {
		t.Fatal("Receiver did not commit pairing after a successful ack")
	}
	if !store.Exists(peerBlobName) {
		t.Fatal("committed pairing did not persist the peer blob")
	}
}

func TestReceiverFreshKeyPerSearchOnlyAckedOneWins(t *testing.T) {
	r, radio, _ := newTestReceiver(t)
	senderAddr := Addr{1}

	radio.deliver(senderAddr, encodeSearch())
	first, _ := radio.lastSent()

	radio.deliver(senderAddr, encodeSearch())
	second, _ := radio.lastSent()

	if string(first.frame) == string(second.frame) {
		t.Fatal("two SEARCH replies to the same address reused the same key")
	}

	radio.ack(senderAddr, SentOK)
	got, paired := r.core.PeerInfo()
	if !paired {
		t.Fatal("Receiver did not pair")
	}
	var wantKey Key
	copy(wantKey[:], second.frame[1:])
	if got.Key != wantKey {
		t.Fatal("pairing committed the key from the stale first SEARCH_REPLY, not the most recent one")
	}
}

// TestReceiverHopCommitWaitsForAck covers spec §4.5: the Receiver computes
// but does not apply a channel candidate until its HOP_REPLY is itself acked.
func TestReceiverHopCommitWaitsForAck(t *testing.T) {
	r, radio, _ := newTestReceiver(t)
	senderAddr := Addr{1}
	radio.deliver(senderAddr, encodeSearch())
	radio.ack(senderAddr, SentOK)

	radio.deliver(senderAddr, encodeHopRequest())
	last, ok := radio.lastSent()
	if !ok || FrameTag(last.frame[0]) != TagHopReply {
		t.Fatalf("response to HOP_REQUEST = %+v, want HOP_REPLY", last)
	}
	candidate := int(last.frame[1])

	if radio.channel == candidate {
		t.Fatal("Receiver retuned before its HOP_REPLY was acked")
	}

	radio.ack(senderAddr, SentOK)
	if radio.channel != candidate {
		t.Fatalf("radio.channel after acked HOP_REPLY = %d, want %d", radio.channel, candidate)
	}
	if r.Channel() != candidate {
		t.Fatalf("Receiver.Channel() = %d, want %d", r.Channel(), candidate)
	}
}

func TestReceiverHopCommitSkippedOnFailedAck(t *testing.T) {
	r, radio, _ := newTestReceiver(t)
	senderAddr := Addr{1}
	radio.deliver(senderAddr, encodeSearch())
	radio.ack(senderAddr, SentOK)

	before := r.Channel()
	radio.deliver(senderAddr, encodeHopRequest())
	radio.ack(senderAddr, SentFailed)

	if r.Channel() != before {
		t.Fatalf("Receiver.Channel() changed after a failed HOP_REPLY ack: %d -> %d", before, r.Channel())
	}
}

func TestReceiverDeliversDataToHook(t *testing.T) {
	var got []byte
	radio := newMockRadio()
	store := newMockStore()
	r, err := NewReceiver(radio, store, WithOnData(func(p []byte) { got = p }))
	if err != nil {
		t.Fatalf("NewReceiver() = %v", err)
	}
	senderAddr := Addr{1}
	radio.deliver(senderAddr, encodeSearch())
	radio.ack(senderAddr, SentOK)
	if r.State() != Paired {
		t.Fatal("setup: Receiver did not pair")
	}

	radio.deliver(senderAddr, encodeData([]byte("hello")))
	if string(got) != "hello" {
		t.Fatalf("onData payload = %q, want %q", got, "hello")
	}
}
