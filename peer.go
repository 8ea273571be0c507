package bridge

// peerBlobLen is the fixed on-disk size of a persisted peer: addr[6] || key[16].
const peerBlobLen = 6 + 16

// Peer is the in-memory counterpart record (spec §3). It is created by the
// pairing state machine on first successful handshake and persisted verbatim.
type Peer struct {
	Addr Addr
	Key  Key
}

// encode serializes the peer to the fixed 22-byte wire/disk format.
func (p Peer) encode() []byte {
	out := make([]byte, peerBlobLen)
	copy(out[0:6], p.Addr[:])
	copy(out[6:22], p.Key[:])
	return out
}

// decodePeer parses the fixed 22-byte format. ok is false if b is not
// exactly 22 bytes (an "ill-formed" blob per spec §4.2), in which case the
// caller must treat it the same as a missing blob and run discovery.
func decodePeer(b []byte) (p Peer, ok bool) {
	if len(b) != peerBlobLen {
		return Peer{}, false
	}
	copy(p.Addr[:], b[0:6])
	copy(p.Key[:], b[6:22])
	return p, true
}
