package bridge

import "fmt"

// peerBlobName is the fixed blob name the peer record is persisted under
// (spec §6).
const peerBlobName = "peer"

// BlobStore is the external collaborator for persistence (spec §6): a flat
// key→bytes filesystem. The core only ever calls it during initialization
// and reset, never from a hot path.
type BlobStore interface {
	Exists(name string) bool
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Remove(name string) error
}

// loadPersistedPeer implements the boot-time half of spec §4.2: if a
// well-formed 22-byte blob exists, it is loaded and true is returned so the
// caller can skip straight to Paired before any radio traffic. Any other
// condition (missing, short read, wrong length) is reported as "not found"
// rather than a fatal error — discovery simply runs instead, exactly as an
// absent blob would.
func loadPersistedPeer(store BlobStore) (Peer, bool) {
	if !store.Exists(peerBlobName) {
		return Peer{}, false
	}
	b, err := store.Read(peerBlobName)
	if err != nil {
		globalLogger.Warn(fmt.Sprintf("bridge: peer blob read failed, rediscovering: %v", err))
		return Peer{}, false
	}
	peer, ok := decodePeer(b)
	if !ok {
		globalLogger.Warn("bridge: peer blob ill-formed, rediscovering")
		return Peer{}, false
	}
	return peer, true
}

// persistPeer writes the 22-byte peer record. A short write is treated as a
// failure: the concrete BlobStore (internal/fsblob) is expected to make
// writes atomic (temp file + fsync + rename) so callers never observe a
// partial blob, but this function still surfaces any error from Write
// verbatim so the caller can retry discovery on next boot per spec §4.2.
func persistPeer(store BlobStore, p Peer) error {
	if err := store.Write(peerBlobName, p.encode()); err != nil {
		return fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}
	return nil
}

// resetPersistedPeer removes the peer blob. Per spec §7/§8 invariant 5, this
// is idempotent: removing an already-absent blob is not an error from the
// caller's point of view.
func resetPersistedPeer(store BlobStore) error {
	if !store.Exists(peerBlobName) {
		return nil
	}
	if err := store.Remove(peerBlobName); err != nil {
		return fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}
	return nil
}
