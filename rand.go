//go:build !tinygo

package bridge

import "crypto/rand"

// defaultKeySource fills b with cryptographically strong randomness. This is
// the "stronger source where available" hook spec §9 asks for: any hosted
// (non-TinyGo) build has crypto/rand, so it is the default rather than an
// opt-in.
func defaultKeySource(b []byte) {
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which is unrecoverable for key generation; fall back
		// to the weak microsecond-seeded source rather than handing out an
		// all-zero key.
		weakKeySource(b)
	}
}
