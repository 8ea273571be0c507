package bridge

import "math/rand"

// keySource is the pluggable key generator used by the Receiver when it
// answers a SEARCH (spec §4.3.2). It defaults to defaultKeySource, which is
// build-tag-selected (crypto/rand on hosted builds, the weak microsecond
// source on TinyGo).
var keySource = defaultKeySource

// SetKeySource overrides the key generator. Spec §9 documents the default as
// weak (seeded from the monotonic microsecond counter) and explicitly asks
// for a hook to a stronger source where one is available; this is that hook.
func SetKeySource(fn func([]byte)) {
	if fn == nil {
		fn = defaultKeySource
	}
	keySource = fn
}

var weakSeeded bool
var weakRand *rand.Rand

// weakKeySource seeds a math/rand generator from the monotonic microsecond
// counter the first time it is called, matching the hardware's available
// entropy on a platform with no RNG peripheral (spec §9). It is deliberately
// weak and is never the default on a hosted build.
func weakKeySource(b []byte) {
	if !weakSeeded {
		weakRand = rand.New(rand.NewSource(int64(newSystemClock().NowMicros())))
		weakSeeded = true
	}
	weakRand.Read(b) //nolint:errcheck // math/rand.Rand.Read never errors
}

func generateKey() Key {
	var k Key
	keySource(k[:])
	return k
}
