//go:build tinygo

package bridge

// defaultKeySource on TinyGo targets falls back to the weak
// microsecond-seeded source: most microcontroller targets have no
// crypto/rand backing and no hardware RNG is assumed by this repository.
// Boards that do expose one should call SetKeySource with a generator built
// on it.
func defaultKeySource(b []byte) {
	weakKeySource(b)
}
