package bridge

import "errors"

// Sentinel errors for the taxonomy in spec §7. Every fallible core operation
// returns one of these (wrapped with context via fmt.Errorf("%w: ...")) rather
// than panicking; only truly unrecoverable startup conditions ever reach the
// process entry point.
var (
	// ErrRadioInitFailed, ErrChannelSetFailed and ErrPeerRegisterFailed are
	// fatal at startup: the caller should log and halt.
	ErrRadioInitFailed    = errors.New("bridge: radio init failed")
	ErrChannelSetFailed   = errors.New("bridge: channel set failed")
	ErrPeerRegisterFailed = errors.New("bridge: peer register failed")

	// ErrBlobWriteFailed wraps a failed persistence write or removal. It is
	// never fatal: when persisting a new peer fails, commitPairing logs it
	// and still enters Paired, so only the next boot is affected.
	// ErrBlobReadFailed is not returned by the core: a peer blob that cannot
	// be read at boot is treated as absent and discovery runs.
	ErrBlobReadFailed  = errors.New("bridge: blob read failed")
	ErrBlobWriteFailed = errors.New("bridge: blob write failed")

	// ErrPayloadTooLarge is reported synchronously to Send callers.
	ErrPayloadTooLarge = errors.New("bridge: payload too large")

	// ErrSendRejected surfaces a synchronous send rejection from the radio
	// substrate (the frame was never handed to the air).
	ErrSendRejected = errors.New("bridge: send rejected by radio")
)
