package bridge

import "fmt"

// MTU is the maximum single-frame payload of the radio primitive (spec
// Glossary). Byte 0 of every frame is the command tag.
const MTU = 250

// maxDataPayload is MTU minus the one DATA tag byte.
const maxDataPayload = MTU - 1

// FrameTag identifies one of the five command frames on the wire.
type FrameTag byte

const (
	TagSearch       FrameTag = 1
	TagSearchReply  FrameTag = 2
	TagHopRequest   FrameTag = 3
	TagHopReply     FrameTag = 4
	TagData         FrameTag = 5
)

func (t FrameTag) String() string {
	switch t {
	case TagSearch:
		return "search"
	case TagSearchReply:
		return "search_reply"
	case TagHopRequest:
		return "hop_request"
	case TagHopReply:
		return "hop_reply"
	case TagData:
		return "data"
	default:
		return "unknown"
	}
}

// dropReason names why Decode refused a frame, used only to label the
// rcbridge_frames_dropped_total counter (§4.10); it never changes protocol
// behavior, which remains "drop silently, no state change" per spec §4.1.
type dropReason string

const (
	dropBadLength  dropReason = "bad_length"
	dropUnknownTag dropReason = "unknown_tag"
)

// decodedFrame is the result of a successful Decode.
type decodedFrame struct {
	Tag     FrameTag
	Payload []byte // SearchReply: 16-byte key. HopReply: 1-byte channel. Data: 1..249 bytes. Otherwise empty.
}

// Decode parses a raw received frame. It never returns an error: malformed,
// unknown-tag, or wrong-length frames are reported via ok=false and must be
// dropped with no state change, per spec §4.1 — the codec is the only trust
// boundary against a lossy, adversarial wire.
func Decode(b []byte) (f decodedFrame, reason dropReason, ok bool) {
	if len(b) == 0 {
		return decodedFrame{}, dropBadLength, false
	}
	tag := FrameTag(b[0])
	switch tag {
	case TagSearch, TagHopRequest:
		if len(b) != 1 {
			return decodedFrame{}, dropBadLength, false
		}
		return decodedFrame{Tag: tag}, "", true
	case TagSearchReply:
		if len(b) != 1+16 {
			return decodedFrame{}, dropBadLength, false
		}
		return decodedFrame{Tag: tag, Payload: b[1:]}, "", true
	case TagHopReply:
		if len(b) != 1+1 {
			return decodedFrame{}, dropBadLength, false
		}
		return decodedFrame{Tag: tag, Payload: b[1:]}, "", true
	case TagData:
		if len(b) < 2 || len(b) > MTU {
			return decodedFrame{}, dropBadLength, false
		}
		return decodedFrame{Tag: tag, Payload: b[1:]}, "", true
	default:
		return decodedFrame{}, dropUnknownTag, false
	}
}

func encodeSearch() []byte { return []byte{byte(TagSearch)} }

func encodeSearchReply(k Key) []byte {
	out := make([]byte, 1+16)
	out[0] = byte(TagSearchReply)
	copy(out[1:], k[:])
	return out
}

func encodeHopRequest() []byte { return []byte{byte(TagHopRequest)} }

func encodeHopReply(channel int) []byte {
	return []byte{byte(TagHopReply), byte(channel)}
}

// encodeData prepends the DATA tag to payload. payload must already have
// been validated by the caller (Send checks length; this is an internal
// helper used only after that check).
func encodeData(payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(TagData)
	copy(out[1:], payload)
	return out
}

// validateDataPayload enforces spec §4.7: length must be 1..249.
func validateDataPayload(payload []byte) error {
	if len(payload) == 0 || len(payload) > maxDataPayload {
		return fmt.Errorf("%w: %d bytes (limit 1..%d)", ErrPayloadTooLarge, len(payload), maxDataPayload)
	}
	return nil
}
