package bridge

// Channel bounds and the initial channel both endpoints begin on (spec §3).
const (
	MinChannel  = 1
	MaxChannel  = 13
	InitChannel = 7
)

// channelState is the Receiver-only channel hopper (spec §3/§4.5).
type channelState struct {
	current   int
	direction int // always +1 or -1
}

func newChannelState() channelState {
	return channelState{current: InitChannel, direction: +1}
}

// candidate computes the next channel without committing to it, per spec
// §4.5 step 1: clamp(current + direction) with reflection at the bounds.
func (c channelState) candidate() int {
	next := c.current + c.direction
	if next > MaxChannel {
		return MaxChannel - 1
	}
	if next < MinChannel {
		return MinChannel + 1
	}
	return next
}

// commit applies a previously computed candidate, deriving the new direction
// from sign(candidate − current) per spec §4.5 step 3. It must only be
// called after the substrate's SetChannel call for this candidate has
// succeeded.
func (c *channelState) commit(candidate int) {
	if candidate > c.current {
		c.direction = +1
	} else if candidate < c.current {
		c.direction = -1
	}
	// candidate == current cannot happen: invariant 4 in spec §8 guarantees
	// next ≠ current for every channel computation.
	c.current = candidate
}
