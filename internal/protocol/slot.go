package protocol

// SlotClock is the protocol's notion of time. It only moves when a SlotTick
// event arrives, so replay reproduces expiry decisions exactly.
type SlotClock struct {
	Current int64
}

// Advance moves the clock forward. Ticks never rewind; a stale tick is a
// no-op so upstream gap-refills are harmless.
func (c *SlotClock) Advance(slot int64) bool {
	if slot <= c.Current {
		return false
	}
	c.Current = slot
	return true
}
