package core

import (
	"fmt"
)

// slotPartition orders SlotTick events; gaps are tolerated there because the
// upstream sequencer may skip slots.
const slotPartition = "slots"

// adminPartition tracks operator-injected events. Their sequences come from
// the wall clock, not a producer stream, so ordering is recorded but never
// enforced; duplicates are still caught by the idempotency check.
const adminPartition = "admin"

// SequenceValidator validates source sequences per partition.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	gaps            map[string]int64 // partition -> gap count
	outOfOrder      map[string]int64 // partition -> out-of-order count
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		gaps:            make(map[string]int64),
		outOfOrder:      make(map[string]int64),
	}
}

// ValidateSequence checks source sequence ordering
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	idempotencyKey string,
	isDuplicate bool,
) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		// Stale or duplicate
		if isDuplicate {
			// This is expected - already processed
			return nil
		}
		// Out-of-order delivery of NEW event
		sv.outOfOrder[partition]++
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		// Normal case - advance sequence
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	// sourceSequence > expected - gap detected
	sv.gaps[partition]++
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ValidateSlotSequence validates slot ticks. Stale ticks are silently
// ignored and gaps accepted: the sequencer may skip slots, and the clock
// only ever moves forward.
func (sv *SequenceValidator) ValidateSlotSequence(slotSequence int64) error {
	expected := sv.expectedNextSeq[slotPartition]

	if slotSequence <= expected {
		// Stale - silently ignore (idempotent)
		return nil
	}

	if slotSequence > expected+1 {
		sv.gaps[slotPartition]++
	}

	sv.expectedNextSeq[slotPartition] = slotSequence + 1

	return nil
}

// ObserveAdminSequence records an operator-injected sequence as the admin
// partition's high-water mark. It never rejects: admin injections are ordered
// by arrival at the HTTP surface, not by their sequence numbers.
func (sv *SequenceValidator) ObserveAdminSequence(sourceSequence int64) {
	if sourceSequence >= sv.expectedNextSeq[adminPartition] {
		sv.expectedNextSeq[adminPartition] = sourceSequence + 1
	}
}

// GetExpectedSequence returns next expected sequence for a partition
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes expected sequence (used during recovery)
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// GetAllPartitions returns a copy of every partition's expected sequence
// (for snapshotting)
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

// GetGaps returns the gap count seen on a partition
func (sv *SequenceValidator) GetGaps(partition string) int64 {
	return sv.gaps[partition]
}

// GetOutOfOrder returns the out-of-order count seen on a partition
func (sv *SequenceValidator) GetOutOfOrder(partition string) int64 {
	return sv.outOfOrder[partition]
}
