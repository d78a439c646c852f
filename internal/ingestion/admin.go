package ingestion

import (
	"FlashPool/internal/event"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdminIngestService provides manual event injection for operators. It is
// exposed through the HTTP admin surface, not for high-throughput ingestion
// (use NATS for that).
type AdminIngestService struct {
	eventChan chan<- event.Event
}

func NewAdminIngestService(eventChan chan<- event.Event) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan}
}

// InjectPoolInitialize manually provisions a pool.
func (s *AdminIngestService) InjectPoolInitialize(
	ctx context.Context,
	poolID uuid.UUID,
	adminID uuid.UUID,
	treasuryID uuid.UUID,
	asset string,
	feeRateBps int64,
	allowList []uuid.UUID,
) error {
	if feeRateBps < 0 || feeRateBps > 10000 {
		return fmt.Errorf("fee rate must be within [0, 10000] bps")
	}
	if treasuryID == uuid.Nil {
		return fmt.Errorf("treasury_id is required")
	}

	evt := &event.PoolInitialize{
		EventID:    uuid.New(),
		Pool:       poolID,
		Admin:      adminID,
		Treasury:   treasuryID,
		Asset:      asset,
		FeeRateBps: feeRateBps,
		AllowList:  allowList,
		Sequence:   time.Now().UnixMicro(), // Admin-injected: use timestamp as sequence
		Timestamp:  time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectTokenDeposit manually credits a user's wallet.
func (s *AdminIngestService) InjectTokenDeposit(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.TokenDeposit{
		TransferID: uuid.New(),
		UserID:     userID,
		Asset:      asset,
		Amount:     amount,
		Sequence:   time.Now().UnixMicro(),
		Timestamp:  time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectTokenWithdraw manually debits a user's wallet.
func (s *AdminIngestService) InjectTokenWithdraw(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.TokenWithdraw{
		TransferID: uuid.New(),
		UserID:     userID,
		Asset:      asset,
		Amount:     amount,
		Sequence:   time.Now().UnixMicro(),
		Timestamp:  time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectSlotTick manually advances the protocol clock. Operators use this
// to force loan expiry processing when the upstream sequencer stalls.
func (s *AdminIngestService) InjectSlotTick(ctx context.Context, slot int64) error {
	if slot < 0 {
		return fmt.Errorf("slot must be non-negative")
	}

	evt := &event.SlotTick{
		Slot:      slot,
		Sequence:  slot,
		Timestamp: time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
