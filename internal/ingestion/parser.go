package ingestion

import (
	"FlashPool/internal/event"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates and parses raw events
// before they reach the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PoolInitialize":
		return parsePoolInitialize(raw.Data)
	case "TokenDeposit":
		return parseTokenDeposit(raw.Data)
	case "TokenWithdraw":
		return parseTokenWithdraw(raw.Data)
	case "LiquidityDeposit":
		return parseLiquidityDeposit(raw.Data)
	case "StakeDeposit":
		return parseStakeDeposit(raw.Data)
	case "StakeWithdraw":
		return parseStakeWithdraw(raw.Data)
	case "FlashLoanRequest":
		return parseFlashLoanRequest(raw.Data)
	case "FlashLoanRepay":
		return parseFlashLoanRepay(raw.Data)
	case "SlotTick":
		return parseSlotTick(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type poolInitializeJSON struct {
	EventID     string   `json:"event_id"`
	PoolID      string   `json:"pool_id"`
	AdminID     string   `json:"admin_id"`
	TreasuryID  string   `json:"treasury_id"`
	Asset       string   `json:"asset"`
	FeeRateBps  int64    `json:"fee_rate_bps"`
	AllowList   []string `json:"allow_list,omitempty"`
	Sequence    int64    `json:"sequence"`
	TimestampUs int64    `json:"timestamp_us"`
}

func parsePoolInitialize(data []byte) (*event.PoolInitialize, error) {
	var j poolInitializeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolInitialize: %w", err)
	}

	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	adminID, err := uuid.Parse(j.AdminID)
	if err != nil {
		return nil, fmt.Errorf("parse admin_id: %w", err)
	}
	treasuryID, err := uuid.Parse(j.TreasuryID)
	if err != nil {
		return nil, fmt.Errorf("parse treasury_id: %w", err)
	}

	allowList := make([]uuid.UUID, 0, len(j.AllowList))
	for i, raw := range j.AllowList {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse allow_list[%d]: %w", i, err)
		}
		allowList = append(allowList, id)
	}

	return &event.PoolInitialize{
		EventID:    eventID,
		Pool:       poolID,
		Admin:      adminID,
		Treasury:   treasuryID,
		Asset:      j.Asset,
		FeeRateBps: j.FeeRateBps,
		AllowList:  allowList,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type tokenTransferJSON struct {
	TransferID  string `json:"transfer_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseTokenDeposit(data []byte) (*event.TokenDeposit, error) {
	var j tokenTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TokenDeposit: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.TokenDeposit{
		TransferID: transferID,
		UserID:     userID,
		Asset:      j.Asset,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseTokenWithdraw(data []byte) (*event.TokenWithdraw, error) {
	var j tokenTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TokenWithdraw: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.TokenWithdraw{
		TransferID: transferID,
		UserID:     userID,
		Asset:      j.Asset,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type liquidityDepositJSON struct {
	EventID     string `json:"event_id"`
	PoolID      string `json:"pool_id"`
	ProviderID  string `json:"provider_id"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseLiquidityDeposit(data []byte) (*event.LiquidityDeposit, error) {
	var j liquidityDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidityDeposit: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	providerID, err := uuid.Parse(j.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("parse provider_id: %w", err)
	}
	return &event.LiquidityDeposit{
		EventID:    eventID,
		Pool:       poolID,
		ProviderID: providerID,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type stakeJSON struct {
	EventID     string `json:"event_id"`
	PoolID      string `json:"pool_id"`
	StakerID    string `json:"staker_id"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (j *stakeJSON) ids() (eventID, poolID, stakerID uuid.UUID, err error) {
	eventID, err = uuid.Parse(j.EventID)
	if err != nil {
		return eventID, poolID, stakerID, fmt.Errorf("parse event_id: %w", err)
	}
	poolID, err = uuid.Parse(j.PoolID)
	if err != nil {
		return eventID, poolID, stakerID, fmt.Errorf("parse pool_id: %w", err)
	}
	stakerID, err = uuid.Parse(j.StakerID)
	if err != nil {
		return eventID, poolID, stakerID, fmt.Errorf("parse staker_id: %w", err)
	}
	return eventID, poolID, stakerID, nil
}

func parseStakeDeposit(data []byte) (*event.StakeDeposit, error) {
	var j stakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeDeposit: %w", err)
	}
	eventID, poolID, stakerID, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.StakeDeposit{
		EventID:   eventID,
		Pool:      poolID,
		StakerID:  stakerID,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseStakeWithdraw(data []byte) (*event.StakeWithdraw, error) {
	var j stakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeWithdraw: %w", err)
	}
	eventID, poolID, stakerID, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.StakeWithdraw{
		EventID:   eventID,
		Pool:      poolID,
		StakerID:  stakerID,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type flashLoanRequestJSON struct {
	RequestID   string `json:"request_id"`
	PoolID      string `json:"pool_id"`
	BorrowerID  string `json:"borrower_id"`
	Principal   int64  `json:"principal"`
	Collateral  int64  `json:"collateral"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFlashLoanRequest(data []byte) (*event.FlashLoanRequest, error) {
	var j flashLoanRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FlashLoanRequest: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	borrowerID, err := uuid.Parse(j.BorrowerID)
	if err != nil {
		return nil, fmt.Errorf("parse borrower_id: %w", err)
	}
	return &event.FlashLoanRequest{
		RequestID:  requestID,
		Pool:       poolID,
		BorrowerID: borrowerID,
		Principal:  j.Principal,
		Collateral: j.Collateral,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type flashLoanRepayJSON struct {
	EventID     string `json:"event_id"`
	PoolID      string `json:"pool_id"`
	LoanID      string `json:"loan_id"`
	CallerID    string `json:"caller_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFlashLoanRepay(data []byte) (*event.FlashLoanRepay, error) {
	var j flashLoanRepayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FlashLoanRepay: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	loanID, err := uuid.Parse(j.LoanID)
	if err != nil {
		return nil, fmt.Errorf("parse loan_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.FlashLoanRepay{
		EventID:   eventID,
		Pool:      poolID,
		LoanID:    loanID,
		CallerID:  callerID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type slotTickJSON struct {
	Slot        int64 `json:"slot"`
	Sequence    int64 `json:"sequence"`
	TimestampUs int64 `json:"timestamp_us"`
}

func parseSlotTick(data []byte) (*event.SlotTick, error) {
	var j slotTickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SlotTick: %w", err)
	}
	if j.Slot < 0 {
		return nil, fmt.Errorf("parse SlotTick: negative slot %d", j.Slot)
	}
	return &event.SlotTick{
		Slot:      j.Slot,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
