package event

import "encoding/json"

// Wire encoding. Every event marshals to the same snake_case JSON shape the
// ingestion parser reads, so payloads written to the event log round-trip
// through the parser during replay and downstream consumers see one format
// regardless of how the event entered the system.

func (p *PoolInitialize) MarshalJSON() ([]byte, error) {
	allow := make([]string, 0, len(p.AllowList))
	for _, id := range p.AllowList {
		allow = append(allow, id.String())
	}
	return json.Marshal(struct {
		EventID     string   `json:"event_id"`
		PoolID      string   `json:"pool_id"`
		AdminID     string   `json:"admin_id"`
		TreasuryID  string   `json:"treasury_id"`
		Asset       string   `json:"asset"`
		FeeRateBps  int64    `json:"fee_rate_bps"`
		AllowList   []string `json:"allow_list,omitempty"`
		Sequence    int64    `json:"sequence"`
		TimestampUs int64    `json:"timestamp_us"`
	}{
		EventID:     p.EventID.String(),
		PoolID:      p.Pool.String(),
		AdminID:     p.Admin.String(),
		TreasuryID:  p.Treasury.String(),
		Asset:       p.Asset,
		FeeRateBps:  p.FeeRateBps,
		AllowList:   allow,
		Sequence:    p.Sequence,
		TimestampUs: p.Timestamp.UnixMicro(),
	})
}

type tokenTransferWire struct {
	TransferID  string `json:"transfer_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (t *TokenDeposit) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenTransferWire{
		TransferID:  t.TransferID.String(),
		UserID:      t.UserID.String(),
		Asset:       t.Asset,
		Amount:      t.Amount,
		Sequence:    t.Sequence,
		TimestampUs: t.Timestamp.UnixMicro(),
	})
}

func (t *TokenWithdraw) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenTransferWire{
		TransferID:  t.TransferID.String(),
		UserID:      t.UserID.String(),
		Asset:       t.Asset,
		Amount:      t.Amount,
		Sequence:    t.Sequence,
		TimestampUs: t.Timestamp.UnixMicro(),
	})
}

func (d *LiquidityDeposit) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID     string `json:"event_id"`
		PoolID      string `json:"pool_id"`
		ProviderID  string `json:"provider_id"`
		Amount      int64  `json:"amount"`
		Sequence    int64  `json:"sequence"`
		TimestampUs int64  `json:"timestamp_us"`
	}{
		EventID:     d.EventID.String(),
		PoolID:      d.Pool.String(),
		ProviderID:  d.ProviderID.String(),
		Amount:      d.Amount,
		Sequence:    d.Sequence,
		TimestampUs: d.Timestamp.UnixMicro(),
	})
}

type stakeWire struct {
	EventID     string `json:"event_id"`
	PoolID      string `json:"pool_id"`
	StakerID    string `json:"staker_id"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (s *StakeDeposit) MarshalJSON() ([]byte, error) {
	return json.Marshal(stakeWire{
		EventID:     s.EventID.String(),
		PoolID:      s.Pool.String(),
		StakerID:    s.StakerID.String(),
		Amount:      s.Amount,
		Sequence:    s.Sequence,
		TimestampUs: s.Timestamp.UnixMicro(),
	})
}

func (s *StakeWithdraw) MarshalJSON() ([]byte, error) {
	return json.Marshal(stakeWire{
		EventID:     s.EventID.String(),
		PoolID:      s.Pool.String(),
		StakerID:    s.StakerID.String(),
		Amount:      s.Amount,
		Sequence:    s.Sequence,
		TimestampUs: s.Timestamp.UnixMicro(),
	})
}

func (r *FlashLoanRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RequestID   string `json:"request_id"`
		PoolID      string `json:"pool_id"`
		BorrowerID  string `json:"borrower_id"`
		Principal   int64  `json:"principal"`
		Collateral  int64  `json:"collateral"`
		Sequence    int64  `json:"sequence"`
		TimestampUs int64  `json:"timestamp_us"`
	}{
		RequestID:   r.RequestID.String(),
		PoolID:      r.Pool.String(),
		BorrowerID:  r.BorrowerID.String(),
		Principal:   r.Principal,
		Collateral:  r.Collateral,
		Sequence:    r.Sequence,
		TimestampUs: r.Timestamp.UnixMicro(),
	})
}

func (r *FlashLoanRepay) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID     string `json:"event_id"`
		PoolID      string `json:"pool_id"`
		LoanID      string `json:"loan_id"`
		CallerID    string `json:"caller_id"`
		Sequence    int64  `json:"sequence"`
		TimestampUs int64  `json:"timestamp_us"`
	}{
		EventID:     r.EventID.String(),
		PoolID:      r.Pool.String(),
		LoanID:      r.LoanID.String(),
		CallerID:    r.CallerID.String(),
		Sequence:    r.Sequence,
		TimestampUs: r.Timestamp.UnixMicro(),
	})
}

func (s *SlotTick) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Slot        int64 `json:"slot"`
		Sequence    int64 `json:"sequence"`
		TimestampUs int64 `json:"timestamp_us"`
	}{
		Slot:        s.Slot,
		Sequence:    s.Sequence,
		TimestampUs: s.Timestamp.UnixMicro(),
	})
}
