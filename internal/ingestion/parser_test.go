package ingestion_test

import (
	"FlashPool/internal/event"
	"FlashPool/internal/ingestion"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParsePoolInitialize(t *testing.T) {
	payload := map[string]interface{}{
		"event_id":     "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":      "660e8400-e29b-41d4-a716-446655440001",
		"admin_id":     "770e8400-e29b-41d4-a716-446655440002",
		"treasury_id":  "990e8400-e29b-41d4-a716-446655440004",
		"asset":        "USDC",
		"fee_rate_bps": int64(500),
		"allow_list":   []string{"880e8400-e29b-41d4-a716-446655440003"},
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PoolInitialize")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pi, ok := evt.(*event.PoolInitialize)
	if !ok {
		t.Fatalf("expected *event.PoolInitialize, got %T", evt)
	}

	if pi.Asset != "USDC" {
		t.Errorf("asset: got %s, want USDC", pi.Asset)
	}
	if pi.FeeRateBps != 500 {
		t.Errorf("fee_rate_bps: got %d, want 500", pi.FeeRateBps)
	}
	if len(pi.AllowList) != 1 {
		t.Errorf("allow_list: got %d entries, want 1", len(pi.AllowList))
	}
	if pi.EventType() != event.EventTypePoolInitialize {
		t.Errorf("event type: got %v, want PoolInitialize", pi.EventType())
	}
	if pi.Treasury.String() != "990e8400-e29b-41d4-a716-446655440004" {
		t.Errorf("treasury: got %s", pi.Treasury)
	}
}

func TestParseTokenDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"transfer_id":  "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDC",
		"amount":       int64(1_000_000),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TokenDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	td, ok := evt.(*event.TokenDeposit)
	if !ok {
		t.Fatalf("expected *event.TokenDeposit, got %T", evt)
	}

	if td.Asset != "USDC" {
		t.Errorf("asset: got %s, want USDC", td.Asset)
	}
	if td.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", td.Amount)
	}
	if td.PoolID() != nil {
		t.Error("token deposit should be a global event")
	}
}

func TestParseFlashLoanRequest(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":      "660e8400-e29b-41d4-a716-446655440001",
		"borrower_id":  "770e8400-e29b-41d4-a716-446655440002",
		"principal":    int64(200_000),
		"collateral":   int64(100_000),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "FlashLoanRequest")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	req, ok := evt.(*event.FlashLoanRequest)
	if !ok {
		t.Fatalf("expected *event.FlashLoanRequest, got %T", evt)
	}

	if req.Principal != 200_000 {
		t.Errorf("principal: got %d, want 200_000", req.Principal)
	}
	if req.Collateral != 100_000 {
		t.Errorf("collateral: got %d, want 100_000", req.Collateral)
	}
	if req.SourceSequence() != 7 {
		t.Errorf("sequence: got %d, want 7", req.SourceSequence())
	}
}

func TestParseFlashLoanRepay(t *testing.T) {
	payload := map[string]interface{}{
		"event_id":     "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":      "660e8400-e29b-41d4-a716-446655440001",
		"loan_id":      "770e8400-e29b-41d4-a716-446655440002",
		"caller_id":    "880e8400-e29b-41d4-a716-446655440003",
		"sequence":     int64(8),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "FlashLoanRepay")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rep, ok := evt.(*event.FlashLoanRepay)
	if !ok {
		t.Fatalf("expected *event.FlashLoanRepay, got %T", evt)
	}

	if rep.LoanID.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("loan_id: got %s", rep.LoanID)
	}
	if rep.EventType() != event.EventTypeFlashLoanRepay {
		t.Errorf("event type: got %v, want FlashLoanRepay", rep.EventType())
	}
}

func TestParseStakeDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"event_id":     "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":      "660e8400-e29b-41d4-a716-446655440001",
		"staker_id":    "770e8400-e29b-41d4-a716-446655440002",
		"amount":       int64(50_000),
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "StakeDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sd, ok := evt.(*event.StakeDeposit)
	if !ok {
		t.Fatalf("expected *event.StakeDeposit, got %T", evt)
	}

	if sd.Amount != 50_000 {
		t.Errorf("amount: got %d, want 50_000", sd.Amount)
	}
}

func TestParseSlotTick(t *testing.T) {
	payload := map[string]interface{}{
		"slot":         int64(12345),
		"sequence":     int64(12345),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "SlotTick")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tick, ok := evt.(*event.SlotTick)
	if !ok {
		t.Fatalf("expected *event.SlotTick, got %T", evt)
	}

	if tick.Slot != 12345 {
		t.Errorf("slot: got %d, want 12345", tick.Slot)
	}
	if tick.IdempotencyKey() != "slot:12345" {
		t.Errorf("idempotency key: got %s, want slot:12345", tick.IdempotencyKey())
	}
}

func TestParseSlotTick_NegativeSlotFails(t *testing.T) {
	payload := map[string]interface{}{
		"slot":         int64(-1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "SlotTick"); err == nil {
		t.Fatal("expected error for negative slot")
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "FlashLoanRequest")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "not-a-uuid",
		"pool_id":      "also-not-a-uuid",
		"borrower_id":  "still-not-a-uuid",
		"principal":    int64(1),
		"collateral":   int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "FlashLoanRequest")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

// Every event stored in the log is the event's own JSON form; replay feeds
// those bytes back through ParseRawEvent. The marshaled form must therefore
// parse back into an identical event for every type.
func TestWirePayloadRoundTrip(t *testing.T) {
	id := func(s string) uuid.UUID { return uuid.MustParse(s) }
	ts := time.UnixMicro(1_700_000_000_000_000)

	cases := []struct {
		typeName string
		evt      event.Event
	}{
		{"PoolInitialize", &event.PoolInitialize{
			EventID:    id("550e8400-e29b-41d4-a716-446655440000"),
			Pool:       id("660e8400-e29b-41d4-a716-446655440001"),
			Admin:      id("770e8400-e29b-41d4-a716-446655440002"),
			Treasury:   id("990e8400-e29b-41d4-a716-446655440004"),
			Asset:      "USDC",
			FeeRateBps: 500,
			AllowList:  []uuid.UUID{id("880e8400-e29b-41d4-a716-446655440003")},
			Sequence:   0,
			Timestamp:  ts,
		}},
		{"TokenDeposit", &event.TokenDeposit{
			TransferID: uuid.New(), UserID: uuid.New(),
			Asset: "WSOL", Amount: 1_000_000, Sequence: 3, Timestamp: ts,
		}},
		{"TokenWithdraw", &event.TokenWithdraw{
			TransferID: uuid.New(), UserID: uuid.New(),
			Asset: "USDT", Amount: 42, Sequence: 4, Timestamp: ts,
		}},
		{"LiquidityDeposit", &event.LiquidityDeposit{
			EventID: uuid.New(), Pool: uuid.New(), ProviderID: uuid.New(),
			Amount: 1_000, Sequence: 1, Timestamp: ts,
		}},
		{"StakeDeposit", &event.StakeDeposit{
			EventID: uuid.New(), Pool: uuid.New(), StakerID: uuid.New(),
			Amount: 500, Sequence: 2, Timestamp: ts,
		}},
		{"StakeWithdraw", &event.StakeWithdraw{
			EventID: uuid.New(), Pool: uuid.New(), StakerID: uuid.New(),
			Amount: 250, Sequence: 5, Timestamp: ts,
		}},
		{"FlashLoanRequest", &event.FlashLoanRequest{
			RequestID: uuid.New(), Pool: uuid.New(), BorrowerID: uuid.New(),
			Principal: 200, Collateral: 100, Sequence: 7, Timestamp: ts,
		}},
		{"FlashLoanRepay", &event.FlashLoanRepay{
			EventID: uuid.New(), Pool: uuid.New(), LoanID: uuid.New(), CallerID: uuid.New(),
			Sequence: 8, Timestamp: ts,
		}},
		{"SlotTick", &event.SlotTick{Slot: 12345, Sequence: 12345, Timestamp: ts}},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.evt)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.typeName, err)
		}
		parsed, err := ingestion.ParseRawEvent(ingestion.RawEvent{Data: data}, tc.typeName)
		if err != nil {
			t.Fatalf("%s: parse: %v", tc.typeName, err)
		}
		if !reflect.DeepEqual(parsed, tc.evt) {
			t.Errorf("%s: round trip mismatch\n got %+v\nwant %+v", tc.typeName, parsed, tc.evt)
		}
	}
}
