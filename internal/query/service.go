package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"FlashPool/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service provides read-only access to projection tables.
// All responses include as_of_sequence so callers can reason about freshness
// relative to the core's global sequence.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetBalance returns a user's wallet balance for a specific asset.
func (qs *Service) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	walletPath := fmt.Sprintf("user:%s:wallet:%s", userID, asset)
	balance, err := qs.getProjectedBalance(ctx, walletPath)
	if err != nil {
		return nil, err
	}

	decimals, _ := ledger.GetAssetDecimals(assetID)

	return &BalanceResponse{
		UserID:       userID,
		Asset:        asset,
		Balance:      balance,
		Decimal:      decimal.New(balance, -decimals).String(),
		AsOfSequence: asOfSeq,
	}, nil
}

// GetPool summarizes a pool's internal accounts and loan counters.
func (qs *Service) GetPool(ctx context.Context, poolID uuid.UUID) (*PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &PoolResponse{
		PoolID:       poolID,
		AsOfSequence: asOfSeq,
	}

	// Pool accounts all share the "pool:<id>:<subtype>:<asset>" path shape
	prefix := fmt.Sprintf("pool:%s:%%", poolID)
	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, balance
		FROM projections.balances
		WHERE account_path LIKE $1
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var path string
		var balance int64
		if err := rows.Scan(&path, &balance); err != nil {
			return nil, err
		}

		parts := strings.Split(path, ":")
		if len(parts) != 4 {
			continue
		}
		found = true
		resp.Asset = parts[3]
		switch parts[2] {
		case "liquidity":
			resp.Liquidity = balance
		case "stake_vault":
			resp.StakeVault = balance
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, sql.ErrNoRows
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'issued'),
			COUNT(*) FILTER (WHERE status = 'repaid'),
			COUNT(*) FILTER (WHERE status = 'defaulted')
		FROM projections.loans
		WHERE pool_id = $1
	`, poolID).Scan(&resp.LoansOpen, &resp.LoansRepaid, &resp.LoansDefaulted)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetLoan returns one loan's projected state.
func (qs *Service) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var l LoanResponse
	l.AsOfSequence = asOfSeq
	var resolvedSlot sql.NullInt64

	err = qs.db.QueryRowContext(ctx, `
		SELECT loan_id, pool_id, borrower_id, asset, principal, fee, collateral,
		       expiry_slot, status, resolved_slot, collateral_seized, shortfall
		FROM projections.loans
		WHERE loan_id = $1
	`, loanID).Scan(
		&l.LoanID, &l.PoolID, &l.BorrowerID, &l.Asset, &l.Principal, &l.Fee,
		&l.Collateral, &l.ExpirySlot, &l.Status, &resolvedSlot,
		&l.CollateralSeized, &l.Shortfall,
	)
	if err != nil {
		return nil, err
	}
	if resolvedSlot.Valid {
		l.ResolvedSlot = &resolvedSlot.Int64
	}

	return &l, nil
}

// ListLoans returns a pool's loans, optionally filtered by status, newest
// first with cursor-based pagination on sequence.
func (qs *Service) ListLoans(
	ctx context.Context,
	poolID uuid.UUID,
	status *string,
	limit int,
	beforeSequence *int64,
) ([]LoanResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT loan_id, pool_id, borrower_id, asset, principal, fee, collateral,
		       expiry_slot, status, resolved_slot, collateral_seized, shortfall
		FROM projections.loans
		WHERE pool_id = $1
	`
	args := []interface{}{poolID}
	argIdx := 2

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND last_sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY last_sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []LoanResponse
	for rows.Next() {
		var l LoanResponse
		l.AsOfSequence = asOfSeq
		var resolvedSlot sql.NullInt64
		if err := rows.Scan(
			&l.LoanID, &l.PoolID, &l.BorrowerID, &l.Asset, &l.Principal, &l.Fee,
			&l.Collateral, &l.ExpirySlot, &l.Status, &resolvedSlot,
			&l.CollateralSeized, &l.Shortfall,
		); err != nil {
			return nil, err
		}
		if resolvedSlot.Valid {
			l.ResolvedSlot = &resolvedSlot.Int64
		}
		loans = append(loans, l)
	}

	return loans, rows.Err()
}

// GetReputation returns a borrower's standing. Borrowers with no loan
// history report the neutral multiplier.
func (qs *Service) GetReputation(ctx context.Context, borrowerID uuid.UUID) (*ReputationResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &ReputationResponse{
		BorrowerID:    borrowerID,
		MultiplierBps: 10000,
		AsOfSequence:  asOfSeq,
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT multiplier_bps, loans_repaid, loans_defaulted
		FROM projections.reputation
		WHERE borrower_id = $1
	`, borrowerID).Scan(&resp.MultiplierBps, &resp.LoansRepaid, &resp.LoansDefaulted)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return resp, nil
}

// GetJournalHistory returns journal entries touching a user's accounts,
// newest first with cursor-based pagination.
func (qs *Service) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain and global balance invariants.
func (qs *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// Global balance must sum to zero across all accounts per asset
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *Service) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
