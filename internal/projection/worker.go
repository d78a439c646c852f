package projection

import (
	"context"
	"database/sql"
	"fmt"

	"FlashPool/internal/event"
	"FlashPool/internal/observability"

	"github.com/rs/zerolog"
)

// Output carries the data projection workers need per processed event.
// The orchestrator bridges between core.CoreOutput and this.
type Output struct {
	Sequence  int64
	EventType string
	PoolID    *string
	Journals  []JournalEntry
	Outcome   *event.LoanOutcome
	Timestamp int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// Worker updates projection tables from processed events. The projection
// channel is non-blocking with drop: if projections fall behind they can be
// rebuilt from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run starts the projection loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; a failed update is
				// recovered by the next rebuild, not by blocking the core.
				pw.log.Warn().
					Err(err).
					Int64("sequence", output.Sequence).
					Msg("projection update failed")
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journals {
		if err := pw.updateBalances(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.Outcome != nil {
		if err := pw.updateLoan(ctx, tx, output.Outcome, output.Sequence); err != nil {
			return fmt.Errorf("loan projection: %w", err)
		}
		if err := pw.updateReputation(ctx, tx, output.Outcome, output.Sequence); err != nil {
			return fmt.Errorf("reputation projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalances applies one journal to the balances projection.
// Debit accounts gain, credit accounts lose, matching the in-memory tracker.
func (pw *Worker) updateBalances(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *Worker) updateLoan(ctx context.Context, tx *sql.Tx, o *event.LoanOutcome, seq int64) error {
	switch o.Type {
	case event.OutcomeLoanIssued:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.loans
				(loan_id, pool_id, borrower_id, asset, principal, fee, collateral,
				 expiry_slot, status, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'issued', $9)
			ON CONFLICT (loan_id) DO NOTHING
		`, o.LoanID, o.Pool, o.Borrower, o.Asset, o.Principal, o.Fee, o.Collateral,
			o.ExpirySlot, seq)
		return err

	case event.OutcomeLoanRepaid:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.loans
			SET status = 'repaid', resolved_slot = $2, last_sequence = $3
			WHERE loan_id = $1
		`, o.LoanID, o.ResolvedSlot, seq)
		return err

	case event.OutcomeLoanDefaulted:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.loans
			SET status = 'defaulted', resolved_slot = $2,
			    collateral_seized = $3, shortfall = $4, last_sequence = $5
			WHERE loan_id = $1
		`, o.LoanID, o.ResolvedSlot, o.CollateralSeized, o.Shortfall, seq)
		return err
	}

	return nil
}

func (pw *Worker) updateReputation(ctx context.Context, tx *sql.Tx, o *event.LoanOutcome, seq int64) error {
	repaidDelta, defaultedDelta := 0, 0
	switch o.Type {
	case event.OutcomeLoanRepaid:
		repaidDelta = 1
	case event.OutcomeLoanDefaulted:
		defaultedDelta = 1
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.reputation
			(borrower_id, multiplier_bps, loans_repaid, loans_defaulted, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (borrower_id) DO UPDATE SET
			multiplier_bps  = $2,
			loans_repaid    = projections.reputation.loans_repaid + $3,
			loans_defaulted = projections.reputation.loans_defaulted + $4,
			last_sequence   = $5,
			updated_at      = NOW()
	`, o.Borrower, o.MultiplierBps, repaidDelta, defaultedDelta, seq)
	return err
}

// Rebuild rebuilds the balances projection from the journal table. Loan and
// reputation rows repopulate as outcome events flow after a replay; the
// balances table is the only projection derivable from journals alone.
func Rebuild(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.loans`,
		`TRUNCATE projections.reputation`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debits gain
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Credits lose
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	logger := observability.NewLogger("projection")
	logger.Info().Msg("projection rebuild complete")
	return nil
}
