package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// LoanStatus is the loan lifecycle state
type LoanStatus int32

const (
	LoanStatusIssued LoanStatus = iota
	LoanStatusRepaid
	LoanStatusDefaulted
)

func (s LoanStatus) String() string {
	switch s {
	case LoanStatusIssued:
		return "issued"
	case LoanStatusRepaid:
		return "repaid"
	case LoanStatusDefaulted:
		return "defaulted"
	}
	return "unknown"
}

// Loan is one flash loan's record from issuance to resolution
type Loan struct {
	ID         uuid.UUID
	Pool       uuid.UUID
	Borrower   uuid.UUID
	Principal  int64
	Fee        int64
	Collateral int64
	IssuedSlot int64
	ExpirySlot int64
	Status     LoanStatus

	// Resolution details, zero until the loan leaves Issued
	ResolvedSlot     int64
	CollateralSeized int64
	Shortfall        int64
}

// Expired reports whether the repay window has closed at the given slot
func (l *Loan) Expired(slot int64) bool {
	return slot > l.ExpirySlot
}

// loanIDNamespace seeds deterministic loan IDs so a replayed request derives
// the same loan.
var loanIDNamespace = uuid.MustParse("7f1c6a3e-0b5d-45c2-9a84-d1e2f3a4b5c6")

// DeriveLoanID produces the loan ID for a request: UUIDv5 over the pool,
// borrower, and the request's upstream sequence.
func DeriveLoanID(pool, borrower uuid.UUID, sourceSeq int64) uuid.UUID {
	name := fmt.Sprintf("%s:%s:%d", pool, borrower, sourceSeq)
	return uuid.NewSHA1(loanIDNamespace, []byte(name))
}

// LoanBook indexes every loan ever issued, plus the open set per pool
type LoanBook struct {
	Loans map[uuid.UUID]*Loan
	open  map[uuid.UUID]map[uuid.UUID]struct{} // pool → open loan IDs
}

func NewLoanBook() *LoanBook {
	return &LoanBook{
		Loans: make(map[uuid.UUID]*Loan),
		open:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Issue records a new loan. The ID must not already exist.
func (b *LoanBook) Issue(loan *Loan) error {
	if _, exists := b.Loans[loan.ID]; exists {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	b.Loans[loan.ID] = loan

	pool := b.open[loan.Pool]
	if pool == nil {
		pool = make(map[uuid.UUID]struct{})
		b.open[loan.Pool] = pool
	}
	pool[loan.ID] = struct{}{}
	return nil
}

// Get returns a loan or ErrLoanNotFound
func (b *LoanBook) Get(id uuid.UUID) (*Loan, error) {
	loan, ok := b.Loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// Resolve transitions a loan out of Issued. Terminal states never transition
// again.
func (b *LoanBook) Resolve(id uuid.UUID, status LoanStatus, slot int64) (*Loan, error) {
	loan, ok := b.Loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	if loan.Status != LoanStatusIssued {
		return nil, fmt.Errorf("%w: loan %s is %s", ErrAlreadyResolved, id, loan.Status)
	}

	loan.Status = status
	loan.ResolvedSlot = slot
	if pool := b.open[loan.Pool]; pool != nil {
		delete(pool, id)
		if len(pool) == 0 {
			delete(b.open, loan.Pool)
		}
	}
	return loan, nil
}

// OpenCount returns the number of unresolved loans for a pool
func (b *LoanBook) OpenCount(pool uuid.UUID) int {
	return len(b.open[pool])
}

// OpenLoans returns the unresolved loans for a pool
func (b *LoanBook) OpenLoans(pool uuid.UUID) []*Loan {
	ids := b.open[pool]
	loans := make([]*Loan, 0, len(ids))
	for id := range ids {
		loans = append(loans, b.Loans[id])
	}
	return loans
}
