package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanType string

const (
	LoanTypePersonal  LoanType = "Personal"
	LoanTypeHome      LoanType = "Home"
	LoanTypeAuto      LoanType = "Auto"
	LoanTypeEducation LoanType = "Education"
	LoanTypeBusiness  LoanType = "Business"
)

// JointLoanType is the only loan type a joint account may apply for.
const JointLoanType = LoanTypeBusiness

// Valid reports whether t is one of the offered loan products.
func (t LoanType) Valid() bool {
	switch t {
	case LoanTypePersonal, LoanTypeHome, LoanTypeAuto, LoanTypeEducation, LoanTypeBusiness:
		return true
	}
	return false
}

type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "PENDING"
	LoanStatusApproved LoanStatus = "APPROVED"
	LoanStatusRejected LoanStatus = "REJECTED"
)

// LoanDecision is the admin action applied to a pending loan.
type LoanDecision string

const (
	LoanDecisionApprove LoanDecision = "approve"
	LoanDecisionReject  LoanDecision = "reject"
)

// Status returns the terminal status the decision moves a loan to.
func (d LoanDecision) Status() LoanStatus {
	if d == LoanDecisionApprove {
		return LoanStatusApproved
	}
	return LoanStatusRejected
}

type Loan struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Type        LoanType        `json:"loan_type"`
	Amount      decimal.Decimal `json:"amount"`
	Status      LoanStatus      `json:"status"`
	RequestedAt time.Time       `json:"requested_at"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
}

// LoanView is a loan joined with its account number, used by the admin listing.
type LoanView struct {
	Loan
	AccountNumber string `json:"account_number"`
}

// DecidedLoan is the result of a committed loan decision.
type DecidedLoan struct {
	Loan         Loan         `json:"loan"`
	Disbursement *Transaction `json:"disbursement,omitempty"`
	MemberEmails []string     `json:"-"`
}

type LoanApplicationRequest struct {
	LoanType LoanType        `json:"loan_type"`
	Amount   decimal.Decimal `json:"amount"`
}

// AccountDetails is the admin lookup of a single account.
type AccountDetails struct {
	Account      Account       `json:"account"`
	Members      []Member      `json:"members"`
	Loans        []Loan        `json:"loans"`
	Transactions []Transaction `json:"transactions"`
}
