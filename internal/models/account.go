package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypePrimary AccountType = "PRIMARY"
	AccountTypeJoint   AccountType = "JOINT"
)

// AccountNumberLength is the number of digits in a public account number.
const AccountNumberLength = 10

// MaxJointInvitees is how many members a creator may invite to a joint account.
const MaxJointInvitees = 4

type Account struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"account_number"`
	AccountType   AccountType     `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	PasswordHash  string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Member is a user linked to an account through the membership table.
type Member struct {
	UserID    uuid.UUID `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
}

// Dashboard is the read model shown to an account holder.
type Dashboard struct {
	User         *User         `json:"user,omitempty"`
	Account      Account       `json:"account"`
	Members      []Member      `json:"members,omitempty"`
	Transactions []Transaction `json:"transactions"`
	Loans        []Loan        `json:"loans"`
}

// Request types

type CreateJointAccountRequest struct {
	Emails []string `json:"emails"`
}

type JointAccountCreated struct {
	Account Account  `json:"account"`
	Members []Member `json:"members"`
	// Password is delivered to members out-of-band and never serialized.
	Password string `json:"-"`
}
