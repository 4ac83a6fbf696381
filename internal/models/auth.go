package models

import (
	"time"

	"github.com/google/uuid"
)

// OTPLength is the number of digits in a verification code.
const OTPLength = 6

// User is a registered identity.
type User struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	IsVerified   bool      `json:"is_verified"`
	IsAdmin      bool      `json:"is_admin"`
	Phones       []string  `json:"phones,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OTP is a pending one-time verification code.
type OTP struct {
	UserID    uuid.UUID
	Code      string
	ExpiresAt time.Time
}

// PrincipalKind distinguishes individual logins from joint-account logins.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalJoint PrincipalKind = "joint"
)

// Principal is the authenticated caller. For PrincipalUser, ID is the user
// id; for PrincipalJoint it is the joint account id.
type Principal struct {
	Kind PrincipalKind
	ID   uuid.UUID
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DateOfBirth string `json:"date_of_birth"`
	Phone1      string `json:"phone1"`
	Phone2      string `json:"phone2"`
}

// VerifyRequest carries the emailed one-time code.
type VerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// Credentials represents a login request payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// JointCredentials is the joint-account login payload.
type JointCredentials struct {
	AccountNumber string `json:"account_number"`
	Password      string `json:"password"`
}

// Token is returned after a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
