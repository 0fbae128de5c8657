package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

// MaxAttempts is the number of failed code checks after which a session is dead.
const MaxAttempts = 3

const (
	codeMin = 100000
	codeMax = 999999
)

var phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// State is the lifecycle position of a session, derived from its fields and the clock.
type State string

const (
	StatePending   State = "pending"
	StateVerified  State = "verified"
	StateExpired   State = "expired"
	StateExhausted State = "exhausted"
)

// Session is one OTP challenge for a phone number.
type Session struct {
	ID        int64
	Phone     string
	CodeHash  []byte
	ExpiresAt time.Time
	Verified  bool
	Attempts  int
	UserID    *int64
	CreatedAt time.Time
}

// State reports the session state at now. Expiry wins over every other state,
// then one-time use, then the attempt budget.
func (s Session) State(now time.Time) State {
	switch {
	case !now.Before(s.ExpiresAt):
		return StateExpired
	case s.Verified:
		return StateVerified
	case s.Attempts >= MaxAttempts:
		return StateExhausted
	default:
		return StatePending
	}
}

// ValidPhone reports whether phone is a 10-digit Indian subscriber number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// GenerateCode returns a uniformly random 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}
