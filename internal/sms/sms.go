package sms

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Sender delivers one-time codes to a phone number.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string, validFor time.Duration) error
}

var phoneSeparators = regexp.MustCompile(`[\s\-+]`)

// NormalizePhone strips spaces, hyphens and plus signs and drops a leading 91
// country code from a 12-digit number, so "+91 98765-43210" becomes "9876543210".
func NormalizePhone(phone string) string {
	cleaned := phoneSeparators.ReplaceAllString(strings.TrimSpace(phone), "")
	if len(cleaned) == 12 && strings.HasPrefix(cleaned, "91") {
		return cleaned[2:]
	}
	return cleaned
}

// OTPMessage renders the text members receive with their code.
func OTPMessage(code string, validFor time.Duration) string {
	minutes := int(math.Round(validFor.Minutes()))
	return fmt.Sprintf("Your Bonchi OTP is: %s. Valid for %d minutes. Do not share this code.", code, minutes)
}
