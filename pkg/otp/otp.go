// Package otp issues and verifies the short numeric codes used to confirm
// physical delivery handoff. The state itself lives on the order row; this
// package owns code generation and the verification decision so the attempt
// cap and expiry rules are testable in isolation.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"ordering-and-delivery/internal/models"
)

// Config is fixed at construction time.
type Config struct {
	Length      int           // number of digits, 4-6
	TTL         time.Duration // validity window from issuance
	MaxAttempts int           // wrong guesses allowed per issued code
}

// Issuer mints delivery OTPs from a cryptographically strong source.
type Issuer struct {
	cfg Config
}

func NewIssuer(cfg Config) *Issuer {
	if cfg.Length < 4 {
		cfg.Length = 4
	}
	if cfg.Length > 6 {
		cfg.Length = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Issuer{cfg: cfg}
}

// MaxAttempts returns the configured attempt cap.
func (i *Issuer) MaxAttempts() int { return i.cfg.MaxAttempts }

// Issue mints a fresh code valid until now+TTL. Issuing over an existing
// code replaces it and resets the attempt counter: a fresh verification
// window.
func (i *Issuer) Issue(now time.Time) (models.OTPState, error) {
	code, err := generateCode(i.cfg.Length)
	if err != nil {
		return models.OTPState{}, fmt.Errorf("otp.Issue: %w", err)
	}
	return models.OTPState{
		Code:     code,
		Expiry:   now.Add(i.cfg.TTL),
		Attempts: 0,
	}, nil
}

// Verify checks code against state at the given instant.
//
// Returns nil when the code matches and the caller should clear the OTP and
// advance the order. On mismatch the caller must persist an attempt
// increment atomically with the check (see ErrOTPMismatch). The attempt cap
// is checked before the code itself, so once exceeded even the correct code
// is rejected until a fresh code is issued.
func (i *Issuer) Verify(state models.OTPState, code string, now time.Time) error {
	if !state.Issued() {
		return models.ErrOTPNotIssued
	}
	if now.After(state.Expiry) {
		// The code stays in place until reissued; expiry is evaluated
		// lazily at call time.
		return models.ErrOTPExpired
	}
	if state.Attempts >= i.cfg.MaxAttempts {
		return models.ErrOTPAttemptsExceeded
	}
	if state.Code != code {
		return models.ErrOTPMismatch
	}
	return nil
}

// generateCode returns length random digits. Codes must not be predictable
// from order numbers or timestamps, so crypto/rand only.
func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
