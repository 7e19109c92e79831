package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/entity"
	"github.com/vibast-solutions/ms-go-member/config"

	"github.com/sirupsen/logrus"
)

const defaultCodeLength = 6

type codeStore interface {
	SaveActive(ctx context.Context, code *entity.VerificationCode) error
	FindActive(ctx context.Context, email string, now time.Time) (*entity.VerificationCode, error)
	Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error)
}

// EmailSender delivers a password reset code to a member's mailbox.
type EmailSender interface {
	SendResetCode(ctx context.Context, to, code string) error
}

type VerificationCodeManagerOption func(*VerificationCodeManager)

func WithCodeClock(now func() time.Time) VerificationCodeManagerOption {
	return func(m *VerificationCodeManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(generate func(length int) (string, error)) VerificationCodeManagerOption {
	return func(m *VerificationCodeManager) {
		if generate != nil {
			m.generate = generate
		}
	}
}

// VerificationCodeManager issues single-use numeric reset codes, one active code per email.
type VerificationCodeManager struct {
	codes    codeStore
	sender   EmailSender
	cfg      config.ResetCodeConfig
	timeouts config.TimeoutConfig
	now      func() time.Time
	generate func(length int) (string, error)
}

func NewVerificationCodeManager(codes codeStore, sender EmailSender, cfg config.ResetCodeConfig, timeouts config.TimeoutConfig, opts ...VerificationCodeManagerOption) *VerificationCodeManager {
	if cfg.Length <= 0 {
		cfg.Length = defaultCodeLength
	}

	m := &VerificationCodeManager{
		codes:    codes,
		sender:   sender,
		cfg:      cfg,
		timeouts: timeouts,
		now:      time.Now,
		generate: GenerateNumericCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue replaces any active code for email and dispatches the new one.
// A failed dispatch is returned to the caller even though the code is already stored.
func (m *VerificationCodeManager) Issue(ctx context.Context, email string) (*entity.VerificationCode, error) {
	value, err := m.generate(m.cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("generate reset code: %w", err)
	}

	now := m.now()
	key := CanonicalizeEmail(email)
	code := &entity.VerificationCode{
		Email:     key,
		Code:      value,
		CodeHash:  hashCode(key, value),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}

	storeCtx, cancel := context.WithTimeout(ctx, m.timeouts.Store)
	err = m.codes.SaveActive(storeCtx, code)
	cancel()
	if err != nil {
		return nil, dependencyError("store reset code", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.timeouts.Email)
	defer cancel()

	if err = m.sender.SendResetCode(sendCtx, strings.TrimSpace(email), value); err != nil {
		return nil, dependencyError("send reset code", err)
	}

	return code, nil
}

// Check consumes the active code for email if value matches it. Unknown, expired,
// consumed and mismatching codes all return false.
func (m *VerificationCodeManager) Check(ctx context.Context, email, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}

	key := CanonicalizeEmail(email)

	storeCtx, cancel := context.WithTimeout(ctx, m.timeouts.Store)
	defer cancel()

	now := m.now()
	active, err := m.codes.FindActive(storeCtx, key, now)
	if err != nil {
		return false, dependencyError("find reset code", err)
	}
	// Nothing to consume, so no attempt is charged.
	if active == nil {
		logrus.WithField("email", key).Debug("Reset code checked without an active code")
		return false, nil
	}

	consumed, err := m.codes.Consume(storeCtx, key, hashCode(key, value), now)
	if err != nil {
		return false, dependencyError("consume reset code", err)
	}
	return consumed, nil
}

// GenerateNumericCode returns length uniformly random decimal digits.
func GenerateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func hashCode(email, code string) string {
	sum := sha256.Sum256([]byte(email + ":" + code))
	return hex.EncodeToString(sum[:])
}
