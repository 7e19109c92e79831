package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/app/entity"
	"github.com/vibast-solutions/ms-go-member/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type Claims struct {
	MemberID uint64 `json:"member_id"`
	Email    string `json:"email,omitempty"`
	Type     string `json:"typ"`
	FamilyID string `json:"fid,omitempty"`
	Sequence uint64 `json:"seq,omitempty"`
	jwt.RegisteredClaims
}

type tokenFamilyStore interface {
	RecordIssuance(ctx context.Context, family *entity.TokenFamily) error
	LatestSequence(ctx context.Context, familyID string) (*entity.TokenFamily, error)
	CompareAndSwapSequence(ctx context.Context, familyID string, expected, next uint64, expiresAt, now time.Time) (bool, error)
	RevokeAll(ctx context.Context, memberID uint64, now time.Time) (int64, error)
}

type TokenServiceOption func(*TokenService)

// WithTokenClock replaces the clock used for issuing and validating tokens.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// TokenService issues HS256 access/refresh pairs and rotates refresh tokens.
// Every login opens a token family; each reissue advances the family sequence by
// one and presenting a superseded sequence revokes all families of the member.
type TokenService struct {
	families     tokenFamilyStore
	cfg          config.JWTConfig
	storeTimeout time.Duration
	now          func() time.Time
}

func NewTokenService(families tokenFamilyStore, cfg config.JWTConfig, storeTimeout time.Duration, opts ...TokenServiceOption) *TokenService {
	svc := &TokenService{
		families:     families,
		cfg:          cfg,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *TokenService) Issue(ctx context.Context, member *entity.Member) (*dto.TokenPair, error) {
	now := s.now()
	family := &entity.TokenFamily{
		ID:        uuid.NewString(),
		MemberID:  member.ID,
		Sequence:  0,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.families.RecordIssuance(storeCtx, family); err != nil {
		return nil, dependencyError("record token family", err)
	}

	return s.signPair(member.ID, member.Email, family.ID, family.Sequence, now)
}

func (s *TokenService) Reissue(ctx context.Context, refreshToken string) (*dto.TokenPair, error) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.FamilyID == "" {
		return nil, ErrInvalidToken
	}

	now := s.now()
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	family, err := s.families.LatestSequence(storeCtx, claims.FamilyID)
	if err != nil {
		return nil, dependencyError("load token family", err)
	}
	if family == nil || family.MemberID != claims.MemberID {
		return nil, ErrInvalidToken
	}
	if claims.Sequence < family.Sequence {
		return nil, s.replayDetected(storeCtx, claims, now)
	}
	if family.Revoked() || claims.Sequence > family.Sequence {
		return nil, ErrInvalidToken
	}

	next := family.Sequence + 1
	swapped, err := s.families.CompareAndSwapSequence(storeCtx, family.ID, family.Sequence, next, now.Add(s.cfg.RefreshTokenTTL), now)
	if err != nil {
		return nil, dependencyError("rotate token family", err)
	}
	if !swapped {
		// Another request rotated this sequence first, so this token is already superseded.
		return nil, s.replayDetected(storeCtx, claims, now)
	}

	return s.signPair(claims.MemberID, claims.Email, family.ID, next, now)
}

// Validate checks an access token without touching the store.
func (s *TokenService) Validate(accessToken string) (*Claims, error) {
	return s.parse(accessToken, TokenTypeAccess)
}

func (s *TokenService) RevokeAll(ctx context.Context, memberID uint64) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	revoked, err := s.families.RevokeAll(storeCtx, memberID, s.now())
	if err != nil {
		return 0, dependencyError("revoke token families", err)
	}
	return revoked, nil
}

func (s *TokenService) replayDetected(ctx context.Context, claims *Claims, now time.Time) error {
	revoked, err := s.families.RevokeAll(ctx, claims.MemberID, now)
	if err != nil {
		logrus.WithError(err).WithField("member_id", claims.MemberID).Error("Failed to revoke token families after replay")
		return dependencyError("revoke token families", err)
	}

	logrus.WithFields(logrus.Fields{
		"member_id": claims.MemberID,
		"family_id": claims.FamilyID,
		"sequence":  claims.Sequence,
		"revoked":   revoked,
	}).Warn("Refresh token replay detected, all token families revoked")

	return ErrReplayDetected
}

func (s *TokenService) signPair(memberID uint64, email, familyID string, sequence uint64, now time.Time) (*dto.TokenPair, error) {
	accessExpiresAt := now.Add(s.cfg.AccessTokenTTL)
	refreshExpiresAt := now.Add(s.cfg.RefreshTokenTTL)

	accessToken, err := s.sign(&Claims{
		MemberID:         memberID,
		Email:            email,
		Type:             TokenTypeAccess,
		RegisteredClaims: s.registeredClaims(memberID, now, accessExpiresAt),
	})
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.sign(&Claims{
		MemberID:         memberID,
		Email:            email,
		Type:             TokenTypeRefresh,
		FamilyID:         familyID,
		Sequence:         sequence,
		RegisteredClaims: s.registeredClaims(memberID, now, refreshExpiresAt),
	})
	if err != nil {
		return nil, err
	}

	return &dto.TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshTokenExpiresAt: refreshExpiresAt,
		FamilyID:              familyID,
		Sequence:              sequence,
	}, nil
}

func (s *TokenService) registeredClaims(memberID uint64, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.cfg.Issuer,
		Subject:   strconv.FormatUint(memberID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (s *TokenService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}

func (s *TokenService) parse(tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid || claims.Type != tokenType || claims.MemberID == 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
