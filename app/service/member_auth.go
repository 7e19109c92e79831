package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/app/entity"
	"github.com/vibast-solutions/ms-go-member/app/repository"
	"github.com/vibast-solutions/ms-go-member/app/types"
	"github.com/vibast-solutions/ms-go-member/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	LoginMethodPassword = "password"
	// LoginMethodUnknown labels OAuth attempts naming a provider with no verifier.
	LoginMethodUnknown  = "unknown"

	ReissueOutcomeRotated  = "rotated"
	ReissueOutcomeReplay   = "replay"
	ReissueOutcomeRejected = "rejected"
	ReissueOutcomeError    = "error"
)

// dummyPasswordHash is compared against when the email is unknown so both
// login failure paths pay for one bcrypt comparison.
var dummyPasswordHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("member-login-placeholder"), bcrypt.DefaultCost)
	return hash
})

type memberStore interface {
	Create(ctx context.Context, member *entity.Member) error
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.Member, error)
	FindByNickname(ctx context.Context, nickname string) (*entity.Member, error)
	ExistsByCanonicalEmail(ctx context.Context, canonicalEmail string) (bool, error)
	ExistsByNickname(ctx context.Context, nickname string) (bool, error)
	UpdateLastLogin(ctx context.Context, memberID uint64, lastLogin time.Time) error
}

type tokenIssuer interface {
	Issue(ctx context.Context, member *entity.Member) (*dto.TokenPair, error)
	Reissue(ctx context.Context, refreshToken string) (*dto.TokenPair, error)
	Validate(accessToken string) (*Claims, error)
	RevokeAll(ctx context.Context, memberID uint64) (int64, error)
}

type resetCodeIssuer interface {
	Issue(ctx context.Context, email string) (*entity.VerificationCode, error)
	Check(ctx context.Context, email, code string) (bool, error)
}

type identityLinker interface {
	LoginOrRegister(ctx context.Context, provider string, credential dto.OAuthCredential) (*entity.Member, error)
}

type metricsRecorder interface {
	ObserveLogin(method string, success bool)
	ObserveReissue(outcome string)
	ObserveResetCodeIssued()
	ObserveResetCodeCheck(verified bool)
}

type MemberAuthService interface {
	SignUp(ctx context.Context, req *types.SignUpRequest) (*entity.Member, error)
	Login(ctx context.Context, req *types.LoginRequest) (*dto.TokenPair, error)
	LoginWithOAuth(ctx context.Context, provider string, credential dto.OAuthCredential) (*dto.TokenPair, error)
	ReissueToken(ctx context.Context, refreshToken string) (*dto.TokenPair, error)
	FindEmailByNickname(ctx context.Context, nickname string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (*entity.VerificationCode, error)
	CheckResetCode(ctx context.Context, email, code string) (bool, error)
	Logout(ctx context.Context, memberID uint64) error
	ValidateAccessToken(accessToken string) (*Claims, error)
}

type AsyncRunner func(task func())

type MemberAuthServiceOption func(*memberAuthService)

type memberAuthService struct {
	members     memberStore
	tokens      tokenIssuer
	codes       resetCodeIssuer
	linker      identityLinker
	cfg         *config.Config
	asyncRunner AsyncRunner
	metrics     metricsRecorder
}

func NewMemberAuthService(
	members memberStore,
	tokens tokenIssuer,
	codes resetCodeIssuer,
	linker identityLinker,
	cfg *config.Config,
	opts ...MemberAuthServiceOption,
) MemberAuthService {
	svc := &memberAuthService{
		members: members,
		tokens:  tokens,
		codes:   codes,
		linker:  linker,
		cfg:     cfg,
		asyncRunner: func(task func()) {
			go task()
		},
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) MemberAuthServiceOption {
	return func(s *memberAuthService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func WithMetrics(recorder metricsRecorder) MemberAuthServiceOption {
	return func(s *memberAuthService) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

func (s *memberAuthService) SignUp(ctx context.Context, req *types.SignUpRequest) (*entity.Member, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidationFailed, err.Error())
	}

	email := strings.TrimSpace(req.Email)
	nickname := strings.TrimSpace(req.NickName)
	canonicalEmail := CanonicalizeEmail(email)

	if err := s.cfg.Password.Policy.Validate(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Store)
	defer cancel()

	taken, err := s.members.ExistsByCanonicalEmail(storeCtx, canonicalEmail)
	if err != nil {
		return nil, dependencyError("check email", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	taken, err = s.members.ExistsByNickname(storeCtx, nickname)
	if err != nil {
		return nil, dependencyError("check nickname", err)
	}
	if taken {
		return nil, ErrNicknameTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
		}
		return nil, err
	}

	now := time.Now()
	member := &entity.Member{
		Email:          email,
		CanonicalEmail: canonicalEmail,
		Nickname:       nickname,
		PasswordHash:   string(hashedPassword),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err = s.members.Create(storeCtx, member); err != nil {
		switch {
		case repository.IsDuplicateKey(err, repository.KeyMembersCanonicalEmail):
			return nil, ErrEmailTaken
		case repository.IsDuplicateKey(err, repository.KeyMembersNickname):
			return nil, ErrNicknameTaken
		}
		return nil, dependencyError("create member", err)
	}

	return member, nil
}

func (s *memberAuthService) Login(ctx context.Context, req *types.LoginRequest) (*dto.TokenPair, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Store)
	member, err := s.members.FindByCanonicalEmail(storeCtx, CanonicalizeEmail(req.Email))
	cancel()
	if err != nil {
		return nil, dependencyError("find member by email", err)
	}

	hash := dummyPasswordHash()
	if member != nil && member.HasPassword() {
		hash = []byte(member.PasswordHash)
	}
	compareErr := bcrypt.CompareHashAndPassword(hash, []byte(req.Password))

	if member == nil || !member.HasPassword() || compareErr != nil {
		s.metrics.ObserveLogin(LoginMethodPassword, false)
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(ctx, member)
	if err != nil {
		s.metrics.ObserveLogin(LoginMethodPassword, false)
		return nil, err
	}

	s.metrics.ObserveLogin(LoginMethodPassword, true)
	s.touchLastLogin(member.ID)
	return pair, nil
}

func (s *memberAuthService) LoginWithOAuth(ctx context.Context, provider string, credential dto.OAuthCredential) (*dto.TokenPair, error) {
	method := strings.ToLower(strings.TrimSpace(provider))

	member, err := s.linker.LoginOrRegister(ctx, provider, credential)
	if err != nil {
		if errors.Is(err, ErrUnsupportedProvider) {
			method = LoginMethodUnknown
		}
		s.metrics.ObserveLogin(method, false)
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, member)
	if err != nil {
		s.metrics.ObserveLogin(method, false)
		return nil, err
	}

	s.metrics.ObserveLogin(method, true)
	s.touchLastLogin(member.ID)
	return pair, nil
}

func (s *memberAuthService) ReissueToken(ctx context.Context, refreshToken string) (*dto.TokenPair, error) {
	pair, err := s.tokens.Reissue(ctx, refreshToken)
	switch {
	case err == nil:
		s.metrics.ObserveReissue(ReissueOutcomeRotated)
	case errors.Is(err, ErrReplayDetected):
		s.metrics.ObserveReissue(ReissueOutcomeReplay)
	case errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrExpired):
		s.metrics.ObserveReissue(ReissueOutcomeRejected)
	default:
		s.metrics.ObserveReissue(ReissueOutcomeError)
	}
	return pair, err
}

func (s *memberAuthService) FindEmailByNickname(ctx context.Context, nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", fmt.Errorf("%w: nickname is required", ErrValidationFailed)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Store)
	defer cancel()

	member, err := s.members.FindByNickname(storeCtx, nickname)
	if err != nil {
		return "", dependencyError("find member by nickname", err)
	}
	if member == nil {
		return "", ErrMemberNotFound
	}
	return member.Email, nil
}

func (s *memberAuthService) RequestPasswordReset(ctx context.Context, email string) (*entity.VerificationCode, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Store)
	member, err := s.members.FindByCanonicalEmail(storeCtx, CanonicalizeEmail(email))
	cancel()
	if err != nil {
		return nil, dependencyError("find member by email", err)
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}

	code, err := s.codes.Issue(ctx, member.Email)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveResetCodeIssued()
	return code, nil
}

func (s *memberAuthService) CheckResetCode(ctx context.Context, email, code string) (bool, error) {
	verified, err := s.codes.Check(ctx, email, code)
	if err != nil {
		return false, err
	}

	s.metrics.ObserveResetCodeCheck(verified)
	return verified, nil
}

func (s *memberAuthService) Logout(ctx context.Context, memberID uint64) error {
	revoked, err := s.tokens.RevokeAll(ctx, memberID)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"member_id": memberID,
		"revoked":   revoked,
	}).Debug("Token families revoked")
	return nil
}

func (s *memberAuthService) ValidateAccessToken(accessToken string) (*Claims, error) {
	return s.tokens.Validate(accessToken)
}

func (s *memberAuthService) touchLastLogin(memberID uint64) {
	s.asyncRunner(func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if updateErr := s.members.UpdateLastLogin(updateCtx, memberID, time.Now()); updateErr != nil {
			logrus.WithError(updateErr).WithField("member_id", memberID).Error("failed to update last_login")
		}
	})
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string, bool) {}
func (noopMetrics) ObserveReissue(string) {}
func (noopMetrics) ObserveResetCodeIssued() {}
func (noopMetrics) ObserveResetCodeCheck(bool) {}
