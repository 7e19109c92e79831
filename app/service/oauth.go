package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/app/entity"
	"github.com/vibast-solutions/ms-go-member/app/oauth"
	"github.com/vibast-solutions/ms-go-member/app/repository"
	"github.com/vibast-solutions/ms-go-member/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxNicknameLength     = 30
	placeholderAttempts   = 3
	placeholderSuffixSize = 8
)

// ProviderVerifier turns a client-supplied credential into a verified external identity.
// Rejected credentials must wrap oauth.ErrCredentialRejected.
type ProviderVerifier interface {
	Verify(ctx context.Context, credential dto.OAuthCredential) (*dto.OAuthIdentity, error)
}

type linkerMemberStore interface {
	FindByID(ctx context.Context, id uint64) (*entity.Member, error)
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.Member, error)
	ExistsByNickname(ctx context.Context, nickname string) (bool, error)
}

type oauthLinkStore interface {
	FindByProviderSubject(ctx context.Context, provider, subjectID string) (*entity.OAuthLink, error)
}

// OAuthIdentityLinker maps external identities to members, registering a member on first login.
type OAuthIdentityLinker struct {
	db        *sql.DB
	members   linkerMemberStore
	links     oauthLinkStore
	verifiers map[string]ProviderVerifier
	timeouts  config.TimeoutConfig
}

func NewOAuthIdentityLinker(
	db *sql.DB,
	members linkerMemberStore,
	links oauthLinkStore,
	verifiers map[string]ProviderVerifier,
	timeouts config.TimeoutConfig,
) *OAuthIdentityLinker {
	return &OAuthIdentityLinker{
		db:        db,
		members:   members,
		links:     links,
		verifiers: verifiers,
		timeouts:  timeouts,
	}
}

func (l *OAuthIdentityLinker) LoginOrRegister(ctx context.Context, provider string, credential dto.OAuthCredential) (*entity.Member, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	verifier, ok := l.verifiers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}

	identity, err := l.verify(ctx, provider, verifier, credential)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, l.timeouts.Store)
	defer cancel()

	member, err := l.linkedMember(storeCtx, provider, identity.SubjectID)
	if err != nil || member != nil {
		return member, err
	}

	member, err = l.register(storeCtx, provider, identity)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, err
	}

	// A concurrent first login for the same identity may have won the insert.
	member, rereadErr := l.linkedMember(storeCtx, provider, identity.SubjectID)
	if rereadErr != nil {
		return nil, rereadErr
	}
	if member != nil {
		return member, nil
	}
	if repository.IsDuplicateKey(err, repository.KeyMembersNickname) {
		return nil, ErrNicknameTaken
	}
	return nil, ErrIdentityConflict
}

func (l *OAuthIdentityLinker) verify(ctx context.Context, provider string, verifier ProviderVerifier, credential dto.OAuthCredential) (*dto.OAuthIdentity, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, l.timeouts.Provider)
	defer cancel()

	identity, err := verifier.Verify(verifyCtx, credential)
	if err != nil {
		if errors.Is(err, oauth.ErrCredentialRejected) {
			logrus.WithError(err).WithField("provider", provider).Debug("Provider rejected credential")
			return nil, ErrOAuthVerificationFailed
		}
		return nil, dependencyError("verify "+provider+" credential", err)
	}
	if identity == nil || identity.SubjectID == "" {
		return nil, ErrOAuthVerificationFailed
	}
	return identity, nil
}

// linkedMember returns the member linked to the identity, or nil when no link exists.
func (l *OAuthIdentityLinker) linkedMember(ctx context.Context, provider, subjectID string) (*entity.Member, error) {
	link, err := l.links.FindByProviderSubject(ctx, provider, subjectID)
	if err != nil {
		return nil, dependencyError("find oauth link", err)
	}
	if link == nil {
		return nil, nil
	}

	member, err := l.members.FindByID(ctx, link.MemberID)
	if err != nil {
		return nil, dependencyError("find linked member", err)
	}
	if member == nil {
		logrus.WithFields(logrus.Fields{
			"provider":  provider,
			"member_id": link.MemberID,
		}).Error("OAuth link points at a missing member")
		return nil, ErrIdentityConflict
	}
	return member, nil
}

// register creates the member and its link in one transaction. Duplicate key
// errors are returned unwrapped so the caller can re-read the winning link.
func (l *OAuthIdentityLinker) register(ctx context.Context, provider string, identity *dto.OAuthIdentity) (*entity.Member, error) {
	email := strings.TrimSpace(identity.Email)
	if email == "" {
		email = placeholderEmail(provider, identity.SubjectID)
	}
	canonicalEmail := CanonicalizeEmail(email)

	owner, err := l.members.FindByCanonicalEmail(ctx, canonicalEmail)
	if err != nil {
		return nil, dependencyError("find member by email", err)
	}
	if owner != nil {
		return nil, fmt.Errorf("%w: %s email already belongs to a member", ErrIdentityConflict, provider)
	}

	nickname, err := l.pickNickname(ctx, provider, identity.Nickname)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	member := &entity.Member{
		Email:          email,
		CanonicalEmail: canonicalEmail,
		Nickname:       nickname,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dependencyError("begin transaction", err)
	}
	defer tx.Rollback()

	if err = repository.NewMemberRepository(tx).Create(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		return nil, dependencyError("create member", err)
	}

	link := &entity.OAuthLink{
		Provider:          provider,
		ProviderSubjectID: identity.SubjectID,
		MemberID:          member.ID,
		CreatedAt:         now,
	}
	if err = repository.NewOAuthLinkRepository(tx).Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		return nil, dependencyError("create oauth link", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, dependencyError("commit transaction", err)
	}

	logrus.WithFields(logrus.Fields{
		"member_id": member.ID,
		"provider":  provider,
	}).Info("Member registered through oauth provider")

	return member, nil
}

// pickNickname keeps the provider nickname when it is free and falls back to <provider>_<8 hex>.
func (l *OAuthIdentityLinker) pickNickname(ctx context.Context, provider, preferred string) (string, error) {
	candidate := truncateRunes(strings.TrimSpace(preferred), maxNicknameLength)
	if utf8.RuneCountInString(candidate) >= 2 {
		taken, err := l.members.ExistsByNickname(ctx, candidate)
		if err != nil {
			return "", dependencyError("check nickname", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	for i := 0; i < placeholderAttempts; i++ {
		candidate = placeholderNickname(provider)
		taken, err := l.members.ExistsByNickname(ctx, candidate)
		if err != nil {
			return "", dependencyError("check nickname", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrNicknameTaken
}

func placeholderNickname(provider string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:placeholderSuffixSize]
	return truncateRunes(provider, maxNicknameLength-placeholderSuffixSize-1) + "_" + suffix
}

func placeholderEmail(provider, subjectID string) string {
	return provider + "_" + subjectID + "@users.noreply." + provider
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
