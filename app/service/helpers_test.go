package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/app/entity"
	"github.com/vibast-solutions/ms-go-member/app/repository"
	"github.com/vibast-solutions/ms-go-member/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "test-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:          testSecret,
		Issuer:          "ms-go-member-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Leeway:          30 * time.Second,
	}
}

func testTimeouts() config.TimeoutConfig {
	return config.TimeoutConfig{
		Store:    time.Second,
		Email:    time.Second,
		Provider: time.Second,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: testJWTConfig(),
		ResetCode: config.ResetCodeConfig{
			TTL:         10 * time.Minute,
			Length:      6,
			MaxAttempts: 5,
		},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{
				MinLength:        8,
				RequireLowercase: true,
				RequireNumber:    true,
				RequireSpecial:   true,
			},
		},
		Timeouts: testTimeouts(),
	}
}

// memoryFamilyStore mirrors the compare-and-swap semantics of the MySQL table.
type memoryFamilyStore struct {
	mu       sync.Mutex
	families map[string]entity.TokenFamily
	err      error
}

func newMemoryFamilyStore() *memoryFamilyStore {
	return &memoryFamilyStore{families: map[string]entity.TokenFamily{}}
}

func (s *memoryFamilyStore) RecordIssuance(_ context.Context, family *entity.TokenFamily) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.families[family.ID] = *family
	return nil
}

func (s *memoryFamilyStore) LatestSequence(_ context.Context, familyID string) (*entity.TokenFamily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	family, ok := s.families[familyID]
	if !ok {
		return nil, nil
	}
	return &family, nil
}

func (s *memoryFamilyStore) CompareAndSwapSequence(_ context.Context, familyID string, expected, next uint64, expiresAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}
	family, ok := s.families[familyID]
	if !ok || family.Sequence != expected || family.Revoked() {
		return false, nil
	}
	family.Sequence = next
	family.ExpiresAt = expiresAt
	family.UpdatedAt = now
	s.families[familyID] = family
	return true, nil
}

func (s *memoryFamilyStore) RevokeAll(_ context.Context, memberID uint64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return 0, s.err
	}
	var revoked int64
	for id, family := range s.families {
		if family.MemberID != memberID || family.Revoked() {
			continue
		}
		family.RevokedAt.Time = now
		family.RevokedAt.Valid = true
		s.families[id] = family
		revoked++
	}
	return revoked, nil
}

func (s *memoryFamilyStore) activeFamilies(memberID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, family := range s.families {
		if family.MemberID == memberID && !family.Revoked() {
			active++
		}
	}
	return active
}

// memoryMemberStore enforces the same unique keys as the members table.
type memoryMemberStore struct {
	mu         sync.Mutex
	nextID     uint64
	members    map[uint64]entity.Member
	lastLogins map[uint64]time.Time
	err        error
}

func newMemoryMemberStore() *memoryMemberStore {
	return &memoryMemberStore{
		members:    map[uint64]entity.Member{},
		lastLogins: map[uint64]time.Time{},
	}
}

func (s *memoryMemberStore) Create(_ context.Context, member *entity.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	for _, existing := range s.members {
		if existing.CanonicalEmail == member.CanonicalEmail {
			return &repository.DuplicateKeyError{Key: repository.KeyMembersCanonicalEmail}
		}
		if existing.Nickname == member.Nickname {
			return &repository.DuplicateKeyError{Key: repository.KeyMembersNickname}
		}
	}
	s.nextID++
	member.ID = s.nextID
	s.members[member.ID] = *member
	return nil
}

func (s *memoryMemberStore) FindByID(_ context.Context, id uint64) (*entity.Member, error) {
	return s.find(func(m entity.Member) bool { return m.ID == id })
}

func (s *memoryMemberStore) FindByCanonicalEmail(_ context.Context, canonicalEmail string) (*entity.Member, error) {
	return s.find(func(m entity.Member) bool { return m.CanonicalEmail == canonicalEmail })
}

func (s *memoryMemberStore) FindByNickname(_ context.Context, nickname string) (*entity.Member, error) {
	return s.find(func(m entity.Member) bool { return m.Nickname == nickname })
}

func (s *memoryMemberStore) ExistsByCanonicalEmail(ctx context.Context, canonicalEmail string) (bool, error) {
	member, err := s.FindByCanonicalEmail(ctx, canonicalEmail)
	return member != nil, err
}

func (s *memoryMemberStore) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	member, err := s.FindByNickname(ctx, nickname)
	return member != nil, err
}

func (s *memoryMemberStore) UpdateLastLogin(_ context.Context, memberID uint64, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLogins[memberID] = lastLogin
	return nil
}

func (s *memoryMemberStore) find(match func(entity.Member) bool) (*entity.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	for _, member := range s.members {
		if match(member) {
			found := member
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memoryMemberStore) add(member entity.Member) *entity.Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	member.ID = s.nextID
	s.members[member.ID] = member
	return &member
}

type sentCode struct {
	To   string
	Code string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (s *recordingSender) SendResetCode(_ context.Context, to, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentCode{To: to, Code: code})
	return nil
}

func (s *recordingSender) last() sentCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sent) == 0 {
		return sentCode{}
	}
	return s.sent[len(s.sent)-1]
}

type stubLinker struct {
	member *entity.Member
	err    error
	calls  int
}

func (l *stubLinker) LoginOrRegister(_ context.Context, _ string, _ dto.OAuthCredential) (*entity.Member, error) {
	l.calls++
	return l.member, l.err
}

type recordingMetrics struct {
	mu       sync.Mutex
	logins   map[string]int
	reissues map[string]int
	issued   int
	checks   map[bool]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		logins:   map[string]int{},
		reissues: map[string]int{},
		checks:   map[bool]int{},
	}
}

func (m *recordingMetrics) ObserveLogin(method string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.logins[method+":success"]++
		return
	}
	m.logins[method+":failure"]++
}

func (m *recordingMetrics) ObserveReissue(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reissues[outcome]++
}

func (m *recordingMetrics) ObserveResetCodeIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
}

func (m *recordingMetrics) ObserveResetCodeCheck(verified bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[verified]++
}

func newCodeRepository(t *testing.T, maxAttempts int) *repository.VerificationCodeRepository {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return repository.NewVerificationCodeRepository(rdb, maxAttempts)
}

func fixedCodes(codes ...string) func(int) (string, error) {
	var mu sync.Mutex
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}
}
