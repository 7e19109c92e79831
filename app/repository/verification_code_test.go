package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/entity"
	"github.com/vibast-solutions/ms-go-member/app/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisRepo(t *testing.T, maxAttempts int) (*repository.VerificationCodeRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return repository.NewVerificationCodeRepository(rdb, maxAttempts), mr
}

func saveCode(t *testing.T, repo *repository.VerificationCodeRepository, email, hash string, now time.Time) {
	t.Helper()

	err := repo.SaveActive(context.Background(), &entity.VerificationCode{
		Email:     email,
		CodeHash:  hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestVerificationCodeRepository_SaveAndFindActive(t *testing.T) {
	repo, mr := newRedisRepo(t, 5)
	now := time.Now()

	saveCode(t, repo, "a@x.com", "hash-1", now)

	code, err := repo.FindActive(context.Background(), "a@x.com", now)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if code == nil || code.CodeHash != "hash-1" || code.Consumed {
		t.Fatalf("unexpected code: %+v", code)
	}
	if ttl := mr.TTL("member:reset-code:a@x.com"); ttl <= 0 {
		t.Fatalf("expected key ttl to be set, got %v", ttl)
	}

	missing, err := repo.FindActive(context.Background(), "b@x.com", now)
	if err != nil || missing != nil {
		t.Fatalf("expected no code, got %+v %v", missing, err)
	}
}

func TestVerificationCodeRepository_ReissueReplacesPrevious(t *testing.T) {
	repo, _ := newRedisRepo(t, 5)
	now := time.Now()

	saveCode(t, repo, "a@x.com", "hash-1", now)
	saveCode(t, repo, "a@x.com", "hash-2", now)

	ok, err := repo.Consume(context.Background(), "a@x.com", "hash-1", now)
	if err != nil || ok {
		t.Fatalf("expected first code to be invalid, got %v %v", ok, err)
	}
	ok, err = repo.Consume(context.Background(), "a@x.com", "hash-2", now)
	if err != nil || !ok {
		t.Fatalf("expected second code to be consumed, got %v %v", ok, err)
	}
}

func TestVerificationCodeRepository_ConsumeOnce(t *testing.T) {
	repo, _ := newRedisRepo(t, 5)
	now := time.Now()

	saveCode(t, repo, "a@x.com", "hash-1", now)

	ok, err := repo.Consume(context.Background(), "a@x.com", "hash-1", now)
	if err != nil || !ok {
		t.Fatalf("expected consume, got %v %v", ok, err)
	}
	ok, err = repo.Consume(context.Background(), "a@x.com", "hash-1", now)
	if err != nil || ok {
		t.Fatalf("expected second consume to fail, got %v %v", ok, err)
	}

	code, err := repo.FindActive(context.Background(), "a@x.com", now)
	if err != nil || code != nil {
		t.Fatalf("expected consumed code to be inactive, got %+v %v", code, err)
	}
}

func TestVerificationCodeRepository_ConsumeExpired(t *testing.T) {
	repo, _ := newRedisRepo(t, 5)
	now := time.Now()

	saveCode(t, repo, "a@x.com", "hash-1", now)

	ok, err := repo.Consume(context.Background(), "a@x.com", "hash-1", now.Add(11*time.Minute))
	if err != nil || ok {
		t.Fatalf("expected expired code to be rejected, got %v %v", ok, err)
	}
}

func TestVerificationCodeRepository_AttemptBudgetBurnsCode(t *testing.T) {
	repo, mr := newRedisRepo(t, 3)
	now := time.Now()

	saveCode(t, repo, "a@x.com", "hash-1", now)

	for i := 0; i < 3; i++ {
		ok, err := repo.Consume(context.Background(), "a@x.com", "wrong", now)
		if err != nil || ok {
			t.Fatalf("attempt %d: expected mismatch, got %v %v", i, ok, err)
		}
	}
	if mr.Exists("member:reset-code:a@x.com") {
		t.Fatalf("expected code to be deleted after attempt budget")
	}

	ok, err := repo.Consume(context.Background(), "a@x.com", "hash-1", now)
	if err != nil || ok {
		t.Fatalf("expected burned code to be rejected, got %v %v", ok, err)
	}
}
