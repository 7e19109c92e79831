package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibast-solutions/ms-go-member/app/entity"
)

const resetCodeKeyPrefix = "member:reset-code:"

// consumeScript marks the stored code consumed if the hash matches and the code is
// still active. Mismatches count against the attempt budget; when the budget is
// spent the code is deleted. Returns 1 on the single successful consume, 0 otherwise.
var consumeScript = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'code_hash', 'expires_at', 'consumed')
if not fields[1] then
	return 0
end
if fields[3] == '1' then
	return 0
end
if tonumber(fields[2]) <= tonumber(ARGV[2]) then
	return 0
end
if fields[1] ~= ARGV[1] then
	local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
	local limit = tonumber(ARGV[3])
	if limit > 0 and attempts >= limit then
		redis.call('DEL', KEYS[1])
	end
	return 0
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 1
`)

type VerificationCodeRepository struct {
	rdb         redis.UniversalClient
	maxAttempts int
}

func NewVerificationCodeRepository(rdb redis.UniversalClient, maxAttempts int) *VerificationCodeRepository {
	return &VerificationCodeRepository{rdb: rdb, maxAttempts: maxAttempts}
}

// SaveActive replaces whatever code is stored for the email in one MULTI block.
func (r *VerificationCodeRepository) SaveActive(ctx context.Context, code *entity.VerificationCode) error {
	key := resetCodeKey(code.Email)

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		"code_hash":  code.CodeHash,
		"issued_at":  code.IssuedAt.UnixMilli(),
		"expires_at": code.ExpiresAt.UnixMilli(),
		"attempts":   0,
		"consumed":   0,
	})
	pipe.PExpireAt(ctx, key, code.ExpiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

// FindActive returns the stored code if it is neither consumed nor expired at now.
func (r *VerificationCodeRepository) FindActive(ctx context.Context, email string, now time.Time) (*entity.VerificationCode, error) {
	values, err := r.rdb.HGetAll(ctx, resetCodeKey(email)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	code, err := decodeVerificationCode(email, values)
	if err != nil {
		return nil, err
	}
	if !code.Active(now) {
		return nil, nil
	}
	return code, nil
}

func (r *VerificationCodeRepository) Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	consumed, err := consumeScript.Run(ctx, r.rdb,
		[]string{resetCodeKey(email)},
		codeHash, now.UnixMilli(), r.maxAttempts,
	).Int()
	if err != nil {
		return false, err
	}
	return consumed == 1, nil
}

func resetCodeKey(email string) string {
	return resetCodeKeyPrefix + email
}

func decodeVerificationCode(email string, values map[string]string) (*entity.VerificationCode, error) {
	issuedAt, err := strconv.ParseInt(values["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid issued_at for reset code: %w", err)
	}
	expiresAt, err := strconv.ParseInt(values["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expires_at for reset code: %w", err)
	}
	attempts, err := strconv.Atoi(values["attempts"])
	if err != nil {
		return nil, fmt.Errorf("invalid attempts for reset code: %w", err)
	}

	return &entity.VerificationCode{
		Email:     email,
		CodeHash:  values["code_hash"],
		Attempts:  attempts,
		Consumed:  values["consumed"] == "1",
		IssuedAt:  time.UnixMilli(issuedAt),
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}
