package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/entity"
)

type TokenFamilyRepository struct {
	db DBTX
}

func NewTokenFamilyRepository(db DBTX) *TokenFamilyRepository {
	return &TokenFamilyRepository{db: db}
}

func (r *TokenFamilyRepository) RecordIssuance(ctx context.Context, family *entity.TokenFamily) error {
	query := `
		INSERT INTO refresh_token_families (id, member_id, sequence, expires_at, revoked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		family.ID,
		family.MemberID,
		family.Sequence,
		family.ExpiresAt,
		family.RevokedAt,
		family.CreatedAt,
		family.UpdatedAt,
	)
	return translateError(err)
}

func (r *TokenFamilyRepository) LatestSequence(ctx context.Context, familyID string) (*entity.TokenFamily, error) {
	query := `
		SELECT id, member_id, sequence, expires_at, revoked_at, created_at, updated_at
		FROM refresh_token_families WHERE id = ?
	`
	family := &entity.TokenFamily{}
	err := r.db.QueryRowContext(ctx, query, familyID).Scan(
		&family.ID,
		&family.MemberID,
		&family.Sequence,
		&family.ExpiresAt,
		&family.RevokedAt,
		&family.CreatedAt,
		&family.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return family, nil
}

// CompareAndSwapSequence advances the family to next only if it is still at expected
// and not revoked. It returns false when another rotation got there first.
func (r *TokenFamilyRepository) CompareAndSwapSequence(ctx context.Context, familyID string, expected, next uint64, expiresAt, now time.Time) (bool, error) {
	query := `
		UPDATE refresh_token_families SET
			sequence = ?,
			expires_at = ?,
			updated_at = ?
		WHERE id = ? AND sequence = ? AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, next, expiresAt, now, familyID, expected)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *TokenFamilyRepository) RevokeAll(ctx context.Context, memberID uint64, now time.Time) (int64, error) {
	query := `UPDATE refresh_token_families SET revoked_at = ?, updated_at = ? WHERE member_id = ? AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, now, now, memberID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *TokenFamilyRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM refresh_token_families WHERE expires_at < ?`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
