package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/entity"
)

const memberColumns = `id, email, canonical_email, nickname, password_hash, last_login_at, created_at, updated_at`

type MemberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *entity.Member) error {
	query := `
		INSERT INTO members (email, canonical_email, nickname, password_hash, last_login_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		member.Email,
		member.CanonicalEmail,
		member.Nickname,
		member.PasswordHash,
		member.LastLoginAt,
		member.CreatedAt,
		member.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	member.ID = uint64(id)
	return nil
}

func (r *MemberRepository) FindByID(ctx context.Context, id uint64) (*entity.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *MemberRepository) FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE canonical_email = ?`
	return r.findOne(ctx, query, canonicalEmail)
}

func (r *MemberRepository) FindByNickname(ctx context.Context, nickname string) (*entity.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE nickname = ?`
	return r.findOne(ctx, query, nickname)
}

func (r *MemberRepository) ExistsByCanonicalEmail(ctx context.Context, canonicalEmail string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE canonical_email = ?)`, canonicalEmail)
}

func (r *MemberRepository) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE nickname = ?)`, nickname)
}

func (r *MemberRepository) UpdateLastLogin(ctx context.Context, memberID uint64, lastLogin time.Time) error {
	query := `UPDATE members SET last_login_at = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, lastLogin, lastLogin, memberID)
	return err
}

func (r *MemberRepository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

func (r *MemberRepository) findOne(ctx context.Context, query string, arg any) (*entity.Member, error) {
	member := &entity.Member{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&member.ID,
		&member.Email,
		&member.CanonicalEmail,
		&member.Nickname,
		&member.PasswordHash,
		&member.LastLoginAt,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}
