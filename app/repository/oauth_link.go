package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-member/app/entity"
)

type OAuthLinkRepository struct {
	db DBTX
}

func NewOAuthLinkRepository(db DBTX) *OAuthLinkRepository {
	return &OAuthLinkRepository{db: db}
}

func (r *OAuthLinkRepository) Create(ctx context.Context, link *entity.OAuthLink) error {
	query := `
		INSERT INTO oauth_links (provider, provider_subject_id, member_id, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		link.Provider,
		link.ProviderSubjectID,
		link.MemberID,
		link.CreatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = uint64(id)
	return nil
}

func (r *OAuthLinkRepository) FindByProviderSubject(ctx context.Context, provider, subjectID string) (*entity.OAuthLink, error) {
	query := `
		SELECT id, provider, provider_subject_id, member_id, created_at
		FROM oauth_links WHERE provider = ? AND provider_subject_id = ?
	`
	link := &entity.OAuthLink{}
	err := r.db.QueryRowContext(ctx, query, provider, subjectID).Scan(
		&link.ID,
		&link.Provider,
		&link.ProviderSubjectID,
		&link.MemberID,
		&link.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}
