package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can join a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	KeyMembersCanonicalEmail     = "uq_members_canonical_email"
	KeyMembersNickname           = "uq_members_nickname"
	KeyOAuthLinksProviderSubject = "uq_oauth_links_provider_subject"

	mysqlDuplicateEntry = 1062
)

var ErrDuplicate = errors.New("duplicate entry")

type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	if e.Key == "" {
		return ErrDuplicate.Error()
	}
	return ErrDuplicate.Error() + " for key " + e.Key
}

func (e *DuplicateKeyError) Unwrap() error {
	return ErrDuplicate
}

// IsDuplicateKey reports whether err is a unique constraint violation on key.
func IsDuplicateKey(err error, key string) bool {
	var dupErr *DuplicateKeyError
	if !errors.As(err, &dupErr) {
		return false
	}
	return dupErr.Key == key
}

func translateError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return &DuplicateKeyError{Key: duplicateKeyName(mysqlErr.Message)}
	}
	return err
}

// duplicateKeyName extracts the index name from "Duplicate entry 'x' for key 'table.index'".
func duplicateKeyName(message string) string {
	const marker = "for key '"
	idx := strings.LastIndex(message, marker)
	if idx == -1 {
		return ""
	}
	key := strings.TrimSuffix(message[idx+len(marker):], "'")
	if dot := strings.LastIndex(key, "."); dot != -1 {
		key = key[dot+1:]
	}
	return key
}
