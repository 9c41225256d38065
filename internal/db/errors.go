package db

import (
	"errors"

	"commercetools-b2b/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the repositories react to.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeSerialization       = "40001"
)

// Classify converts store errors into domain errors. Missing rows become
// domain.ErrNotFound; server errors become *domain.UpstreamError carrying the
// SQLSTATE code and detail. Anything else is returned wrapped as upstream too.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &domain.UpstreamError{
			Status:  statusForCode(pgErr.Code),
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Body:    pgErr.Detail,
			Err:     err,
		}
	}
	return &domain.UpstreamError{Status: 503, Message: err.Error(), Err: err}
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == CodeUniqueViolation
}

func statusForCode(code string) int {
	switch code {
	case CodeUniqueViolation:
		return 409
	case CodeForeignKeyViolation:
		return 400
	case CodeSerialization:
		return 409
	default:
		return 500
	}
}
