package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	"gorm.io/gorm"
)

var (
	// ErrValidation marks a repo call made with unusable arguments.
	ErrValidation = errors.New("repo validation")
	// ErrConflict marks a lost optimistic-version race.
	ErrConflict = errors.New("repo conflict")
)

func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

var sentinelCodes = []struct {
	target error
	code   domainagg.ErrorCode
}{
	{ErrValidation, domainagg.CodeValidation},
	{ErrConflict, domainagg.CodeConflict},
	{gorm.ErrRecordNotFound, domainagg.CodeNotFound},
	{gorm.ErrDuplicatedKey, domainagg.CodeConflict},
	{gorm.ErrForeignKeyViolated, domainagg.CodePreconditionFailed},
	{context.Canceled, domainagg.CodeRetryable},
	{context.DeadlineExceeded, domainagg.CodeRetryable},
}

var pgCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,           // unique_violation
	"23503": domainagg.CodePreconditionFailed, // foreign_key_violation
	"40001": domainagg.CodeRetryable,          // serialization_failure
	"40P01": domainagg.CodeRetryable,          // deadlock_detected
	"55P03": domainagg.CodeRetryable,          // lock_not_available
}

// SQLite reports constraint failures only through the message text.
var messageCodes = []struct {
	fragment string
	code     domainagg.ErrorCode
}{
	{"unique constraint failed", domainagg.CodeConflict},
	{"duplicate key", domainagg.CodeConflict},
	{"foreign key constraint failed", domainagg.CodePreconditionFailed},
	{"database is locked", domainagg.CodeRetryable},
	{"deadlock", domainagg.CodeRetryable},
	{"timeout", domainagg.CodeRetryable},
}

// MapError tags a storage failure with a domain error code. Errors that
// already carry a code pass through untouched.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domainagg.Error
	if errors.As(err, &de) {
		return err
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.target) {
			return domainagg.Wrap(s.code, op, err)
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return domainagg.Wrap(code, op, err)
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range messageCodes {
		if strings.Contains(msg, m.fragment) {
			return domainagg.Wrap(m.code, op, err)
		}
	}
	return domainagg.Wrap(domainagg.CodeInternal, op, err)
}
