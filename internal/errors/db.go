package errors

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors raised by the delivery history store onto AppError codes:
//   - context deadline/cancellation → timeout/canceled
//   - pgx.ErrNoRows → not_found
//   - unique violations → conflict
//   - check and NOT NULL violations → validation
//   - connection failures → unavailable
//
// Unrecognised errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "database call timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "database call canceled", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "record not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) {
		return &AppError{Code: ErrCodeUnavailable, Message: "database unreachable", Cause: err}
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{Code: ErrCodeConflict, Message: "record already exists", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.CheckViolation:
		return &AppError{Code: ErrCodeValidation, Message: "value rejected by check constraint", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "required column is missing", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.UndefinedTable:
		return &AppError{Code: ErrCodeInternal, Message: "schema is not migrated", Cause: pgErr}
	}
	if pgerrcode.IsConnectionException(pgErr.Code) {
		return &AppError{Code: ErrCodeUnavailable, Message: "database connection lost", Cause: pgErr}
	}
	return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
}
