package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
)

// PostgreSQL SQLSTATE codes the API maps onto its error taxonomy.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
	CodeNotNullViolation    = "23502"
	CodeSerialization       = "40001"
	CodeDeadlock            = "40P01"
)

// Classify translates driver errors into httpx sentinels. Errors it does not
// recognise are returned untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case CodeUniqueViolation:
		return &ConstraintError{Kind: httpx.ErrDuplicate, Constraint: pgErr.ConstraintName, Err: err}
	case CodeForeignKeyViolation:
		return &ConstraintError{Kind: httpx.ErrReference, Constraint: pgErr.ConstraintName, Err: err}
	case CodeCheckViolation, CodeNotNullViolation:
		return &ConstraintError{Kind: httpx.ErrValidation, Constraint: pgErr.ConstraintName, Column: pgErr.ColumnName, Err: err}
	case CodeSerialization, CodeDeadlock:
		return fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	}
	return err
}

// ConstraintError carries the violated constraint so callers can substitute a
// friendlier message for a specific column.
type ConstraintError struct {
	Kind       error
	Constraint string
	Column     string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Constraint)
}

// Is reports the sentinel kind so errors.Is(err, httpx.ErrDuplicate) works.
func (e *ConstraintError) Is(target error) bool {
	return target == e.Kind
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// ValidationProblems names the violated check or the null column so the
// response carries a validationErrors entry.
func (e *ConstraintError) ValidationProblems() []string {
	if e.Kind != httpx.ErrValidation {
		return nil
	}
	switch {
	case e.Constraint != "":
		return []string{"violates constraint " + e.Constraint}
	case e.Column != "":
		return []string{e.Column + " must not be null"}
	default:
		return []string{"violates a table constraint"}
	}
}

// ConstraintName returns the violated constraint, or "" when err is not a
// constraint violation.
func ConstraintName(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// EscapeLike escapes LIKE metacharacters so user input only matches literally.
// Queries using it must declare ESCAPE '\'.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
