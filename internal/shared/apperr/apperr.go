// Package apperr defines the error kinds shared by the services and how they
// surface over HTTP.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrSelfActionRejected = errors.New("action not allowed on yourself")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Error carries a user-facing message and matches its kind with errors.Is.
type Error struct {
	Kind error
	Msg  string
	// Constraint names the violated database constraint, when there is one.
	Constraint string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func Wrap(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// FromDB translates driver errors into error kinds. Errors it does not
// recognise are returned unchanged.
func FromDB(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(ErrNotFound, "record not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &Error{Kind: ErrConflict, Msg: "record already exists", Constraint: pgErr.ConstraintName}
		case pgForeignKeyViolation:
			return &Error{Kind: ErrNotFound, Msg: "referenced record not found", Constraint: pgErr.ConstraintName}
		}
	}
	return err
}

// Constraint returns the name of the violated constraint, if err came from one.
func Constraint(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Constraint
	}
	return ""
}

func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrSelfActionRejected):
		return fiber.StatusUnprocessableEntity
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// Handler is the fiber error handler. Server errors are logged and their
// details are not sent to the client.
func Handler(c *fiber.Ctx, err error) error {
	code := Status(err)
	msg := err.Error()
	if code >= fiber.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("request failed")
		msg = "internal server error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
