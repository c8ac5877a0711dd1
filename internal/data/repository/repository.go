package repository

import (
	"errors"

	"edupersona/pkg/database"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var (
	// ErrCapacityReached is returned when an account already has its maximum
	// number of active personas.
	ErrCapacityReached = errors.New("account persona capacity reached")

	// ErrDuplicatePublicID is returned when a persona id is already taken on
	// any account.
	ErrDuplicatePublicID = errors.New("session public id already taken")

	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

type Repository struct {
	Account AccountRepository
	Session SessionRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		Account: NewAccountRepository(db, log),
		Session: NewSessionRepository(db, log),
	}
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
