// Package storage defines the error vocabulary shared by the Postgres
// repository and the in-memory store. Domain services match on these
// sentinels without knowing which backend produced them.
package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrSlotTaken      = errors.New("slot already taken")
	ErrAlreadyBlocked = errors.New("slot already blocked")
	ErrDuplicateEvent = errors.New("duplicate provider event")
)

// IsUniqueViolation reports a Postgres unique constraint failure, optionally
// narrowed to a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
