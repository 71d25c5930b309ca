// Package repository implements the MySQL persistence layer behind the
// allocator's store contracts. Repositories map low-level database
// failures onto the allocator's sentinel errors so higher layers can
// distinguish "row is gone" from "the database is unhappy" without
// inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/seatwise/table-allocation/internal/allocator"
)

// notFound maps sql.ErrNoRows onto the allocator's sentinel while
// passing every other error through untouched.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return allocator.ErrNotFound
	}
	return err
}
