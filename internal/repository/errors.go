// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when an update cannot be performed because the
// row is no longer in a state that allows it (e.g. cancelling a booking
// that has already completed).
var ErrConflict = errors.New("conflict")

// ErrOverlap is the storage-level overlap violation: another occupying
// booking already owns one of the requested nights.  It is raised by the
// booking_nights primary key and is authoritative over any advisory check.
var ErrOverlap = errors.New("booking overlaps an existing booking")

// ErrDuplicateEvidence is returned when a payment evidence row with the same
// content hash or external reference already exists.
var ErrDuplicateEvidence = errors.New("payment evidence already used")

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrUploadTokenNotFound = errors.New("upload token not found")
	ErrSettingsNotFound    = errors.New("tenant settings not found")
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a MySQL unique/primary key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
