package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// EvidenceRepo reads and appends to the payment_evidence ledger.  Rows are
// never updated or deleted.
type EvidenceRepo struct {
	db *sql.DB
}

// NewEvidenceRepo returns a new EvidenceRepo bound to the provided database.
func NewEvidenceRepo(db *sql.DB) *EvidenceRepo { return &EvidenceRepo{db: db} }

const evidenceColumns = `id, content_hash, external_reference, booking_id, tenant_id, amount_cents, verified_at, verifier_payload`

func scanEvidence(s rowScanner) (model.PaymentEvidence, error) {
	var (
		ev  model.PaymentEvidence
		ref sql.NullString
	)
	err := s.Scan(&ev.ID, &ev.ContentHash, &ref, &ev.BookingID, &ev.TenantID, &ev.AmountCents, &ev.VerifiedAt, &ev.VerifierPayload)
	ev.ExternalReference = stringPtr(ref)
	return ev, err
}

// FindByHash returns the ledger entry for a content hash, or nil.
func (r *EvidenceRepo) FindByHash(ctx context.Context, hash string) (*model.PaymentEvidence, error) {
	return r.findOne(ctx, `SELECT `+evidenceColumns+` FROM payment_evidence WHERE content_hash = ?`, hash)
}

// FindByReference returns the ledger entry for an external transaction
// reference, or nil.
func (r *EvidenceRepo) FindByReference(ctx context.Context, ref string) (*model.PaymentEvidence, error) {
	return r.findOne(ctx, `SELECT `+evidenceColumns+` FROM payment_evidence WHERE external_reference = ?`, ref)
}

func (r *EvidenceRepo) findOne(ctx context.Context, query string, arg any) (*model.PaymentEvidence, error) {
	ev, err := scanEvidence(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertTx appends ev within the caller's transaction.  A unique violation on
// either the hash or the reference is reported as ErrDuplicateEvidence.
func (r *EvidenceRepo) InsertTx(ctx context.Context, tx *sql.Tx, ev *model.PaymentEvidence) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payment_evidence (content_hash, external_reference, booking_id, tenant_id, amount_cents, verified_at, verifier_payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ContentHash, nullString(ev.ExternalReference), ev.BookingID, ev.TenantID, ev.AmountCents, ev.VerifiedAt, nullJSON(ev.VerifierPayload),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEvidence
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	return nil
}

// nullJSON sends JSON as text; MySQL rejects binary-charset input for JSON columns.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
