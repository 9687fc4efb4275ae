package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Fingerprint is the lowercase hex SHA-256 of the evidence bytes.  It
// depends only on content, never on filename, URL or upload time.
func Fingerprint(evidence []byte) string {
	sum := sha256.Sum256(evidence)
	return hex.EncodeToString(sum[:])
}

// DuplicateResult reports whether evidence was already used.
type DuplicateResult struct {
	Duplicate         bool
	OriginalBookingID uint64
	VerifiedAt        time.Time
}

// EvidenceService is the duplicate-evidence detector.
type EvidenceService struct {
	ledger   EvidenceLedger
	maxBytes int64
}

func NewEvidenceService(ledger EvidenceLedger, maxBytes int64) *EvidenceService {
	return &EvidenceService{ledger: ledger, maxBytes: maxBytes}
}

// Validate rejects empty or oversized evidence.
func (s *EvidenceService) Validate(evidence []byte) error {
	if len(evidence) == 0 {
		return invalid("payment slip is empty")
	}
	if s.maxBytes > 0 && int64(len(evidence)) > s.maxBytes {
		return invalid("payment slip is too large")
	}
	return nil
}

// CheckHash looks the content hash up in the ledger.
func (s *EvidenceService) CheckHash(ctx context.Context, hash string) (DuplicateResult, error) {
	ev, err := s.ledger.FindByHash(ctx, hash)
	if err != nil || ev == nil {
		return DuplicateResult{}, err
	}
	return DuplicateResult{Duplicate: true, OriginalBookingID: ev.BookingID, VerifiedAt: ev.VerifiedAt}, nil
}

// CheckReference looks an external transaction reference up in the ledger.
// An empty reference is never a duplicate.
func (s *EvidenceService) CheckReference(ctx context.Context, ref string) (DuplicateResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return DuplicateResult{}, nil
	}
	ev, err := s.ledger.FindByReference(ctx, ref)
	if err != nil || ev == nil {
		return DuplicateResult{}, err
	}
	return DuplicateResult{Duplicate: true, OriginalBookingID: ev.BookingID, VerifiedAt: ev.VerifiedAt}, nil
}
