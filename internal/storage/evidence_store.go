// Package storage archives payment slip images so a confirmed booking keeps
// a viewable copy of the evidence it was verified against.
package storage

import (
	"bytes"
	"context"
	"strconv"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
	"github.com/google/uuid"
)

// EvidenceStore saves slip images and returns a public URL.
type EvidenceStore interface {
	SaveSlip(ctx context.Context, tenantID uint64, contentHash string, image []byte) (string, error)
}

// Cloudinary stores slips under <folder>/tenant-<id>/.
type Cloudinary struct {
	folder   string
	uploader *uploader.API
}

// NewCloudinary builds a Cloudinary store from account credentials.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &Cloudinary{folder: folder, uploader: up}, nil
}

var overwriteFalse = false

// SaveSlip uploads the image.  The public ID embeds the content hash prefix
// for traceability plus a random suffix so retries never overwrite.
func (c *Cloudinary) SaveSlip(ctx context.Context, tenantID uint64, contentHash string, image []byte) (string, error) {
	res, err := c.uploader.Upload(ctx, bytes.NewReader(image), uploader.UploadParams{
		Folder:    tenantFolder(c.folder, tenantID),
		PublicID:  slipPublicID(contentHash),
		Overwrite: &overwriteFalse,
	})
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}

func tenantFolder(root string, tenantID uint64) string {
	return root + "/tenant-" + strconv.FormatUint(tenantID, 10)
}

func slipPublicID(contentHash string) string {
	prefix := contentHash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return prefix + "-" + uuid.NewString()
}

// Noop is used when no object storage is configured; bookings then carry no
// evidence URL.
type Noop struct{}

func (Noop) SaveSlip(context.Context, uint64, string, []byte) (string, error) { return "", nil }
