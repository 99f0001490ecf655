// Package storage issues presigned URLs for files the fulfillment flow references by URL:
// lab result reports, damage photos and prescription PDFs. The core only ever stores the
// resulting object URL.
package storage

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/config"
)

type (
	Store interface {
		// PresignUpload returns a URL the client can PUT the object to.
		PresignUpload(ctx context.Context, key, contentType string) (*Upload, error)
		// PresignDownload returns a short-lived GET URL.
		PresignDownload(ctx context.Context, key string) (string, error)
	}
)

type Upload struct {
	Key         string    `json:"key"`
	UploadURL   string    `json:"upload_url"`
	ObjectURL   string    `json:"object_url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3(ctx, cfg)
	case "memory", "":
		return NewMemory("memory://uploads", cfg.PresignExpiry), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ResultKey names the object holding a lab order's result report.
func ResultKey(labOrderID uuid.UUID) string {
	return path.Join("lab-results", labOrderID.String(), uuid.NewString()+".pdf")
}

// IssuePhotoKey names a damage or issue photo for a pharmacy order.
func IssuePhotoKey(pharmacyOrderID uuid.UUID) string {
	return path.Join("pharmacy-issues", pharmacyOrderID.String(), uuid.NewString()+".jpg")
}
