// Package storage provides the pluggable object-storage backends that hold
// applicant documents. One backend is selected at process start by
// configuration presence; local disk is the zero-configuration fallback.
package storage

import (
	"context"
	"fmt"
	mrand "math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"visa-tracker/internal/domain"
	"visa-tracker/internal/ports"
)

var allowedExts = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// objectName rewrites an uploaded filename into a collision-free
// {timestamp}-{random}{ext} name, preserving the original extension. Only
// document formats pass; everything else is rejected before any bytes move.
func objectName(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExts[ext] {
		return "", domain.ErrUnsupportedType
	}
	return fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), mrand.Int63n(1_000_000_000), ext), nil
}

// FromEnv picks the configured backend: Cloudinary, S3, or Supabase when
// their credentials are present, local disk otherwise.
func FromEnv(ctx context.Context) (ports.Storage, error) {
	if cloud := os.Getenv("CLOUDINARY_CLOUD_NAME"); cloud != "" &&
		os.Getenv("CLOUDINARY_API_KEY") != "" && os.Getenv("CLOUDINARY_API_SECRET") != "" {
		return NewCloudinary(cloud, os.Getenv("CLOUDINARY_API_KEY"), os.Getenv("CLOUDINARY_API_SECRET")), nil
	}
	if bucket := os.Getenv("AWS_BUCKET_NAME"); bucket != "" {
		return NewS3(ctx, os.Getenv("AWS_REGION"), bucket)
	}
	if baseURL := os.Getenv("SUPABASE_URL"); baseURL != "" && os.Getenv("SUPABASE_SERVICE_ROLE_KEY") != "" {
		bucket := os.Getenv("SUPABASE_BUCKET")
		if bucket == "" {
			bucket = "visa-documents"
		}
		return NewSupabase(baseURL, os.Getenv("SUPABASE_SERVICE_ROLE_KEY"), bucket), nil
	}
	dir := os.Getenv("UPLOAD_DIR")
	if dir == "" {
		dir = "uploads"
	}
	return NewLocal(dir)
}
