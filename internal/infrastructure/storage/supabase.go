package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"visa-tracker/internal/domain"
)

const supabaseFolder = "applications"

// Supabase stores documents through the Supabase storage REST API using the
// service-role key and hands out the bucket's public URL as the reference.
type Supabase struct {
	baseURL    string
	serviceKey string
	bucket     string
	client     *http.Client
}

func NewSupabase(baseURL, serviceKey, bucket string) *Supabase {
	return &Supabase{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Supabase) Store(ctx context.Context, data []byte, filename, contentType string) (domain.DocumentRef, error) {
	name, err := objectName(filename)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	objectPath := supabaseFolder + "/" + name
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return domain.DocumentRef{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.DocumentRef{}, fmt.Errorf("supabase upload failed with status %d", resp.StatusCode)
	}
	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, objectPath)
	return domain.DocumentRef{Provider: domain.ProviderSupabase, Ref: publicURL, ContentType: contentType}, nil
}

func (s *Supabase) Remove(ctx context.Context, ref domain.DocumentRef) error {
	objectPath := s.pathFromRef(ref.Ref)
	if objectPath == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("supabase delete failed with status %d", resp.StatusCode)
	}
	return nil
}

func (s *Supabase) pathFromRef(ref string) string {
	marker := "/storage/v1/object/public/" + s.bucket + "/"
	_, after, found := strings.Cut(ref, marker)
	if !found {
		return ""
	}
	return after
}
