package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"visa-tracker/internal/domain"
)

const cloudinaryFolder = "visa-applications"

// Cloudinary uploads documents through Cloudinary's signed raw-upload REST
// API and returns the delivery URL as the reference.
type Cloudinary struct {
	cloudName string
	apiKey    string
	apiSecret string
	client    *http.Client
}

func NewCloudinary(cloudName, apiKey, apiSecret string) *Cloudinary {
	return &Cloudinary{
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// sign produces the request signature Cloudinary expects: the parameters as
// raw key=value pairs, sorted by key and joined with "&", with the API secret
// appended, hashed with SHA-1. Values must not be URL-encoded; public_id
// contains a "/" that has to stay literal in the string-to-sign.
func (c *Cloudinary) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}

func (c *Cloudinary) Store(ctx context.Context, data []byte, filename, contentType string) (domain.DocumentRef, error) {
	name, err := objectName(filename)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	publicID := cloudinaryFolder + "/" + strings.TrimSuffix(name, path.Ext(name))
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	params := url.Values{}
	params.Set("public_id", publicID)
	params.Set("timestamp", timestamp)
	signature := c.sign(params)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	if _, err := part.Write(data); err != nil {
		return domain.DocumentRef{}, err
	}
	for k, v := range map[string]string{
		"public_id": publicID,
		"timestamp": timestamp,
		"api_key":   c.apiKey,
		"signature": signature,
	} {
		if err := writer.WriteField(k, v); err != nil {
			return domain.DocumentRef{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return domain.DocumentRef{}, err
	}

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/raw/upload", c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.DocumentRef{}, fmt.Errorf("cloudinary upload failed with status %d", resp.StatusCode)
	}
	var parsed struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.DocumentRef{}, err
	}
	ref := parsed.SecureURL
	if ref == "" {
		ref = parsed.URL
	}
	return domain.DocumentRef{Provider: domain.ProviderCloudinary, Ref: ref, ContentType: contentType}, nil
}

func (c *Cloudinary) Remove(ctx context.Context, ref domain.DocumentRef) error {
	publicID := c.publicIDFromRef(ref.Ref)
	if publicID == "" {
		return nil
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	params := url.Values{}
	params.Set("public_id", publicID)
	params.Set("timestamp", timestamp)
	signature := c.sign(params)

	form := url.Values{}
	form.Set("public_id", publicID)
	form.Set("timestamp", timestamp)
	form.Set("api_key", c.apiKey)
	form.Set("signature", signature)

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/raw/destroy", c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloudinary destroy failed with status %d", resp.StatusCode)
	}
	// The destroy endpoint reports "not found" with a 200; that is fine for
	// an idempotent remove.
	return nil
}

func (c *Cloudinary) publicIDFromRef(ref string) string {
	segments := strings.Split(ref, "/")
	last := segments[len(segments)-1]
	if last == "" {
		return ""
	}
	return cloudinaryFolder + "/" + strings.TrimSuffix(last, path.Ext(last))
}
