package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"visa-tracker/internal/domain"
	"visa-tracker/internal/ports"
)

var dobLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05.000Z07:00"}

func parseDOB(value string) (time.Time, error) {
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.ErrInvalidInput
}

// Upload carries a client-supplied file through the service layer.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ApplicationInput is the full field set required to create an application.
type ApplicationInput struct {
	Name           string `json:"name"`
	ApplicationID  string `json:"applicationId"`
	PassportNumber string `json:"passportNumber"`
	Nationality    string `json:"nationality"`
	DOB            string `json:"dob"`
	Address        string `json:"address"`
}

// ApplicationPatch updates only the fields present. ApplicationID and status
// are not patchable here; the id is immutable and status has its own
// operation.
type ApplicationPatch struct {
	Name           *string `json:"name"`
	PassportNumber *string `json:"passportNumber"`
	Nationality    *string `json:"nationality"`
	DOB            *string `json:"dob"`
	Address        *string `json:"address"`
}

// StatusQuery is the identity quadruple an applicant supplies to look up or
// verify an application without authenticating.
type StatusQuery struct {
	ApplicationID  string `json:"applicationId"`
	PassportNumber string `json:"passportNumber"`
	DOB            string `json:"dob"`
	Nationality    string `json:"nationality"`
}

// Document is a resolved supporting file ready to stream to the client.
type Document struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
}

type ApplicationService struct {
	repo    ports.ApplicationRepository
	storage ports.Storage
	fetch   *http.Client
	logger  ports.Logger
}

func NewApplicationService(repo ports.ApplicationRepository, storage ports.Storage, logger ports.Logger) *ApplicationService {
	return &ApplicationService{
		repo:    repo,
		storage: storage,
		fetch:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func validateInput(in ApplicationInput) (time.Time, error) {
	var fields []domain.FieldError
	require := func(value, field, message string) {
		if strings.TrimSpace(value) == "" {
			fields = append(fields, domain.FieldError{Field: field, Message: message})
		}
	}
	require(in.Name, "name", "Name is required")
	require(in.ApplicationID, "applicationId", "Application ID is required")
	require(in.PassportNumber, "passportNumber", "Passport Number is required")
	require(in.Nationality, "nationality", "Nationality is required")
	require(in.DOB, "dob", "Date of Birth is required")
	require(in.Address, "address", "Address is required")

	var dob time.Time
	if strings.TrimSpace(in.DOB) != "" {
		var err error
		dob, err = parseDOB(in.DOB)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "dob", Message: "Date of Birth must be a valid date"})
		}
	}
	if len(fields) > 0 {
		return time.Time{}, &domain.ValidationError{Fields: fields}
	}
	return dob, nil
}

func (s *ApplicationService) Create(ctx context.Context, in ApplicationInput) (domain.Application, error) {
	dob, err := validateInput(in)
	if err != nil {
		return domain.Application{}, err
	}
	now := time.Now().UTC()
	app := domain.Application{
		ApplicationID:  strings.TrimSpace(in.ApplicationID),
		Name:           strings.TrimSpace(in.Name),
		PassportNumber: strings.TrimSpace(in.PassportNumber),
		Nationality:    strings.TrimSpace(in.Nationality),
		DOB:            dob,
		Address:        strings.TrimSpace(in.Address),
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// CreateWithDocument uploads the file before inserting the record. A failed
// insert triggers a compensating delete of the uploaded object so the storage
// backend holds no orphans; failure of that cleanup is logged, never returned.
func (s *ApplicationService) CreateWithDocument(ctx context.Context, in ApplicationInput, file Upload) (domain.Application, error) {
	dob, err := validateInput(in)
	if err != nil {
		return domain.Application{}, err
	}
	ref, err := s.storage.Store(ctx, file.Data, file.Filename, file.ContentType)
	if err != nil {
		return domain.Application{}, err
	}
	now := time.Now().UTC()
	app := domain.Application{
		ApplicationID:  strings.TrimSpace(in.ApplicationID),
		Name:           strings.TrimSpace(in.Name),
		PassportNumber: strings.TrimSpace(in.PassportNumber),
		Nationality:    strings.TrimSpace(in.Nationality),
		DOB:            dob,
		Address:        strings.TrimSpace(in.Address),
		Status:         domain.StatusPending,
		Document:       &ref,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		s.removeQuietly(ctx, ref, "cleanup of orphaned upload failed")
		return domain.Application{}, err
	}
	return app, nil
}

func (s *ApplicationService) Get(ctx context.Context, applicationID string) (domain.Application, error) {
	if applicationID == "" {
		return domain.Application{}, domain.ErrInvalidInput
	}
	return s.repo.Get(ctx, applicationID)
}

func (s *ApplicationService) List(ctx context.Context) ([]domain.Application, error) {
	return s.repo.List(ctx)
}

func (s *ApplicationService) Update(ctx context.Context, applicationID string, patch ApplicationPatch) (domain.Application, error) {
	if applicationID == "" {
		return domain.Application{}, domain.ErrInvalidInput
	}
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}

	var fields []domain.FieldError
	apply := func(dst *string, src *string, field, message string) {
		if src == nil {
			return
		}
		if strings.TrimSpace(*src) == "" {
			fields = append(fields, domain.FieldError{Field: field, Message: message})
			return
		}
		*dst = strings.TrimSpace(*src)
	}
	apply(&app.Name, patch.Name, "name", "Name cannot be empty")
	apply(&app.PassportNumber, patch.PassportNumber, "passportNumber", "Passport Number cannot be empty")
	apply(&app.Nationality, patch.Nationality, "nationality", "Nationality cannot be empty")
	apply(&app.Address, patch.Address, "address", "Address cannot be empty")
	if patch.DOB != nil {
		dob, err := parseDOB(*patch.DOB)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "dob", Message: "Date of Birth must be a valid date"})
		} else {
			app.DOB = dob
		}
	}
	if len(fields) > 0 {
		return domain.Application{}, &domain.ValidationError{Fields: fields}
	}

	app.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, app); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

func (s *ApplicationService) UpdateStatus(ctx context.Context, applicationID string, status domain.Status) (domain.Application, error) {
	if applicationID == "" {
		return domain.Application{}, domain.ErrInvalidInput
	}
	if !domain.ValidStatus(status) {
		return domain.Application{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "status", Message: "Invalid status"},
		}}
	}
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	app.Status = status
	app.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, app); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// AttachDocument uploads first, then looks the record up. When the record is
// missing the fresh upload is deleted so nothing is orphaned. Replacing an
// existing document deletes the prior object best-effort.
func (s *ApplicationService) AttachDocument(ctx context.Context, applicationID string, file Upload) (domain.Application, error) {
	if applicationID == "" {
		return domain.Application{}, domain.ErrInvalidInput
	}
	ref, err := s.storage.Store(ctx, file.Data, file.Filename, file.ContentType)
	if err != nil {
		return domain.Application{}, err
	}
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		s.removeQuietly(ctx, ref, "cleanup of orphaned upload failed")
		return domain.Application{}, err
	}
	if app.Document != nil {
		s.removeQuietly(ctx, *app.Document, "delete of replaced document failed")
	}
	app.Document = &ref
	app.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, app); err != nil {
		s.removeQuietly(ctx, ref, "cleanup of orphaned upload failed")
		return domain.Application{}, err
	}
	return app, nil
}

// Delete removes the record after a best-effort delete of any attached
// document; a storage failure never blocks record deletion.
func (s *ApplicationService) Delete(ctx context.Context, applicationID string) error {
	if applicationID == "" {
		return domain.ErrInvalidInput
	}
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Document != nil {
		s.removeQuietly(ctx, *app.Document, "delete of attached document failed")
	}
	return s.repo.Delete(ctx, applicationID)
}

// CheckStatus is the public lookup: all four identity fields must match
// exactly, with date of birth compared at calendar-day granularity. Any
// mismatch is reported as not found, never as a partial match.
func (s *ApplicationService) CheckStatus(ctx context.Context, q StatusQuery) (domain.Application, error) {
	var fields []domain.FieldError
	require := func(value, field, message string) {
		if strings.TrimSpace(value) == "" {
			fields = append(fields, domain.FieldError{Field: field, Message: message})
		}
	}
	require(q.ApplicationID, "applicationId", "Application ID is required")
	require(q.PassportNumber, "passportNumber", "Passport Number is required")
	require(q.DOB, "dob", "Date of Birth is required")
	require(q.Nationality, "nationality", "Nationality is required")
	if len(fields) > 0 {
		return domain.Application{}, &domain.ValidationError{Fields: fields}
	}
	dob, err := parseDOB(q.DOB)
	if err != nil {
		return domain.Application{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "dob", Message: "Date of Birth must be a valid date"},
		}}
	}
	app, err := s.repo.Get(ctx, q.ApplicationID)
	if err != nil {
		return domain.Application{}, err
	}
	if app.PassportNumber != q.PassportNumber ||
		app.Nationality != q.Nationality ||
		!domain.SameCalendarDay(app.DOB, dob, time.UTC) {
		return domain.Application{}, domain.ErrNotFound
	}
	return app, nil
}

func (s *ApplicationService) matchesVerification(app domain.Application, q StatusQuery) bool {
	dob, err := parseDOB(q.DOB)
	if err != nil {
		return false
	}
	return app.ApplicationID == q.ApplicationID &&
		app.PassportNumber == q.PassportNumber &&
		app.Nationality == q.Nationality &&
		domain.SameCalendarDay(app.DOB, dob, time.UTC)
}

// DownloadDocument resolves the record's document reference. Remote URLs are
// fetched server-side and streamed back so the storage backend is never
// exposed to the client; local paths are opened directly. When verify is
// non-nil the full identity quadruple must match or the caller is refused.
func (s *ApplicationService) DownloadDocument(ctx context.Context, applicationID string, verify *StatusQuery) (Document, error) {
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return Document{}, err
	}
	if verify != nil && !s.matchesVerification(app, *verify) {
		return Document{}, domain.ErrPermissionDeny
	}
	if app.Document == nil {
		return Document{}, domain.ErrNotFound
	}
	ref := app.Document.Ref
	filename := "document-" + app.ApplicationID + path.Ext(ref)

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return Document{}, domain.ErrUpstreamStorage
		}
		resp, err := s.fetch.Do(req)
		if err != nil {
			return Document{}, domain.ErrUpstreamStorage
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return Document{}, domain.ErrUpstreamStorage
		}
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = app.Document.ContentType
		}
		return Document{Body: resp.Body, ContentType: contentType, Filename: filename}, nil
	}

	f, err := os.Open(ref)
	if err != nil {
		return Document{}, domain.ErrNotFound
	}
	contentType := app.Document.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Document{Body: f, ContentType: contentType, Filename: filename}, nil
}

func (s *ApplicationService) removeQuietly(ctx context.Context, ref domain.DocumentRef, msg string) {
	if err := s.storage.Remove(ctx, ref); err != nil {
		s.logger.Warn(ctx, msg, "ref", ref.Ref, "provider", ref.Provider, "error", err)
	}
}

// AccountPatch updates an admin account. Empty strings mean "leave as is".
type AccountPatch struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newpassword"`
}

type AdminService struct {
	repo   ports.AdminRepository
	tokens TokenIssuer
	logger ports.Logger
}

// TokenIssuer mints a bearer token for a logged-in admin.
type TokenIssuer interface {
	Issue(adminID string) (string, error)
}

func NewAdminService(repo ports.AdminRepository, tokens TokenIssuer, logger ports.Logger) *AdminService {
	return &AdminService{repo: repo, tokens: tokens, logger: logger}
}

// Login authenticates by case-insensitive email and bcrypt comparison. An
// unknown email and a wrong password produce the same failure so accounts
// cannot be enumerated.
func (s *AdminService) Login(ctx context.Context, email, password string) (string, domain.Admin, error) {
	var fields []domain.FieldError
	if !strings.Contains(email, "@") {
		fields = append(fields, domain.FieldError{Field: "email", Message: "Please provide a valid email"})
	}
	if password == "" {
		fields = append(fields, domain.FieldError{Field: "password", Message: "Password is required"})
	}
	if len(fields) > 0 {
		return "", domain.Admin{}, &domain.ValidationError{Fields: fields}
	}
	admin, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Admin{}, domain.ErrInvalidCredentials
		}
		return "", domain.Admin{}, err
	}
	if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(password)); err != nil {
		return "", domain.Admin{}, domain.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(admin.ID)
	if err != nil {
		return "", domain.Admin{}, err
	}
	return token, admin, nil
}

func (s *AdminService) Profile(ctx context.Context, adminID string) (domain.Admin, error) {
	if adminID == "" {
		return domain.Admin{}, domain.ErrInvalidInput
	}
	return s.repo.GetByID(ctx, adminID)
}

// UpdateAccount changes name freely, email at most once per account, and
// password only after the old one verifies. New passwords are re-hashed
// before persisting.
func (s *AdminService) UpdateAccount(ctx context.Context, adminID string, patch AccountPatch) (domain.Admin, error) {
	if adminID == "" {
		return domain.Admin{}, domain.ErrInvalidInput
	}
	admin, err := s.repo.GetByID(ctx, adminID)
	if err != nil {
		return domain.Admin{}, err
	}

	if patch.Name != "" {
		admin.Name = patch.Name
	}
	if patch.Email != "" {
		if !strings.Contains(patch.Email, "@") {
			return domain.Admin{}, &domain.ValidationError{Fields: []domain.FieldError{
				{Field: "email", Message: "Please provide a valid email"},
			}}
		}
		if admin.EmailUpdated {
			return domain.Admin{}, domain.ErrPermissionDeny
		}
		admin.Email = strings.ToLower(patch.Email)
		admin.EmailUpdated = true
	}
	if patch.NewPassword != "" {
		if len(patch.NewPassword) < 6 {
			return domain.Admin{}, &domain.ValidationError{Fields: []domain.FieldError{
				{Field: "newpassword", Message: "Password must be at least 6 characters"},
			}}
		}
		if patch.OldPassword == "" {
			return domain.Admin{}, &domain.ValidationError{Fields: []domain.FieldError{
				{Field: "oldPassword", Message: "Old password is required to change password"},
			}}
		}
		if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(patch.OldPassword)); err != nil {
			return domain.Admin{}, domain.ErrInvalidCredentials
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(patch.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return domain.Admin{}, err
		}
		admin.PasswordHash = hash
	}

	admin.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, admin); err != nil {
		return domain.Admin{}, err
	}
	return admin, nil
}

// EnsureAdmin provisions the first admin account at startup when none exists
// for the given email. An existing account is left untouched.
func (s *AdminService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	email = strings.ToLower(email)
	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	admin := domain.Admin{
		ID:           newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.repo.Create(ctx, admin)
}

func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
