package application

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"visa-tracker/internal/domain"
)

type appRepoMock struct{ mock.Mock }

func (m *appRepoMock) Create(ctx context.Context, app domain.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *appRepoMock) Get(ctx context.Context, applicationID string) (domain.Application, error) {
	args := m.Called(ctx, applicationID)
	return args.Get(0).(domain.Application), args.Error(1)
}

func (m *appRepoMock) List(ctx context.Context) ([]domain.Application, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Application), args.Error(1)
}

func (m *appRepoMock) Update(ctx context.Context, app domain.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *appRepoMock) Delete(ctx context.Context, applicationID string) error {
	args := m.Called(ctx, applicationID)
	return args.Error(0)
}

type storageMock struct{ mock.Mock }

func (m *storageMock) Store(ctx context.Context, data []byte, filename, contentType string) (domain.DocumentRef, error) {
	args := m.Called(ctx, data, filename, contentType)
	return args.Get(0).(domain.DocumentRef), args.Error(1)
}

func (m *storageMock) Remove(ctx context.Context, ref domain.DocumentRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

type adminRepoMock struct{ mock.Mock }

func (m *adminRepoMock) Create(ctx context.Context, admin domain.Admin) error {
	args := m.Called(ctx, admin)
	return args.Error(0)
}

func (m *adminRepoMock) GetByID(ctx context.Context, id string) (domain.Admin, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Admin), args.Error(1)
}

func (m *adminRepoMock) GetByEmail(ctx context.Context, email string) (domain.Admin, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(domain.Admin), args.Error(1)
}

func (m *adminRepoMock) Update(ctx context.Context, admin domain.Admin) error {
	args := m.Called(ctx, admin)
	return args.Error(0)
}

type tokenIssuerMock struct{ mock.Mock }

func (m *tokenIssuerMock) Issue(adminID string) (string, error) {
	args := m.Called(adminID)
	return args.String(0), args.Error(1)
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Debug(context.Context, string, ...any) {}

func newService(repo *appRepoMock, store *storageMock) *ApplicationService {
	return NewApplicationService(repo, store, nopLogger{})
}

var validInput = ApplicationInput{
	Name:           "Jordan Smith",
	ApplicationID:  "V100",
	PassportNumber: "P1",
	Nationality:    "FR",
	DOB:            "2000-01-01",
	Address:        "1 Rue de Lyon",
}

func TestApplicationService_Create(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))

	repo.On("Create", mock.Anything, mock.MatchedBy(func(app domain.Application) bool {
		return app.ApplicationID == "V100" &&
			app.Status == domain.StatusPending &&
			!app.CreatedAt.IsZero() && !app.UpdatedAt.IsZero()
	})).Return(nil)

	app, err := svc.Create(context.Background(), validInput)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, app.Status)
	repo.AssertExpectations(t)
}

func TestApplicationService_Create_MissingFields(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))

	_, err := svc.Create(context.Background(), ApplicationInput{Name: "only a name"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Fields, 5)
	repo.AssertNotCalled(t, "Create")
}

func TestApplicationService_Create_DuplicateID(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	repo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	_, err := svc.Create(context.Background(), validInput)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestApplicationService_CreateWithDocument_CleansUpOnInsertFailure(t *testing.T) {
	repo := new(appRepoMock)
	store := new(storageMock)
	svc := newService(repo, store)

	ref := domain.DocumentRef{Provider: domain.ProviderLocal, Ref: "uploads/1-1.pdf", ContentType: "application/pdf"}
	store.On("Store", mock.Anything, []byte("pdf"), "a.pdf", "application/pdf").Return(ref, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)
	store.On("Remove", mock.Anything, ref).Return(nil)

	_, err := svc.CreateWithDocument(context.Background(), validInput, Upload{Data: []byte("pdf"), Filename: "a.pdf", ContentType: "application/pdf"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	store.AssertCalled(t, "Remove", mock.Anything, ref)
}

func TestApplicationService_CreateWithDocument_ValidatesBeforeUpload(t *testing.T) {
	repo := new(appRepoMock)
	store := new(storageMock)
	svc := newService(repo, store)

	_, err := svc.CreateWithDocument(context.Background(), ApplicationInput{}, Upload{Data: []byte("pdf"), Filename: "a.pdf"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	store.AssertNotCalled(t, "Store")
}

func storedApplication() domain.Application {
	return domain.Application{
		ApplicationID:  "V100",
		Name:           "Jordan Smith",
		PassportNumber: "P1",
		Nationality:    "FR",
		DOB:            time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		Address:        "1 Rue de Lyon",
		Status:         domain.StatusPending,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func TestApplicationService_CheckStatus_Match(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	repo.On("Get", mock.Anything, "V100").Return(storedApplication(), nil)

	app, err := svc.CheckStatus(context.Background(), StatusQuery{
		ApplicationID: "V100", PassportNumber: "P1", DOB: "2000-01-01", Nationality: "FR",
	})
	require.NoError(t, err)
	assert.Equal(t, "V100", app.ApplicationID)
}

func TestApplicationService_CheckStatus_AnyFieldMismatchIsNotFound(t *testing.T) {
	cases := map[string]StatusQuery{
		"passport":    {ApplicationID: "V100", PassportNumber: "P2", DOB: "2000-01-01", Nationality: "FR"},
		"nationality": {ApplicationID: "V100", PassportNumber: "P1", DOB: "2000-01-01", Nationality: "DE"},
		"dob":         {ApplicationID: "V100", PassportNumber: "P1", DOB: "2000-01-02", Nationality: "FR"},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			repo := new(appRepoMock)
			svc := newService(repo, new(storageMock))
			repo.On("Get", mock.Anything, "V100").Return(storedApplication(), nil)

			_, err := svc.CheckStatus(context.Background(), q)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestApplicationService_CheckStatus_DOBToleratesTimeOfDay(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	stored := storedApplication()
	stored.DOB = time.Date(2000, 1, 1, 18, 30, 0, 0, time.UTC)
	repo.On("Get", mock.Anything, "V100").Return(stored, nil)

	_, err := svc.CheckStatus(context.Background(), StatusQuery{
		ApplicationID: "V100", PassportNumber: "P1", DOB: "2000-01-01", Nationality: "FR",
	})
	assert.NoError(t, err)
}

func TestApplicationService_CheckStatus_MissingFields(t *testing.T) {
	svc := newService(new(appRepoMock), new(storageMock))

	_, err := svc.CheckStatus(context.Background(), StatusQuery{ApplicationID: "V100"})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Fields, 3)
}

func strPtr(s string) *string { return &s }

func TestApplicationService_Update_Partial(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	repo.On("Get", mock.Anything, "V100").Return(storedApplication(), nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(app domain.Application) bool {
		return app.Address == "2 New Street" && app.Name == "Jordan Smith"
	})).Return(nil)

	app, err := svc.Update(context.Background(), "V100", ApplicationPatch{Address: strPtr("2 New Street")})
	require.NoError(t, err)
	assert.Equal(t, "2 New Street", app.Address)
	repo.AssertExpectations(t)
}

func TestApplicationService_Update_EmptyFieldRejected(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	repo.On("Get", mock.Anything, "V100").Return(storedApplication(), nil)

	_, err := svc.Update(context.Background(), "V100", ApplicationPatch{Name: strPtr("  ")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	repo.AssertNotCalled(t, "Update")
}

func TestApplicationService_UpdateStatus(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	repo.On("Get", mock.Anything, "V100").Return(storedApplication(), nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(app domain.Application) bool {
		return app.Status == domain.StatusInProcess
	})).Return(nil)

	app, err := svc.UpdateStatus(context.Background(), "V100", domain.StatusInProcess)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProcess, app.Status)
}

func TestApplicationService_UpdateStatus_RejectsUnknownValue(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))

	_, err := svc.UpdateStatus(context.Background(), "V100", domain.Status("Approved"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	repo.AssertNotCalled(t, "Get")
	repo.AssertNotCalled(t, "Update")
}

func TestApplicationService_AttachDocument_ReplacesOldDocument(t *testing.T) {
	repo := new(appRepoMock)
	store := new(storageMock)
	svc := newService(repo, store)

	oldRef := domain.DocumentRef{Provider: domain.ProviderLocal, Ref: "uploads/old.pdf"}
	newRef := domain.DocumentRef{Provider: domain.ProviderLocal, Ref: "uploads/new.pdf", ContentType: "application/pdf"}
	stored := storedApplication()
	stored.Document = &oldRef

	store.On("Store", mock.Anything, mock.Anything, "b.pdf", "application/pdf").Return(newRef, nil)
	repo.On("Get", mock.Anything, "V100").Return(stored, nil)
	store.On("Remove", mock.Anything, oldRef).Return(nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(app domain.Application) bool {
		return app.Document != nil && app.Document.Ref == "uploads/new.pdf"
	})).Return(nil)

	app, err := svc.AttachDocument(context.Background(), "V100", Upload{Data: []byte("x"), Filename: "b.pdf", ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "uploads/new.pdf", app.Document.Ref)
	store.AssertCalled(t, "Remove", mock.Anything, oldRef)
}

func TestApplicationService_AttachDocument_MissingRecordCleansUpUpload(t *testing.T) {
	repo := new(appRepoMock)
	store := new(storageMock)
	svc := newService(repo, store)

	newRef := domain.DocumentRef{Provider: domain.ProviderLocal, Ref: "uploads/new.pdf"}
	store.On("Store", mock.Anything, mock.Anything, "b.pdf", "").Return(newRef, nil)
	repo.On("Get", mock.Anything, "V404").Return(domain.Application{}, domain.ErrNotFound)
	store.On("Remove", mock.Anything, newRef).Return(nil)

	_, err := svc.AttachDocument(context.Background(), "V404", Upload{Data: []byte("x"), Filename: "b.pdf"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	store.AssertCalled(t, "Remove", mock.Anything, newRef)
}

func TestApplicationService_Delete_CascadesDocumentRemoval(t *testing.T) {
	repo := new(appRepoMock)
	store := new(storageMock)
	svc := newService(repo, store)

	ref := domain.DocumentRef{Provider: domain.ProviderLocal, Ref: "uploads/doc.pdf"}
	stored := storedApplication()
	stored.Document = &ref
	repo.On("Get", mock.Anything, "V100").Return(stored, nil)
	store.On("Remove", mock.Anything, ref).Return(nil)
	repo.On("Delete", mock.Anything, "V100").Return(nil)

	require.NoError(t, svc.Delete(context.Background(), "V100"))
	store.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestApplicationService_Delete_StorageFailureDoesNotBlock(t *testing.T) {
	repo := new(appRepoMock)
	store := new(storageMock)
	svc := newService(repo, store)

	ref := domain.DocumentRef{Provider: domain.ProviderS3, Ref: "https://b.s3.eu-west-1.amazonaws.com/applications/doc.pdf"}
	stored := storedApplication()
	stored.Document = &ref
	repo.On("Get", mock.Anything, "V100").Return(stored, nil)
	store.On("Remove", mock.Anything, ref).Return(assert.AnError)
	repo.On("Delete", mock.Anything, "V100").Return(nil)

	require.NoError(t, svc.Delete(context.Background(), "V100"))
	repo.AssertCalled(t, "Delete", mock.Anything, "V100")
}

func TestApplicationService_Delete_NotFound(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	repo.On("Get", mock.Anything, "V404").Return(domain.Application{}, domain.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), "V404"), domain.ErrNotFound)
}

func TestApplicationService_DownloadDocument_ProxiesRemoteRef(t *testing.T) {
	payload := []byte("%PDF-1.4 content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(payload)
	}))
	defer srv.Close()

	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	stored := storedApplication()
	stored.Document = &domain.DocumentRef{Provider: domain.ProviderSupabase, Ref: srv.URL + "/f.pdf", ContentType: "application/pdf"}
	repo.On("Get", mock.Anything, "V100").Return(stored, nil)

	doc, err := svc.DownloadDocument(context.Background(), "V100", nil)
	require.NoError(t, err)
	defer doc.Body.Close()
	body, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "document-V100.pdf", doc.Filename)
}

func TestApplicationService_DownloadDocument_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	stored := storedApplication()
	stored.Document = &domain.DocumentRef{Provider: domain.ProviderS3, Ref: srv.URL + "/f.pdf"}
	repo.On("Get", mock.Anything, "V100").Return(stored, nil)

	_, err := svc.DownloadDocument(context.Background(), "V100", nil)
	assert.ErrorIs(t, err, domain.ErrUpstreamStorage)
}

func TestApplicationService_DownloadDocument_VerificationMismatchIsForbidden(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	stored := storedApplication()
	stored.Document = &domain.DocumentRef{Provider: domain.ProviderLocal, Ref: "uploads/doc.pdf"}
	repo.On("Get", mock.Anything, "V100").Return(stored, nil)

	_, err := svc.DownloadDocument(context.Background(), "V100", &StatusQuery{
		ApplicationID: "V100", PassportNumber: "WRONG", DOB: "2000-01-01", Nationality: "FR",
	})
	assert.ErrorIs(t, err, domain.ErrPermissionDeny)
}

func TestApplicationService_DownloadDocument_NoDocument(t *testing.T) {
	repo := new(appRepoMock)
	svc := newService(repo, new(storageMock))
	repo.On("Get", mock.Anything, "V100").Return(storedApplication(), nil)

	_, err := svc.DownloadDocument(context.Background(), "V100", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func hashOf(t *testing.T, password string) []byte {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return hash
}

func storedAdmin(t *testing.T) domain.Admin {
	return domain.Admin{
		ID:           "adm-1",
		Email:        "admin@example.com",
		Name:         "Admin",
		PasswordHash: hashOf(t, "secret123"),
	}
}

func TestAdminService_Login(t *testing.T) {
	repo := new(adminRepoMock)
	tokens := new(tokenIssuerMock)
	svc := NewAdminService(repo, tokens, nopLogger{})

	repo.On("GetByEmail", mock.Anything, "admin@example.com").Return(storedAdmin(t), nil)
	tokens.On("Issue", "adm-1").Return("tok", nil)

	token, admin, err := svc.Login(context.Background(), "Admin@Example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, "adm-1", admin.ID)
}

func TestAdminService_Login_SameFailureForUnknownEmailAndWrongPassword(t *testing.T) {
	repo := new(adminRepoMock)
	svc := NewAdminService(repo, new(tokenIssuerMock), nopLogger{})

	repo.On("GetByEmail", mock.Anything, "missing@example.com").Return(domain.Admin{}, domain.ErrNotFound)
	_, _, errUnknown := svc.Login(context.Background(), "missing@example.com", "whatever")

	repo.On("GetByEmail", mock.Anything, "admin@example.com").Return(storedAdmin(t), nil)
	_, _, errWrong := svc.Login(context.Background(), "admin@example.com", "wrongpass")

	assert.ErrorIs(t, errUnknown, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, domain.ErrInvalidCredentials)
	assert.Equal(t, errUnknown, errWrong)
}

func TestAdminService_UpdateAccount_EmailOnlyOnce(t *testing.T) {
	repo := new(adminRepoMock)
	svc := NewAdminService(repo, new(tokenIssuerMock), nopLogger{})

	first := storedAdmin(t)
	repo.On("GetByID", mock.Anything, "adm-1").Return(first, nil).Once()
	repo.On("Update", mock.Anything, mock.MatchedBy(func(a domain.Admin) bool {
		return a.Email == "new@example.com" && a.EmailUpdated
	})).Return(nil)

	_, err := svc.UpdateAccount(context.Background(), "adm-1", AccountPatch{Email: "New@Example.com"})
	require.NoError(t, err)

	changed := storedAdmin(t)
	changed.Email = "new@example.com"
	changed.EmailUpdated = true
	repo.On("GetByID", mock.Anything, "adm-1").Return(changed, nil)

	_, err = svc.UpdateAccount(context.Background(), "adm-1", AccountPatch{Email: "another@example.com"})
	assert.ErrorIs(t, err, domain.ErrPermissionDeny)
}

func TestAdminService_UpdateAccount_PasswordNeedsVerifiedOld(t *testing.T) {
	repo := new(adminRepoMock)
	svc := NewAdminService(repo, new(tokenIssuerMock), nopLogger{})
	repo.On("GetByID", mock.Anything, "adm-1").Return(storedAdmin(t), nil)

	_, err := svc.UpdateAccount(context.Background(), "adm-1", AccountPatch{NewPassword: "newsecret"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.UpdateAccount(context.Background(), "adm-1", AccountPatch{OldPassword: "nope", NewPassword: "newsecret"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	repo.AssertNotCalled(t, "Update")
}

func TestAdminService_UpdateAccount_RehashesNewPassword(t *testing.T) {
	repo := new(adminRepoMock)
	svc := NewAdminService(repo, new(tokenIssuerMock), nopLogger{})
	repo.On("GetByID", mock.Anything, "adm-1").Return(storedAdmin(t), nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(a domain.Admin) bool {
		return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte("newsecret")) == nil
	})).Return(nil)

	_, err := svc.UpdateAccount(context.Background(), "adm-1", AccountPatch{OldPassword: "secret123", NewPassword: "newsecret"})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAdminService_UpdateAccount_ShortPasswordRejected(t *testing.T) {
	repo := new(adminRepoMock)
	svc := NewAdminService(repo, new(tokenIssuerMock), nopLogger{})
	repo.On("GetByID", mock.Anything, "adm-1").Return(storedAdmin(t), nil)

	_, err := svc.UpdateAccount(context.Background(), "adm-1", AccountPatch{OldPassword: "secret123", NewPassword: "short"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAdminService_EnsureAdmin_SkipsExistingAccount(t *testing.T) {
	repo := new(adminRepoMock)
	svc := NewAdminService(repo, new(tokenIssuerMock), nopLogger{})
	repo.On("GetByEmail", mock.Anything, "admin@example.com").Return(storedAdmin(t), nil)

	require.NoError(t, svc.EnsureAdmin(context.Background(), "Admin@Example.com", "secret123", "Admin"))
	repo.AssertNotCalled(t, "Create")
}

func TestAdminService_EnsureAdmin_ProvisionsMissingAccount(t *testing.T) {
	repo := new(adminRepoMock)
	svc := NewAdminService(repo, new(tokenIssuerMock), nopLogger{})
	repo.On("GetByEmail", mock.Anything, "admin@example.com").Return(domain.Admin{}, domain.ErrNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(a domain.Admin) bool {
		return a.Email == "admin@example.com" && a.ID != "" &&
			bcrypt.CompareHashAndPassword(a.PasswordHash, []byte("secret123")) == nil
	})).Return(nil)

	require.NoError(t, svc.EnsureAdmin(context.Background(), "admin@example.com", "secret123", "Admin"))
	repo.AssertExpectations(t)
}
