package ports

import (
	"context"

	"visa-tracker/internal/domain"
)

// ApplicationRepository persists visa applications keyed by their business id.
type ApplicationRepository interface {
	// Create fails with domain.ErrConflict when the applicationId is taken.
	Create(ctx context.Context, app domain.Application) error
	Get(ctx context.Context, applicationID string) (domain.Application, error)
	// List returns all applications, newest first by creation time.
	List(ctx context.Context) ([]domain.Application, error)
	Update(ctx context.Context, app domain.Application) error
	Delete(ctx context.Context, applicationID string) error
}

// AdminRepository persists administrator accounts. Emails are stored
// lower-cased and kept unique by the store.
type AdminRepository interface {
	Create(ctx context.Context, admin domain.Admin) error
	GetByID(ctx context.Context, id string) (domain.Admin, error)
	GetByEmail(ctx context.Context, email string) (domain.Admin, error)
	Update(ctx context.Context, admin domain.Admin) error
}

// Storage is the object-storage capability shared by all concrete backends.
type Storage interface {
	// Store persists data under a collision-free name derived from filename
	// and returns a reference resolvable later. Disallowed file types fail
	// with domain.ErrUnsupportedType before any bytes are written.
	Store(ctx context.Context, data []byte, filename, contentType string) (domain.DocumentRef, error)
	// Remove deletes the backing object. Removing a reference that no longer
	// exists is not an error.
	Remove(ctx context.Context, ref domain.DocumentRef) error
}

type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}
