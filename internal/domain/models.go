package domain

import "time"

// Status tracks where a visa application sits in its review lifecycle.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusInProcess Status = "In Process"
	StatusSuccess   Status = "Success"
	StatusRejected  Status = "Rejected"
)

// ValidStatus reports whether s is one of the four accepted states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProcess, StatusSuccess, StatusRejected:
		return true
	}
	return false
}

// Storage provider tags carried on a DocumentRef.
const (
	ProviderLocal      = "local"
	ProviderS3         = "s3"
	ProviderCloudinary = "cloudinary"
	ProviderSupabase   = "supabase"
)

// DocumentRef points at the applicant's uploaded supporting file. Ref is a
// public URL for remote providers and a filesystem path for local storage.
type DocumentRef struct {
	Provider    string `json:"provider"`
	Ref         string `json:"ref"`
	ContentType string `json:"contentType"`
}

// Application is a visa-application record. ApplicationID is the natural key
// and is immutable once set.
type Application struct {
	ApplicationID  string       `json:"applicationId"`
	Name           string       `json:"name"`
	PassportNumber string       `json:"passportNumber"`
	Nationality    string       `json:"nationality"`
	DOB            time.Time    `json:"dob"`
	Address        string       `json:"address"`
	Status         Status       `json:"status"`
	Document       *DocumentRef `json:"document,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Admin is a privileged user who manages application records. The password
// hash never leaves the process in a response body.
type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash []byte    `json:"-"`
	EmailUpdated bool      `json:"emailUpdated"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SameCalendarDay reports whether stored and supplied fall on the same
// calendar day in loc. Client-supplied dates of birth arrive with arbitrary
// time-of-day and offset precision, so equality is day-granular.
func SameCalendarDay(stored, supplied time.Time, loc *time.Location) bool {
	sy, sm, sd := stored.In(loc).Date()
	py, pm, pd := supplied.In(loc).Date()
	return sy == py && sm == pm && sd == pd
}
