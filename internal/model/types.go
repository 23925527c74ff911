package model

import (
	"time"

	"github.com/google/uuid"
)

// StatusID references a row of the statuses lookup table
type StatusID int

const (
	StatusActive  StatusID = 1
	StatusDeleted StatusID = 2
	StatusPending StatusID = 3
	StatusExpired StatusID = 4
	StatusRevoked StatusID = 5
)

var statusTitles = map[StatusID]string{
	StatusActive:  "ACTIVE",
	StatusDeleted: "DELETED",
	StatusPending: "PENDING",
	StatusExpired: "EXPIRED",
	StatusRevoked: "REVOKED",
}

// String returns the lookup title, or "UNKNOWN" for ids outside the table
func (s StatusID) String() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return "UNKNOWN"
}

// RoleID references a row of the roles lookup table
type RoleID int

const (
	RoleAdmin     RoleID = 1
	RoleModerator RoleID = 2
	RoleUser      RoleID = 3
)

var roleTitles = map[RoleID]string{
	RoleAdmin:     "ADMIN",
	RoleModerator: "MODERATOR",
	RoleUser:      "USER",
}

func (r RoleID) String() string {
	if t, ok := roleTitles[r]; ok {
		return t
	}
	return "UNKNOWN"
}

// AllRoles lists every role in the lookup table
func AllRoles() []RoleID {
	return []RoleID{RoleAdmin, RoleModerator, RoleUser}
}

// SessionType is the purpose a UserSession was opened for
type SessionType string

const (
	SessionRegister SessionType = "REGISTER"
	SessionAuth     SessionType = "AUTH"
)

// Valid reports whether t is one of the known session purposes
func (t SessionType) Valid() bool {
	return t == SessionRegister || t == SessionAuth
}

// Statusable is implemented by every entity carrying a status reference
type Statusable interface {
	GetStatusID() StatusID
	StatusTitle() string
}

// User represents an account
type User struct {
	ID           uuid.UUID  `json:"uuid"`
	Phone        string     `json:"phone"`
	Email        *string    `json:"email,omitempty"`
	Login        string     `json:"login"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	StatusID     StatusID   `json:"status_id"`
	RoleID       RoleID     `json:"role_id"`
	AvatarID     *uuid.UUID `json:"avatar_id,omitempty"`
	Avatar       *Document  `json:"avatar,omitempty"`
	IsOnline     bool       `json:"is_online"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	IsMe         bool       `json:"is_me"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) GetStatusID() StatusID { return u.StatusID }
func (u *User) StatusTitle() string   { return u.StatusID.String() }

// Document is the metadata of a file owned by the document service
type Document struct {
	ID         uuid.UUID `json:"uuid"`
	DocumentID uuid.UUID `json:"document_id"`
	Filename   *string   `json:"filename,omitempty"`
	SizeBytes  *int64    `json:"size_bytes,omitempty"`
	MimeType   *string   `json:"mime_type,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionDevice is the fingerprint observed during one authentication attempt.
// Rows are never updated.
type SessionDevice struct {
	ID             uuid.UUID
	DeviceType     string
	DeviceBrand    string
	DeviceFamily   string
	OSFamily       string
	OSVersion      string
	BrowserFamily  string
	BrowserVersion string
	IP             string
	Country        string
	City           string
	CreatedAt      time.Time
}

// UserSession binds a user, a device and a one-time code
type UserSession struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	DeviceID     uuid.UUID
	CodeHash     []byte
	Type         SessionType
	StatusID     StatusID
	AttemptCount int
	ExpiresAt    time.Time
	VerifiedAt   *time.Time
	CreatedAt    time.Time
}

func (s *UserSession) GetStatusID() StatusID { return s.StatusID }
func (s *UserSession) StatusTitle() string   { return s.StatusID.String() }

// Expired reports whether the code deadline has passed at now
func (s *UserSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
