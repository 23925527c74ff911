package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Optional marks whether a patch field was supplied. A JSON null is treated
// the same as an absent field.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value and whether it was set
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// ProfilePatch lists the user fields a caller may change on their own profile.
// AvatarID is the document service identifier, not a documents row id.
type ProfilePatch struct {
	FirstName Optional[string]
	LastName  Optional[string]
	Password  Optional[string]
	AvatarID  Optional[uuid.UUID]
}

// Empty reports whether no field is set
func (p ProfilePatch) Empty() bool {
	return !p.FirstName.Set && !p.LastName.Set && !p.Password.Set && !p.AvatarID.Set
}

// ActivityPatch is the heartbeat update
type ActivityPatch struct {
	IsOnline     Optional[bool]
	LastActivity Optional[time.Time]
}

// UserUpdate is the storage-level patch. PasswordHash and AvatarID hold
// already-resolved values.
type UserUpdate struct {
	FirstName    Optional[string]
	LastName     Optional[string]
	PasswordHash Optional[string]
	AvatarID     Optional[uuid.UUID]
	IsOnline     Optional[bool]
	LastActivity Optional[time.Time]
	StatusID     Optional[StatusID]
}

// Empty reports whether no column would be written
func (u UserUpdate) Empty() bool {
	return !u.FirstName.Set && !u.LastName.Set && !u.PasswordHash.Set && !u.AvatarID.Set &&
		!u.IsOnline.Set && !u.LastActivity.Set && !u.StatusID.Set
}
