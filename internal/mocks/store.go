package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/model"
	"github.com/capiorg/backend-auth/internal/repo"
)

type state struct {
	users     map[uuid.UUID]model.User
	documents map[uuid.UUID]model.Document
	devices   map[uuid.UUID]model.SessionDevice
	sessions  map[uuid.UUID]model.UserSession
}

func (s *state) clone() *state {
	c := &state{
		users:     make(map[uuid.UUID]model.User, len(s.users)),
		documents: make(map[uuid.UUID]model.Document, len(s.documents)),
		devices:   make(map[uuid.UUID]model.SessionDevice, len(s.devices)),
		sessions:  make(map[uuid.UUID]model.UserSession, len(s.sessions)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.documents {
		c.documents[k] = v
	}
	for k, v := range s.devices {
		c.devices[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	return c
}

// MockStore is an in-memory repo.Store. WithTx runs serially and restores
// the previous state when fn fails.
type MockStore struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time

	// FailOn makes the named operation (e.g. "users.update") fail
	FailOn map[string]error
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: &state{
			users:     map[uuid.UUID]model.User{},
			documents: map[uuid.UUID]model.Document{},
			devices:   map[uuid.UUID]model.SessionDevice{},
			sessions:  map[uuid.UUID]model.UserSession{},
		},
		now:    time.Now,
		FailOn: map[string]error{},
	}
}

// SetClock replaces the clock used for created_at and updated_at
func (m *MockStore) SetClock(now func() time.Time) {
	m.now = now
}

func (m *MockStore) Repos() repo.Repos {
	return m.bind(false)
}

func (m *MockStore) WithTx(ctx context.Context, fn func(r repo.Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.bind(true)); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *MockStore) Ping(context.Context) error {
	return m.FailOn["ping"]
}

// User returns a stored user, for assertions
func (m *MockStore) User(id uuid.UUID) (model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data.users[id]
	return u, ok
}

// Session returns a stored session, for assertions
func (m *MockStore) Session(id uuid.UUID) (model.UserSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.sessions[id]
	return s, ok
}

// Documents returns every stored document
func (m *MockStore) Documents() []model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]model.Document, 0, len(m.data.documents))
	for _, d := range m.data.documents {
		docs = append(docs, d)
	}
	return docs
}

// Devices returns the number of stored devices
func (m *MockStore) Devices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.devices)
}

// PutSession overwrites a session, for arranging test state
func (m *MockStore) PutSession(s model.UserSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.sessions[s.ID] = s
}

func (m *MockStore) bind(inTx bool) repo.Repos {
	b := &binding{m: m, inTx: inTx}
	return repo.Repos{
		Users:     &mockUsers{b},
		Documents: &mockDocuments{b},
		Devices:   &mockDevices{b},
		Sessions:  &mockSessions{b},
	}
}

type binding struct {
	m    *MockStore
	inTx bool
}

// do runs fn against the current state, locking unless already inside WithTx
func (b *binding) do(op string, fn func(s *state) error) error {
	if !b.inTx {
		b.m.mu.Lock()
		defer b.m.mu.Unlock()
	}
	if err := b.m.FailOn[op]; err != nil {
		return err
	}
	return fn(b.m.data)
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id
}

type mockUsers struct{ *binding }

func (r *mockUsers) Create(_ context.Context, user *model.User) error {
	return r.do("users.create", func(s *state) error {
		for _, u := range s.users {
			switch {
			case u.Phone == user.Phone:
				return &apperr.ConstraintError{Kind: apperr.Unique, Field: "phone"}
			case u.Login == user.Login:
				return &apperr.ConstraintError{Kind: apperr.Unique, Field: "login"}
			case user.Email != nil && u.Email != nil && *u.Email == *user.Email:
				return &apperr.ConstraintError{Kind: apperr.Unique, Field: "email"}
			}
		}
		if user.AvatarID != nil {
			if _, ok := s.documents[*user.AvatarID]; !ok {
				return &apperr.ConstraintError{Kind: apperr.ForeignKey, Field: "avatar_id"}
			}
		}
		if user.ID == uuid.Nil {
			user.ID = newID()
		}
		if user.StatusID == 0 {
			user.StatusID = model.StatusPending
		}
		if user.RoleID == 0 {
			user.RoleID = model.RoleUser
		}
		now := r.m.now()
		user.CreatedAt, user.UpdatedAt = now, now
		stored := *user
		stored.Avatar = nil
		stored.IsMe = false
		s.users[user.ID] = stored
		return nil
	})
}

func (r *mockUsers) view(s *state, u model.User, viewer uuid.UUID) model.User {
	u.IsMe = u.ID == viewer
	if u.AvatarID != nil {
		if d, ok := s.documents[*u.AvatarID]; ok {
			u.Avatar = &d
		}
	}
	return u
}

func (r *mockUsers) GetByID(_ context.Context, id, viewer uuid.UUID) (model.User, error) {
	var out model.User
	err := r.do("users.get_by_id", func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return apperr.ErrNotFound
		}
		out = r.view(s, u, viewer)
		return nil
	})
	return out, err
}

func (r *mockUsers) GetByPhone(_ context.Context, phone string) (model.User, error) {
	var out model.User
	err := r.do("users.get_by_phone", func(s *state) error {
		for _, u := range s.users {
			if u.Phone == phone {
				out = r.view(s, u, uuid.Nil)
				return nil
			}
		}
		return apperr.ErrNotFound
	})
	return out, err
}

func (r *mockUsers) List(_ context.Context, viewer uuid.UUID) ([]model.User, error) {
	var out []model.User
	err := r.do("users.list", func(s *state) error {
		for _, u := range s.users {
			out = append(out, r.view(s, u, viewer))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
		return nil
	})
	return out, err
}

func (r *mockUsers) Update(_ context.Context, id uuid.UUID, upd model.UserUpdate) error {
	if upd.Empty() {
		return nil
	}
	return r.do("users.update", func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
		}
		if v, ok := upd.FirstName.Get(); ok {
			u.FirstName = v
		}
		if v, ok := upd.LastName.Get(); ok {
			u.LastName = v
		}
		if v, ok := upd.PasswordHash.Get(); ok {
			u.PasswordHash = v
		}
		if v, ok := upd.AvatarID.Get(); ok {
			if _, exists := s.documents[v]; !exists {
				return &apperr.ConstraintError{Kind: apperr.ForeignKey, Field: "avatar_id"}
			}
			u.AvatarID = &v
		}
		if v, ok := upd.IsOnline.Get(); ok {
			u.IsOnline = v
		}
		if v, ok := upd.LastActivity.Get(); ok {
			t := v.UTC()
			u.LastActivity = &t
		}
		if v, ok := upd.StatusID.Get(); ok {
			u.StatusID = v
		}
		u.UpdatedAt = r.m.now()
		s.users[id] = u
		return nil
	})
}

func (r *mockUsers) Activate(_ context.Context, id uuid.UUID) (bool, error) {
	var changed bool
	err := r.do("users.activate", func(s *state) error {
		u, ok := s.users[id]
		if !ok || u.StatusID != model.StatusPending {
			return nil
		}
		u.StatusID = model.StatusActive
		u.UpdatedAt = r.m.now()
		s.users[id] = u
		changed = true
		return nil
	})
	return changed, err
}

type mockDocuments struct{ *binding }

func (r *mockDocuments) Create(_ context.Context, doc *model.Document) error {
	return r.do("documents.create", func(s *state) error {
		if doc.ID == uuid.Nil {
			doc.ID = newID()
		}
		now := r.m.now()
		doc.CreatedAt, doc.UpdatedAt = now, now
		s.documents[doc.ID] = *doc
		return nil
	})
}

type mockDevices struct{ *binding }

func (r *mockDevices) Create(_ context.Context, d *model.SessionDevice) error {
	return r.do("devices.create", func(s *state) error {
		if d.ID == uuid.Nil {
			d.ID = newID()
		}
		d.CreatedAt = r.m.now()
		s.devices[d.ID] = *d
		return nil
	})
}

func (r *mockDevices) Get(_ context.Context, id uuid.UUID) (model.SessionDevice, error) {
	var out model.SessionDevice
	err := r.do("devices.get", func(s *state) error {
		d, ok := s.devices[id]
		if !ok {
			return apperr.ErrNotFound
		}
		out = d
		return nil
	})
	return out, err
}

type mockSessions struct{ *binding }

func (r *mockSessions) Create(_ context.Context, sess *model.UserSession) error {
	return r.do("sessions.create", func(s *state) error {
		if _, ok := s.users[sess.UserID]; !ok {
			return &apperr.ConstraintError{Kind: apperr.ForeignKey, Field: "user_id"}
		}
		if _, ok := s.devices[sess.DeviceID]; !ok {
			return &apperr.ConstraintError{Kind: apperr.ForeignKey, Field: "device_id"}
		}
		if sess.ID == uuid.Nil {
			sess.ID = newID()
		}
		if sess.StatusID == 0 {
			sess.StatusID = model.StatusPending
		}
		sess.AttemptCount = 0
		sess.CreatedAt = r.m.now()
		s.sessions[sess.ID] = *sess
		return nil
	})
}

func (r *mockSessions) Get(_ context.Context, id uuid.UUID) (model.UserSession, error) {
	var out model.UserSession
	err := r.do("sessions.get", func(s *state) error {
		sess, ok := s.sessions[id]
		if !ok {
			return apperr.ErrNotFound
		}
		out = sess
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: WithTx already runs serially
func (r *mockSessions) GetForUpdate(ctx context.Context, id uuid.UUID) (model.UserSession, error) {
	return r.Get(ctx, id)
}

func (r *mockSessions) Lock(context.Context, uuid.UUID) error {
	return r.do("sessions.lock", func(*state) error { return nil })
}

func (r *mockSessions) ExpirePending(_ context.Context, userID uuid.UUID, t model.SessionType) (int64, error) {
	var n int64
	err := r.do("sessions.expire_pending", func(s *state) error {
		for id, sess := range s.sessions {
			if sess.UserID == userID && sess.Type == t && sess.StatusID == model.StatusPending {
				sess.StatusID = model.StatusExpired
				s.sessions[id] = sess
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *mockSessions) RecordAttempt(_ context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.do("sessions.record_attempt", func(s *state) error {
		sess, ok := s.sessions[id]
		if !ok {
			return apperr.ErrNotFound
		}
		sess.AttemptCount++
		s.sessions[id] = sess
		n = sess.AttemptCount
		return nil
	})
	return n, err
}

func (r *mockSessions) SetStatus(_ context.Context, id uuid.UUID, status model.StatusID, verifiedAt *time.Time) error {
	return r.do("sessions.set_status", func(s *state) error {
		sess, ok := s.sessions[id]
		if !ok {
			return fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
		}
		sess.StatusID = status
		if verifiedAt != nil {
			t := verifiedAt.UTC()
			sess.VerifiedAt = &t
		}
		s.sessions[id] = sess
		return nil
	})
}

func (r *mockSessions) CountSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.do("sessions.count_since", func(s *state) error {
		for _, sess := range s.sessions {
			if sess.UserID == userID && !sess.CreatedAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, err
}
