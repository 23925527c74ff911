package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/model"
)

// SessionRepo defines the interface for user session repository operations
type SessionRepo interface {
	Create(ctx context.Context, s *model.UserSession) error
	Get(ctx context.Context, id uuid.UUID) (model.UserSession, error)
	// GetForUpdate locks the session row until the surrounding transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (model.UserSession, error)
	// Lock serializes session creation per user within a transaction
	Lock(ctx context.Context, userID uuid.UUID) error
	ExpirePending(ctx context.Context, userID uuid.UUID, t model.SessionType) (int64, error)
	RecordAttempt(ctx context.Context, id uuid.UUID) (int, error)
	SetStatus(ctx context.Context, id uuid.UUID, status model.StatusID, verifiedAt *time.Time) error
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

type sessionRepo struct {
	q Querier
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(q Querier) SessionRepo {
	return &sessionRepo{q: q}
}

const sessionSelect = `
	SELECT uuid, user_id, device_id, code_hash, session_type, status_id,
	       attempt_count, expires_at, verified_at, created_at
	FROM users_sessions
	WHERE uuid = $1
`

func (r *sessionRepo) Create(ctx context.Context, s *model.UserSession) error {
	if s.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return err
		}
		s.ID = id
	}
	if s.StatusID == 0 {
		s.StatusID = model.StatusPending
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO users_sessions (uuid, user_id, device_id, code_hash, session_type, status_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING attempt_count, created_at
	`, s.ID, s.UserID, s.DeviceID, s.CodeHash, string(s.Type), s.StatusID, s.ExpiresAt.UTC(),
	).Scan(&s.AttemptCount, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", translate("sessions.create", err))
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id uuid.UUID) (model.UserSession, error) {
	s, err := scanSession(r.q.QueryRowContext(ctx, sessionSelect, id))
	if err != nil {
		return model.UserSession{}, fmt.Errorf("query session: %w", translate("sessions.get", err))
	}
	return s, nil
}

func (r *sessionRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (model.UserSession, error) {
	s, err := scanSession(r.q.QueryRowContext(ctx, sessionSelect+` FOR UPDATE`, id))
	if err != nil {
		return model.UserSession{}, fmt.Errorf("query session: %w", translate("sessions.get_for_update", err))
	}
	return s, nil
}

// Lock takes a transaction-scoped advisory lock keyed by user. Blocks until
// held; released on COMMIT/ROLLBACK.
func (r *sessionRepo) Lock(ctx context.Context, userID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, userID.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", translate("sessions.lock", err))
	}
	return nil
}

// ExpirePending marks every PENDING session of the user and purpose EXPIRED
func (r *sessionRepo) ExpirePending(ctx context.Context, userID uuid.UUID, t model.SessionType) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE users_sessions
		SET status_id = $3
		WHERE user_id = $1 AND session_type = $2 AND status_id = $4
	`, userID, string(t), model.StatusExpired, model.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("expire pending sessions: %w", translate("sessions.expire_pending", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending sessions: %w", translate("sessions.expire_pending", err))
	}
	return n, nil
}

// RecordAttempt increments attempt_count and returns the new value
func (r *sessionRepo) RecordAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		UPDATE users_sessions
		SET attempt_count = attempt_count + 1
		WHERE uuid = $1
		RETURNING attempt_count
	`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment attempt: %w", translate("sessions.record_attempt", err))
	}
	return n, nil
}

// SetStatus moves the session to status. verifiedAt is written only when non-nil.
func (r *sessionRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.StatusID, verifiedAt *time.Time) error {
	var at any
	if verifiedAt != nil {
		at = verifiedAt.UTC()
	}
	result, err := r.q.ExecContext(ctx, `
		UPDATE users_sessions
		SET status_id = $2, verified_at = COALESCE($3, verified_at)
		WHERE uuid = $1
	`, id, status, at)
	if err != nil {
		return fmt.Errorf("set session status: %w", translate("sessions.set_status", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set session status: %w", translate("sessions.set_status", err))
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// CountSince returns the number of sessions opened for the user since the given time
func (r *sessionRepo) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users_sessions
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent sessions: %w", translate("sessions.count_since", err))
	}
	return count, nil
}

func scanSession(s scanner) (model.UserSession, error) {
	var (
		sess  model.UserSession
		sType string
	)
	err := s.Scan(
		&sess.ID, &sess.UserID, &sess.DeviceID, &sess.CodeHash, &sType, &sess.StatusID,
		&sess.AttemptCount, &sess.ExpiresAt, nullTime{&sess.VerifiedAt}, &sess.CreatedAt,
	)
	if err != nil {
		return model.UserSession{}, err
	}
	sess.Type = model.SessionType(sType)
	return sess, nil
}
