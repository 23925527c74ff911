package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	Create(ctx context.Context, user *model.User) error
	// GetByID loads a user with IsMe computed against viewer
	GetByID(ctx context.Context, id, viewer uuid.UUID) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	List(ctx context.Context, viewer uuid.UUID) ([]model.User, error)
	// Update writes only the fields set in upd
	Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate) error
	// Activate moves a PENDING user to ACTIVE. It reports false when the
	// user was not pending.
	Activate(ctx context.Context, id uuid.UUID) (bool, error)
}

type userRepo struct {
	q Querier
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(q Querier) UserRepo {
	return &userRepo{q: q}
}

const userSelect = `
	SELECT u.uuid, u.phone, u.email, u.login, u.first_name, u.last_name, u.password,
	       u.status_id, u.role_id, u.avatar_id, u.is_online, u.last_activity,
	       u.created_at, u.updated_at, (u.uuid = $1) AS is_me,
	       d.uuid, d.document_id, d.filename, d.size_bytes, d.mime_type, d.created_at, d.updated_at
	FROM users u
	LEFT JOIN documents d ON d.uuid = u.avatar_id
`

// Create inserts a user. ID and timestamps are filled in when zero.
func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return err
		}
		user.ID = id
	}
	if user.StatusID == 0 {
		user.StatusID = model.StatusPending
	}
	if user.RoleID == 0 {
		user.RoleID = model.RoleUser
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO users (uuid, phone, email, login, first_name, last_name, password, status_id, role_id, avatar_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING is_online, last_activity, created_at, updated_at
	`, user.ID, user.Phone, user.Email, user.Login, user.FirstName, user.LastName,
		user.PasswordHash, user.StatusID, user.RoleID, nullUUID(user.AvatarID),
	).Scan(&user.IsOnline, nullTime{&user.LastActivity}, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", translate("users.create", err))
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id, viewer uuid.UUID) (model.User, error) {
	row := r.q.QueryRowContext(ctx, userSelect+` WHERE u.uuid = $2`, viewer, id)
	user, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to query user: %w", translate("users.get_by_id", err))
	}
	return user, nil
}

// GetByPhone retrieves a user by phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	row := r.q.QueryRowContext(ctx, userSelect+` WHERE u.phone = $2`, uuid.Nil, phone)
	user, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to query user: %w", translate("users.get_by_phone", err))
	}
	return user, nil
}

// List returns every user ordered by creation
func (r *userRepo) List(ctx context.Context, viewer uuid.UUID) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx, userSelect+` ORDER BY u.uuid`, viewer)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", translate("users.list", err))
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", translate("users.list", err))
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", translate("users.list", err))
	}
	return users, nil
}

// Update builds the SET clause from the fields present in upd
func (r *userRepo) Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate) error {
	if upd.Empty() {
		return nil
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if v, ok := upd.FirstName.Get(); ok {
		add("first_name", v)
	}
	if v, ok := upd.LastName.Get(); ok {
		add("last_name", v)
	}
	if v, ok := upd.PasswordHash.Get(); ok {
		add("password", v)
	}
	if v, ok := upd.AvatarID.Get(); ok {
		add("avatar_id", v)
	}
	if v, ok := upd.IsOnline.Get(); ok {
		add("is_online", v)
	}
	if v, ok := upd.LastActivity.Get(); ok {
		add("last_activity", v.UTC())
	}
	if v, ok := upd.StatusID.Get(); ok {
		add("status_id", v)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE users SET %s WHERE uuid = $%d", strings.Join(sets, ", "), len(args))
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translate("users.update", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translate("users.update", err))
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *userRepo) Activate(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE users SET status_id = $2, updated_at = now()
		WHERE uuid = $1 AND status_id = $3
	`, id, model.StatusActive, model.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to activate user: %w", translate("users.activate", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to activate user: %w", translate("users.activate", err))
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (model.User, error) {
	var (
		user      model.User
		email     sql.NullString
		avatarID  uuid.NullUUID
		docID     uuid.NullUUID
		docExtID  uuid.NullUUID
		filename  sql.NullString
		sizeBytes sql.NullInt64
		mimeType  sql.NullString
		docCreate sql.NullTime
		docUpdate sql.NullTime
	)
	err := s.Scan(
		&user.ID, &user.Phone, &email, &user.Login, &user.FirstName, &user.LastName, &user.PasswordHash,
		&user.StatusID, &user.RoleID, &avatarID, &user.IsOnline, nullTime{&user.LastActivity},
		&user.CreatedAt, &user.UpdatedAt, &user.IsMe,
		&docID, &docExtID, &filename, &sizeBytes, &mimeType, &docCreate, &docUpdate,
	)
	if err != nil {
		return model.User{}, err
	}

	if email.Valid {
		user.Email = &email.String
	}
	if avatarID.Valid {
		id := avatarID.UUID
		user.AvatarID = &id
	}
	if docID.Valid {
		doc := &model.Document{
			ID:         docID.UUID,
			DocumentID: docExtID.UUID,
			CreatedAt:  docCreate.Time,
			UpdatedAt:  docUpdate.Time,
		}
		if filename.Valid {
			doc.Filename = &filename.String
		}
		if sizeBytes.Valid {
			doc.SizeBytes = &sizeBytes.Int64
		}
		if mimeType.Valid {
			doc.MimeType = &mimeType.String
		}
		user.Avatar = doc
	}
	return user, nil
}

// nullTime scans a nullable timestamp into a *time.Time field
type nullTime struct {
	dst **time.Time
}

func (n nullTime) Scan(src any) error {
	var t sql.NullTime
	if err := t.Scan(src); err != nil {
		return err
	}
	if t.Valid {
		v := t.Time
		*n.dst = &v
	} else {
		*n.dst = nil
	}
	return nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
