package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/cache"
	"github.com/capiorg/backend-auth/internal/geo"
	"github.com/capiorg/backend-auth/internal/logging"
	"github.com/capiorg/backend-auth/internal/metrics"
	"github.com/capiorg/backend-auth/internal/model"
	"github.com/capiorg/backend-auth/internal/notify"
	"github.com/capiorg/backend-auth/internal/repo"
)

const geoTimeout = 2 * time.Second

// Config holds the session and token policy
type Config struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	CodeSalt              string
	CodeTTL               time.Duration
	CodeMaxAttempts       int
	CodeRequestsPerWindow int
	CodeRequestWindow     time.Duration
	// DevMode issues the fixed code 0000 and echoes it in the ticket
	DevMode bool
}

// RegisterInput is a new account request
type RegisterInput struct {
	Phone     string
	Email     *string
	Login     string
	FirstName string
	LastName  string
	Password  string
}

// Ticket describes a started session awaiting its code
type Ticket struct {
	SessionID uuid.UUID
	Type      model.SessionType
	ExpiresAt time.Time
	// Code is set only in dev mode
	Code string
}

// TokenPair is returned by a verified session and by refresh
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Service orchestrates authentication operations
type Service struct {
	store       repo.Store
	tokens      *TokenService
	sender      notify.Sender
	locator     geo.Locator
	invalidator *cache.Invalidator
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new auth service
func NewService(
	store repo.Store,
	tokens *TokenService,
	sender notify.Sender,
	locator geo.Locator,
	invalidator *cache.Invalidator,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:       store,
		tokens:      tokens,
		sender:      sender,
		locator:     locator,
		invalidator: invalidator,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authenticate checks phone and password, then status. Unknown phones and
// wrong passwords are indistinguishable. Only DELETED accounts are refused
// here; other statuses are left to the gate.
func (s *Service) Authenticate(ctx context.Context, phone, password string) (model.User, error) {
	user, err := s.store.Repos().Users.GetByPhone(ctx, phone)
	if errors.Is(err, apperr.ErrNotFound) {
		burnPasswordCheck(password)
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return model.User{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return model.User{}, apperr.ErrInvalidCredentials
	}
	if user.StatusID == model.StatusDeleted {
		metrics.LoginAttempts.WithLabelValues("disabled").Inc()
		return model.User{}, apperr.ErrAccountDisabled
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return user, nil
}

// CreateAccessToken issues an access token for user bound to session
func (s *Service) CreateAccessToken(user model.User, sessionID uuid.UUID) (string, error) {
	return s.tokens.Issue(user.ID, sessionID, KindAccess, s.cfg.AccessTokenTTL)
}

// Register creates a PENDING user and opens a REGISTER session for it
func (s *Service) Register(ctx context.Context, in RegisterInput, fp model.SessionDevice) (model.User, Ticket, error) {
	digest, err := HashPassword(in.Password)
	if err != nil {
		return model.User{}, Ticket{}, err
	}
	user := model.User{
		Phone:        in.Phone,
		Email:        in.Email,
		Login:        strings.TrimSpace(in.Login),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: digest,
		StatusID:     model.StatusPending,
		RoleID:       model.RoleUser,
	}
	fp = s.locate(ctx, fp)

	var ticket Ticket
	var code string
	err = s.store.WithTx(ctx, func(r repo.Repos) error {
		if err := r.Users.Create(ctx, &user); err != nil {
			return err
		}
		var err error
		ticket, code, err = s.openSession(ctx, r, user.ID, model.SessionRegister, fp)
		return err
	})
	if err != nil {
		return model.User{}, Ticket{}, fmt.Errorf("register: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("phone", logging.MaskPhone(user.Phone)))
	if err := s.deliver(ctx, user.Phone, code); err != nil {
		return user, ticket, err
	}
	return user, ticket, nil
}

// Login authenticates and opens an AUTH session. A user still PENDING gets
// a REGISTER session so the account can be confirmed.
func (s *Service) Login(ctx context.Context, phone, password string, fp model.SessionDevice) (Ticket, error) {
	user, err := s.Authenticate(ctx, phone, password)
	if err != nil {
		return Ticket{}, err
	}
	purpose := model.SessionAuth
	if user.StatusID == model.StatusPending {
		purpose = model.SessionRegister
	}
	return s.StartSession(ctx, user, purpose, fp)
}

// StartSession records the device, expires earlier pending sessions of the
// same purpose, creates a PENDING session with a fresh code and sends it.
func (s *Service) StartSession(ctx context.Context, user model.User, purpose model.SessionType, fp model.SessionDevice) (Ticket, error) {
	if !purpose.Valid() {
		return Ticket{}, fmt.Errorf("unknown session type %q", purpose)
	}
	fp = s.locate(ctx, fp)

	var ticket Ticket
	var code string
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		ticket, code, err = s.openSession(ctx, r, user.ID, purpose, fp)
		return err
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("start session: %w", err)
	}

	if err := s.deliver(ctx, user.Phone, code); err != nil {
		return ticket, err
	}
	return ticket, nil
}

// openSession must run inside a transaction
func (s *Service) openSession(ctx context.Context, r repo.Repos, userID uuid.UUID, purpose model.SessionType, fp model.SessionDevice) (Ticket, string, error) {
	if err := r.Sessions.Lock(ctx, userID); err != nil {
		return Ticket{}, "", err
	}

	now := s.now()
	if s.cfg.CodeRequestsPerWindow > 0 {
		count, err := r.Sessions.CountSince(ctx, userID, now.Add(-s.cfg.CodeRequestWindow))
		if err != nil {
			return Ticket{}, "", err
		}
		if count >= s.cfg.CodeRequestsPerWindow {
			return Ticket{}, "", apperr.ErrRateLimited
		}
	}

	if _, err := r.Sessions.ExpirePending(ctx, userID, purpose); err != nil {
		return Ticket{}, "", err
	}

	device := fp
	device.ID = uuid.Nil
	if err := r.Devices.Create(ctx, &device); err != nil {
		return Ticket{}, "", err
	}

	code := devCode
	if !s.cfg.DevMode {
		var err error
		if code, err = generateCode(); err != nil {
			return Ticket{}, "", err
		}
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		return Ticket{}, "", fmt.Errorf("generate session id: %w", err)
	}
	session := model.UserSession{
		ID:        sessionID,
		UserID:    userID,
		DeviceID:  device.ID,
		CodeHash:  hashCode(sessionID, code, s.cfg.CodeSalt),
		Type:      purpose,
		StatusID:  model.StatusPending,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}
	if err := r.Sessions.Create(ctx, &session); err != nil {
		return Ticket{}, "", err
	}
	metrics.SessionsStarted.WithLabelValues(string(purpose)).Inc()

	ticket := Ticket{SessionID: session.ID, Type: purpose, ExpiresAt: session.ExpiresAt}
	if s.cfg.DevMode {
		ticket.Code = code
	}
	return ticket, code, nil
}

// VerifySession confirms a code. A match moves the session PENDING → ACTIVE
// and, for REGISTER sessions, activates the user. A passed deadline or an
// exhausted attempt budget moves it PENDING → EXPIRED.
func (s *Service) VerifySession(ctx context.Context, sessionID uuid.UUID, code string) (TokenPair, error) {
	var (
		verdict   error
		session   model.UserSession
		activated bool
	)
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		session, err = r.Sessions.GetForUpdate(ctx, sessionID)
		if errors.Is(err, apperr.ErrNotFound) {
			verdict = apperr.ErrInvalidCode
			return nil
		}
		if err != nil {
			return err
		}
		if session.StatusID != model.StatusPending {
			verdict = apperr.ErrInvalidCode
			return nil
		}

		now := s.now()
		if session.Expired(now) || session.AttemptCount >= s.cfg.CodeMaxAttempts {
			metrics.SessionVerifications.WithLabelValues("expired").Inc()
			verdict = apperr.ErrInvalidCode
			return r.Sessions.SetStatus(ctx, session.ID, model.StatusExpired, nil)
		}

		attempts, err := r.Sessions.RecordAttempt(ctx, session.ID)
		if err != nil {
			return err
		}
		if !codeMatches(session.ID, code, s.cfg.CodeSalt, session.CodeHash) {
			verdict = apperr.ErrInvalidCode
			if attempts >= s.cfg.CodeMaxAttempts {
				metrics.SessionVerifications.WithLabelValues("exhausted").Inc()
				return r.Sessions.SetStatus(ctx, session.ID, model.StatusExpired, nil)
			}
			metrics.SessionVerifications.WithLabelValues("invalid").Inc()
			return nil
		}

		if err := r.Sessions.SetStatus(ctx, session.ID, model.StatusActive, &now); err != nil {
			return err
		}
		if session.Type == model.SessionRegister {
			if activated, err = r.Users.Activate(ctx, session.UserID); err != nil {
				return err
			}
		}
		metrics.SessionVerifications.WithLabelValues("verified").Inc()
		return nil
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("verify session: %w", err)
	}
	if verdict != nil {
		return TokenPair{}, verdict
	}

	if activated {
		s.logger.Info("user activated", zap.String("user_id", session.UserID.String()))
		s.invalidator.User(session.UserID)
	}
	return s.issuePair(session.UserID, session.ID)
}

// Refresh trades a refresh token for a new pair. The session must still be
// ACTIVE and the user not DELETED.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	sub, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if sub.Kind != KindRefresh {
		return TokenPair{}, apperr.ErrUnauthenticated
	}

	repos := s.store.Repos()
	session, err := repos.Sessions.Get(ctx, sub.SessionID)
	if errors.Is(err, apperr.ErrNotFound) {
		return TokenPair{}, apperr.ErrUnauthenticated
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != sub.UserID || session.StatusID != model.StatusActive {
		return TokenPair{}, apperr.ErrUnauthenticated
	}

	user, err := repos.Users.GetByID(ctx, sub.UserID, sub.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return TokenPair{}, apperr.ErrUnauthenticated
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if user.StatusID == model.StatusDeleted {
		return TokenPair{}, apperr.ErrAccountDisabled
	}

	return s.issuePair(user.ID, session.ID)
}

// Logout revokes the caller's session so its refresh token stops working
func (s *Service) Logout(ctx context.Context, id Identity) error {
	err := s.store.Repos().Sessions.SetStatus(ctx, id.SessionID, model.StatusRevoked, nil)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.invalidator.Session(id.User.ID, id.SessionID)
	return nil
}

func (s *Service) issuePair(userID, sessionID uuid.UUID) (TokenPair, error) {
	access, err := s.tokens.Issue(userID, sessionID, KindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.Issue(userID, sessionID, KindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

// locate fills country and city. Lookup failures leave them empty.
func (s *Service) locate(ctx context.Context, fp model.SessionDevice) model.SessionDevice {
	if s.locator == nil || fp.IP == "" {
		return fp
	}
	lctx, cancel := context.WithTimeout(ctx, geoTimeout)
	defer cancel()

	loc, err := s.locator.Locate(lctx, fp.IP)
	if err != nil {
		if !errors.Is(err, geo.ErrPrivateAddress) {
			s.logger.Debug("geolocation failed", zap.String("ip", fp.IP), zap.Error(err))
		}
		return fp
	}
	fp.Country = loc.Country
	fp.City = loc.City
	return fp
}

func (s *Service) deliver(ctx context.Context, phone, code string) error {
	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		metrics.CodeDeliveryFailures.Inc()
		return fmt.Errorf("%w: %v", apperr.ErrDeliveryFailed, err)
	}
	return nil
}
