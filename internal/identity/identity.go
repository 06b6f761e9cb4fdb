// Package identity manages accounts and sessions: registration, password login,
// token resolution and profile maintenance.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ewastePickup/internal/apperr"
	"ewastePickup/internal/auth"
	"ewastePickup/internal/logging"
	"ewastePickup/internal/policy"
	"ewastePickup/models"
	"ewastePickup/repository"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// maxUsernameAttempts bounds the _N suffix search for a free username.
const maxUsernameAttempts = 1000

// Registration is the sign-up form.
type Registration struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// ProfilePatch carries the profile fields a user may change. Nil fields are untouched.
type ProfilePatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Principal models.Principal `json:"user"`
}

type Service struct {
	users  repository.UserRepositoryI
	tokens *auth.Tokens
	cost   int
	now    func() time.Time
	log    logrus.FieldLogger
}

type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost. Out-of-range values are ignored.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(users repository.UserRepositoryI, tokens *auth.Tokens, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email %q is not a valid address", email)
	}
	return strings.ToLower(email), nil
}

// usernameFor derives a free username from the local part of email,
// appending _1, _2, ... on collision.
func (s *Service) usernameFor(ctx context.Context, email string) (string, error) {
	base, _, _ := strings.Cut(email, "@")
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		taken, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return "", apperr.Conflict("no free username for %s", email)
}

func (s *Service) register(ctx context.Context, reg Registration, role models.Role) (*models.User, error) {
	email, err := normalizeEmail(reg.Email)
	if err != nil {
		return nil, err
	}
	if len(reg.Password) < MinPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", MinPasswordLength)
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("email %s is already registered", email)
	}
	username, err := s.usernameFor(ctx, email)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Phone:        strings.TrimSpace(reg.Phone),
		Address:      strings.TrimSpace(reg.Address),
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.Conflict("email %s is already registered", email)
	}
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username, "role": u.Role}).Info("user registered")
	return u, nil
}

// Register creates a requester account.
func (s *Service) Register(ctx context.Context, reg Registration) (*models.User, error) {
	return s.register(ctx, reg, models.RoleRequester)
}

// RegisterCollector creates a collector account. Admin only.
func (s *Service) RegisterCollector(ctx context.Context, reg Registration, actor models.Principal) (*models.User, error) {
	if !policy.CanManageCollectors(actor) {
		return nil, apperr.Authorization("only admins can register collectors")
	}
	return s.register(ctx, reg, models.RoleCollector)
}

// Login checks a password against the account named by identifier, which is
// either an email address or a username, and issues a session token.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	var (
		u   *models.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.users.GetByEmail(ctx, identifier)
	} else {
		u, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Authentication("invalid credentials")
	}
	p := u.Principal()
	token, exp, err := s.tokens.Issue(p, s.now())
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("login")
	return &Session{Token: token, ExpiresAt: exp, Principal: p}, nil
}

// ResolvePrincipal validates token and reloads its user, so a deleted account
// or a changed role takes effect immediately.
func (s *Service) ResolvePrincipal(ctx context.Context, token string) (*models.Principal, error) {
	claimed, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.Authentication("invalid token: %v", err)
	}
	u, err := s.users.GetByID(ctx, claimed.ID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.Authentication("account no longer exists")
	}
	p := u.Principal()
	return &p, nil
}

// Me returns the actor's own account.
func (s *Service) Me(ctx context.Context, actor models.Principal) (*models.User, error) {
	u, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user %d not found", actor.ID)
	}
	return u, nil
}

// UpdateProfile applies patch to the actor's own account.
func (s *Service) UpdateProfile(ctx context.Context, actor models.Principal, patch ProfilePatch) (*models.User, error) {
	u, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		u.Email = email
	}
	for _, f := range []struct {
		dst *string
		src *string
	}{
		{&u.FirstName, patch.FirstName},
		{&u.LastName, patch.LastName},
		{&u.Phone, patch.Phone},
		{&u.Address, patch.Address},
	} {
		if f.src != nil {
			*f.dst = strings.TrimSpace(*f.src)
		}
	}
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("email %s is already registered", u.Email)
		}
		return nil, err
	}
	return u, nil
}

// ListCollectors returns every collector account ordered by username. Admin only.
func (s *Service) ListCollectors(ctx context.Context, actor models.Principal) ([]models.User, error) {
	if !policy.CanManageCollectors(actor) {
		return nil, apperr.Authorization("only admins can list collectors")
	}
	out, err := s.users.ListByRole(ctx, models.RoleCollector)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.User{}
	}
	return out, nil
}

// EnsureAdmin creates an admin account for email unless one is registered already.
// An empty email is a no-op.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Role != models.RoleAdmin {
			return nil, fmt.Errorf("bootstrap admin %s exists with role %s", normalized, existing.Role)
		}
		return existing, nil
	}
	u, err := s.register(ctx, Registration{Email: normalized, Password: password}, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.log.WithField("email", normalized).Warn("bootstrap admin created")
	return u, nil
}
