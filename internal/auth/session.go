package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clinic-booking/internal/config"
	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
	"clinic-booking/internal/store"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many sign-in attempts")
)

const minPasswordLen = 6

// Sessions manages the signed-in user and token keys on top of the
// registered-users repository.
type Sessions struct {
	st      *store.Store
	secret  string
	limiter *RateLimiter
	log     *logrus.Logger
}

func NewSessions(st *store.Store, secret string, limiter *RateLimiter) *Sessions {
	if limiter == nil {
		limiter = NewRateLimiter(0.2, 5)
	}
	return &Sessions{st: st, secret: secret, limiter: limiter, log: st.Storage().Logger()}
}

type RegisterRequest struct {
	Name      string
	Email     string
	Password  string
	Role      model.Role
	Image     string
	Specialty string
}

// Register stores a new user with a hashed password. It does not sign in.
func (s *Sessions) Register(ctx context.Context, req RegisterRequest) (model.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return model.User{}, fmt.Errorf("%w: name, email and password required", ErrInvalidArgument)
	}
	if len(req.Password) < minPasswordLen {
		return model.User{}, fmt.Errorf("%w: password too short", ErrInvalidArgument)
	}
	if req.Role == "" {
		req.Role = model.RolePatient
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return model.User{}, err
	}
	u := model.RegisteredUser{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		Role:      req.Role,
		Image:     req.Image,
		Password:  hash,
		Specialty: req.Specialty,
	}
	if err := s.st.Users().Register(ctx, u); err != nil {
		return model.User{}, err
	}

	s.log.WithFields(logrus.Fields{
		"Function": "Register",
		"UserID":   u.ID,
		"Role":     u.Role,
	}).Info("user registered")
	return u.Public(), nil
}

// SignIn checks credentials and persists the public profile and token.
func (s *Sessions) SignIn(ctx context.Context, email, password string) (model.User, string, error) {
	if email == "" || password == "" {
		return model.User{}, "", fmt.Errorf("%w: email and password required", ErrInvalidArgument)
	}
	if !s.st.Users().Ready() {
		return model.User{}, "", store.ErrNotReady
	}
	if !s.limiter.Allow(email) {
		return model.User{}, "", ErrRateLimited
	}

	u, err := s.st.Users().ByEmail(email)
	if errors.Is(err, store.ErrUserNotFound) {
		return model.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, "", err
	}
	ok, err := CheckPassword(u.Password, password)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"Function": "SignIn",
			"UserID":   u.ID,
			"Error":    err,
		}).Error("stored password hash cannot be checked")
		return model.User{}, "", ErrInvalidCredentials
	}
	if !ok {
		return model.User{}, "", ErrInvalidCredentials
	}

	tok, err := MakeToken(u.ID, u.Role, s.secret)
	if err != nil {
		return model.User{}, "", err
	}
	pub := u.Public()
	if err := s.st.Storage().SetItem(ctx, storage.KeyUser, pub, 0); err != nil {
		return model.User{}, "", err
	}
	if err := s.st.Storage().SetItem(ctx, storage.KeyToken, tok, 0); err != nil {
		return model.User{}, "", err
	}
	return pub, tok, nil
}

func (s *Sessions) SignOut(ctx context.Context) error {
	if err := s.st.Storage().RemoveItem(ctx, storage.KeyUser); err != nil {
		return err
	}
	return s.st.Storage().RemoveItem(ctx, storage.KeyToken)
}

// Current returns the persisted session when its token is still valid.
func (s *Sessions) Current(ctx context.Context) (model.User, bool) {
	svc := s.st.Storage()
	u, ok := storage.Lookup[model.User](ctx, svc, storage.KeyUser)
	if !ok {
		return model.User{}, false
	}
	tok, ok := storage.Lookup[string](ctx, svc, storage.KeyToken)
	if !ok {
		return model.User{}, false
	}
	claims, err := ParseToken(tok, s.secret)
	if err != nil || claims.UserID() != u.ID {
		s.log.WithFields(logrus.Fields{
			"Function": "Current",
			"UserID":   u.ID,
		}).Info("stored session is no longer valid")
		return model.User{}, false
	}
	return u, true
}

// SeedUsers registers the built-in accounts from the seed file, hashing
// their passwords. Accounts whose email is taken are skipped.
func SeedUsers(ctx context.Context, users *store.Users, seed []config.SeedUser) (int, error) {
	list := make([]model.RegisteredUser, 0, len(seed))
	for _, su := range seed {
		hash, err := HashPassword(su.Password)
		if err != nil {
			return 0, err
		}
		role := model.Role(su.Role)
		if role == "" {
			role = model.RolePatient
		}
		list = append(list, model.RegisteredUser{
			ID:        su.ID,
			Name:      su.Name,
			Email:     su.Email,
			Role:      role,
			Image:     su.Image,
			Password:  hash,
			Specialty: su.Specialty,
		})
	}
	return users.Seed(ctx, list)
}
