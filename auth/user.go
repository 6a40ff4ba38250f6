/*
Package auth provides accounts, password login and bearer tokens.

PURPOSE:
  Turns an HTTP request into an inventory.Actor. Users log in with email
  and password, receive a signed token, and present it on every call. The
  middleware verifies the token and places the actor in the request
  context, where handlers pass it explicitly to the Reconciler.

ROLES:
  admin:   records receipts and consumptions, maintains catalog and suppliers
  manager: reads dashboards and reports

SEE ALSO:
  - token.go: Token minting and parsing
  - middleware.go: Request authentication and role checks
  - menu.go: Navigation entries per role
*/
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dapurkue/stockledger/inventory"
)

var (
	// ErrEmailTaken is returned when registering an email that exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is returned for a missing or invalid token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when the actor's role may not perform an action.
	ErrForbidden = errors.New("forbidden")
)

type User struct {
	ID           string
	Email        string
	Name         string
	Role         inventory.Role
	PasswordHash string
	CreatedAt    time.Time
}

// Actor is the identity the Reconciler sees for this user.
func (u User) Actor() inventory.Actor {
	return inventory.Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

// UserStore persists accounts. Lookups of missing users return an error
// matching inventory.ErrNotFound.
type UserStore interface {
	PutUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email    string         `validate:"required,email"`
	Name     string         `validate:"required,max=200"`
	Password string         `validate:"min=8,max=72"`
	Role     inventory.Role `validate:"required,oneof=admin manager"`
}

// Service wraps authentication business rules.
type Service struct {
	users  UserStore
	tokens TokenConfig
	clock  func() time.Time
	cost   int
}

// NewService constructs a new Service.
func NewService(users UserStore, tokens TokenConfig) *Service {
	return &Service{users: users, tokens: tokens, clock: time.Now, cost: bcrypt.DefaultCost}
}

// WithHashCost lowers the bcrypt cost, for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := inventory.Validate(in); err != nil {
		return User{}, err
	}

	if _, err := s.users.GetUserByEmail(ctx, in.Email); err == nil {
		return User{}, ErrEmailTaken
	} else if !inventory.IsNotFound(err) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: string(hash),
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.users.PutUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// EnsureUser registers the account unless the email already exists.
func (s *Service) EnsureUser(ctx context.Context, in RegisterInput) (User, bool, error) {
	existing, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err == nil {
		return existing, false, nil
	}
	if !inventory.IsNotFound(err) {
		return User{}, false, err
	}
	u, err := s.Register(ctx, in)
	return u, err == nil, err
}

// Login validates email/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if inventory.IsNotFound(err) {
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", User{}, ErrInvalidCredentials
	}
	token, err := MintToken(s.tokens, s.clock(), u)
	if err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

func (s *Service) User(ctx context.Context, id string) (User, error) {
	return s.users.GetUser(ctx, id)
}
