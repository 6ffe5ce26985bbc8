// Package identity owns user credentials. Registering a user persists the
// credential and announces the new account as a user.registered event, which
// the customer service turns into a customer profile.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/ids"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/eventbus/metadata"
	"github.com/microshop/choreo/internal/events"
	"github.com/microshop/choreo/internal/rules"
)

// ErrEmailTaken reports a registration attempt for an email that already has
// an account.
var ErrEmailTaken = errors.New("choreo: email is already registered")

// User is a stored credential with its assigned customer id.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CustomerID   string
	CreatedAt    time.Time
}

// Repository stores users.
type Repository interface {
	Add(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, bool, error)
}

// NewCustomerID derives the customer-facing identifier assigned at
// registration: "CUST" followed by eight upper-case hex characters.
func NewCustomerID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CUST" + strings.ToUpper(raw[:8])
}

// Service implements the registration command.
type Service struct {
	repo     Repository
	producer eventbus.Producer
	logger   logging.ServiceLogger

	now func() time.Time
}

// NewService wires the identity service.
func NewService(repo Repository, producer eventbus.Producer, logger logging.ServiceLogger) *Service {
	return &Service{
		repo:     repo,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterUser validates the credentials, stores the user with a fresh
// customer id and announces the account. The user is committed before the
// event is published; a publish failure is logged but does not undo the
// registration.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (*User, error) {
	if err := rules.Validate(ctx,
		rules.New("identity.email.format", "email address is malformed", func(context.Context) (bool, error) {
			return strings.Contains(email, "@"), nil
		}),
		rules.New("identity.password.length", "password must be at least 8 characters", func(context.Context) (bool, error) {
			return len(password) >= 8, nil
		}),
	); err != nil {
		return nil, err
	}

	if _, exists, err := s.repo.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           ids.CreateULID(),
		Email:        email,
		PasswordHash: string(hash),
		CustomerID:   NewCustomerID(),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Add(ctx, user); err != nil {
		return nil, err
	}

	event := events.UserRegistered{
		Email:        user.Email,
		CustomerID:   user.CustomerID,
		RegisteredAt: user.CreatedAt,
	}
	if err := s.producer.PublishJSON(ctx, events.KeyUserRegistered, event, metadata.Metadata{}); err != nil {
		s.logger.Error("Failed to publish user.registered", err, logging.LogFields{
			"customer_id": user.CustomerID,
		})
	}

	return user, nil
}
