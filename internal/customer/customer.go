// Package customer provisions customer profiles from identity events. It
// never receives commands directly; profiles come into existence as the
// downstream effect of a user.registered event.
package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/ids"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/events"
)

// ErrDuplicate is returned by stores when a profile with the same customer
// id already exists. The provisioning handler treats it as a successful
// no-op so redeliveries cannot create duplicates.
var ErrDuplicate = errors.New("choreo: customer profile already exists")

// Profile statuses.
const (
	StatusActive = "Active"
)

// PlaceholderPhone fills the phone field of provisioned profiles until the
// customer supplies a real number; registration does not collect one.
const PlaceholderPhone = "+900000000000"

// Profile is the customer-facing identity provisioned from a registration.
type Profile struct {
	ID         string
	CustomerID string
	Name       string
	Email      string
	Phone      string
	Status     string
	CreatedAt  time.Time
}

// Repository stores profiles. Add must reject a second profile for the same
// customer id with ErrDuplicate.
type Repository interface {
	Add(ctx context.Context, profile *Profile) error
	GetByCustomerID(ctx context.Context, customerID string) (*Profile, bool, error)
}

// Service implements profile provisioning.
type Service struct {
	repo   Repository
	logger logging.ServiceLogger

	now func() time.Time
}

// NewService wires the customer service.
func NewService(repo Repository, logger logging.ServiceLogger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// HandleUserRegistered provisions a profile for a freshly registered user.
// The profile name is derived from the email local part. Processing the same
// registration twice is a no-op.
func (s *Service) HandleUserRegistered(ctx context.Context, evt events.UserRegistered) error {
	if evt.CustomerID == "" || evt.Email == "" {
		return errs.NewUnprocessableEvent(evt.Email, errors.New("user.registered event is missing customerId or email"))
	}

	if _, exists, err := s.repo.GetByCustomerID(ctx, evt.CustomerID); err != nil {
		return err
	} else if exists {
		s.logger.Info("Profile already provisioned", logging.LogFields{
			"customer_id": evt.CustomerID,
		})
		return nil
	}

	profile := &Profile{
		ID:         ids.CreateULID(),
		CustomerID: evt.CustomerID,
		Name:       nameFromEmail(evt.Email),
		Email:      evt.Email,
		Phone:      PlaceholderPhone,
		Status:     StatusActive,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.Add(ctx, profile); err != nil {
		if errors.Is(err, ErrDuplicate) {
			s.logger.Info("Profile already provisioned", logging.LogFields{
				"customer_id": evt.CustomerID,
			})
			return nil
		}
		return err
	}

	s.logger.Info("Provisioned customer profile", logging.LogFields{
		"customer_id": profile.CustomerID,
	})
	return nil
}

// GetProfile looks up a profile by customer id.
func (s *Service) GetProfile(ctx context.Context, customerID string) (*Profile, bool, error) {
	return s.repo.GetByCustomerID(ctx, customerID)
}

func nameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	return local
}
