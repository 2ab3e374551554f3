package user

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/validate"
)

// AddressInput is the shipping address form.
type AddressInput struct {
	FullName      string   `json:"fullName" validate:"required,min=3"`
	StreetAddress string   `json:"streetAddress" validate:"required,min=3"`
	City          string   `json:"city" validate:"required,min=3"`
	PostalCode    string   `json:"postalCode" validate:"required,len=4,numeric"`
	Country       string   `json:"country" validate:"required,min=3"`
	Lat           *float64 `json:"lat,omitempty"`
	Lng           *float64 `json:"lng,omitempty"`
}

// PaymentMethodInput is the payment method form.
type PaymentMethodInput struct {
	Type string `json:"type" validate:"required,oneof=PayPal Stripe CashOnDelivery"`
}

// ProfileInput is the profile form.
type ProfileInput struct {
	Name string `json:"name" validate:"required,min=3"`
}

// AdminUpdateInput is the admin user edit form.
type AdminUpdateInput struct {
	Name string `json:"name" validate:"required,min=3"`
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// Service implements profile management.
type Service struct {
	users Repository
}

// NewService creates a user Service.
func NewService(users Repository) *Service {
	return &Service{users: users}
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context, id auth.Identity) (*User, error) {
	if !id.IsAuthenticated() {
		return nil, auth.ErrUnauthenticated
	}
	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return u, nil
}

// UpdateProfile renames the signed-in user.
func (s *Service) UpdateProfile(ctx context.Context, id auth.Identity, in ProfileInput) error {
	if !id.IsAuthenticated() {
		return auth.ErrUnauthenticated
	}
	if err := validate.Struct(in); err != nil {
		return err
	}
	if err := s.users.UpdateName(ctx, id.UserID, in.Name); err != nil {
		return errors.Wrap(err, "update name")
	}
	return nil
}

// SaveAddress validates and stores the signed-in user's shipping address.
func (s *Service) SaveAddress(ctx context.Context, id auth.Identity, in AddressInput) (*ShippingAddress, error) {
	if !id.IsAuthenticated() {
		return nil, auth.ErrUnauthenticated
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	addr := ShippingAddress{
		FullName:      in.FullName,
		StreetAddress: in.StreetAddress,
		City:          in.City,
		PostalCode:    in.PostalCode,
		Country:       in.Country,
	}
	if in.Lat != nil && in.Lng != nil {
		lat, lng := decimal.NewFromFloat(*in.Lat), decimal.NewFromFloat(*in.Lng)
		addr.Lat, addr.Lng = &lat, &lng
	}
	if err := s.users.UpdateAddress(ctx, id.UserID, addr); err != nil {
		return nil, errors.Wrap(err, "update address")
	}
	return &addr, nil
}

// SavePaymentMethod stores the signed-in user's preferred payment method.
func (s *Service) SavePaymentMethod(ctx context.Context, id auth.Identity, in PaymentMethodInput) (PaymentMethod, error) {
	if !id.IsAuthenticated() {
		return "", auth.ErrUnauthenticated
	}
	if err := validate.Struct(in); err != nil {
		return "", err
	}
	method := PaymentMethod(in.Type)
	if err := s.users.UpdatePaymentMethod(ctx, id.UserID, method); err != nil {
		return "", errors.Wrap(err, "update payment method")
	}
	return method, nil
}

// List returns a page of users matching f and the total number of pages.
func (s *Service) List(ctx context.Context, f ListFilter) ([]User, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = PageSize
	}
	users, total, err := s.users.List(ctx, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list users")
	}
	return users, (total + f.Limit - 1) / f.Limit, nil
}

// Update changes a user's name and role.
func (s *Service) Update(ctx context.Context, userID string, in AdminUpdateInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if err := s.users.UpdateNameRole(ctx, userID, in.Name, auth.Role(in.Role)); err != nil {
		return errors.Wrap(err, "update user")
	}
	return nil
}

// Delete removes a user. Administrators cannot delete themselves.
func (s *Service) Delete(ctx context.Context, id auth.Identity, userID string) error {
	if id.UserID == userID {
		return auth.ErrForbidden
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "delete user")
	}
	return nil
}
