package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"linkforge-backend/shared/database/models"
	"linkforge-backend/shared/database/models/auth"
)

// TargetUser is a resolved identity. Exactly one of the records is set.
type TargetUser struct {
	Account   *models.Account
	Publisher *models.Publisher
	Internal  *models.InternalUser
}

// ID returns the identity's primary key
func (t *TargetUser) ID() uuid.UUID {
	switch {
	case t.Account != nil:
		return t.Account.ID
	case t.Publisher != nil:
		return t.Publisher.ID
	case t.Internal != nil:
		return t.Internal.ID
	}
	return uuid.Nil
}

// UserType returns the session user type of the identity
func (t *TargetUser) UserType() string {
	switch {
	case t.Account != nil:
		return auth.UserTypeAccount
	case t.Publisher != nil:
		return auth.UserTypePublisher
	case t.Internal != nil:
		return auth.UserTypeInternal
	}
	return ""
}

// Snapshot builds the session identity an admin assumes while impersonating
func (t *TargetUser) Snapshot() auth.SessionUser {
	switch {
	case t.Account != nil:
		id := t.Account.ID.String()
		return auth.SessionUser{
			UserID:      id,
			Email:       t.Account.Email,
			Name:        t.Account.ContactName,
			UserType:    auth.UserTypeAccount,
			Role:        auth.RoleUser,
			AccountID:   &id,
			CompanyName: t.Account.CompanyName,
			Status:      t.Account.Status,
		}
	case t.Publisher != nil:
		id := t.Publisher.ID.String()
		return auth.SessionUser{
			UserID:      id,
			Email:       t.Publisher.Email,
			Name:        t.Publisher.ContactName,
			UserType:    auth.UserTypePublisher,
			Role:        auth.RolePublisher,
			PublisherID: &id,
			CompanyName: t.Publisher.CompanyName,
			Status:      t.Publisher.Status,
		}
	case t.Internal != nil:
		return auth.SessionUser{
			UserID:   t.Internal.ID.String(),
			Email:    t.Internal.Email,
			Name:     t.Internal.Name,
			UserType: auth.UserTypeInternal,
			Role:     t.Internal.Role,
			Status:   t.Internal.Status,
		}
	}
	return auth.SessionUser{}
}

// IdentityResolver looks up a user that may be impersonated.
// A nil result with a nil error means no eligible identity exists.
type IdentityResolver interface {
	ResolveTarget(ctx context.Context, userID string) (*TargetUser, error)
}

// TableIdentityResolver resolves targets from the accounts and publishers tables
type TableIdentityResolver struct {
	db *gorm.DB
}

// NewTableIdentityResolver creates a resolver backed by db
func NewTableIdentityResolver(db *gorm.DB) *TableIdentityResolver {
	return &TableIdentityResolver{db: db}
}

// ResolveTarget returns an active account, or failing that an active or
// pending publisher, with the given id
func (r *TableIdentityResolver) ResolveTarget(ctx context.Context, userID string) (*TargetUser, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, nil
	}

	var account models.Account
	err = r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.AccountStatusActive).
		First(&account).Error
	if err == nil {
		return &TargetUser{Account: &account}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var publisher models.Publisher
	err = r.db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, []string{models.PublisherStatusActive, models.PublisherStatusPending}).
		First(&publisher).Error
	if err == nil {
		return &TargetUser{Publisher: &publisher}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return nil, nil
}
