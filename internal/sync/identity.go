package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/salonsync/internal/models"
	"github.com/xelth-com/salonsync/internal/store"
)

// CustomerFinder is the lookup surface the identity resolver needs
type CustomerFinder interface {
	FindCustomerByExternalID(ctx context.Context, externalID string) (*models.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
}

// Match is the outcome of identity resolution. Customer is nil when the
// payload should create a new record; IsNewMatch is set when the record was
// found by email and is about to be linked to the external id.
type Match struct {
	Customer   *models.Customer
	IsNewMatch bool
}

// MatchedID returns the internal id of the match, or nil
func (m Match) MatchedID() *uint {
	if m.Customer == nil {
		return nil
	}
	id := m.Customer.ID
	return &id
}

// IdentityResolver maps platform customers onto internal records
type IdentityResolver struct {
	finder CustomerFinder
}

// NewIdentityResolver creates a resolver over finder
func NewIdentityResolver(finder CustomerFinder) *IdentityResolver {
	return &IdentityResolver{finder: finder}
}

// ResolveCustomer tries the external id first, then the normalized email.
// A record already bound to a different external id is never taken over.
func (r *IdentityResolver) ResolveCustomer(ctx context.Context, c NormalizedCustomer) (Match, error) {
	if c.ExternalID != "" {
		existing, err := r.finder.FindCustomerByExternalID(ctx, c.ExternalID)
		switch {
		case err == nil:
			return Match{Customer: existing}, nil
		case !errors.Is(err, store.ErrNotFound):
			return Match{}, fmt.Errorf("lookup customer by external id %s: %w", c.ExternalID, err)
		}
	}

	if c.Email != nil {
		existing, err := r.finder.FindCustomerByEmail(ctx, *c.Email)
		switch {
		case err == nil:
			if existing.ExternalID != nil && *existing.ExternalID != c.ExternalID {
				return Match{}, nil
			}
			return Match{Customer: existing, IsNewMatch: existing.ExternalID == nil}, nil
		case !errors.Is(err, store.ErrNotFound):
			return Match{}, fmt.Errorf("lookup customer by email: %w", err)
		}
	}

	return Match{}, nil
}
