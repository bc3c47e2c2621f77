// Package store defines the repository contracts the billing engine
// consumes and provides a SQLite-backed implementation. The fee natural
// key (tenant, member, period start, period end) is enforced here with a
// uniqueness constraint so that idempotent generation does not depend on
// caller restraint.
package store

import (
	"context"
	"time"

	"membership-billing-service/internal/models"
)

// MemberRepository provides access to member records and their financial
// settings.
type MemberRepository interface {
	// FindByID returns the member or a not-found error.
	FindByID(ctx context.Context, id string) (*models.Member, error)
	// FindActiveByTenant returns all active members of a tenant.
	FindActiveByTenant(ctx context.Context, tenantID string) ([]*models.Member, error)
	// UpdateBillingAnchor upserts the member's billing anchor.
	UpdateBillingAnchor(ctx context.Context, memberID string, anchor time.Time) error
}

// FeeRepository provides access to membership fee records.
type FeeRepository interface {
	// FindByNaturalKey returns the fee identified by member and period
	// boundaries, or a not-found error when no such fee exists.
	FindByNaturalKey(ctx context.Context, memberID string, periodStart, periodEnd time.Time) (*models.Fee, error)
	// Insert stores a new fee. Inserting a fee whose natural key already
	// exists returns a duplicate-key error the caller treats as a no-op.
	Insert(ctx context.Context, fee *models.Fee) error
	// UpdateStatus transitions a fee's status. Transitions out of PAID are
	// refused silently: PAID is terminal.
	UpdateStatus(ctx context.Context, feeID string, status models.FeeStatus, paidAt *time.Time) error
	// FindAllByMember returns all fees of a member, period start ascending.
	FindAllByMember(ctx context.Context, memberID string) ([]*models.Fee, error)
	// FindAllByTenant returns all fees of a tenant, period start ascending.
	FindAllByTenant(ctx context.Context, tenantID string) ([]*models.Fee, error)
	// FindOpenByTenant returns fees of a tenant that are not PAID.
	FindOpenByTenant(ctx context.Context, tenantID string) ([]*models.Fee, error)
}

// TenantRepository supplies tenant records, including the per-category
// default fee amounts used for a member's first fee.
type TenantRepository interface {
	FindByID(ctx context.Context, id string) (*models.Tenant, error)
}
