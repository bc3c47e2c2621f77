package billing

import (
	"context"
	"sync"
	"time"

	"membership-billing-service/internal/models"
	"membership-billing-service/pkg/errors"
)

// In-memory repository fakes mirroring the store contracts, including the
// natural-key uniqueness behavior of the SQLite implementation.

type fakeMemberRepo struct {
	mu      sync.Mutex
	members map[string]*models.Member
}

func newFakeMemberRepo(members ...*models.Member) *fakeMemberRepo {
	repo := &fakeMemberRepo{members: make(map[string]*models.Member)}
	for _, m := range members {
		repo.members[m.ID] = m
	}
	return repo
}

func (r *fakeMemberRepo) FindByID(_ context.Context, id string) (*models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[id]
	if !ok {
		return nil, errors.RepositoryError(errors.CodeNotFound, "member", id, nil)
	}
	clone := *member
	return &clone, nil
}

func (r *fakeMemberRepo) FindActiveByTenant(_ context.Context, tenantID string) ([]*models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Member
	for _, m := range r.members {
		if m.TenantID == tenantID && m.Active {
			clone := *m
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeMemberRepo) UpdateBillingAnchor(_ context.Context, memberID string, anchor time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[memberID]
	if !ok {
		return errors.RepositoryError(errors.CodeNotFound, "member", memberID, nil)
	}
	t := anchor
	member.BillingAnchor = &t
	return nil
}

type fakeFeeRepo struct {
	mu   sync.Mutex
	fees map[string]*models.Fee // keyed by natural key

	missOnce bool // next FindByNaturalKey reports not-found regardless
}

func newFakeFeeRepo() *fakeFeeRepo {
	return &fakeFeeRepo{fees: make(map[string]*models.Fee)}
}

func (r *fakeFeeRepo) FindByNaturalKey(_ context.Context, memberID string, start, end time.Time) (*models.Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missOnce {
		r.missOnce = false
		return nil, errors.RepositoryError(errors.CodeNotFound, "fee", memberID, nil)
	}
	for _, fee := range r.fees {
		if fee.MemberID == memberID && fee.PeriodStart.Equal(start) && fee.PeriodEnd.Equal(end) {
			clone := *fee
			return &clone, nil
		}
	}
	return nil, errors.RepositoryError(errors.CodeNotFound, "fee", memberID, nil)
}

func (r *fakeFeeRepo) Insert(_ context.Context, fee *models.Fee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fee.NaturalKey()
	if _, exists := r.fees[key]; exists {
		return errors.RepositoryError(errors.CodeDuplicateKey, "fee", key, nil)
	}
	clone := *fee
	r.fees[key] = &clone
	return nil
}

func (r *fakeFeeRepo) UpdateStatus(_ context.Context, feeID string, status models.FeeStatus, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fee := range r.fees {
		if fee.ID != feeID {
			continue
		}
		if fee.Status == models.FeeStatusPaid && status != models.FeeStatusPaid {
			return nil // PAID is terminal
		}
		fee.Status = status
		fee.PaidAt = paidAt
		return nil
	}
	return errors.RepositoryError(errors.CodeNotFound, "fee", feeID, nil)
}

func (r *fakeFeeRepo) FindAllByMember(_ context.Context, memberID string) ([]*models.Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Fee
	for _, fee := range r.fees {
		if fee.MemberID == memberID {
			clone := *fee
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeFeeRepo) FindAllByTenant(_ context.Context, tenantID string) ([]*models.Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Fee
	for _, fee := range r.fees {
		if fee.TenantID == tenantID {
			clone := *fee
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeFeeRepo) FindOpenByTenant(_ context.Context, tenantID string) ([]*models.Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Fee
	for _, fee := range r.fees {
		if fee.TenantID == tenantID && fee.Status != models.FeeStatusPaid {
			clone := *fee
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeFeeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fees)
}

type fakeTenantRepo struct {
	tenants map[string]*models.Tenant
}

func newFakeTenantRepo(tenants ...*models.Tenant) *fakeTenantRepo {
	repo := &fakeTenantRepo{tenants: make(map[string]*models.Tenant)}
	for _, t := range tenants {
		repo.tenants[t.ID] = t
	}
	return repo
}

func (r *fakeTenantRepo) FindByID(_ context.Context, id string) (*models.Tenant, error) {
	tenant, ok := r.tenants[id]
	if !ok {
		return nil, errors.RepositoryError(errors.CodeNotFound, "tenant", id, nil)
	}
	return tenant, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
