// Package billing implements the billing-anchor resolution and the
// idempotent membership fee generator.
//
// The anchor is the reference instant all of a member's rolling periods
// are computed from. It is set once at first-fee creation with priority
// explicit anchor > join date > now, and only changes afterwards through
// an explicit admin override of Set.
package billing

import (
	"context"
	"time"

	"membership-billing-service/internal/store"
	"membership-billing-service/pkg/errors"
	"membership-billing-service/pkg/logger"
)

// AnchorStore resolves and persists billing anchors per member.
type AnchorStore struct {
	members store.MemberRepository
	log     logger.Logger

	// Clock supplies "now" for anchor fallback; overridable in tests.
	Clock func() time.Time
}

// NewAnchorStore creates an anchor store over the given member repository.
func NewAnchorStore(members store.MemberRepository) *AnchorStore {
	return &AnchorStore{
		members: members,
		log:     logger.Global().WithComponent("anchor_store"),
		Clock:   time.Now,
	}
}

// Get returns the member's effective billing anchor with priority
// explicit anchor > join date > now. Returns a not-found error when the
// member does not exist.
func (as *AnchorStore) Get(ctx context.Context, memberID string) (time.Time, error) {
	member, err := as.members.FindByID(ctx, memberID)
	if err != nil {
		return time.Time{}, err
	}

	if member.BillingAnchor != nil {
		return *member.BillingAnchor, nil
	}
	if !member.JoinedAt.IsZero() {
		return member.JoinedAt, nil
	}
	return as.Clock(), nil
}

// Set upserts the member's billing anchor. Setting the same value twice
// has no additional effect.
func (as *AnchorStore) Set(ctx context.Context, memberID string, anchor time.Time) error {
	member, err := as.members.FindByID(ctx, memberID)
	if err != nil {
		return err
	}

	if member.BillingAnchor != nil && member.BillingAnchor.Equal(anchor) {
		return nil
	}

	if err := as.members.UpdateBillingAnchor(ctx, memberID, anchor); err != nil {
		return err
	}

	as.log.WithFields(logger.Fields{
		"member_id": memberID,
		"anchor":    anchor.Format(time.RFC3339),
	}).Info("Billing anchor set")
	return nil
}

// Initialize records the anchor exactly once at member creation. When a
// join date is supplied it becomes the anchor, otherwise "now" does. An
// already-anchored member is left untouched.
func (as *AnchorStore) Initialize(ctx context.Context, memberID string, joinDate *time.Time) error {
	member, err := as.members.FindByID(ctx, memberID)
	if err != nil {
		return err
	}
	if member.BillingAnchor != nil {
		return nil
	}

	anchor := as.Clock()
	if joinDate != nil && !joinDate.IsZero() {
		anchor = *joinDate
	}
	return as.Set(ctx, memberID, anchor)
}

// ensurePersisted stamps the resolved anchor onto the member the first
// time a fee is generated, so later runs resolve the same reference point.
func (as *AnchorStore) ensurePersisted(ctx context.Context, memberID string, anchor time.Time) error {
	member, err := as.members.FindByID(ctx, memberID)
	if err != nil {
		return err
	}
	if member.BillingAnchor != nil {
		return nil
	}
	if err := as.members.UpdateBillingAnchor(ctx, memberID, anchor); err != nil {
		// A lost race with a concurrent generator is acceptable here: the
		// other writer persisted the same resolved anchor.
		if errors.IsNotFound(err) {
			return err
		}
		as.log.WithError(err).WithField("member_id", memberID).
			Warn("Could not persist billing anchor")
	}
	return nil
}
