// Package cards derives the member-facing card status from paid billing
// periods.
//
// The card never stores its own state: status and validity are recomputed
// from the fee history on demand. A versioned snapshot with a content
// fingerprint lets callers detect real changes; recomputing an unchanged
// card is a no-op against the fingerprint.
package cards

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"membership-billing-service/internal/models"
	"membership-billing-service/internal/store"
	"membership-billing-service/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
)

const (
	snapshotTTL   = 5 * time.Minute
	snapshotSweep = 10 * time.Minute
)

// cardState is the change-detection record kept per member. It never
// expires: losing it would reset the version counter and misreport an
// unchanged recomputation as a change.
type cardState struct {
	Version     int64
	Fingerprint string
}

func snapshotKey(memberID string) string { return "snapshot:" + memberID }
func stateKey(memberID string) string    { return "state:" + memberID }

// Snapshot is the derived card state at one point in time. Version bumps
// only when Fingerprint changes.
type Snapshot struct {
	MemberID    string            `json:"member_id"`
	Status      models.CardStatus `json:"status"`
	ValidUntil  *time.Time        `json:"valid_until,omitempty"`
	Badges      []string          `json:"badges"`
	Version     int64             `json:"version"`
	Fingerprint string            `json:"fingerprint"`
}

// Deriver computes card status and validity from the fee history.
type Deriver struct {
	members store.MemberRepository
	fees    store.FeeRepository
	cache   *gocache.Cache
	log     logger.Logger

	// Clock supplies "now" for status derivation; overridable in tests.
	Clock func() time.Time
}

// NewDeriver creates a card deriver with a short-lived snapshot cache.
func NewDeriver(members store.MemberRepository, fees store.FeeRepository) *Deriver {
	return &Deriver{
		members: members,
		fees:    fees,
		cache:   gocache.New(snapshotTTL, snapshotSweep),
		log:     logger.Global().WithComponent("card_deriver"),
		Clock:   time.Now,
	}
}

// ComputeStatus derives the card status: ACTUEEL when a paid period
// covers now, VERLOPEN when the latest period has ended unpaid, and
// NIET_ACTUEEL otherwise. A member without fees is NIET_ACTUEEL.
func (d *Deriver) ComputeStatus(ctx context.Context, memberID string) (models.CardStatus, error) {
	fees, err := d.fees.FindAllByMember(ctx, memberID)
	if err != nil {
		return "", err
	}
	return d.statusFromFees(fees, d.Clock()), nil
}

// ValidUntil returns the period end of the most-recently-ending paid
// period, or nil when no period was ever paid.
func (d *Deriver) ValidUntil(ctx context.Context, memberID string) (*time.Time, error) {
	fees, err := d.fees.FindAllByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return latestPaidEnd(fees), nil
}

// Refresh recomputes the member's snapshot and reports whether anything
// actually changed. The version counter bumps only on a fingerprint
// change and survives snapshot cache expiry; an unchanged recomputation
// keeps the current version.
func (d *Deriver) Refresh(ctx context.Context, memberID string) (*Snapshot, bool, error) {
	member, err := d.members.FindByID(ctx, memberID)
	if err != nil {
		return nil, false, err
	}
	fees, err := d.fees.FindAllByMember(ctx, memberID)
	if err != nil {
		return nil, false, err
	}

	now := d.Clock()
	snapshot := &Snapshot{
		MemberID:   memberID,
		Status:     d.statusFromFees(fees, now),
		ValidUntil: latestPaidEnd(fees),
		Badges:     deriveBadges(member),
	}
	snapshot.Fingerprint = fingerprint(member, snapshot)

	changed := true
	if cached, ok := d.cache.Get(stateKey(memberID)); ok {
		previous := cached.(cardState)
		if previous.Fingerprint == snapshot.Fingerprint {
			snapshot.Version = previous.Version
			changed = false
			if resident, ok := d.cache.Get(snapshotKey(memberID)); ok {
				return resident.(*Snapshot), false, nil
			}
		} else {
			snapshot.Version = previous.Version + 1
		}
	} else {
		snapshot.Version = 1
	}

	d.cache.Set(stateKey(memberID),
		cardState{Version: snapshot.Version, Fingerprint: snapshot.Fingerprint}, gocache.NoExpiration)
	d.cache.Set(snapshotKey(memberID), snapshot, gocache.DefaultExpiration)
	if changed {
		d.log.WithFields(logger.Fields{
			"member_id": memberID,
			"status":    snapshot.Status.String(),
			"version":   snapshot.Version,
		}).Debug("Card snapshot refreshed")
	}
	return snapshot, changed, nil
}

func (d *Deriver) statusFromFees(fees []*models.Fee, now time.Time) models.CardStatus {
	if len(fees) == 0 {
		return models.CardNietActueel
	}

	var latest *models.Fee
	for _, fee := range fees {
		if fee.IsPaid() && fee.CoversInstant(now) {
			return models.CardActueel
		}
		if latest == nil || fee.PeriodEnd.After(latest.PeriodEnd) {
			latest = fee
		}
	}

	if !now.Before(latest.PeriodEnd) && !latest.IsPaid() {
		return models.CardVerlopen
	}
	return models.CardNietActueel
}

func latestPaidEnd(fees []*models.Fee) *time.Time {
	var latest *time.Time
	for _, fee := range fees {
		if !fee.IsPaid() {
			continue
		}
		if latest == nil || fee.PeriodEnd.After(*latest) {
			end := fee.PeriodEnd
			latest = &end
		}
	}
	return latest
}

// deriveBadges returns the sorted badge list printed on the card.
func deriveBadges(member *models.Member) []string {
	var badges []string
	if member.Category != "" {
		badges = append(badges, member.Category)
	}
	if member.Financial != nil && member.Financial.MandateOnFile {
		badges = append(badges, "domiciliering")
	}
	sort.Strings(badges)
	return badges
}

// fingerprint hashes the member identity fields and the derived card
// state. Field order is fixed so equal state always hashes equally.
func fingerprint(member *models.Member, s *Snapshot) string {
	var b strings.Builder
	b.WriteString(member.ID)
	b.WriteByte('|')
	b.WriteString(member.Number)
	b.WriteByte('|')
	b.WriteString(member.FullName())
	b.WriteByte('|')
	b.WriteString(s.Status.String())
	b.WriteByte('|')
	if s.ValidUntil != nil {
		b.WriteString(s.ValidUntil.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(s.Badges, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
