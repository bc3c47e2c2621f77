package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"membership-billing-service/internal/models"
	"membership-billing-service/internal/period"
	"membership-billing-service/internal/store"
	"membership-billing-service/pkg/errors"
	"membership-billing-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy selects how fees are generated for a member.
type Strategy string

const (
	// StrategyCurrent ensures exactly one fee exists for the period
	// containing asOf.
	StrategyCurrent Strategy = "current"
	// StrategyCatchup walks every period from the anchor up to asOf and
	// backfills the gaps.
	StrategyCatchup Strategy = "catchup"
)

// ParseStrategy parses a strategy name from the CLI or API surface.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current", "":
		return StrategyCurrent, nil
	case "catchup", "catch-up", "backfill":
		return StrategyCatchup, nil
	default:
		return "", fmt.Errorf("unknown generation strategy %q: must be current or catchup", s)
	}
}

// Generator creates membership fees. Generation is idempotent: running
// either strategy any number of times with the same inputs produces the
// same final set of fee rows, enforced by the natural-key existence check
// and the repository's uniqueness constraint, never by caller restraint.
type Generator struct {
	members store.MemberRepository
	fees    store.FeeRepository
	tenants store.TenantRepository
	anchors *AnchorStore
	calc    *period.Calculator
	log     logger.Logger

	// Clock supplies "now" when no asOf is given; overridable in tests.
	Clock func() time.Time
}

// NewGenerator creates a fee generator over the given repositories.
func NewGenerator(members store.MemberRepository, fees store.FeeRepository, tenants store.TenantRepository, calc *period.Calculator) *Generator {
	if calc == nil {
		calc = period.NewCalculator(nil)
	}
	return &Generator{
		members: members,
		fees:    fees,
		tenants: tenants,
		anchors: NewAnchorStore(members),
		calc:    calc,
		log:     logger.Global().WithComponent("fee_generator"),
		Clock:   time.Now,
	}
}

// Anchors exposes the generator's anchor store.
func (g *Generator) Anchors() *AnchorStore {
	return g.anchors
}

// BatchResult aggregates the outcome of a tenant-wide generation run.
type BatchResult struct {
	TenantID  string                 `json:"tenant_id"`
	Strategy  Strategy               `json:"strategy"`
	Generated []*models.Fee          `json:"generated"`
	Skipped   int                    `json:"skipped"`
	Failed    int                    `json:"failed"`
	Errors    []*errors.BillingError `json:"errors,omitempty"`
}

// Summary returns a one-line description of the batch outcome.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("generated %d fees (%d members skipped, %d failed)",
		len(r.Generated), r.Skipped, r.Failed)
}

// EnsureCurrentFee makes sure exactly one fee exists for the period
// containing asOf. Returns the existing or newly created fee, or nil when
// the member is skipped (inactive, or resolved amount not positive).
func (g *Generator) EnsureCurrentFee(ctx context.Context, memberID string, asOf time.Time) (*models.Fee, error) {
	if asOf.IsZero() {
		asOf = g.Clock()
	}

	member, err := g.members.FindByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	plan, err := g.resolvePlan(ctx, member)
	if err != nil || plan == nil {
		return nil, err
	}

	p := g.calc.RollingPeriod(plan.anchor, asOf, plan.term)
	fee, _, err := g.ensureFee(ctx, member, plan, p)
	return fee, err
}

// BackfillFees walks every period from the member's anchor up to `to`
// (defaulting to now), creating the fees that are missing. Periods ending
// at or before `from` are left alone when a lower bound is supplied.
// Already-generated periods are never duplicated.
func (g *Generator) BackfillFees(ctx context.Context, memberID string, from, to time.Time) ([]*models.Fee, error) {
	if to.IsZero() {
		to = g.Clock()
	}

	member, err := g.members.FindByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	plan, err := g.resolvePlan(ctx, member)
	if err != nil || plan == nil {
		return nil, err
	}

	var created []*models.Fee
	for _, p := range g.calc.PeriodsBetween(plan.anchor, to, plan.term) {
		if !from.IsZero() && !p.End.After(from) {
			continue
		}

		fee, inserted, err := g.ensureFee(ctx, member, plan, p)
		if err != nil {
			return created, err
		}
		if inserted {
			created = append(created, fee)
		}
	}

	g.log.WithFields(logger.Fields{
		"member_id": memberID,
		"created":   len(created),
	}).Debug("Backfill complete")
	return created, nil
}

// GenerateTenantFees runs one strategy for every active member of the
// tenant. One member's failure is logged and counted but never aborts the
// batch or rolls back fees generated for other members.
func (g *Generator) GenerateTenantFees(ctx context.Context, tenantID string, asOf time.Time, strategy Strategy) (*BatchResult, error) {
	if asOf.IsZero() {
		asOf = g.Clock()
	}

	members, err := g.members.FindActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{TenantID: tenantID, Strategy: strategy}
	for _, member := range members {
		var created []*models.Fee
		var memberErr error

		switch strategy {
		case StrategyCatchup:
			created, memberErr = g.BackfillFees(ctx, member.ID, time.Time{}, asOf)
		default:
			var fee *models.Fee
			var inserted bool
			plan, planErr := g.resolvePlan(ctx, member)
			switch {
			case planErr != nil:
				memberErr = planErr
			case plan == nil:
				// Member silently skipped.
			default:
				p := g.calc.RollingPeriod(plan.anchor, asOf, plan.term)
				fee, inserted, memberErr = g.ensureFee(ctx, member, plan, p)
				if inserted {
					created = []*models.Fee{fee}
				}
			}
		}

		if memberErr != nil {
			g.log.WithError(memberErr).WithFields(logger.Fields{
				"tenant_id": tenantID,
				"member_id": member.ID,
			}).Warn("Fee generation failed for member, skipping")
			result.Failed++
			result.Errors = append(result.Errors,
				errors.WrapIfNeeded(memberErr, errors.CategoryBilling, errors.CodeGenerationFailed,
					fmt.Sprintf("fee generation failed for member %s", member.ID)))
			continue
		}

		if len(created) == 0 {
			result.Skipped++
			continue
		}
		result.Generated = append(result.Generated, created...)
	}

	g.log.WithFields(logger.Fields{
		"tenant_id": tenantID,
		"strategy":  string(strategy),
		"generated": len(result.Generated),
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Tenant fee generation complete")
	return result, nil
}

// RolloverOverdue transitions every OPEN fee of the tenant whose period
// has ended by asOf into OVERDUE. PAID fees are never touched.
func (g *Generator) RolloverOverdue(ctx context.Context, tenantID string, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = g.Clock()
	}

	fees, err := g.fees.FindOpenByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	rolled := 0
	for _, fee := range fees {
		if fee.Status != models.FeeStatusOpen || asOf.Before(fee.PeriodEnd) {
			continue
		}
		if err := g.fees.UpdateStatus(ctx, fee.ID, models.FeeStatusOverdue, nil); err != nil {
			g.log.WithError(err).WithField("fee_id", fee.ID).Warn("Rollover failed for fee, skipping")
			continue
		}
		rolled++
	}
	return rolled, nil
}

// MarkPaid confirms payment of a fee, used by reconciliation confirmation
// and manual booking. Marking an already-paid fee again is a no-op.
func (g *Generator) MarkPaid(ctx context.Context, feeID string, paidAt time.Time) error {
	return g.fees.UpdateStatus(ctx, feeID, models.FeeStatusPaid, &paidAt)
}

// billingPlan is the resolved set of inputs for one member's generation.
type billingPlan struct {
	anchor time.Time
	term   period.Term
	amount decimal.Decimal
	method models.PaymentMethod
	stamp  time.Time
}

// resolvePlan resolves anchor, term and amount for a member. A nil plan
// with nil error means the member is silently skipped.
func (g *Generator) resolvePlan(ctx context.Context, member *models.Member) (*billingPlan, error) {
	if !member.Active {
		g.log.WithField("member_id", member.ID).Debug("Member inactive, skipping")
		return nil, nil
	}

	if member.Financial == nil {
		return nil, errors.BillingOpError(errors.CodeMissingSettings, member.ID, nil)
	}
	if err := member.Financial.Term.Validate(); err != nil {
		return nil, errors.BillingOpError(errors.CodeGenerationFailed, member.ID, err)
	}

	amount := member.Financial.Amount
	if amount.IsZero() {
		// First-fee fallback: the tenant's per-category default.
		tenant, err := g.tenants.FindByID(ctx, member.TenantID)
		if err != nil {
			return nil, err
		}
		amount = tenant.DefaultAmountFor(member.Category)
	}
	if !amount.IsPositive() {
		g.log.WithField("member_id", member.ID).Debug("No positive fee amount resolved, skipping")
		return nil, nil
	}

	anchor, err := g.anchors.Get(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	if member.BillingAnchor == nil {
		if err := g.anchors.ensurePersisted(ctx, member.ID, anchor); err != nil {
			return nil, err
		}
	}

	return &billingPlan{
		anchor: anchor,
		term:   member.Financial.Term,
		amount: amount,
		method: member.Financial.Method,
		stamp:  g.Clock(),
	}, nil
}

// ensureFee performs the existence-check-then-insert for one period and
// reports whether this call inserted the row. A concurrent insert of the
// same natural key is resolved by re-reading the winner's row: the
// duplicate is a successful no-op, not an error.
func (g *Generator) ensureFee(ctx context.Context, member *models.Member, plan *billingPlan, p period.Period) (*models.Fee, bool, error) {
	existing, err := g.fees.FindByNaturalKey(ctx, member.ID, p.Start, p.End)
	if err == nil {
		return existing, false, nil
	}
	if !errors.IsNotFound(err) {
		return nil, false, err
	}

	fee := &models.Fee{
		ID:          uuid.NewString(),
		TenantID:    member.TenantID,
		MemberID:    member.ID,
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
		Amount:      plan.amount,
		Method:      plan.method,
		Status:      models.FeeStatusOpen,
		CreatedAt:   plan.stamp,
	}

	if err := g.fees.Insert(ctx, fee); err != nil {
		if errors.IsDuplicateKey(err) {
			winner, refetchErr := g.fees.FindByNaturalKey(ctx, member.ID, p.Start, p.End)
			return winner, false, refetchErr
		}
		return nil, false, err
	}

	g.log.WithFields(logger.Fields{
		"member_id": member.ID,
		"period":    p.String(),
		"amount":    plan.amount.String(),
	}).Debug("Fee created")
	return fee, true, nil
}
