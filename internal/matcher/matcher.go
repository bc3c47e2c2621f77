package matcher

import (
	"fmt"
	"strings"

	"membership-billing-service/internal/models"
	"membership-billing-service/pkg/errors"
	"membership-billing-service/pkg/logger"
)

// Context carries everything one scoring pass may consult. The matcher
// reads these collections and never mutates them.
type Context struct {
	// OpenFees are the unpaid fees of the tenant.
	OpenFees []*models.Fee
	// Members indexes the fee owners and IBANs on file.
	Members []*models.Member
	// Rules are the operator-defined overrides, any order.
	Rules []*Rule
	// RecentTransactions feed the duplicate heuristic.
	RecentTransactions []*models.NormalizedTransaction
}

// Matcher scores transactions against a Context.
type Matcher struct {
	config     *Config
	categories *CategorySet
	log        logger.Logger
}

// NewMatcher creates a matcher. A nil config uses the default policy and
// a nil category set uses the built-in expense buckets.
func NewMatcher(config *Config, categories *CategorySet) (*Matcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matcher", "", err)
	}
	if categories == nil {
		categories = DefaultCategories()
	}
	return &Matcher{
		config:     config.Clone(),
		categories: categories,
		log:        logger.Global().WithComponent("matcher"),
	}, nil
}

// SuggestMatch scores one transaction. The result is a suggestion with
// explanatory reasons, never an error: scoring ambiguity surfaces as a
// low score for human review.
func (m *Matcher) SuggestMatch(tx *models.NormalizedTransaction, mctx *Context) *models.MatchResult {
	result := &models.MatchResult{
		Transaction: tx,
		Status:      models.StatusOntvangen,
	}

	if tx.Status != models.StatusOntvangen {
		result.AddReason("already processed (status %s)", tx.Status)
		return result
	}

	score := 0

	if dup := m.findDuplicate(tx, mctx.RecentTransactions); dup != nil {
		score -= m.config.DuplicatePenalty
		result.AddReason("possible duplicate of transaction %s on %s",
			dup.ID, dup.BookingDate.Format("2006-01-02"))
	}

	if tx.IsCredit() {
		score += m.scoreFees(tx, mctx, result)
	} else if category, ok := m.categories.Classify(tx.Description + " " + tx.Counterparty); ok {
		score += m.config.CategoryWeight
		result.CategoryID = category.ID
		result.AddReason("expense categorized as %s", category.Name)
	}

	if rule := FirstMatchingRule(mctx.Rules, tx); rule != nil {
		score += m.config.RuleBonus
		result.AddReason("rule %q matched", rule.Name)
		if rule.CategoryID != "" {
			result.CategoryID = rule.CategoryID
		}
		if rule.VendorID != "" {
			result.VendorID = rule.VendorID
		}
		if rule.FeeID != "" {
			result.MatchedFeeID = rule.FeeID
		}
		if rule.MemberID != "" {
			result.MatchedMemberID = rule.MemberID
		}
	}

	result.Score = clampScore(score)
	result.Status = m.bucketStatus(result.Score)

	if len(result.Reasons) == 0 {
		result.AddReason("no matching fee, category or rule")
	}
	return result
}

// SuggestBatchMatches scores each transaction independently, preserving
// input order.
func (m *Matcher) SuggestBatchMatches(txs []*models.NormalizedTransaction, mctx *Context) []*models.MatchResult {
	results := make([]*models.MatchResult, len(txs))
	for i, tx := range txs {
		results[i] = m.SuggestMatch(tx, mctx)
	}
	m.log.WithFields(logger.Fields{
		"transactions": len(txs),
		"open_fees":    len(mctx.OpenFees),
	}).Debug("Batch matching complete")
	return results
}

// findDuplicate looks for a recent transaction with the same amount
// within the day window, booked within tolerance or carrying the same
// reference.
func (m *Matcher) findDuplicate(tx *models.NormalizedTransaction, recent []*models.NormalizedTransaction) *models.NormalizedTransaction {
	for _, other := range recent {
		if other.ID == tx.ID {
			continue
		}
		if !other.Amount.Equal(tx.Amount) || other.Side != tx.Side {
			continue
		}
		if !models.CompareDatesWithTolerance(other.BookingDate, tx.BookingDate, m.config.DuplicateDayWindow) {
			continue
		}
		sameRef := tx.Reference != "" && tx.Reference == other.Reference
		sameDate := other.BookingDate.Equal(tx.BookingDate)
		if sameDate || sameRef {
			return other
		}
	}
	return nil
}

// scoreFees scores the credit transaction against every open fee and
// keeps the best candidate.
func (m *Matcher) scoreFees(tx *models.NormalizedTransaction, mctx *Context, result *models.MatchResult) int {
	membersByID := make(map[string]*models.Member, len(mctx.Members))
	for _, member := range mctx.Members {
		membersByID[member.ID] = member
	}

	bestScore := 0
	var bestFee *models.Fee
	var bestReasons []string

	for _, fee := range mctx.OpenFees {
		member := membersByID[fee.MemberID]
		score, reasons := m.scoreFee(tx, fee, member)
		if score > bestScore {
			bestScore = score
			bestFee = fee
			bestReasons = reasons
		}
	}

	if bestFee == nil {
		return 0
	}
	result.MatchedFeeID = bestFee.ID
	result.MatchedMemberID = bestFee.MemberID
	result.Reasons = append(result.Reasons, bestReasons...)
	return bestScore
}

func (m *Matcher) scoreFee(tx *models.NormalizedTransaction, fee *models.Fee, member *models.Member) (int, []string) {
	score := 0
	var reasons []string

	switch {
	case models.CompareAmountsWithTolerance(tx.Amount, fee.Amount, m.config.AmountFullTolerance):
		score += m.config.AmountFullWeight
		reasons = append(reasons, fmt.Sprintf("amount %s matches fee amount %s", tx.Amount, fee.Amount))
	case models.CompareAmountsWithTolerance(tx.Amount, fee.Amount, m.config.AmountPartialTolerance):
		score += m.config.AmountPartialWeight
		reasons = append(reasons, fmt.Sprintf("amount %s is close to fee amount %s", tx.Amount, fee.Amount))
	}

	if member != nil {
		text := strings.ToLower(tx.Description + " " + tx.Reference)
		if member.Number != "" && strings.Contains(text, strings.ToLower(member.Number)) {
			score += m.config.MemberNumberWeight
			reasons = append(reasons, fmt.Sprintf("description contains member number %s", member.Number))
		}
		if name := strings.ToLower(member.FullName()); name != "" &&
			strings.Contains(strings.ToLower(tx.Description+" "+tx.Counterparty), name) {
			score += m.config.MemberNameWeight
			reasons = append(reasons, fmt.Sprintf("description contains member name %s", member.FullName()))
		}
		if member.IBAN != "" && tx.IBAN != "" && strings.EqualFold(member.IBAN, tx.IBAN) {
			score += m.config.IBANWeight
			reasons = append(reasons, "paid from the IBAN on file")
		}
	}

	year := fmt.Sprintf("%d", fee.PeriodStart.Year())
	if strings.Contains(tx.Description, year) {
		score += m.config.PeriodYearWeight
		reasons = append(reasons, fmt.Sprintf("description mentions period year %s", year))
	}

	return score, reasons
}

func (m *Matcher) bucketStatus(score int) models.MatchStatus {
	switch {
	case score >= m.config.ProposedThreshold:
		return models.StatusVoorgesteld
	case score >= m.config.PartialThreshold:
		return models.StatusGedeeltelijkGematcht
	default:
		return models.StatusOntvangen
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
