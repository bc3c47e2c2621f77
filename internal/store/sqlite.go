package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"membership-billing-service/internal/models"
	"membership-billing-service/internal/period"
	"membership-billing-service/pkg/errors"
	"membership-billing-service/pkg/logger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	default_amounts TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS members (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL REFERENCES tenants(id),
	number         TEXT NOT NULL DEFAULT '',
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	iban           TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	joined_at      TEXT NOT NULL,
	billing_anchor TEXT,
	term_unit      TEXT,
	term_count     INTEGER,
	fee_amount     TEXT,
	fee_method     TEXT,
	mandate        INTEGER
);

CREATE INDEX IF NOT EXISTS idx_members_tenant ON members(tenant_id, active);

CREATE TABLE IF NOT EXISTS fees (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	member_id    TEXT NOT NULL REFERENCES members(id),
	period_start TEXT NOT NULL,
	period_end   TEXT NOT NULL,
	amount       TEXT NOT NULL,
	method       TEXT NOT NULL,
	status       TEXT NOT NULL,
	paid_at      TEXT,
	created_at   TEXT NOT NULL,
	UNIQUE (tenant_id, member_id, period_start, period_end)
);

CREATE INDEX IF NOT EXISTS idx_fees_member ON fees(member_id, period_start);
CREATE INDEX IF NOT EXISTS idx_fees_tenant_status ON fees(tenant_id, status);
`

// SQLiteStore implements the repository interfaces on a single SQLite
// database. Safe for concurrent readers; writers serialize on the
// database-level natural-key constraint, which is what preserves the fee
// idempotence invariant under concurrent generation.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (and if necessary creates) the database at path and applies
// the schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.RepositoryError(errors.CodeStorage, "database", path, err)
	}

	// modernc sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY on concurrent batch runs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.RepositoryError(errors.CodeStorage, "schema", path, err)
	}

	return &SQLiteStore{
		db:  db,
		log: logger.Global().WithComponent("store"),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// instant formats a timestamp for storage. All instants are stored as UTC
// RFC 3339 strings so that natural-key comparisons are byte-stable.
func instant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseInstant(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func nullableInstant(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return instant(*t)
}

// FindByID implements MemberRepository.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*models.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, number, first_name, last_name, email, iban, category,
		       active, joined_at, billing_anchor, term_unit, term_count, fee_amount,
		       fee_method, mandate
		FROM members WHERE id = ?`, id)

	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, errors.RepositoryError(errors.CodeNotFound, "member", id, nil)
	}
	if err != nil {
		return nil, errors.RepositoryError(errors.CodeStorage, "member", id, err)
	}
	return member, nil
}

// FindActiveByTenant implements MemberRepository.
func (s *SQLiteStore) FindActiveByTenant(ctx context.Context, tenantID string) ([]*models.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, number, first_name, last_name, email, iban, category,
		       active, joined_at, billing_anchor, term_unit, term_count, fee_amount,
		       fee_method, mandate
		FROM members WHERE tenant_id = ? AND active = 1 ORDER BY number`, tenantID)
	if err != nil {
		return nil, errors.RepositoryError(errors.CodeStorage, "members", tenantID, err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, errors.RepositoryError(errors.CodeStorage, "members", tenantID, err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// UpdateBillingAnchor implements MemberRepository.
func (s *SQLiteStore) UpdateBillingAnchor(ctx context.Context, memberID string, anchor time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE members SET billing_anchor = ? WHERE id = ?`, instant(anchor), memberID)
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "member", memberID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "member", memberID, err)
	}
	if affected == 0 {
		return errors.RepositoryError(errors.CodeNotFound, "member", memberID, nil)
	}
	return nil
}

// SaveMember upserts a member record. Not part of the repository contract
// the engine consumes; used by the CLI seed path and tests.
func (s *SQLiteStore) SaveMember(ctx context.Context, m *models.Member) error {
	if err := m.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "member", m.ID, err)
	}

	var termUnit, feeAmount, feeMethod interface{}
	var termCount, mandate interface{}
	if m.Financial != nil {
		termUnit = string(m.Financial.Term.Unit)
		termCount = m.Financial.Term.Count
		feeAmount = m.Financial.Amount.String()
		feeMethod = string(m.Financial.Method)
		mandate = boolToInt(m.Financial.MandateOnFile)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, tenant_id, number, first_name, last_name, email, iban,
		                     category, active, joined_at, billing_anchor, term_unit,
		                     term_count, fee_amount, fee_method, mandate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number, first_name = excluded.first_name,
			last_name = excluded.last_name, email = excluded.email,
			iban = excluded.iban, category = excluded.category,
			active = excluded.active, joined_at = excluded.joined_at,
			billing_anchor = excluded.billing_anchor, term_unit = excluded.term_unit,
			term_count = excluded.term_count, fee_amount = excluded.fee_amount,
			fee_method = excluded.fee_method, mandate = excluded.mandate`,
		m.ID, m.TenantID, m.Number, m.FirstName, m.LastName, m.Email, m.IBAN,
		m.Category, boolToInt(m.Active), instant(m.JoinedAt),
		nullableInstant(m.BillingAnchor), termUnit, termCount, feeAmount, feeMethod, mandate)
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "member", m.ID, err)
	}
	return nil
}

// FindByNaturalKey implements FeeRepository.
func (s *SQLiteStore) FindByNaturalKey(ctx context.Context, memberID string, periodStart, periodEnd time.Time) (*models.Fee, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, member_id, period_start, period_end, amount, method,
		       status, paid_at, created_at
		FROM fees WHERE member_id = ? AND period_start = ? AND period_end = ?`,
		memberID, instant(periodStart), instant(periodEnd))

	fee, err := scanFee(row)
	if err == sql.ErrNoRows {
		return nil, errors.RepositoryError(errors.CodeNotFound, "fee", memberID, nil)
	}
	if err != nil {
		return nil, errors.RepositoryError(errors.CodeStorage, "fee", memberID, err)
	}
	return fee, nil
}

// Insert implements FeeRepository. A natural-key collision surfaces as a
// duplicate-key error; the generator treats that as a successful no-op.
func (s *SQLiteStore) Insert(ctx context.Context, fee *models.Fee) error {
	if err := fee.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "fee", fee.ID, err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO fees (id, tenant_id, member_id, period_start, period_end, amount,
		                  method, status, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, member_id, period_start, period_end) DO NOTHING`,
		fee.ID, fee.TenantID, fee.MemberID, instant(fee.PeriodStart), instant(fee.PeriodEnd),
		fee.Amount.String(), string(fee.Method), string(fee.Status),
		nullableInstant(fee.PaidAt), instant(fee.CreatedAt))
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "fee", fee.NaturalKey(), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "fee", fee.NaturalKey(), err)
	}
	if affected == 0 {
		return errors.RepositoryError(errors.CodeDuplicateKey, "fee", fee.NaturalKey(), nil)
	}
	return nil
}

// UpdateStatus implements FeeRepository. PAID is terminal: an attempt to
// move a paid fee to another status is ignored.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, feeID string, status models.FeeStatus, paidAt *time.Time) error {
	if !status.IsValid() {
		return errors.ValidationError(errors.CodeOutOfRange, "status", status, nil)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE fees SET status = ?, paid_at = ?
		WHERE id = ? AND NOT (status = ? AND ? != ?)`,
		string(status), nullableInstant(paidAt),
		feeID, string(models.FeeStatusPaid), string(status), string(models.FeeStatusPaid))
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "fee", feeID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "fee", feeID, err)
	}
	if affected == 0 {
		// Either the fee does not exist or it is paid and the transition
		// was refused. Distinguish for the caller.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM fees WHERE id = ?`, feeID).Scan(&exists); err != nil {
			return errors.RepositoryError(errors.CodeStorage, "fee", feeID, err)
		}
		if exists == 0 {
			return errors.RepositoryError(errors.CodeNotFound, "fee", feeID, nil)
		}
	}
	return nil
}

// FindAllByMember implements FeeRepository.
func (s *SQLiteStore) FindAllByMember(ctx context.Context, memberID string) ([]*models.Fee, error) {
	return s.queryFees(ctx, `
		SELECT id, tenant_id, member_id, period_start, period_end, amount, method,
		       status, paid_at, created_at
		FROM fees WHERE member_id = ? ORDER BY period_start`, memberID)
}

// FindAllByTenant implements FeeRepository.
func (s *SQLiteStore) FindAllByTenant(ctx context.Context, tenantID string) ([]*models.Fee, error) {
	return s.queryFees(ctx, `
		SELECT id, tenant_id, member_id, period_start, period_end, amount, method,
		       status, paid_at, created_at
		FROM fees WHERE tenant_id = ? ORDER BY period_start`, tenantID)
}

// FindOpenByTenant implements FeeRepository.
func (s *SQLiteStore) FindOpenByTenant(ctx context.Context, tenantID string) ([]*models.Fee, error) {
	return s.queryFees(ctx, `
		SELECT id, tenant_id, member_id, period_start, period_end, amount, method,
		       status, paid_at, created_at
		FROM fees WHERE tenant_id = ? AND status != ? ORDER BY period_start`,
		tenantID, string(models.FeeStatusPaid))
}

func (s *SQLiteStore) queryFees(ctx context.Context, query string, args ...interface{}) ([]*models.Fee, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.RepositoryError(errors.CodeStorage, "fees", fmt.Sprint(args...), err)
	}
	defer rows.Close()

	var fees []*models.Fee
	for rows.Next() {
		fee, err := scanFee(rows)
		if err != nil {
			return nil, errors.RepositoryError(errors.CodeStorage, "fees", fmt.Sprint(args...), err)
		}
		fees = append(fees, fee)
	}
	return fees, rows.Err()
}

// FindTenantByID implements TenantRepository via the Tenants view.
func (s *SQLiteStore) FindTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	var name, amountsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, default_amounts FROM tenants WHERE id = ?`, id).Scan(&name, &amountsJSON)
	if err == sql.ErrNoRows {
		return nil, errors.RepositoryError(errors.CodeNotFound, "tenant", id, nil)
	}
	if err != nil {
		return nil, errors.RepositoryError(errors.CodeStorage, "tenant", id, err)
	}

	amounts := make(map[string]decimal.Decimal)
	if strings.TrimSpace(amountsJSON) != "" {
		raw := make(map[string]string)
		if err := json.Unmarshal([]byte(amountsJSON), &raw); err != nil {
			return nil, errors.RepositoryError(errors.CodeStorage, "tenant", id, err)
		}
		for category, value := range raw {
			amount, err := decimal.NewFromString(value)
			if err != nil {
				return nil, errors.RepositoryError(errors.CodeStorage, "tenant", id, err)
			}
			amounts[category] = amount
		}
	}

	return &models.Tenant{ID: id, Name: name, DefaultAmounts: amounts}, nil
}

// SaveTenant upserts a tenant record; used by the CLI seed path and tests.
func (s *SQLiteStore) SaveTenant(ctx context.Context, t *models.Tenant) error {
	raw := make(map[string]string, len(t.DefaultAmounts))
	for category, amount := range t.DefaultAmounts {
		raw[category] = amount.String()
	}
	amountsJSON, err := json.Marshal(raw)
	if err != nil {
		return errors.InternalError("encoding tenant defaults", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, default_amounts) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			default_amounts = excluded.default_amounts`,
		t.ID, t.Name, string(amountsJSON))
	if err != nil {
		return errors.RepositoryError(errors.CodeStorage, "tenant", t.ID, err)
	}
	return nil
}

// Tenants adapts the store to the TenantRepository interface.
func (s *SQLiteStore) Tenants() TenantRepository {
	return tenantView{s}
}

type tenantView struct {
	store *SQLiteStore
}

func (v tenantView) FindByID(ctx context.Context, id string) (*models.Tenant, error) {
	return v.store.FindTenantByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var m models.Member
	var active int
	var joinedAt string
	var anchor, termUnit, feeAmount, feeMethod sql.NullString
	var termCount, mandate sql.NullInt64

	err := row.Scan(&m.ID, &m.TenantID, &m.Number, &m.FirstName, &m.LastName, &m.Email,
		&m.IBAN, &m.Category, &active, &joinedAt, &anchor, &termUnit, &termCount,
		&feeAmount, &feeMethod, &mandate)
	if err != nil {
		return nil, err
	}

	m.Active = active != 0
	if m.JoinedAt, err = parseInstant(joinedAt); err != nil {
		return nil, err
	}
	if anchor.Valid {
		t, err := parseInstant(anchor.String)
		if err != nil {
			return nil, err
		}
		m.BillingAnchor = &t
	}

	if termUnit.Valid && feeAmount.Valid {
		amount, err := decimal.NewFromString(feeAmount.String)
		if err != nil {
			return nil, err
		}
		m.Financial = &models.FinancialSettings{
			Term:          period.Term{Unit: period.TermUnit(termUnit.String), Count: int(termCount.Int64)},
			Amount:        amount,
			Method:        models.PaymentMethod(feeMethod.String),
			MandateOnFile: mandate.Int64 != 0,
		}
	}

	return &m, nil
}

func scanFee(row rowScanner) (*models.Fee, error) {
	var f models.Fee
	var periodStart, periodEnd, amount, createdAt string
	var paidAt sql.NullString

	err := row.Scan(&f.ID, &f.TenantID, &f.MemberID, &periodStart, &periodEnd,
		&amount, &f.Method, &f.Status, &paidAt, &createdAt)
	if err != nil {
		return nil, err
	}

	if f.PeriodStart, err = parseInstant(periodStart); err != nil {
		return nil, err
	}
	if f.PeriodEnd, err = parseInstant(periodEnd); err != nil {
		return nil, err
	}
	if f.CreatedAt, err = parseInstant(createdAt); err != nil {
		return nil, err
	}
	if f.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t, err := parseInstant(paidAt.String)
		if err != nil {
			return nil, err
		}
		f.PaidAt = &t
	}

	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
