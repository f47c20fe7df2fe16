package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/membership"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OrganizationRepository is the Postgres-backed directory. Create is used
// by the seeder; everything else is the directory contract.
type OrganizationRepository interface {
	directory.Service
	Create(ctx context.Context, org *models.Organization) error
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Organization, error)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgOrganizationRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewOrganizationRepository(pool *pgxpool.Pool) OrganizationRepository {
	return &pgOrganizationRepository{pool: pool, now: time.Now}
}

const organizationColumns = `
	id, name, address, phone, tax_id, latitude, longitude, is_active, email_verified,
	deactivation_reason, deactivated_at, subscription_type, subscription_expiry,
	working_hours, created_at`

// ============================================
// Reads
// ============================================

func (r *pgOrganizationRepository) FetchOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := r.fetch(ctx, r.pool, id)
	if err != nil {
		return nil, directory.Fail(directory.OpFetch, err)
	}
	if org == nil {
		return nil, directory.NotFound(directory.OpFetch, id)
	}
	return org, nil
}

// fetch returns nil, nil when the organization does not exist.
func (r *pgOrganizationRepository) fetch(ctx context.Context, q querier, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	org, err := scanOrganization(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, q, []*models.Organization{org}); err != nil {
		return nil, err
	}
	r.derive(org)
	return org, nil
}

func (r *pgOrganizationRepository) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY created_at`
	orgs, err := r.list(ctx, query)
	if err != nil {
		return nil, directory.Fail(directory.OpList, err)
	}
	return orgs, nil
}

// ListExpiringBetween returns organizations whose subscription ends in
// [from, to), for the renewal reminder job.
func (r *pgOrganizationRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Organization, error) {
	query := `SELECT ` + organizationColumns + `
		FROM organizations
		WHERE is_active = TRUE AND subscription_expiry >= $1 AND subscription_expiry < $2
		ORDER BY subscription_expiry`
	orgs, err := r.list(ctx, query, from, to)
	if err != nil {
		return nil, directory.Fail(directory.OpList, err)
	}
	return orgs, nil
}

func (r *pgOrganizationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Organization, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := []*models.Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, r.pool, orgs); err != nil {
		return nil, err
	}
	for _, org := range orgs {
		r.derive(org)
	}
	return orgs, nil
}

// derive fills the fields that are computed rather than stored.
func (r *pgOrganizationRepository) derive(org *models.Organization) {
	org.Subscription.Status = subscription.StatusAt(org.Subscription.Expiry, r.now())
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var (
		org          models.Organization
		active       bool
		reason       *string
		deactivated  *time.Time
		workingHours []byte
	)
	err := row.Scan(
		&org.ID, &org.Name, &org.Address, &org.Phone, &org.TaxID,
		&org.Location.Latitude, &org.Location.Longitude, &active, &org.EmailVerified,
		&reason, &deactivated, &org.Subscription.Type, &org.Subscription.Expiry,
		&workingHours, &org.CreatedDate,
	)
	if err != nil {
		return nil, err
	}

	org.Status = types.OrgInactive
	if active {
		org.Status = types.OrgActive
	}
	if reason != nil && deactivated != nil {
		org.Deactivation = &models.Deactivation{Reason: *reason, Date: *deactivated}
	}
	if len(workingHours) > 0 {
		if err := json.Unmarshal(workingHours, &org.WorkingHours); err != nil {
			return nil, err
		}
	}
	org.Members = []models.Membership{}
	org.Subscription.History = []models.SubscriptionExtension{}
	return &org, nil
}

func (r *pgOrganizationRepository) loadChildren(ctx context.Context, q querier, orgs []*models.Organization) error {
	if len(orgs) == 0 {
		return nil
	}
	byID := make(map[string]*models.Organization, len(orgs))
	ids := make([]string, 0, len(orgs))
	for _, o := range orgs {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	memberQuery := `
		SELECT organization_id, id, name, email, role, email_verified, is_active, last_active,
		       phone, tax_id, citizenship_id, address, latitude, longitude
		FROM memberships
		WHERE organization_id = ANY($1)
		ORDER BY organization_id, position
	`
	rows, err := q.Query(ctx, memberQuery, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			orgID    string
			m        models.Membership
			lat, lng *float64
		)
		if err := rows.Scan(
			&orgID, &m.ID, &m.Name, &m.Email, &m.Role, &m.EmailVerified, &m.IsActive, &m.LastActive,
			&m.Phone, &m.TaxID, &m.CitizenshipID, &m.Address, &lat, &lng,
		); err != nil {
			rows.Close()
			return err
		}
		if lat != nil && lng != nil {
			m.Location = &models.Location{Latitude: *lat, Longitude: *lng}
		}
		byID[orgID].Members = append(byID[orgID].Members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	historyQuery := `
		SELECT organization_id, id, extension_date, duration, previous_end_date, new_end_date,
		       extended_by, amount::text
		FROM subscription_extensions
		WHERE organization_id = ANY($1)
		ORDER BY organization_id, extension_date
	`
	rows, err = q.Query(ctx, historyQuery, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orgID  string
			ext    models.SubscriptionExtension
			amount string
		)
		if err := rows.Scan(
			&orgID, &ext.ID, &ext.ExtensionDate, &ext.Duration, &ext.PreviousEndDate, &ext.NewEndDate,
			&ext.ExtendedBy, &amount,
		); err != nil {
			return err
		}
		if ext.Amount, err = decimal.NewFromString(amount); err != nil {
			return err
		}
		o := byID[orgID]
		o.Subscription.History = append(o.Subscription.History, ext)
	}
	return rows.Err()
}

// ============================================
// Writes
// ============================================

func (r *pgOrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if _, err := membership.New(org.Members); err != nil {
		return err
	}
	wh, err := json.Marshal(org.WorkingHours)
	if err != nil {
		return err
	}
	var reason *string
	var deactivated *time.Time
	if org.Deactivation != nil {
		reason, deactivated = &org.Deactivation.Reason, &org.Deactivation.Date
	}
	created := org.CreatedDate
	if created.IsZero() {
		created = r.now()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO organizations (
			id, name, address, phone, tax_id, latitude, longitude, is_active, email_verified,
			deactivation_reason, deactivated_at, subscription_type, subscription_expiry,
			working_hours, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if _, err := tx.Exec(ctx, query,
		org.ID, org.Name, org.Address, org.Phone, org.TaxID,
		org.Location.Latitude, org.Location.Longitude, org.IsActive(), org.EmailVerified,
		reason, deactivated, org.Subscription.Type, org.Subscription.Expiry,
		wh, created,
	); err != nil {
		return err
	}
	if err := insertMembers(ctx, tx, org.ID, org.Members); err != nil {
		return err
	}
	for _, ext := range org.Subscription.History {
		if err := insertExtension(ctx, tx, org.ID, ext); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *pgOrganizationRepository) UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	wh, err := json.Marshal(patch.WorkingHours)
	if err != nil {
		return nil, directory.Fail(directory.OpUpdate, err)
	}
	query := `
		UPDATE organizations
		SET name = $2, address = $3, phone = $4, tax_id = $5, latitude = $6, longitude = $7,
		    working_hours = $8, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		id, patch.Name, patch.Address, patch.Phone, patch.TaxID,
		patch.Location.Latitude, patch.Location.Longitude, wh,
	)
	if err != nil {
		return nil, directory.Fail(directory.OpUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, directory.NotFound(directory.OpUpdate, id)
	}
	return r.refetch(ctx, directory.OpUpdate, id)
}

// SetOrganizationActive keeps the previous deactivation record on
// activation.
func (r *pgOrganizationRepository) SetOrganizationActive(ctx context.Context, id string, active bool, d *models.Deactivation) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if active || d == nil {
		query := `UPDATE organizations SET is_active = $2, updated_at = NOW() WHERE id = $1`
		tag, err = r.pool.Exec(ctx, query, id, active)
	} else {
		query := `
			UPDATE organizations
			SET is_active = FALSE, deactivation_reason = $2, deactivated_at = $3, updated_at = NOW()
			WHERE id = $1
		`
		tag, err = r.pool.Exec(ctx, query, id, d.Reason, d.Date)
	}
	if err != nil {
		return directory.Fail(directory.OpSetActive, err)
	}
	if tag.RowsAffected() == 0 {
		return directory.NotFound(directory.OpSetActive, id)
	}
	return nil
}

// ExtendSubscription locks the organization row so concurrent extensions
// stack instead of both starting from the same expiry.
func (r *pgOrganizationRepository) ExtendSubscription(ctx context.Context, id string, req models.ExtensionRequest) (*models.Organization, *models.SubscriptionExtension, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, directory.Fail(directory.OpExtend, err)
	}
	defer tx.Rollback(ctx)

	var sub models.Subscription
	err = tx.QueryRow(ctx,
		`SELECT subscription_type, subscription_expiry FROM organizations WHERE id = $1 FOR UPDATE`, id,
	).Scan(&sub.Type, &sub.Expiry)
	if err == pgx.ErrNoRows {
		return nil, nil, directory.NotFound(directory.OpExtend, id)
	}
	if err != nil {
		return nil, nil, directory.Fail(directory.OpExtend, err)
	}

	next, ext, err := subscription.Extend(sub, req, r.now())
	if err != nil {
		return nil, nil, directory.Fail(directory.OpExtend, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE organizations SET subscription_type = $2, subscription_expiry = $3, updated_at = NOW() WHERE id = $1`,
		id, next.Type, next.Expiry,
	); err != nil {
		return nil, nil, directory.Fail(directory.OpExtend, err)
	}
	if err := insertExtension(ctx, tx, id, ext); err != nil {
		return nil, nil, directory.Fail(directory.OpExtend, err)
	}

	org, err := r.fetch(ctx, tx, id)
	if err != nil {
		return nil, nil, directory.Fail(directory.OpExtend, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, directory.Fail(directory.OpExtend, err)
	}
	return org, &ext, nil
}

// SaveMemberships merges the member list into the stored rows in one
// transaction. Stored email_verified never reverts and stored last_active is
// kept.
func (r *pgOrganizationRepository) SaveMemberships(ctx context.Context, id string, members []models.Membership) (*models.Organization, error) {
	if _, err := membership.New(members); err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT TRUE FROM organizations WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if err == pgx.ErrNoRows {
		return nil, directory.NotFound(directory.OpSaveMemberships, id)
	}
	if err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, err)
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM memberships WHERE organization_id = $1 AND NOT (id = ANY($2))`,
		id, ids,
	); err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, err)
	}
	if err := upsertMembers(ctx, tx, id, members); err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, uniqueViolation(err))
	}
	if _, err := tx.Exec(ctx, `UPDATE organizations SET updated_at = NOW() WHERE id = $1`, id); err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, err)
	}

	org, err := r.fetch(ctx, tx, id)
	if err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, directory.Fail(directory.OpSaveMemberships, err)
	}
	return org, nil
}

func (r *pgOrganizationRepository) refetch(ctx context.Context, op, id string) (*models.Organization, error) {
	org, err := r.fetch(ctx, r.pool, id)
	if err != nil {
		return nil, directory.Fail(op, err)
	}
	if org == nil {
		return nil, directory.NotFound(op, id)
	}
	return org, nil
}

func insertMembers(ctx context.Context, tx pgx.Tx, orgID string, members []models.Membership) error {
	query := `
		INSERT INTO memberships (
			id, organization_id, position, name, email, role, email_verified, is_active, last_active,
			phone, tax_id, citizenship_id, address, latitude, longitude
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	batch := &pgx.Batch{}
	for i, m := range members {
		var lat, lng *float64
		if m.Location != nil {
			lat, lng = &m.Location.Latitude, &m.Location.Longitude
		}
		batch.Queue(query,
			m.ID, orgID, i, m.Name, m.Email, m.Role, m.EmailVerified, m.IsActive, m.LastActive,
			m.Phone, m.TaxID, m.CitizenshipID, m.Address, lat, lng,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

const upsertMemberQuery = `
	INSERT INTO memberships (
		id, organization_id, position, name, email, role, email_verified, is_active, last_active,
		phone, tax_id, citizenship_id, address, latitude, longitude
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		position       = EXCLUDED.position,
		name           = EXCLUDED.name,
		email          = EXCLUDED.email,
		role           = EXCLUDED.role,
		email_verified = memberships.email_verified OR EXCLUDED.email_verified,
		is_active      = EXCLUDED.is_active,
		phone          = EXCLUDED.phone,
		tax_id         = EXCLUDED.tax_id,
		citizenship_id = EXCLUDED.citizenship_id,
		address        = EXCLUDED.address,
		latitude       = EXCLUDED.latitude,
		longitude      = EXCLUDED.longitude
	WHERE memberships.organization_id = EXCLUDED.organization_id
`

// upsertOrder queues the Owner row last so a demoted owner is written
// before the new one and the single-owner index holds after every row.
func upsertOrder(members []models.Membership) []int {
	order := make([]int, 0, len(members))
	owner := -1
	for i, m := range members {
		if m.Role == types.RoleOwner {
			owner = i
			continue
		}
		order = append(order, i)
	}
	if owner >= 0 {
		order = append(order, owner)
	}
	return order
}

func upsertMembers(ctx context.Context, tx pgx.Tx, orgID string, members []models.Membership) error {
	batch := &pgx.Batch{}
	for _, i := range upsertOrder(members) {
		m := members[i]
		var lat, lng *float64
		if m.Location != nil {
			lat, lng = &m.Location.Latitude, &m.Location.Longitude
		}
		batch.Queue(upsertMemberQuery,
			m.ID, orgID, i, m.Name, m.Email, m.Role, m.EmailVerified, m.IsActive, m.LastActive,
			m.Phone, m.TaxID, m.CitizenshipID, m.Address, lat, lng,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func insertExtension(ctx context.Context, tx pgx.Tx, orgID string, ext models.SubscriptionExtension) error {
	query := `
		INSERT INTO subscription_extensions (
			id, organization_id, extension_date, duration, previous_end_date, new_end_date, extended_by, amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric)
	`
	_, err := tx.Exec(ctx, query,
		ext.ID, orgID, ext.ExtensionDate, ext.Duration, ext.PreviousEndDate, ext.NewEndDate,
		ext.ExtendedBy, ext.Amount.String(),
	)
	return err
}

// uniqueViolation turns the email index violation into a conflict with a
// message the console can show.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "idx_memberships_email" {
			return apperr.Persistence(directory.OpSaveMemberships, "A member with this email already exists", err)
		}
		return apperr.Persistence(directory.OpSaveMemberships, "An organization can have only one owner", err)
	}
	return err
}
