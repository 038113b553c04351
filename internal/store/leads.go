package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

type pgLeadStore struct {
	db *sql.DB
}

const leadColumns = `id, user_id, conversation_id, consent, current_step, created_at, updated_at`

func (s *pgLeadStore) Get(ctx context.Context, id string) (*models.LeadQualification, error) {
	return scanLead(s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM lead_qualification WHERE id = $1`, id))
}

func (s *pgLeadStore) GetByConversation(ctx context.Context, userID, conversationID string) (*models.LeadQualification, error) {
	return scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM lead_qualification WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID))
}

// Create inserts the single LeadQualification for a (user, conversation)
// pair. The unique index on (user_id, conversation_id) backstops the "exactly
// one per pair" invariant against a racing second insert.
func (s *pgLeadStore) Create(ctx context.Context, lead *models.LeadQualification) (*models.LeadQualification, error) {
	if lead == nil || lead.UserID == "" || lead.ConversationID == "" {
		return nil, errs.Validation("lead: user_id and conversation_id are required")
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CurrentStep == "" {
		lead.CurrentStep = models.StepStart
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_qualification (id, user_id, conversation_id, consent, current_step, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5, now(), now())`,
		lead.ID, lead.UserID, lead.ConversationID, lead.Consent, lead.CurrentStep)
	if err != nil {
		if isUniqueViolation(err) {
			return s.GetByConversation(ctx, lead.UserID, lead.ConversationID)
		}
		return nil, errs.Internal("lead: insert", err)
	}
	return s.Get(ctx, lead.ID)
}

// SetStep persists a new current_step. The state machine (C5) is the only
// caller that computes which step to move to; this method does not itself
// validate the edge, trusting the caller per spec.md §4.5.
func (s *pgLeadStore) SetStep(ctx context.Context, id string, step models.QualificationStep) (*models.LeadQualification, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_qualification SET current_step = $2, updated_at = now() WHERE id = $1`, id, step)
	if err != nil {
		return nil, errs.Internal("lead: set step", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NotFound("lead qualification not found")
	}
	return s.Get(ctx, id)
}

func (s *pgLeadStore) SetConsent(ctx context.Context, id string, consent bool) (*models.LeadQualification, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_qualification SET consent = $2, updated_at = now() WHERE id = $1`, id, consent)
	if err != nil {
		return nil, errs.Internal("lead: set consent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NotFound("lead qualification not found")
	}
	return s.Get(ctx, id)
}

func (s *pgLeadStore) ListByStep(ctx context.Context, step models.QualificationStep) ([]*models.LeadQualification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM lead_qualification WHERE current_step = $1 ORDER BY created_at ASC, id ASC`, step)
	if err != nil {
		return nil, errs.Internal("lead: list by step", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// ListStale returns LeadQualifications whose latest user Message predates
// olderThan and which have not yet reached a terminal step — the candidate
// set for the spec.md §4.6 timeout sweep.
func (s *pgLeadStore) ListStale(ctx context.Context, olderThan time.Time) ([]*models.LeadQualification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lq.id, lq.user_id, lq.conversation_id, lq.consent, lq.current_step, lq.created_at, lq.updated_at
		 FROM lead_qualification lq
		 WHERE lq.current_step NOT IN ('completed', 'abandoned')
		   AND (
		     SELECT MAX(m.created_at) FROM messages m
		     WHERE m.conversation_id = lq.conversation_id AND m.role = 'user' AND m.deleted = false
		   ) < $1
		 ORDER BY lq.created_at ASC, lq.id ASC`, olderThan)
	if err != nil {
		return nil, errs.Internal("lead: list stale", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

func (s *pgLeadStore) GetBant(ctx context.Context, leadQualificationID string) (*models.BantData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lead_qualification_id, budget, authority, need, timeline, updated_at
		 FROM bant_data WHERE lead_qualification_id = $1`, leadQualificationID)
	var b models.BantData
	var budget, authority, need, timeline sql.NullString
	if err := row.Scan(&b.ID, &b.LeadQualificationID, &budget, &authority, &need, &timeline, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("bant data not found")
		}
		return nil, errs.Internal("bant: scan", err)
	}
	b.Budget, b.Authority, b.Need, b.Timeline = budget.String, authority.String, need.String, timeline.String
	return &b, nil
}

// UpsertBant merges patch into the existing BantData, creating the row on
// first use. Per spec.md §8's idempotence law, a patch whose fields are
// already set to the same values (or empty) leaves the row unchanged.
func (s *pgLeadStore) UpsertBant(ctx context.Context, leadQualificationID string, patch models.BantData) (*models.BantData, error) {
	existing, err := s.GetBant(ctx, leadQualificationID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}
	if existing == nil {
		existing = &models.BantData{ID: uuid.NewString(), LeadQualificationID: leadQualificationID}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO bant_data (id, lead_qualification_id, updated_at) VALUES ($1,$2, now())`,
			existing.ID, leadQualificationID); err != nil {
			return nil, errs.Internal("bant: insert", err)
		}
	}

	merge := func(cur, next string) string {
		if next != "" {
			return next
		}
		return cur
	}
	existing.Budget = merge(existing.Budget, patch.Budget)
	existing.Authority = merge(existing.Authority, patch.Authority)
	existing.Need = merge(existing.Need, patch.Need)
	existing.Timeline = merge(existing.Timeline, patch.Timeline)

	_, err = s.db.ExecContext(ctx,
		`UPDATE bant_data SET budget=$2, authority=$3, need=$4, timeline=$5, updated_at=now() WHERE id=$1`,
		existing.ID, nullable(existing.Budget), nullable(existing.Authority), nullable(existing.Need), nullable(existing.Timeline))
	if err != nil {
		return nil, errs.Internal("bant: update", err)
	}
	return s.GetBant(ctx, leadQualificationID)
}

func (s *pgLeadStore) GetRequirements(ctx context.Context, leadQualificationID string) (*models.Requirements, []*models.Feature, []*models.Integration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lead_qualification_id, app_type, deadline FROM requirements WHERE lead_qualification_id = $1`,
		leadQualificationID)
	var r models.Requirements
	var appType sql.NullString
	var deadline sql.NullTime
	if err := row.Scan(&r.ID, &r.LeadQualificationID, &appType, &deadline); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil, errs.NotFound("requirements not found")
		}
		return nil, nil, nil, errs.Internal("requirements: scan", err)
	}
	r.AppType = appType.String
	if deadline.Valid {
		r.Deadline = &deadline.Time
	}

	features, err := s.listFeatures(ctx, r.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	integrations, err := s.listIntegrations(ctx, r.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return &r, features, integrations, nil
}

func (s *pgLeadStore) listFeatures(ctx context.Context, requirementID string) ([]*models.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, requirement_id, name, description FROM features WHERE requirement_id = $1 ORDER BY name ASC`, requirementID)
	if err != nil {
		return nil, errs.Internal("feature: list", err)
	}
	defer rows.Close()
	var out []*models.Feature
	for rows.Next() {
		var f models.Feature
		var desc sql.NullString
		if err := rows.Scan(&f.ID, &f.RequirementID, &f.Name, &desc); err != nil {
			return nil, errs.Internal("feature: scan", err)
		}
		f.Description = desc.String
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *pgLeadStore) listIntegrations(ctx context.Context, requirementID string) ([]*models.Integration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, requirement_id, name, description FROM integrations WHERE requirement_id = $1 ORDER BY name ASC`, requirementID)
	if err != nil {
		return nil, errs.Internal("integration: list", err)
	}
	defer rows.Close()
	var out []*models.Integration
	for rows.Next() {
		var i models.Integration
		var desc sql.NullString
		if err := rows.Scan(&i.ID, &i.RequirementID, &i.Name, &desc); err != nil {
			return nil, errs.Internal("integration: scan", err)
		}
		i.Description = desc.String
		out = append(out, &i)
	}
	return out, rows.Err()
}

// CreateRequirementPackage atomically creates or replaces the Requirements
// row and its Feature/Integration children for a lead, per spec.md §4.1.
// Per the idempotence law in spec.md §8, applying the same app_type,
// deadline, and feature/integration name sets twice leaves state
// equivalent to applying it once: existing rows are replaced in a single
// transaction rather than appended to.
func (s *pgLeadStore) CreateRequirementPackage(ctx context.Context, leadQualificationID, appType string, deadline *time.Time, features, integrations []string) (*models.Requirements, []*models.Feature, []*models.Integration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, nil, errs.Internal("requirements: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var requirementID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM requirements WHERE lead_qualification_id = $1`, leadQualificationID).Scan(&requirementID)
	switch {
	case err == sql.ErrNoRows:
		requirementID = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO requirements (id, lead_qualification_id, app_type, deadline) VALUES ($1,$2,$3,$4)`,
			requirementID, leadQualificationID, nullable(appType), deadline); err != nil {
			return nil, nil, nil, errs.Internal("requirements: insert", err)
		}
	case err != nil:
		return nil, nil, nil, errs.Internal("requirements: lookup", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE requirements SET app_type=$2, deadline=$3 WHERE id=$1`,
			requirementID, nullable(appType), deadline); err != nil {
			return nil, nil, nil, errs.Internal("requirements: update", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE requirement_id = $1`, requirementID); err != nil {
			return nil, nil, nil, errs.Internal("requirements: clear features", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM integrations WHERE requirement_id = $1`, requirementID); err != nil {
			return nil, nil, nil, errs.Internal("requirements: clear integrations", err)
		}
	}

	featureModels := make([]*models.Feature, 0, len(features))
	for _, name := range features {
		f := &models.Feature{ID: uuid.NewString(), RequirementID: requirementID, Name: name}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO features (id, requirement_id, name) VALUES ($1,$2,$3)`, f.ID, f.RequirementID, f.Name); err != nil {
			return nil, nil, nil, errs.Internal("requirements: insert feature", err)
		}
		featureModels = append(featureModels, f)
	}

	integrationModels := make([]*models.Integration, 0, len(integrations))
	for _, name := range integrations {
		i := &models.Integration{ID: uuid.NewString(), RequirementID: requirementID, Name: name}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO integrations (id, requirement_id, name) VALUES ($1,$2,$3)`, i.ID, i.RequirementID, i.Name); err != nil {
			return nil, nil, nil, errs.Internal("requirements: insert integration", err)
		}
		integrationModels = append(integrationModels, i)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, errs.Internal("requirements: commit", err)
	}

	req := &models.Requirements{ID: requirementID, LeadQualificationID: leadQualificationID, AppType: appType, Deadline: deadline}
	return req, featureModels, integrationModels, nil
}

func scanLeads(rows *sql.Rows) ([]*models.LeadQualification, error) {
	var out []*models.LeadQualification
	for rows.Next() {
		l, err := scanLeadRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLead(row *sql.Row) (*models.LeadQualification, error) {
	l, err := scanLeadRow(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("lead qualification not found")
	}
	return l, err
}

func scanLeadRow(row scannable) (*models.LeadQualification, error) {
	var l models.LeadQualification
	if err := row.Scan(&l.ID, &l.UserID, &l.ConversationID, &l.Consent, &l.CurrentStep, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errs.Internal("lead: scan", err)
	}
	return &l, nil
}
