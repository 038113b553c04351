package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

type pgTxStore struct {
	db *sql.DB
}

// UpsertUserAndOpenConversation performs spec.md §4.1's
// upsert_user_and_open_conversation atomically: the User is upserted by
// phone/email, the single active Conversation for (platform, external_id)
// is reused or created, and its LeadQualification is reused or created —
// all within one transaction so a concurrent webhook delivery for the same
// party can never observe a half-created triple.
func (s *pgTxStore) UpsertUserAndOpenConversation(ctx context.Context, party PartyInfo) (*models.User, *models.Conversation, *models.LeadQualification, error) {
	if party.ExternalID == "" {
		return nil, nil, nil, errs.Validation("party: external_id is required")
	}
	if party.Phone == "" && party.Email == "" {
		return nil, nil, nil, errs.Validation("party: phone or email is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, nil, errs.Internal("tx: begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	user, err := upsertUserTx(ctx, tx, party)
	if err != nil {
		return nil, nil, nil, err
	}

	conv, err := openConversationTx(ctx, tx, user.ID, party.Platform, party.ExternalID)
	if err != nil {
		return nil, nil, nil, err
	}

	lead, err := openLeadTx(ctx, tx, user.ID, conv.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, errs.Internal("tx: commit", err)
	}
	return user, conv, lead, nil
}

func upsertUserTx(ctx context.Context, tx *sql.Tx, party PartyInfo) (*models.User, error) {
	var id string
	var err error
	if party.Phone != "" {
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE phone = $1`, party.Phone).Scan(&id)
	}
	if (err == sql.ErrNoRows || party.Phone == "") && party.Email != "" {
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, party.Email).Scan(&id)
	}

	if err == sql.ErrNoRows {
		id = uuid.NewString()
		if _, ierr := tx.ExecContext(ctx,
			`INSERT INTO users (id, phone, email, full_name, created_at, updated_at)
			 VALUES ($1,$2,$3,$4, now(), now())`,
			id, nullable(party.Phone), nullable(party.Email), party.FullName); ierr != nil {
			if isUniqueViolation(ierr) {
				return nil, errs.ConstraintViolation("user: phone or email already claimed by another user")
			}
			return nil, errs.Internal("user: insert", ierr)
		}
	} else if err != nil {
		return nil, errs.Internal("user: lookup", err)
	} else if party.FullName != "" {
		if _, uerr := tx.ExecContext(ctx, `UPDATE users SET full_name=$2, updated_at=now() WHERE id=$1`, id, party.FullName); uerr != nil {
			return nil, errs.Internal("user: update", uerr)
		}
	}

	row := tx.QueryRowContext(ctx,
		`SELECT id, phone, email, full_name, company, created_at, updated_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func openConversationTx(ctx context.Context, tx *sql.Tx, userID string, platform models.Platform, externalID string) (*models.Conversation, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, user_id, platform, external_id, status, agent_enabled, created_at, updated_at
		 FROM conversations WHERE platform = $1 AND external_id = $2 AND status = 'active'`,
		platform, externalID)
	conv, err := scanConversationRow(row)
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, errs.Internal("conversation: lookup", err)
	}

	id := uuid.NewString()
	if _, ierr := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, platform, external_id, status, agent_enabled, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,'active', true, now(), now())`,
		id, userID, platform, externalID); ierr != nil {
		return nil, errs.Internal("conversation: insert", ierr)
	}
	row = tx.QueryRowContext(ctx,
		`SELECT id, user_id, platform, external_id, status, agent_enabled, created_at, updated_at FROM conversations WHERE id = $1`, id)
	return scanConversationRow(row)
}

func openLeadTx(ctx context.Context, tx *sql.Tx, userID, conversationID string) (*models.LeadQualification, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM lead_qualification WHERE user_id = $1 AND conversation_id = $2`, userID, conversationID)
	lead, err := scanLeadRow(row)
	if err == nil {
		return lead, nil
	}
	if err != sql.ErrNoRows {
		return nil, errs.Internal("lead: lookup", err)
	}

	id := uuid.NewString()
	if _, ierr := tx.ExecContext(ctx,
		`INSERT INTO lead_qualification (id, user_id, conversation_id, consent, current_step, created_at, updated_at)
		 VALUES ($1,$2,$3,false,'start', now(), now())`,
		id, userID, conversationID); ierr != nil {
		return nil, errs.Internal("lead: insert", ierr)
	}
	row = tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM lead_qualification WHERE id = $1`, id)
	return scanLeadRow(row)
}
