package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

type pgConversationStore struct {
	db *sql.DB
}

func (s *pgConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, platform, external_id, status, agent_enabled, created_at, updated_at
		 FROM conversations WHERE id = $1`, id))
}

// GetActive enforces the "at most one active conversation per (platform,
// external_id)" invariant by construction: callers only ever look up the
// single row with status='active'.
func (s *pgConversationStore) GetActive(ctx context.Context, platform models.Platform, externalID string) (*models.Conversation, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, platform, external_id, status, agent_enabled, created_at, updated_at
		 FROM conversations WHERE platform = $1 AND external_id = $2 AND status = 'active'`,
		platform, externalID))
}

func (s *pgConversationStore) List(ctx context.Context, userID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, platform, external_id, status, agent_enabled, created_at, updated_at
		 FROM conversations WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, errs.Internal("conversation: list", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// Create opens a new Conversation. The caller (orchestrator/webhook ingest)
// is responsible for first checking GetActive returns not-found; the unique
// partial index on (platform, external_id) WHERE status='active' is the
// backstop that rejects a racing duplicate insert.
func (s *pgConversationStore) Create(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	if conv == nil || conv.UserID == "" || conv.ExternalID == "" {
		return nil, errs.Validation("conversation: user_id and external_id are required")
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Status == "" {
		conv.Status = models.ConversationActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, platform, external_id, status, agent_enabled, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6, now(), now())`,
		conv.ID, conv.UserID, conv.Platform, conv.ExternalID, conv.Status, conv.AgentEnabled)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ConstraintViolation("conversation: an active conversation already exists for this party")
		}
		return nil, errs.Internal("conversation: insert", err)
	}
	return s.Get(ctx, conv.ID)
}

func (s *pgConversationStore) Update(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errs.Validation("conversation: id is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status=$2, agent_enabled=$3, updated_at=now() WHERE id=$1`,
		conv.ID, conv.Status, conv.AgentEnabled)
	if err != nil {
		return nil, errs.Internal("conversation: update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NotFound("conversation not found")
	}
	return s.Get(ctx, conv.ID)
}

func (s *pgConversationStore) Close(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status='closed', updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return errs.Internal("conversation: close", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("conversation not found")
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanConversation(row *sql.Row) (*models.Conversation, error) {
	conv, err := scanConversationRow(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("conversation not found")
	}
	return conv, err
}

func scanConversationRow(row scannable) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.ExternalID, &c.Status, &c.AgentEnabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errs.Internal("conversation: scan", err)
	}
	return &c, nil
}
