package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

type pgMessageStore struct {
	db *sql.DB
}

const messageColumns = `id, conversation_id, role, content, message_type, media_url, external_id, read, deleted, delivery_failed, created_at`

// Create inserts a Message. If external_id is set and a non-deleted
// Message with that external_id already exists for the conversation, the
// existing row is returned unchanged — this is the idempotent-drop path
// spec.md §4.6 step 1 requires for duplicate webhook deliveries.
func (s *pgMessageStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if msg == nil || msg.ConversationID == "" {
		return nil, errs.Validation("message: conversation_id is required")
	}
	if msg.ExternalID != "" {
		if existing, err := s.GetByExternalID(ctx, msg.ConversationID, msg.ExternalID); err == nil {
			return existing, nil
		} else if !errs.Is(err, errs.KindNotFound) {
			return nil, err
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.MessageType == "" {
		msg.MessageType = models.MessageText
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, message_type, media_url, external_id, read, deleted, delivery_failed, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,false, now())`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.MessageType,
		nullable(msg.MediaURL), nullable(msg.ExternalID), msg.Read)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race to a concurrent delivery of the same external_id.
			if existing, gerr := s.GetByExternalID(ctx, msg.ConversationID, msg.ExternalID); gerr == nil {
				return existing, nil
			}
			return nil, errs.ConstraintViolation("message: external_id already recorded")
		}
		return nil, errs.Internal("message: insert", err)
	}
	return s.getByID(ctx, msg.ID)
}

func (s *pgMessageStore) GetByExternalID(ctx context.Context, conversationID, externalID string) (*models.Message, error) {
	if externalID == "" {
		return nil, errs.NotFound("message: external_id is empty")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = $1 AND external_id = $2 AND deleted = false`,
		conversationID, externalID)
	return scanMessage(row)
}

func (s *pgMessageStore) getByID(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// List returns the most recent `limit` non-deleted Messages for a
// conversation, strictly ordered by (created_at, id) ascending per spec.md
// §5's ordering guarantee.
func (s *pgMessageStore) List(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = $1 AND deleted = false
		 ORDER BY created_at DESC, id DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, errs.Internal("message: list", err)
	}
	defer rows.Close()
	recent, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// ListTrailingNonSystem returns the preamble (if any) plus the last n
// non-system Messages, capping total entries at n+1 per SPEC_FULL.md §9's
// resolution of the history-window open question.
func (s *pgMessageStore) ListTrailingNonSystem(ctx context.Context, conversationID string, n int) ([]*models.Message, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = $1 AND deleted = false AND role != 'system'
		 ORDER BY created_at DESC, id DESC LIMIT $2`, conversationID, n)
	if err != nil {
		return nil, errs.Internal("message: list trailing", err)
	}
	defer rows.Close()
	recent, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	preambleRow := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = $1 AND deleted = false AND role = 'system'
		 ORDER BY created_at ASC, id ASC LIMIT 1`, conversationID)
	preamble, err := scanMessage(preambleRow)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return recent, nil
		}
		return nil, err
	}
	return append([]*models.Message{preamble}, recent...), nil
}

func (s *pgMessageStore) LatestUserMessageAt(ctx context.Context, leadQualificationID string) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT m.created_at FROM messages m
		 JOIN lead_qualification lq ON lq.conversation_id = m.conversation_id
		 WHERE lq.id = $1 AND m.role = 'user' AND m.deleted = false
		 ORDER BY m.created_at DESC, m.id DESC LIMIT 1`, leadQualificationID)
	var t time.Time
	if err := row.Scan(&t); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errs.Internal("message: latest user message", err)
	}
	return t, true, nil
}

func (s *pgMessageStore) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET read = true WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("message: mark read", err)
	}
	return nil
}

func (s *pgMessageStore) MarkDeliveryFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET delivery_failed = true WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("message: mark delivery failed", err)
	}
	return nil
}

func (s *pgMessageStore) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET deleted = true WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("message: soft delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("message not found")
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessage(row scannable) (*models.Message, error) {
	msg, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("message not found")
	}
	return msg, err
}

func scanMessageRow(row scannable) (*models.Message, error) {
	var m models.Message
	var mediaURL, externalID sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.MessageType,
		&mediaURL, &externalID, &m.Read, &m.Deleted, &m.DeliveryFailed, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errs.Internal("message: scan", err)
	}
	m.MediaURL = mediaURL.String
	m.ExternalID = externalID.String
	return &m, nil
}
