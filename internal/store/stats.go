package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// pgStatsStore backs the C9 dashboard's read-only aggregate queries.
// Every query reads committed data only; it never takes a lock other
// writers would contend on.
type pgStatsStore struct {
	db *sql.DB
}

func (s *pgStatsStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, errs.Internal("stats: count users", err)
	}
	return n, nil
}

func (s *pgStatsStore) CountActiveConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM conversations WHERE status = $1`, models.ConversationActive).Scan(&n); err != nil {
		return 0, errs.Internal("stats: count active conversations", err)
	}
	return n, nil
}

func (s *pgStatsStore) CountLeadsByStep(ctx context.Context) (map[models.QualificationStep]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT current_step, count(*) FROM lead_qualification GROUP BY current_step`)
	if err != nil {
		return nil, errs.Internal("stats: count leads by step", err)
	}
	defer rows.Close()

	out := map[models.QualificationStep]int{}
	for rows.Next() {
		var step string
		var n int
		if err := rows.Scan(&step, &n); err != nil {
			return nil, errs.Internal("stats: scan lead step count", err)
		}
		out[models.QualificationStep(step)] = n
	}
	return out, rows.Err()
}

func (s *pgStatsStore) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM messages WHERE created_at >= $1 AND deleted = false`, since).Scan(&n); err != nil {
		return 0, errs.Internal("stats: count messages since", err)
	}
	return n, nil
}

func (s *pgStatsStore) CountMeetingsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM meetings WHERE created_at >= $1`, since).Scan(&n); err != nil {
		return 0, errs.Internal("stats: count meetings since", err)
	}
	return n, nil
}
