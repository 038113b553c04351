package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

type pgMeetingStore struct {
	db *sql.DB
}

const meetingColumns = `id, user_id, lead_qualification_id, external_meeting_id, subject, start_time, end_time, status, online_meeting_url, created_at, updated_at`

func (s *pgMeetingStore) Get(ctx context.Context, id string) (*models.Meeting, error) {
	return scanMeeting(s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
}

func (s *pgMeetingStore) GetActiveForLead(ctx context.Context, leadQualificationID string) (*models.Meeting, error) {
	return scanMeeting(s.db.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings
		 WHERE lead_qualification_id = $1 AND status != 'cancelled'
		 ORDER BY start_time DESC LIMIT 1`, leadQualificationID))
}

// Create inserts a Meeting, rejecting the start>=end invariant and a
// second non-cancelled Meeting for the same lead per spec.md §3.
func (s *pgMeetingStore) Create(ctx context.Context, m *models.Meeting) (*models.Meeting, error) {
	if m == nil || !m.Valid() {
		return nil, errs.Validation("meeting: start_time must precede end_time")
	}
	if existing, err := s.GetActiveForLead(ctx, m.LeadQualificationID); err == nil && existing != nil {
		return nil, errs.ConstraintViolation("meeting: lead already has a non-cancelled meeting")
	} else if err != nil && !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.MeetingScheduled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (id, user_id, lead_qualification_id, external_meeting_id, subject, start_time, end_time, status, online_meeting_url, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())`,
		m.ID, m.UserID, m.LeadQualificationID, nullable(m.ExternalMeetingID), m.Subject, m.StartTime, m.EndTime, m.Status, nullable(m.OnlineMeetingURL))
	if err != nil {
		return nil, errs.Internal("meeting: insert", err)
	}
	return s.Get(ctx, m.ID)
}

func (s *pgMeetingStore) Update(ctx context.Context, m *models.Meeting) (*models.Meeting, error) {
	if m == nil || m.ID == "" || !m.Valid() {
		return nil, errs.Validation("meeting: id required and start_time must precede end_time")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET subject=$2, start_time=$3, end_time=$4, status=$5, online_meeting_url=$6, external_meeting_id=$7, updated_at=now()
		 WHERE id=$1`,
		m.ID, m.Subject, m.StartTime, m.EndTime, m.Status, nullable(m.OnlineMeetingURL), nullable(m.ExternalMeetingID))
	if err != nil {
		return nil, errs.Internal("meeting: update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NotFound("meeting not found")
	}
	return s.Get(ctx, m.ID)
}

func (s *pgMeetingStore) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET status='cancelled', updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return errs.Internal("meeting: cancel", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("meeting not found")
	}
	return nil
}

func (s *pgMeetingStore) ListToday(ctx context.Context, loc *time.Location) ([]*models.Meeting, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings
		 WHERE start_time >= $1 AND start_time < $2 AND status != 'cancelled'
		 ORDER BY start_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, errs.Internal("meeting: list today", err)
	}
	defer rows.Close()

	var out []*models.Meeting
	for rows.Next() {
		m, err := scanMeetingRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMeeting(row *sql.Row) (*models.Meeting, error) {
	m, err := scanMeetingRow(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("meeting not found")
	}
	return m, err
}

func scanMeetingRow(row scannable) (*models.Meeting, error) {
	var m models.Meeting
	var externalID, onlineURL sql.NullString
	if err := row.Scan(&m.ID, &m.UserID, &m.LeadQualificationID, &externalID, &m.Subject,
		&m.StartTime, &m.EndTime, &m.Status, &onlineURL, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errs.Internal("meeting: scan", err)
	}
	m.ExternalMeetingID = externalID.String
	m.OnlineMeetingURL = onlineURL.String
	return &m, nil
}
