// Package store is the C1 Store Adapter: the sole mutator of the relational
// store, exposing typed CRUD over every entity in spec.md §3 and enforcing
// the referential invariants the state machine and orchestrator rely on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// UserStore persists Users, upserted by phone or email.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
}

// ConversationStore persists Conversations.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*models.Conversation, error)
	GetActive(ctx context.Context, platform models.Platform, externalID string) (*models.Conversation, error)
	List(ctx context.Context, userID string) ([]*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	Update(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	Close(ctx context.Context, id string) error
}

// MessageStore persists Messages, append-only with soft deletion.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetByExternalID(ctx context.Context, conversationID, externalID string) (*models.Message, error)
	List(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	ListTrailingNonSystem(ctx context.Context, conversationID string, n int) ([]*models.Message, error)
	LatestUserMessageAt(ctx context.Context, leadQualificationID string) (time.Time, bool, error)
	MarkRead(ctx context.Context, id string) error
	MarkDeliveryFailed(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
}

// LeadStore persists LeadQualification, BantData, and Requirements/Feature/
// Integration rows.
type LeadStore interface {
	Get(ctx context.Context, id string) (*models.LeadQualification, error)
	GetByConversation(ctx context.Context, userID, conversationID string) (*models.LeadQualification, error)
	Create(ctx context.Context, lead *models.LeadQualification) (*models.LeadQualification, error)
	SetStep(ctx context.Context, id string, step models.QualificationStep) (*models.LeadQualification, error)
	SetConsent(ctx context.Context, id string, consent bool) (*models.LeadQualification, error)
	ListByStep(ctx context.Context, step models.QualificationStep) ([]*models.LeadQualification, error)
	ListStale(ctx context.Context, olderThan time.Time) ([]*models.LeadQualification, error)

	GetBant(ctx context.Context, leadQualificationID string) (*models.BantData, error)
	UpsertBant(ctx context.Context, leadQualificationID string, patch models.BantData) (*models.BantData, error)

	GetRequirements(ctx context.Context, leadQualificationID string) (*models.Requirements, []*models.Feature, []*models.Integration, error)
	CreateRequirementPackage(ctx context.Context, leadQualificationID, appType string, deadline *time.Time, features, integrations []string) (*models.Requirements, []*models.Feature, []*models.Integration, error)
}

// MeetingStore persists Meetings.
type MeetingStore interface {
	Get(ctx context.Context, id string) (*models.Meeting, error)
	GetActiveForLead(ctx context.Context, leadQualificationID string) (*models.Meeting, error)
	Create(ctx context.Context, meeting *models.Meeting) (*models.Meeting, error)
	Update(ctx context.Context, meeting *models.Meeting) (*models.Meeting, error)
	Cancel(ctx context.Context, id string) error
	ListToday(ctx context.Context, loc *time.Location) ([]*models.Meeting, error)
}

// StatsStore exposes the read-only aggregate queries the C9 dashboard
// needs. It never mutates anything; every method is best-effort
// consistent with concurrent writes, per spec.md §4.9.
type StatsStore interface {
	CountUsers(ctx context.Context) (int, error)
	CountActiveConversations(ctx context.Context) (int, error)
	CountLeadsByStep(ctx context.Context) (map[models.QualificationStep]int, error)
	CountMessagesSince(ctx context.Context, since time.Time) (int, error)
	CountMeetingsSince(ctx context.Context, since time.Time) (int, error)
}

// PartyInfo identifies the external party a webhook message arrived from,
// the input to UpsertUserAndOpenConversation.
type PartyInfo struct {
	Platform   models.Platform
	ExternalID string
	Phone      string
	Email      string
	FullName   string
}

// Transactional groups the atomic, multi-entity operations spec.md §4.1
// names explicitly: upsert_user_and_open_conversation.
type Transactional interface {
	UpsertUserAndOpenConversation(ctx context.Context, party PartyInfo) (*models.User, *models.Conversation, *models.LeadQualification, error)
}

// Store groups every store interface the rest of the system depends on. It
// is the only type other components construct against; concrete
// implementations (Postgres, in-memory) satisfy it identically.
type Store struct {
	Users         UserStore
	Conversations ConversationStore
	Messages      MessageStore
	Leads         LeadStore
	Meetings      MeetingStore
	Tx            Transactional
	Stats         StatsStore

	closer func() error
}

// Close releases any underlying resources (e.g. the DB connection pool).
func (s *Store) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// Open opens a Postgres-backed Store from the given config.
func Open(cfg config.StoreConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("store: url is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{
		Users:         &pgUserStore{db: db},
		Conversations: &pgConversationStore{db: db},
		Messages:      &pgMessageStore{db: db},
		Leads:         &pgLeadStore{db: db},
		Meetings:      &pgMeetingStore{db: db},
		Tx:            &pgTxStore{db: db},
		Stats:         &pgStatsStore{db: db},
		closer:        db.Close,
	}, nil
}
