package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// NewMemory returns a Store backed entirely by in-process maps, for tests
// that exercise the orchestrator, state machine, and webhook ingest
// without a database. All facets share one mutex-guarded core so the
// cross-entity invariants (one active conversation per party, one lead per
// conversation) hold the same way they would against Postgres.
func NewMemory() *Store {
	core := &memoryCore{
		users:         map[string]*models.User{},
		conversations: map[string]*models.Conversation{},
		messages:      map[string]*models.Message{},
		leads:         map[string]*models.LeadQualification{},
		bant:          map[string]*models.BantData{},
		requirements:  map[string]*models.Requirements{},
		features:      map[string][]*models.Feature{},
		integrations:  map[string][]*models.Integration{},
		meetings:      map[string]*models.Meeting{},
	}
	return &Store{
		Users:         memUsers{core},
		Conversations: memConversations{core},
		Messages:      memMessages{core},
		Leads:         memLeads{core},
		Meetings:      memMeetings{core},
		Tx:            memTx{core},
		Stats:         memStats{core},
	}
}

type memoryCore struct {
	mu sync.Mutex

	users         map[string]*models.User
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	leads         map[string]*models.LeadQualification
	bant          map[string]*models.BantData
	requirements  map[string]*models.Requirements
	features      map[string][]*models.Feature
	integrations  map[string][]*models.Integration
	meetings      map[string]*models.Meeting
}

// --- UserStore ---

type memUsers struct{ c *memoryCore }

func (m memUsers) Get(ctx context.Context, id string) (*models.User, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if u, ok := m.c.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, errs.NotFound("user not found")
}

func (m memUsers) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	for _, u := range m.c.users {
		if phone != "" && u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.NotFound("user not found")
}

func (m memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	for _, u := range m.c.users {
		if email != "" && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.NotFound("user not found")
}

func (m memUsers) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil || !user.HasIdentity() {
		return nil, errs.Validation("user: phone or email is required")
	}
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	return upsertUserCore(m.c, user)
}

func upsertUserCore(c *memoryCore, user *models.User) (*models.User, error) {
	for _, u := range c.users {
		if (user.Phone != "" && u.Phone == user.Phone) || (user.Email != "" && u.Email == user.Email) {
			if user.FullName != "" {
				u.FullName = user.FullName
			}
			if user.Company != "" {
				u.Company = user.Company
			}
			if user.Phone != "" {
				u.Phone = user.Phone
			}
			if user.Email != "" {
				u.Email = user.Email
			}
			u.UpdatedAt = now()
			cp := *u
			return &cp, nil
		}
	}
	cp := *user
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt, cp.UpdatedAt = now(), now()
	c.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

// --- ConversationStore ---

type memConversations struct{ c *memoryCore }

func (m memConversations) Get(ctx context.Context, id string) (*models.Conversation, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if c, ok := m.c.conversations[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, errs.NotFound("conversation not found")
}

func (m memConversations) GetActive(ctx context.Context, platform models.Platform, externalID string) (*models.Conversation, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if c := findActiveConversation(m.c, platform, externalID); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, errs.NotFound("conversation not found")
}

func findActiveConversation(c *memoryCore, platform models.Platform, externalID string) *models.Conversation {
	for _, conv := range c.conversations {
		if conv.Platform == platform && conv.ExternalID == externalID && conv.Status == models.ConversationActive {
			return conv
		}
	}
	return nil
}

func (m memConversations) List(ctx context.Context, userID string) ([]*models.Conversation, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	var out []*models.Conversation
	for _, c := range m.c.conversations {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortConversations(out)
	return out, nil
}

func (m memConversations) Create(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	if conv == nil || conv.UserID == "" || conv.ExternalID == "" {
		return nil, errs.Validation("conversation: user_id and external_id are required")
	}
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if findActiveConversation(m.c, conv.Platform, conv.ExternalID) != nil {
		return nil, errs.ConstraintViolation("conversation: an active conversation already exists for this party")
	}
	cp := *conv
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = models.ConversationActive
	}
	cp.CreatedAt, cp.UpdatedAt = now(), now()
	m.c.conversations[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m memConversations) Update(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	existing, ok := m.c.conversations[conv.ID]
	if !ok {
		return nil, errs.NotFound("conversation not found")
	}
	existing.Status = conv.Status
	existing.AgentEnabled = conv.AgentEnabled
	existing.UpdatedAt = now()
	cp := *existing
	return &cp, nil
}

func (m memConversations) Close(ctx context.Context, id string) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	c, ok := m.c.conversations[id]
	if !ok {
		return errs.NotFound("conversation not found")
	}
	c.Status = models.ConversationClosed
	c.UpdatedAt = now()
	return nil
}

// --- MessageStore ---

type memMessages struct{ c *memoryCore }

func (m memMessages) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if msg == nil || msg.ConversationID == "" {
		return nil, errs.Validation("message: conversation_id is required")
	}
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if msg.ExternalID != "" {
		if existing := findMessageByExternalID(m.c, msg.ConversationID, msg.ExternalID); existing != nil {
			cp := *existing
			return &cp, nil
		}
	}
	cp := *msg
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.MessageType == "" {
		cp.MessageType = models.MessageText
	}
	cp.CreatedAt = now()
	m.c.messages[cp.ID] = &cp
	out := cp
	return &out, nil
}

func findMessageByExternalID(c *memoryCore, conversationID, externalID string) *models.Message {
	for _, msg := range c.messages {
		if msg.ConversationID == conversationID && msg.ExternalID == externalID && !msg.Deleted {
			return msg
		}
	}
	return nil
}

func (m memMessages) GetByExternalID(ctx context.Context, conversationID, externalID string) (*models.Message, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if externalID == "" {
		return nil, errs.NotFound("message: external_id is empty")
	}
	if msg := findMessageByExternalID(m.c, conversationID, externalID); msg != nil {
		cp := *msg
		return &cp, nil
	}
	return nil, errs.NotFound("message not found")
}

func (m memMessages) List(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	var out []*models.Message
	for _, msg := range m.c.messages {
		if msg.ConversationID == conversationID && !msg.Deleted {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sortMessages(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m memMessages) ListTrailingNonSystem(ctx context.Context, conversationID string, n int) ([]*models.Message, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	var system []*models.Message
	var rest []*models.Message
	for _, msg := range m.c.messages {
		if msg.ConversationID != conversationID || msg.Deleted {
			continue
		}
		cp := *msg
		if msg.Role == models.RoleSystem {
			system = append(system, &cp)
		} else {
			rest = append(rest, &cp)
		}
	}
	sortMessages(system)
	sortMessages(rest)
	if n > 0 && len(rest) > n {
		rest = rest[len(rest)-n:]
	}
	if len(system) == 0 {
		return rest, nil
	}
	return append([]*models.Message{system[0]}, rest...), nil
}

func (m memMessages) LatestUserMessageAt(ctx context.Context, leadQualificationID string) (time.Time, bool, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	lead, ok := m.c.leads[leadQualificationID]
	if !ok {
		return time.Time{}, false, nil
	}
	var latest time.Time
	found := false
	for _, msg := range m.c.messages {
		if msg.ConversationID == lead.ConversationID && msg.Role == models.RoleUser && !msg.Deleted {
			if !found || msg.CreatedAt.After(latest) {
				latest = msg.CreatedAt
				found = true
			}
		}
	}
	return latest, found, nil
}

func (m memMessages) MarkRead(ctx context.Context, id string) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if msg, ok := m.c.messages[id]; ok {
		msg.Read = true
	}
	return nil
}

func (m memMessages) MarkDeliveryFailed(ctx context.Context, id string) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if msg, ok := m.c.messages[id]; ok {
		msg.DeliveryFailed = true
	}
	return nil
}

func (m memMessages) SoftDelete(ctx context.Context, id string) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	msg, ok := m.c.messages[id]
	if !ok {
		return errs.NotFound("message not found")
	}
	msg.Deleted = true
	return nil
}

// --- LeadStore ---

type memLeads struct{ c *memoryCore }

func (m memLeads) Get(ctx context.Context, id string) (*models.LeadQualification, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if l, ok := m.c.leads[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, errs.NotFound("lead qualification not found")
}

func (m memLeads) GetByConversation(ctx context.Context, userID, conversationID string) (*models.LeadQualification, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if l := findLead(m.c, userID, conversationID); l != nil {
		cp := *l
		return &cp, nil
	}
	return nil, errs.NotFound("lead qualification not found")
}

func findLead(c *memoryCore, userID, conversationID string) *models.LeadQualification {
	for _, l := range c.leads {
		if l.UserID == userID && l.ConversationID == conversationID {
			return l
		}
	}
	return nil
}

func (m memLeads) Create(ctx context.Context, lead *models.LeadQualification) (*models.LeadQualification, error) {
	if lead == nil || lead.UserID == "" || lead.ConversationID == "" {
		return nil, errs.Validation("lead: user_id and conversation_id are required")
	}
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if existing := findLead(m.c, lead.UserID, lead.ConversationID); existing != nil {
		cp := *existing
		return &cp, nil
	}
	cp := *lead
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CurrentStep == "" {
		cp.CurrentStep = models.StepStart
	}
	cp.CreatedAt, cp.UpdatedAt = now(), now()
	m.c.leads[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m memLeads) SetStep(ctx context.Context, id string, step models.QualificationStep) (*models.LeadQualification, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	l, ok := m.c.leads[id]
	if !ok {
		return nil, errs.NotFound("lead qualification not found")
	}
	l.CurrentStep = step
	l.UpdatedAt = now()
	cp := *l
	return &cp, nil
}

func (m memLeads) SetConsent(ctx context.Context, id string, consent bool) (*models.LeadQualification, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	l, ok := m.c.leads[id]
	if !ok {
		return nil, errs.NotFound("lead qualification not found")
	}
	l.Consent = consent
	l.UpdatedAt = now()
	cp := *l
	return &cp, nil
}

func (m memLeads) ListByStep(ctx context.Context, step models.QualificationStep) ([]*models.LeadQualification, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	var out []*models.LeadQualification
	for _, l := range m.c.leads {
		if l.CurrentStep == step {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memLeads) ListStale(ctx context.Context, olderThan time.Time) ([]*models.LeadQualification, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	var out []*models.LeadQualification
	for _, l := range m.c.leads {
		if l.CurrentStep == models.StepCompleted || l.CurrentStep == models.StepAbandoned {
			continue
		}
		var latest time.Time
		found := false
		for _, msg := range m.c.messages {
			if msg.ConversationID == l.ConversationID && msg.Role == models.RoleUser && !msg.Deleted {
				if !found || msg.CreatedAt.After(latest) {
					latest, found = msg.CreatedAt, true
				}
			}
		}
		if found && latest.Before(olderThan) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memLeads) GetBant(ctx context.Context, leadQualificationID string) (*models.BantData, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if b, ok := m.c.bant[leadQualificationID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, errs.NotFound("bant data not found")
}

func (m memLeads) UpsertBant(ctx context.Context, leadQualificationID string, patch models.BantData) (*models.BantData, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	b, ok := m.c.bant[leadQualificationID]
	if !ok {
		b = &models.BantData{ID: uuid.NewString(), LeadQualificationID: leadQualificationID}
		m.c.bant[leadQualificationID] = b
	}
	merge := func(cur, next string) string {
		if next != "" {
			return next
		}
		return cur
	}
	b.Budget = merge(b.Budget, patch.Budget)
	b.Authority = merge(b.Authority, patch.Authority)
	b.Need = merge(b.Need, patch.Need)
	b.Timeline = merge(b.Timeline, patch.Timeline)
	b.UpdatedAt = now()
	cp := *b
	return &cp, nil
}

func (m memLeads) GetRequirements(ctx context.Context, leadQualificationID string) (*models.Requirements, []*models.Feature, []*models.Integration, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	r, ok := m.c.requirements[leadQualificationID]
	if !ok {
		return nil, nil, nil, errs.NotFound("requirements not found")
	}
	cp := *r
	return &cp, cloneFeatures(m.c.features[r.ID]), cloneIntegrations(m.c.integrations[r.ID]), nil
}

func (m memLeads) CreateRequirementPackage(ctx context.Context, leadQualificationID, appType string, deadline *time.Time, features, integrations []string) (*models.Requirements, []*models.Feature, []*models.Integration, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()

	r, ok := m.c.requirements[leadQualificationID]
	if !ok {
		r = &models.Requirements{ID: uuid.NewString(), LeadQualificationID: leadQualificationID}
		m.c.requirements[leadQualificationID] = r
	}
	r.AppType = appType
	r.Deadline = deadline

	featureModels := make([]*models.Feature, 0, len(features))
	for _, name := range features {
		featureModels = append(featureModels, &models.Feature{ID: uuid.NewString(), RequirementID: r.ID, Name: name})
	}
	m.c.features[r.ID] = featureModels

	integrationModels := make([]*models.Integration, 0, len(integrations))
	for _, name := range integrations {
		integrationModels = append(integrationModels, &models.Integration{ID: uuid.NewString(), RequirementID: r.ID, Name: name})
	}
	m.c.integrations[r.ID] = integrationModels

	cp := *r
	return &cp, cloneFeatures(featureModels), cloneIntegrations(integrationModels), nil
}

func cloneFeatures(in []*models.Feature) []*models.Feature {
	out := make([]*models.Feature, len(in))
	for i, f := range in {
		cp := *f
		out[i] = &cp
	}
	return out
}

func cloneIntegrations(in []*models.Integration) []*models.Integration {
	out := make([]*models.Integration, len(in))
	for i, ig := range in {
		cp := *ig
		out[i] = &cp
	}
	return out
}

// --- MeetingStore ---

type memMeetings struct{ c *memoryCore }

func (m memMeetings) Get(ctx context.Context, id string) (*models.Meeting, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if mt, ok := m.c.meetings[id]; ok {
		cp := *mt
		return &cp, nil
	}
	return nil, errs.NotFound("meeting not found")
}

func (m memMeetings) GetActiveForLead(ctx context.Context, leadQualificationID string) (*models.Meeting, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if mt := findActiveMeeting(m.c, leadQualificationID); mt != nil {
		cp := *mt
		return &cp, nil
	}
	return nil, errs.NotFound("meeting not found")
}

func findActiveMeeting(c *memoryCore, leadQualificationID string) *models.Meeting {
	for _, mt := range c.meetings {
		if mt.LeadQualificationID == leadQualificationID && mt.Status != models.MeetingCancelled {
			return mt
		}
	}
	return nil
}

func (m memMeetings) Create(ctx context.Context, mt *models.Meeting) (*models.Meeting, error) {
	if mt == nil || !mt.Valid() {
		return nil, errs.Validation("meeting: start_time must precede end_time")
	}
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if findActiveMeeting(m.c, mt.LeadQualificationID) != nil {
		return nil, errs.ConstraintViolation("meeting: lead already has a non-cancelled meeting")
	}
	cp := *mt
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = models.MeetingScheduled
	}
	cp.CreatedAt, cp.UpdatedAt = now(), now()
	m.c.meetings[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m memMeetings) Update(ctx context.Context, mt *models.Meeting) (*models.Meeting, error) {
	if mt == nil || !mt.Valid() {
		return nil, errs.Validation("meeting: start_time must precede end_time")
	}
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	existing, ok := m.c.meetings[mt.ID]
	if !ok {
		return nil, errs.NotFound("meeting not found")
	}
	existing.Subject = mt.Subject
	existing.StartTime = mt.StartTime
	existing.EndTime = mt.EndTime
	existing.Status = mt.Status
	existing.OnlineMeetingURL = mt.OnlineMeetingURL
	existing.ExternalMeetingID = mt.ExternalMeetingID
	existing.UpdatedAt = now()
	cp := *existing
	return &cp, nil
}

func (m memMeetings) Cancel(ctx context.Context, id string) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	mt, ok := m.c.meetings[id]
	if !ok {
		return errs.NotFound("meeting not found")
	}
	mt.Status = models.MeetingCancelled
	mt.UpdatedAt = now()
	return nil
}

func (m memMeetings) ListToday(ctx context.Context, loc *time.Location) ([]*models.Meeting, error) {
	if loc == nil {
		loc = time.UTC
	}
	n := time.Now().In(loc)
	start := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)

	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	var out []*models.Meeting
	for _, mt := range m.c.meetings {
		if mt.Status == models.MeetingCancelled {
			continue
		}
		if !mt.StartTime.Before(start) && mt.StartTime.Before(end) {
			cp := *mt
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Transactional ---

type memTx struct{ c *memoryCore }

func (m memTx) UpsertUserAndOpenConversation(ctx context.Context, party PartyInfo) (*models.User, *models.Conversation, *models.LeadQualification, error) {
	if party.ExternalID == "" {
		return nil, nil, nil, errs.Validation("party: external_id is required")
	}
	if party.Phone == "" && party.Email == "" {
		return nil, nil, nil, errs.Validation("party: phone or email is required")
	}
	m.c.mu.Lock()
	defer m.c.mu.Unlock()

	user, err := upsertUserCore(m.c, &models.User{Phone: party.Phone, Email: party.Email, FullName: party.FullName})
	if err != nil {
		return nil, nil, nil, err
	}

	conv := findActiveConversation(m.c, party.Platform, party.ExternalID)
	if conv == nil {
		conv = &models.Conversation{
			ID: uuid.NewString(), UserID: user.ID, Platform: party.Platform,
			ExternalID: party.ExternalID, Status: models.ConversationActive, AgentEnabled: true,
			CreatedAt: now(), UpdatedAt: now(),
		}
		m.c.conversations[conv.ID] = conv
	}

	lead := findLead(m.c, user.ID, conv.ID)
	if lead == nil {
		lead = &models.LeadQualification{
			ID: uuid.NewString(), UserID: user.ID, ConversationID: conv.ID,
			CurrentStep: models.StepStart, CreatedAt: now(), UpdatedAt: now(),
		}
		m.c.leads[lead.ID] = lead
	}

	convCp, leadCp := *conv, *lead
	return user, &convCp, &leadCp, nil
}

// --- StatsStore ---

type memStats struct{ c *memoryCore }

func (m memStats) CountUsers(ctx context.Context) (int, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	return len(m.c.users), nil
}

func (m memStats) CountActiveConversations(ctx context.Context) (int, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	n := 0
	for _, c := range m.c.conversations {
		if c.Status == models.ConversationActive {
			n++
		}
	}
	return n, nil
}

func (m memStats) CountLeadsByStep(ctx context.Context) (map[models.QualificationStep]int, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	out := map[models.QualificationStep]int{}
	for _, l := range m.c.leads {
		out[l.CurrentStep]++
	}
	return out, nil
}

func (m memStats) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	n := 0
	for _, msg := range m.c.messages {
		if !msg.Deleted && !msg.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m memStats) CountMeetingsSince(ctx context.Context, since time.Time) (int, error) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	n := 0
	for _, mt := range m.c.meetings {
		if !mt.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func sortMessages(msgs []*models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func sortConversations(convs []*models.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
}

func now() time.Time { return time.Now().UTC() }
