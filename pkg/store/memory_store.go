package store

import (
	"sort"
	"sync"
	"time"

	"snagaudit/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and the local demo
// mode; one mutex covers all tables, which also gives SubmitSession its
// atomicity for free.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	projects  map[string]domain.Project
	nodes     map[string]domain.StructureNode
	templates map[string]domain.AuditTemplate
	points    map[string]domain.TemplateAuditPoint
	sessions  map[string]domain.AuditSession
	items     map[string]domain.AuditItem
	media     map[string][]domain.AuditMedia // key: audit item ID

	userOrder    []string
	projectOrder []string
	nodeOrder    []string
	sessionOrder []string
	itemOrder    []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		projects:  make(map[string]domain.Project),
		nodes:     make(map[string]domain.StructureNode),
		templates: make(map[string]domain.AuditTemplate),
		points:    make(map[string]domain.TemplateAuditPoint),
		sessions:  make(map[string]domain.AuditSession),
		items:     make(map[string]domain.AuditItem),
		media:     make(map[string][]domain.AuditMedia),
	}
}

// SaveUser registers a user. Existing rows are left untouched.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; !exists {
		m.userOrder = append(m.userOrder, u.ID)
		m.users[u.ID] = u
	}
	return nil
}

// GetUser returns a user by ID.
func (m *MemoryStore) GetUser(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns all users in insertion order.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		res = append(res, m.users[id])
	}
	return res, nil
}

// SaveProject stores a project.
func (m *MemoryStore) SaveProject(p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projects[p.ID]; !exists {
		m.projectOrder = append(m.projectOrder, p.ID)
		m.projects[p.ID] = p
	}
	return nil
}

// GetProject returns a project by ID.
func (m *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	return p, ok, nil
}

// ListProjects returns all projects in insertion order.
func (m *MemoryStore) ListProjects() ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0, len(m.projectOrder))
	for _, id := range m.projectOrder {
		res = append(res, m.projects[id])
	}
	return res, nil
}

// SaveStructureNode stores one node.
func (m *MemoryStore) SaveStructureNode(n domain.StructureNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.nodes[n.ID]; !exists {
		m.nodeOrder = append(m.nodeOrder, n.ID)
		m.nodes[n.ID] = n
	}
	return nil
}

// GetStructureNode returns a node by ID.
func (m *MemoryStore) GetStructureNode(id string) (domain.StructureNode, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok, nil
}

// ListStructureNodes returns one project's nodes in insertion order.
func (m *MemoryStore) ListStructureNodes(projectID string) ([]domain.StructureNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.StructureNode
	for _, id := range m.nodeOrder {
		if n := m.nodes[id]; n.ProjectID == projectID {
			res = append(res, n)
		}
	}
	return res, nil
}

// SaveTemplate stores a project's template.
func (m *MemoryStore) SaveTemplate(t domain.AuditTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

// GetTemplateByProject returns the single template of a project.
func (m *MemoryStore) GetTemplateByProject(projectID string) (domain.AuditTemplate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.templates {
		if t.ProjectID == projectID {
			return t, true, nil
		}
	}
	return domain.AuditTemplate{}, false, nil
}

// SaveTemplatePoint stores one checklist definition.
func (m *MemoryStore) SaveTemplatePoint(p domain.TemplateAuditPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[p.ID] = p
	return nil
}

// GetTemplatePoint returns a checklist point by ID.
func (m *MemoryStore) GetTemplatePoint(id string) (domain.TemplateAuditPoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	return p, ok, nil
}

// ListTemplatePoints returns a template's points sorted by order_index.
func (m *MemoryStore) ListTemplatePoints(templateID string) ([]domain.TemplateAuditPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.TemplateAuditPoint
	for _, p := range m.points {
		if p.TemplateID == templateID {
			res = append(res, p)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].OrderIndex < res[j].OrderIndex })
	return res, nil
}

// SaveSession stores a new session.
func (m *MemoryStore) SaveSession(s domain.AuditSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; !exists {
		m.sessionOrder = append(m.sessionOrder, s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

// GetSession returns a session by ID.
func (m *MemoryStore) GetSession(id string) (domain.AuditSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

// ListSessionsByProject returns a project's sessions in insertion order.
func (m *MemoryStore) ListSessionsByProject(projectID string) ([]domain.AuditSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.AuditSession
	for _, id := range m.sessionOrder {
		if s := m.sessions[id]; s.ProjectID == projectID {
			res = append(res, s)
		}
	}
	return res, nil
}

// ListSessions returns all sessions in insertion order.
func (m *MemoryStore) ListSessions() ([]domain.AuditSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.AuditSession, 0, len(m.sessionOrder))
	for _, id := range m.sessionOrder {
		res = append(res, m.sessions[id])
	}
	return res, nil
}

// SubmitSession checks the evidence gate and flips the session to SUBMITTED
// under the store lock, so concurrent item recording cannot slip a FAIL item
// past the check.
func (m *MemoryStore) SubmitSession(id string, submittedAt time.Time) (SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return SubmitResult{}, nil
	}
	if session.Status != domain.SessionInProgress {
		return SubmitResult{Found: true, AlreadySubmitted: true}, nil
	}

	for _, itemID := range m.itemOrder {
		item := m.items[itemID]
		if item.AuditSessionID != id || item.Status != domain.ItemFail {
			continue
		}
		if len(m.media[item.ID]) == 0 {
			return SubmitResult{Found: true, MissingMediaItemID: item.ID}, nil
		}
	}

	session.Status = domain.SessionSubmitted
	session.SubmittedAt = &submittedAt
	m.sessions[id] = session
	return SubmitResult{Found: true, Submitted: true}, nil
}

// AppendItem inserts one audit item after re-checking the session's status
// under the store lock. The same lock covers SubmitSession, so the status
// check and the insert cannot interleave with a submit.
func (m *MemoryStore) AppendItem(item domain.AuditItem) (AppendItemResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[item.AuditSessionID]
	if !ok {
		return AppendItemResult{}, nil
	}
	if session.Status != domain.SessionInProgress {
		return AppendItemResult{SessionFound: true, SessionSubmitted: true}, nil
	}
	if _, exists := m.items[item.ID]; !exists {
		m.itemOrder = append(m.itemOrder, item.ID)
	}
	m.items[item.ID] = item
	return AppendItemResult{SessionFound: true, Appended: true}, nil
}

// GetItem returns an audit item by ID.
func (m *MemoryStore) GetItem(id string) (domain.AuditItem, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	return item, ok, nil
}

// ListItemsBySession returns a session's items in insertion order.
func (m *MemoryStore) ListItemsBySession(sessionID string) ([]domain.AuditItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listItemsLocked(func(i domain.AuditItem) bool {
		return i.AuditSessionID == sessionID
	}), nil
}

// ListItemsByNode returns every item recorded against one node.
func (m *MemoryStore) ListItemsByNode(nodeID string) ([]domain.AuditItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listItemsLocked(func(i domain.AuditItem) bool {
		return i.StructureNodeID == nodeID
	}), nil
}

// ListItemsByProject returns all items across a project's sessions.
func (m *MemoryStore) ListItemsByProject(projectID string) ([]domain.AuditItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listItemsLocked(func(i domain.AuditItem) bool {
		s, ok := m.sessions[i.AuditSessionID]
		return ok && s.ProjectID == projectID
	}), nil
}

// ListFailItems returns every FAIL item.
func (m *MemoryStore) ListFailItems() ([]domain.AuditItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listItemsLocked(func(i domain.AuditItem) bool {
		return i.Status == domain.ItemFail
	}), nil
}

func (m *MemoryStore) listItemsLocked(keep func(domain.AuditItem) bool) []domain.AuditItem {
	var res []domain.AuditItem
	for _, id := range m.itemOrder {
		if item := m.items[id]; keep(item) {
			res = append(res, item)
		}
	}
	return res
}

// SaveMedia appends one media reference.
func (m *MemoryStore) SaveMedia(media domain.AuditMedia) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media[media.AuditItemID] = append(m.media[media.AuditItemID], media)
	return nil
}

// ListMediaByItem returns an item's media records in insertion order.
func (m *MemoryStore) ListMediaByItem(itemID string) ([]domain.AuditMedia, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.AuditMedia, len(m.media[itemID]))
	copy(res, m.media[itemID])
	return res, nil
}

// ItemIDsWithMedia resolves media existence for a batch of items.
func (m *MemoryStore) ItemIDsWithMedia(itemIDs []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		if len(m.media[id]) > 0 {
			set[id] = true
		}
	}
	return set, nil
}
