package app

import "snagaudit/pkg/domain"

// resolveChecklist returns the template points applicable to the node's
// level, ordered by order_index. Nodes above UNIT level have no checklist;
// that is an empty result, not an error, and is decided before the template
// lookup so container levels resolve even in a template-less project. An
// auditable node in a project without a template is an error, since there
// would be nothing to audit against.
func (a *App) resolveChecklist(projectID string, node domain.StructureNode) ([]domain.TemplateAuditPoint, error) {
	if !node.LevelType.Auditable() {
		return []domain.TemplateAuditPoint{}, nil
	}
	template, ok, err := a.store.GetTemplateByProject(projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTemplateNotFound
	}

	all, err := a.store.ListTemplatePoints(template.ID)
	if err != nil {
		return nil, err
	}
	points := make([]domain.TemplateAuditPoint, 0, len(all))
	for _, p := range all {
		if p.ApplicableLevelType == node.LevelType {
			points = append(points, p)
		}
	}
	return points, nil
}

// ChecklistResponse is the per-node checklist an auditor works through.
type ChecklistResponse struct {
	NodeName    string                  `json:"node_name"`
	AuditPoints []domain.ChecklistPoint `json:"audit_points"`
}

// GetChecklist resolves the checklist for one node within a running session.
// When includeHistory is set, each point carries prior results from other
// sessions; the requesting session's own items are excluded so an auditor
// never sees their in-flight entries echoed back as history.
func (a *App) GetChecklist(sessionID, nodeID string, includeHistory bool) (ChecklistResponse, error) {
	session, ok, err := a.store.GetSession(sessionID)
	if err != nil {
		return ChecklistResponse{}, err
	}
	if !ok {
		return ChecklistResponse{}, ErrSessionNotFound
	}
	node, ok, err := a.store.GetStructureNode(nodeID)
	if err != nil {
		return ChecklistResponse{}, err
	}
	if !ok {
		return ChecklistResponse{}, ErrNodeNotFound
	}

	points, err := a.resolveChecklist(node.ProjectID, node)
	if err != nil {
		return ChecklistResponse{}, err
	}
	checklist, err := a.attachHistory(node.ProjectID, node, session.ID, points, includeHistory)
	if err != nil {
		return ChecklistResponse{}, err
	}
	return ChecklistResponse{NodeName: node.Name, AuditPoints: checklist}, nil
}

// attachHistory wraps resolved points into checklist points, merging in
// prior results per (node, point) pair when requested. History is scoped to
// the node's project and excludes excludeSessionID's own items. Media
// presence is resolved with one set-membership query over all relevant
// items instead of per-item lookups.
func (a *App) attachHistory(projectID string, node domain.StructureNode, excludeSessionID string, points []domain.TemplateAuditPoint, includeHistory bool) ([]domain.ChecklistPoint, error) {
	checklist := make([]domain.ChecklistPoint, 0, len(points))
	for _, p := range points {
		checklist = append(checklist, domain.ChecklistPoint{TemplateAuditPoint: p})
	}
	if !includeHistory || len(points) == 0 {
		return checklist, nil
	}

	items, err := a.store.ListItemsByNode(node.ID)
	if err != nil {
		return nil, err
	}
	sessions, err := a.store.ListSessionsByProject(projectID)
	if err != nil {
		return nil, err
	}
	sessionByID := make(map[string]domain.AuditSession, len(sessions))
	for _, s := range sessions {
		sessionByID[s.ID] = s
	}
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, err
	}
	userByID := make(map[string]domain.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	relevant := make([]domain.AuditItem, 0, len(items))
	itemIDs := make([]string, 0, len(items))
	for _, item := range items {
		if item.AuditSessionID == excludeSessionID {
			continue
		}
		if _, ok := sessionByID[item.AuditSessionID]; !ok {
			continue
		}
		relevant = append(relevant, item)
		itemIDs = append(itemIDs, item.ID)
	}
	withMedia, err := a.store.ItemIDsWithMedia(itemIDs)
	if err != nil {
		return nil, err
	}

	historyByPoint := make(map[string][]domain.HistoryEntry)
	for _, item := range relevant {
		session := sessionByID[item.AuditSessionID]
		auditor := userByID[session.AuditorID]
		historyByPoint[item.TemplateAuditPointID] = append(historyByPoint[item.TemplateAuditPointID], domain.HistoryEntry{
			ItemID:      item.ID,
			Status:      item.Status,
			Notes:       item.Notes,
			CreatedAt:   item.CreatedAt,
			AuditorID:   session.AuditorID,
			AuditorName: auditor.Name,
			HasMedia:    withMedia[item.ID],
		})
	}
	for i := range checklist {
		if entries, ok := historyByPoint[checklist[i].ID]; ok {
			checklist[i].History = entries
		} else {
			checklist[i].History = []domain.HistoryEntry{}
		}
	}
	return checklist, nil
}
