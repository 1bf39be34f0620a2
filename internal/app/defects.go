package app

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"snagaudit/pkg/domain"
)

// ProjectWithSummary is one project row on the builder dashboard.
type ProjectWithSummary struct {
	domain.Project
	Summary domain.ProjectSummary `json:"summary"`
}

// ProjectSummaries recomputes the builder-facing aggregate for every
// project. No caching: dataset sizes stay in the low thousands of rows, so
// full scans per call are fine.
func (a *App) ProjectSummaries() ([]ProjectWithSummary, error) {
	projects, err := a.store.ListProjects()
	if err != nil {
		return nil, err
	}
	res := make([]ProjectWithSummary, 0, len(projects))
	for _, p := range projects {
		summary, err := a.projectSummary(p.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, ProjectWithSummary{Project: p, Summary: summary})
	}
	return res, nil
}

func (a *App) projectSummary(projectID string) (domain.ProjectSummary, error) {
	sessions, err := a.store.ListSessionsByProject(projectID)
	if err != nil {
		return domain.ProjectSummary{}, err
	}
	items, err := a.store.ListItemsByProject(projectID)
	if err != nil {
		return domain.ProjectSummary{}, err
	}

	summary := domain.ProjectSummary{TotalAudits: len(sessions)}
	for _, item := range items {
		if item.Status != domain.ItemFail {
			continue
		}
		summary.TotalDefects++
		point, ok, err := a.store.GetTemplatePoint(item.TemplateAuditPointID)
		if err != nil {
			return domain.ProjectSummary{}, err
		}
		if ok && point.Severity == domain.SeverityHigh {
			summary.CriticalDefects++
		}
	}
	// Guard the zero-item case: an unaudited project reports 0, not NaN.
	if len(items) > 0 {
		summary.PassRate = 100 * float64(len(items)-summary.TotalDefects) / float64(len(items))
	}
	return summary, nil
}

// ProjectDefects is the per-project remediation list.
type ProjectDefects struct {
	ProjectName string          `json:"project_name"`
	Defects     []domain.Defect `json:"defects"`
}

// GetProjectDefects lists a project's FAIL items with their structural and
// checklist context, sorted by severity then recency.
func (a *App) GetProjectDefects(projectID string) (ProjectDefects, error) {
	project, ok, err := a.store.GetProject(projectID)
	if err != nil {
		return ProjectDefects{}, err
	}
	if !ok {
		return ProjectDefects{}, ErrProjectNotFound
	}

	ctxData, err := a.loadDefectContext([]domain.Project{project})
	if err != nil {
		return ProjectDefects{}, err
	}
	items, err := a.store.ListItemsByProject(projectID)
	if err != nil {
		return ProjectDefects{}, err
	}
	failItems := make([]domain.AuditItem, 0, len(items))
	for _, item := range items {
		if item.Status == domain.ItemFail {
			failItems = append(failItems, item)
		}
	}
	defects, err := a.assembleDefects(failItems, ctxData)
	if err != nil {
		return ProjectDefects{}, err
	}
	sortDefects(defects)
	return ProjectDefects{ProjectName: project.Name, Defects: defects}, nil
}

// AllDefects lists every FAIL item across projects, sorted by severity then
// recency. Table loads fan out concurrently; each is an independent full
// scan.
func (a *App) AllDefects() ([]domain.Defect, error) {
	var (
		projects  []domain.Project
		failItems []domain.AuditItem
		ctxData   *defectContext
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		projects, err = a.store.ListProjects()
		if err != nil {
			return err
		}
		ctxData, err = a.loadDefectContext(projects)
		return err
	})
	g.Go(func() error {
		var err error
		failItems, err = a.store.ListFailItems()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	defects, err := a.assembleDefects(failItems, ctxData)
	if err != nil {
		return nil, err
	}
	sortDefects(defects)
	return defects, nil
}

// defectContext holds the lookup maps a defect row is joined against.
type defectContext struct {
	projects map[string]domain.Project
	sessions map[string]domain.AuditSession
	nodes    map[string]domain.StructureNode
	points   map[string]domain.TemplateAuditPoint
	users    map[string]domain.User
}

func (a *App) loadDefectContext(projects []domain.Project) (*defectContext, error) {
	ctxData := &defectContext{
		projects: make(map[string]domain.Project, len(projects)),
		sessions: make(map[string]domain.AuditSession),
		nodes:    make(map[string]domain.StructureNode),
		points:   make(map[string]domain.TemplateAuditPoint),
		users:    make(map[string]domain.User),
	}
	for _, p := range projects {
		ctxData.projects[p.ID] = p
	}

	sessions, err := a.store.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		ctxData.sessions[s.ID] = s
	}
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		ctxData.users[u.ID] = u
	}
	for _, p := range projects {
		nodes, err := a.store.ListStructureNodes(p.ID)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			ctxData.nodes[n.ID] = n
		}
		template, ok, err := a.store.GetTemplateByProject(p.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		points, err := a.store.ListTemplatePoints(template.ID)
		if err != nil {
			return nil, err
		}
		for _, pt := range points {
			ctxData.points[pt.ID] = pt
		}
	}
	return ctxData, nil
}

func (a *App) assembleDefects(items []domain.AuditItem, ctxData *defectContext) ([]domain.Defect, error) {
	itemIDs := make([]string, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	withMedia, err := a.store.ItemIDsWithMedia(itemIDs)
	if err != nil {
		return nil, err
	}

	defects := make([]domain.Defect, 0, len(items))
	for _, item := range items {
		session := ctxData.sessions[item.AuditSessionID]
		node := ctxData.nodes[item.StructureNodeID]
		point := ctxData.points[item.TemplateAuditPointID]
		project := ctxData.projects[session.ProjectID]
		auditor := ctxData.users[session.AuditorID]

		severity := point.Severity
		if severity == "" {
			severity = domain.SeverityMedium
		}
		defects = append(defects, domain.Defect{
			ID:             item.ID,
			ProjectID:      project.ID,
			ProjectName:    project.Name,
			NodeName:       node.Name,
			NodeLevel:      node.LevelType,
			AuditPointName: point.Name,
			Severity:       severity,
			Notes:          item.Notes,
			AuditorName:    auditor.Name,
			AuditDate:      item.CreatedAt,
			HasPhoto:       withMedia[item.ID],
		})
	}
	return defects, nil
}

// sortDefects orders by severity descending (HIGH, MEDIUM, LOW), then by
// audit timestamp descending.
func sortDefects(defects []domain.Defect) {
	sort.SliceStable(defects, func(i, j int) bool {
		ri, rj := defects[i].Severity.Rank(), defects[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return defects[i].AuditDate.After(defects[j].AuditDate)
	})
}
