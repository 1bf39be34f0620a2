package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"snagaudit/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ProjectModel{},
		&StructureNodeModel{},
		&AuditTemplateModel{},
		&TemplateAuditPointModel{},
		&AuditSessionModel{},
		&AuditItemModel{},
		&AuditMediaModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser inserts a user, leaving existing rows untouched. Users are
// immutable after creation, so conflicts are ignored rather than updated.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// SaveProject inserts a project.
func (s *GormStore) SaveProject(p domain.Project) error {
	model := projectToModel(p)
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// GetProject returns a project by ID.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjects returns all projects ordered by created_at.
func (s *GormStore) ListProjects() ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// SaveStructureNode inserts one structure node.
func (s *GormStore) SaveStructureNode(n domain.StructureNode) error {
	model := nodeToModel(n)
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// GetStructureNode returns a node by ID.
func (s *GormStore) GetStructureNode(id string) (domain.StructureNode, bool, error) {
	var model StructureNodeModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.StructureNode{}, false, nil
		}
		return domain.StructureNode{}, false, err
	}
	return nodeFromModel(model), true, nil
}

// ListStructureNodes returns the flat node set of one project. Rows come
// back in insertion order; tree assembly preserves that order.
func (s *GormStore) ListStructureNodes(projectID string) ([]domain.StructureNode, error) {
	var models []StructureNodeModel
	if err := s.db.Where("project_id = ?", projectID).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.StructureNode, 0, len(models))
	for _, m := range models {
		res = append(res, nodeFromModel(m))
	}
	return res, nil
}

// SaveTemplate inserts the project's template.
func (s *GormStore) SaveTemplate(t domain.AuditTemplate) error {
	model := AuditTemplateModel{ID: t.ID, ProjectID: t.ProjectID, Name: t.Name}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// GetTemplateByProject returns the single template of a project.
func (s *GormStore) GetTemplateByProject(projectID string) (domain.AuditTemplate, bool, error) {
	var model AuditTemplateModel
	if err := s.db.First(&model, "project_id = ?", projectID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AuditTemplate{}, false, nil
		}
		return domain.AuditTemplate{}, false, err
	}
	return domain.AuditTemplate{ID: model.ID, ProjectID: model.ProjectID, Name: model.Name}, true, nil
}

// SaveTemplatePoint inserts one checklist definition.
func (s *GormStore) SaveTemplatePoint(p domain.TemplateAuditPoint) error {
	model := pointToModel(p)
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// GetTemplatePoint returns a checklist point by ID.
func (s *GormStore) GetTemplatePoint(id string) (domain.TemplateAuditPoint, bool, error) {
	var model TemplateAuditPointModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.TemplateAuditPoint{}, false, nil
		}
		return domain.TemplateAuditPoint{}, false, err
	}
	return pointFromModel(model), true, nil
}

// ListTemplatePoints returns a template's points ordered by order_index.
func (s *GormStore) ListTemplatePoints(templateID string) ([]domain.TemplateAuditPoint, error) {
	var models []TemplateAuditPointModel
	if err := s.db.Where("template_audit_id = ?", templateID).
		Order("order_index ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.TemplateAuditPoint, 0, len(models))
	for _, m := range models {
		res = append(res, pointFromModel(m))
	}
	return res, nil
}

// SaveSession inserts a new audit session.
func (s *GormStore) SaveSession(sess domain.AuditSession) error {
	model := sessionToModel(sess)
	return s.db.Create(&model).Error
}

// GetSession returns a session by ID.
func (s *GormStore) GetSession(id string) (domain.AuditSession, bool, error) {
	var model AuditSessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AuditSession{}, false, nil
		}
		return domain.AuditSession{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByProject returns a project's sessions ordered by created_at.
func (s *GormStore) ListSessionsByProject(projectID string) ([]domain.AuditSession, error) {
	return s.listSessions("created_at ASC", "project_id = ?", projectID)
}

// ListSessions returns all sessions ordered by created_at.
func (s *GormStore) ListSessions() ([]domain.AuditSession, error) {
	return s.listSessions("created_at ASC")
}

func (s *GormStore) listSessions(order string, conds ...any) ([]domain.AuditSession, error) {
	var models []AuditSessionModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AuditSession, 0, len(models))
	for _, m := range models {
		res = append(res, sessionFromModel(m))
	}
	return res, nil
}

// SubmitSession runs the evidence gate and the IN_PROGRESS->SUBMITTED
// transition in one transaction. The session row is locked for update so a
// concurrent item insert for the same session serializes against the check.
func (s *GormStore) SubmitSession(id string, submittedAt time.Time) (SubmitResult, error) {
	var res SubmitResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session AuditSessionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		res.Found = true
		if session.Status != string(domain.SessionInProgress) {
			res.AlreadySubmitted = true
			return nil
		}

		var items []AuditItemModel
		if err := tx.Where("audit_session_id = ? AND status = ?", id, string(domain.ItemFail)).
			Order("created_at ASC").Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			var count int64
			if err := tx.Model(&AuditMediaModel{}).
				Where("audit_item_id = ?", item.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				res.MissingMediaItemID = item.ID
				return nil
			}
		}

		if err := tx.Model(&AuditSessionModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":       string(domain.SessionSubmitted),
			"submitted_at": submittedAt,
		}).Error; err != nil {
			return err
		}
		res.Submitted = true
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}

// AppendItem inserts one audit item row after re-checking the session's
// status inside a transaction. The session row is locked FOR SHARE:
// concurrent inserts for the same session proceed in parallel, but any of
// them serializes against SubmitSession's FOR UPDATE lock, so an item can
// never land in a session that a concurrent submit just closed.
func (s *GormStore) AppendItem(item domain.AuditItem) (AppendItemResult, error) {
	var res AppendItemResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session AuditSessionModel
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			First(&session, "id = ?", item.AuditSessionID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		res.SessionFound = true
		if session.Status != string(domain.SessionInProgress) {
			res.SessionSubmitted = true
			return nil
		}
		model := itemToModel(item)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		res.Appended = true
		return nil
	})
	if err != nil {
		return AppendItemResult{}, err
	}
	return res, nil
}

// GetItem returns an audit item by ID.
func (s *GormStore) GetItem(id string) (domain.AuditItem, bool, error) {
	var model AuditItemModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AuditItem{}, false, nil
		}
		return domain.AuditItem{}, false, err
	}
	return itemFromModel(model), true, nil
}

// ListItemsBySession returns a session's items ordered by created_at.
func (s *GormStore) ListItemsBySession(sessionID string) ([]domain.AuditItem, error) {
	return s.listItems("audit_session_id = ?", sessionID)
}

// ListItemsByNode returns every item ever recorded against one node.
func (s *GormStore) ListItemsByNode(nodeID string) ([]domain.AuditItem, error) {
	return s.listItems("structure_node_id = ?", nodeID)
}

// ListItemsByProject returns all items across a project's sessions.
func (s *GormStore) ListItemsByProject(projectID string) ([]domain.AuditItem, error) {
	var models []AuditItemModel
	if err := s.db.
		Joins("JOIN audit_sessions ON audit_sessions.id = audit_session_items.audit_session_id").
		Where("audit_sessions.project_id = ?", projectID).
		Order("audit_session_items.created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AuditItem, 0, len(models))
	for _, m := range models {
		res = append(res, itemFromModel(m))
	}
	return res, nil
}

// ListFailItems returns every FAIL item across all projects.
func (s *GormStore) ListFailItems() ([]domain.AuditItem, error) {
	return s.listItems("status = ?", string(domain.ItemFail))
}

func (s *GormStore) listItems(cond string, args ...any) ([]domain.AuditItem, error) {
	var models []AuditItemModel
	if err := s.db.Where(cond, args...).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AuditItem, 0, len(models))
	for _, m := range models {
		res = append(res, itemFromModel(m))
	}
	return res, nil
}

// SaveMedia appends one media reference.
func (s *GormStore) SaveMedia(m domain.AuditMedia) error {
	model := AuditMediaModel{
		ID:          m.ID,
		AuditItemID: m.AuditItemID,
		StorageKey:  m.StorageKey,
		CreatedAt:   m.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// ListMediaByItem returns an item's media records ordered by created_at.
func (s *GormStore) ListMediaByItem(itemID string) ([]domain.AuditMedia, error) {
	var models []AuditMediaModel
	if err := s.db.Where("audit_item_id = ?", itemID).
		Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AuditMedia, 0, len(models))
	for _, m := range models {
		res = append(res, domain.AuditMedia{
			ID:          m.ID,
			AuditItemID: m.AuditItemID,
			StorageKey:  m.StorageKey,
			CreatedAt:   m.CreatedAt,
		})
	}
	return res, nil
}

// ItemIDsWithMedia resolves media existence for a batch of items in one query.
func (s *GormStore) ItemIDsWithMedia(itemIDs []string) (map[string]bool, error) {
	set := make(map[string]bool, len(itemIDs))
	if len(itemIDs) == 0 {
		return set, nil
	}
	var ids []string
	if err := s.db.Model(&AuditMediaModel{}).
		Distinct("audit_item_id").
		Where("audit_item_id IN ?", itemIDs).
		Pluck("audit_item_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Name:      m.Name,
		Phone:     m.Phone,
		Role:      domain.UserRole(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:        p.ID,
		Name:      p.Name,
		Location:  p.Location,
		CreatedAt: p.CreatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:        m.ID,
		Name:      m.Name,
		Location:  m.Location,
		CreatedAt: m.CreatedAt,
	}
}

func nodeToModel(n domain.StructureNode) StructureNodeModel {
	return StructureNodeModel{
		ID:         n.ID,
		ProjectID:  n.ProjectID,
		ParentID:   n.ParentID,
		LevelType:  string(n.LevelType),
		Name:       n.Name,
		OrderIndex: n.OrderIndex,
	}
}

func nodeFromModel(m StructureNodeModel) domain.StructureNode {
	return domain.StructureNode{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		ParentID:   m.ParentID,
		LevelType:  domain.LevelType(m.LevelType),
		Name:       m.Name,
		OrderIndex: m.OrderIndex,
	}
}

func pointToModel(p domain.TemplateAuditPoint) TemplateAuditPointModel {
	return TemplateAuditPointModel{
		ID:                  p.ID,
		TemplateID:          p.TemplateID,
		ApplicableLevelType: string(p.ApplicableLevelType),
		Name:                p.Name,
		IsMandatory:         p.IsMandatory,
		Severity:            string(p.Severity),
		OrderIndex:          p.OrderIndex,
	}
}

func pointFromModel(m TemplateAuditPointModel) domain.TemplateAuditPoint {
	return domain.TemplateAuditPoint{
		ID:                  m.ID,
		TemplateID:          m.TemplateID,
		ApplicableLevelType: domain.LevelType(m.ApplicableLevelType),
		Name:                m.Name,
		IsMandatory:         m.IsMandatory,
		Severity:            domain.Severity(m.Severity),
		OrderIndex:          m.OrderIndex,
	}
}

func sessionToModel(s domain.AuditSession) AuditSessionModel {
	return AuditSessionModel{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		AuditorID:   s.AuditorID,
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt,
		SubmittedAt: s.SubmittedAt,
	}
}

func sessionFromModel(m AuditSessionModel) domain.AuditSession {
	return domain.AuditSession{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		AuditorID:   m.AuditorID,
		Status:      domain.SessionStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		SubmittedAt: m.SubmittedAt,
	}
}

func itemToModel(i domain.AuditItem) AuditItemModel {
	return AuditItemModel{
		ID:                   i.ID,
		AuditSessionID:       i.AuditSessionID,
		StructureNodeID:      i.StructureNodeID,
		TemplateAuditPointID: i.TemplateAuditPointID,
		Status:               string(i.Status),
		Notes:                i.Notes,
		CreatedAt:            i.CreatedAt,
	}
}

func itemFromModel(m AuditItemModel) domain.AuditItem {
	return domain.AuditItem{
		ID:                   m.ID,
		AuditSessionID:       m.AuditSessionID,
		StructureNodeID:      m.StructureNodeID,
		TemplateAuditPointID: m.TemplateAuditPointID,
		Status:               domain.ItemStatus(m.Status),
		Notes:                m.Notes,
		CreatedAt:            m.CreatedAt,
	}
}
