package domain

import "time"

type UserRole string

const (
	RoleBuilder UserRole = "BUILDER"
	RoleAuditor UserRole = "AUDITOR"
)

type LevelType string

const (
	LevelProject LevelType = "PROJECT"
	LevelBlock   LevelType = "BLOCK"
	LevelFloor   LevelType = "FLOOR"
	LevelUnit    LevelType = "UNIT"
	LevelRoom    LevelType = "ROOM"
)

// Auditable reports whether checklist results may be recorded at this level.
// Only units and rooms carry checklists; coarser levels are containers.
func (l LevelType) Auditable() bool {
	return l == LevelUnit || l == LevelRoom
}

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank orders severities for defect sorting, highest first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionSubmitted  SessionStatus = "SUBMITTED"
)

type ItemStatus string

const (
	ItemPass ItemStatus = "PASS"
	ItemFail ItemStatus = "FAIL"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StructureNode is one element of the building hierarchy. ParentID is empty
// only for the PROJECT-level root of a project's tree.
type StructureNode struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	LevelType  LevelType `json:"level_type"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"order_index"`
}

type AuditTemplate struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// TemplateAuditPoint is a single yes/no quality criterion defined once per
// template and level type. Immutable once created.
type TemplateAuditPoint struct {
	ID                  string    `json:"id"`
	TemplateID          string    `json:"template_audit_id"`
	ApplicableLevelType LevelType `json:"applicable_level_type"`
	Name                string    `json:"name"`
	IsMandatory         bool      `json:"is_mandatory"`
	Severity            Severity  `json:"severity"`
	OrderIndex          int       `json:"order_index"`
}

type AuditSession struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	AuditorID   string        `json:"auditor_id"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	SubmittedAt *time.Time    `json:"submitted_at"`
}

// AuditItem is one recorded checklist result. Items are append-only:
// re-checking the same point in the same session adds a new row.
type AuditItem struct {
	ID                   string     `json:"id"`
	AuditSessionID       string     `json:"audit_session_id"`
	StructureNodeID      string     `json:"structure_node_id"`
	TemplateAuditPointID string     `json:"template_audit_point_id"`
	Status               ItemStatus `json:"status"`
	Notes                string     `json:"notes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// AuditMedia references an externally stored photo by opaque storage key.
// Only existence matters to the evidence gate, never content.
type AuditMedia struct {
	ID          string    `json:"id"`
	AuditItemID string    `json:"audit_item_id"`
	StorageKey  string    `json:"storage_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// TreeNode is a structure node materialized into the project tree, with
// children in input order and the derived auditability flag.
type TreeNode struct {
	StructureNode
	IsAuditable bool        `json:"isAuditable"`
	Children    []*TreeNode `json:"children"`
}

// Crumb is one breadcrumb step between the project root and a node.
type Crumb struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LevelType LevelType `json:"level_type"`
}

// HistoryEntry is a prior audit result recorded against the same node and
// checklist point by another session.
type HistoryEntry struct {
	ItemID      string     `json:"item_id"`
	Status      ItemStatus `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	AuditorID   string     `json:"auditor_id"`
	AuditorName string     `json:"auditor_name"`
	HasMedia    bool       `json:"has_media"`
}

// ChecklistPoint is a template point resolved for a concrete node, optionally
// enriched with history from other sessions.
type ChecklistPoint struct {
	TemplateAuditPoint
	History []HistoryEntry `json:"history,omitempty"`
}

// ProjectSummary is the builder-facing aggregate for one project.
type ProjectSummary struct {
	TotalAudits     int     `json:"total_audits"`
	TotalDefects    int     `json:"total_defects"`
	PassRate        float64 `json:"pass_rate"`
	CriticalDefects int     `json:"critical_defects"`
}

// Defect is a FAIL audit item joined with its context for remediation lists.
type Defect struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id,omitempty"`
	ProjectName    string    `json:"project_name,omitempty"`
	NodeName       string    `json:"room_name"`
	NodeLevel      LevelType `json:"node_level"`
	AuditPointName string    `json:"audit_point_name"`
	Severity       Severity  `json:"severity"`
	Notes          string    `json:"notes"`
	AuditorName    string    `json:"auditor_name"`
	AuditDate      time.Time `json:"audit_date"`
	HasPhoto       bool      `json:"has_photo"`
}

// SessionSummary counts recorded results for one session.
type SessionSummary struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
}
