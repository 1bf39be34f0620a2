package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Phone     string
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type ProjectModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Location  string
	CreatedAt time.Time `gorm:"not null"`
}

func (ProjectModel) TableName() string { return "projects" }

type StructureNodeModel struct {
	ID         string `gorm:"primaryKey"`
	ProjectID  string `gorm:"not null;index"`
	ParentID   string `gorm:"index"`
	LevelType  string `gorm:"not null"`
	Name       string `gorm:"not null"`
	OrderIndex int    `gorm:"not null;default:0"`
}

func (StructureNodeModel) TableName() string { return "structure_nodes" }

type AuditTemplateModel struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
}

func (AuditTemplateModel) TableName() string { return "audit_templates" }

type TemplateAuditPointModel struct {
	ID                  string `gorm:"primaryKey"`
	TemplateID          string `gorm:"not null;index;column:template_audit_id"`
	ApplicableLevelType string `gorm:"not null"`
	Name                string `gorm:"not null"`
	IsMandatory         bool   `gorm:"not null;default:false"`
	Severity            string `gorm:"not null"`
	OrderIndex          int    `gorm:"not null;default:0"`
}

func (TemplateAuditPointModel) TableName() string { return "template_audit_points" }

type AuditSessionModel struct {
	ID          string    `gorm:"primaryKey"`
	ProjectID   string    `gorm:"not null;index"`
	AuditorID   string    `gorm:"not null;index"`
	Status      string    `gorm:"not null;default:IN_PROGRESS"`
	CreatedAt   time.Time `gorm:"not null"`
	SubmittedAt *time.Time
}

func (AuditSessionModel) TableName() string { return "audit_sessions" }

// No unique constraint on (session, node, point): item recording is
// deliberately append-only and non-idempotent.
type AuditItemModel struct {
	ID                   string `gorm:"primaryKey"`
	AuditSessionID       string `gorm:"not null;index"`
	StructureNodeID      string `gorm:"not null;index"`
	TemplateAuditPointID string `gorm:"not null;index"`
	Status               string `gorm:"not null"`
	Notes                string
	CreatedAt            time.Time `gorm:"not null;index"`
}

func (AuditItemModel) TableName() string { return "audit_session_items" }

type AuditMediaModel struct {
	ID          string    `gorm:"primaryKey"`
	AuditItemID string    `gorm:"not null;index"`
	StorageKey  string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (AuditMediaModel) TableName() string { return "audit_media" }
