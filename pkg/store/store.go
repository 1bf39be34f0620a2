package store

import (
	"time"

	"snagaudit/pkg/domain"
)

// Store defines persistence operations for the audit tracker. All reads
// return a found flag instead of an error for missing rows; writes insert
// new rows except SubmitSession, which performs the single status update
// the system needs.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUser(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)

	// projects
	SaveProject(domain.Project) error
	GetProject(id string) (domain.Project, bool, error)
	ListProjects() ([]domain.Project, error)

	// structure nodes
	SaveStructureNode(domain.StructureNode) error
	GetStructureNode(id string) (domain.StructureNode, bool, error)
	ListStructureNodes(projectID string) ([]domain.StructureNode, error)

	// templates and points
	SaveTemplate(domain.AuditTemplate) error
	GetTemplateByProject(projectID string) (domain.AuditTemplate, bool, error)
	SaveTemplatePoint(domain.TemplateAuditPoint) error
	GetTemplatePoint(id string) (domain.TemplateAuditPoint, bool, error)
	ListTemplatePoints(templateID string) ([]domain.TemplateAuditPoint, error)

	// sessions
	SaveSession(domain.AuditSession) error
	GetSession(id string) (domain.AuditSession, bool, error)
	ListSessionsByProject(projectID string) ([]domain.AuditSession, error)
	ListSessions() ([]domain.AuditSession, error)
	// SubmitSession atomically re-checks session state and the
	// FAIL-needs-media gate, then flips the session to SUBMITTED. The
	// check and the transition must not interleave with concurrent item
	// recording for the same session.
	SubmitSession(id string, submittedAt time.Time) (SubmitResult, error)

	// audit items
	// AppendItem inserts one item after atomically re-checking that its
	// session is still IN_PROGRESS. The check and the insert must not
	// interleave with a concurrent SubmitSession for the same session,
	// or a FAIL item without media could land in a SUBMITTED session.
	AppendItem(domain.AuditItem) (AppendItemResult, error)
	GetItem(id string) (domain.AuditItem, bool, error)
	ListItemsBySession(sessionID string) ([]domain.AuditItem, error)
	ListItemsByNode(nodeID string) ([]domain.AuditItem, error)
	ListItemsByProject(projectID string) ([]domain.AuditItem, error)
	ListFailItems() ([]domain.AuditItem, error)

	// media
	SaveMedia(domain.AuditMedia) error
	ListMediaByItem(itemID string) ([]domain.AuditMedia, error)
	// ItemIDsWithMedia returns the subset of the given item ids that have
	// at least one media row, as a set.
	ItemIDsWithMedia(itemIDs []string) (map[string]bool, error)
}

// SubmitResult reports the outcome of an atomic submit attempt. The caller
// maps it onto the domain error taxonomy.
type SubmitResult struct {
	Found              bool
	AlreadySubmitted   bool
	MissingMediaItemID string
	Submitted          bool
}

// AppendItemResult reports the outcome of an atomic item insert.
type AppendItemResult struct {
	SessionFound     bool
	SessionSubmitted bool
	Appended         bool
}
