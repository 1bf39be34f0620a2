package app

import (
	"fmt"
	"time"

	"snagaudit/pkg/domain"
	"snagaudit/pkg/storage"
	"snagaudit/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	// Store overrides the database-backed store when set (tests, demo mode).
	Store store.Store
	// Objects overrides the MinIO-backed blob store when set.
	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// App wires the storage layers together and carries the audit domain logic.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	presignExpiry time.Duration
}

// New constructs the application with database-backed metadata storage and
// object storage for audit photos.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}
	return &App{
		store:         dataStore,
		objects:       objects,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// ListProjects returns every project for the auditor's project picker.
func (a *App) ListProjects() ([]domain.Project, error) {
	return a.store.ListProjects()
}

// StructureTree returns the project's full structure tree. A project without
// a PROJECT-level root node yields nil, which is a valid empty state.
func (a *App) StructureTree(projectID string) (*domain.TreeNode, error) {
	if _, ok, err := a.store.GetProject(projectID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrProjectNotFound
	}
	nodes, err := a.store.ListStructureNodes(projectID)
	if err != nil {
		return nil, err
	}
	return BuildTree(nodes), nil
}

// NodeDetail is the structural context of one node: the node with its
// children, the checklist applicable at its level, and the breadcrumb
// from the root.
type NodeDetail struct {
	Node        *domain.TreeNode        `json:"node"`
	AuditPoints []domain.ChecklistPoint `json:"audit_points"`
	Breadcrumb  []domain.Crumb          `json:"breadcrumb"`
}

// GetNodeDetail resolves one node of a project together with its applicable
// checklist and breadcrumb. History from prior sessions is attached to each
// point when includeHistory is set.
func (a *App) GetNodeDetail(projectID, nodeID string, includeHistory bool) (NodeDetail, error) {
	nodes, err := a.store.ListStructureNodes(projectID)
	if err != nil {
		return NodeDetail{}, err
	}
	treeNode := LookupTreeNode(nodes, nodeID)
	if treeNode == nil {
		return NodeDetail{}, ErrNodeNotFound
	}

	points, err := a.resolveChecklist(projectID, treeNode.StructureNode)
	if err != nil {
		return NodeDetail{}, err
	}
	checklist, err := a.attachHistory(projectID, treeNode.StructureNode, "", points, includeHistory)
	if err != nil {
		return NodeDetail{}, err
	}

	return NodeDetail{
		Node:        treeNode,
		AuditPoints: checklist,
		Breadcrumb:  Breadcrumb(nodes, treeNode.StructureNode),
	}, nil
}
