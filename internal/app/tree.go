package app

import "snagaudit/pkg/domain"

// BuildTree materializes a project's flat node rows into a rooted tree.
// Children keep input order. Nodes whose parent id is not in the input are
// orphaned silently: they end up attached to no tree. Returns nil when the
// input holds no PROJECT-level node; callers treat that as a valid empty
// state, not an error.
func BuildTree(nodes []domain.StructureNode) *domain.TreeNode {
	byID := indexNodes(nodes)
	for _, n := range nodes {
		if n.LevelType == domain.LevelProject {
			return byID[n.ID]
		}
	}
	return nil
}

// LookupTreeNode builds the tree from the flat node set and returns the
// subtree rooted at nodeID, or nil when the node is absent.
func LookupTreeNode(nodes []domain.StructureNode, nodeID string) *domain.TreeNode {
	return indexNodes(nodes)[nodeID]
}

// indexNodes builds the id -> tree-node arena in a single pass and then
// wires children via parent pointers.
func indexNodes(nodes []domain.StructureNode) map[string]*domain.TreeNode {
	byID := make(map[string]*domain.TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &domain.TreeNode{
			StructureNode: n,
			IsAuditable:   n.LevelType.Auditable(),
			Children:      []*domain.TreeNode{},
		}
	}
	for _, n := range nodes {
		if n.ParentID == "" {
			continue
		}
		parent, ok := byID[n.ParentID]
		if !ok {
			// Dangling parent reference: the node stays orphaned.
			continue
		}
		parent.Children = append(parent.Children, byID[n.ID])
	}
	return byID
}

// Breadcrumb walks parent pointers from the given node up to the project
// root, collecting each ancestor except the PROJECT node itself, in
// root-to-node order. The walk stops quietly when a parent id is missing
// from the loaded node set, and a visited set bounds it against parent
// cycles in corrupt data.
func Breadcrumb(nodes []domain.StructureNode, start domain.StructureNode) []domain.Crumb {
	byID := make(map[string]domain.StructureNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	crumbs := []domain.Crumb{}
	seen := map[string]bool{start.ID: true}
	current := start
	for current.ParentID != "" {
		parent, ok := byID[current.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		current = parent
		if current.LevelType != domain.LevelProject {
			crumbs = append([]domain.Crumb{{
				ID:        current.ID,
				Name:      current.Name,
				LevelType: current.LevelType,
			}}, crumbs...)
		}
	}
	return crumbs
}
