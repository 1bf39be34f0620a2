package app

import (
	"context"
	"testing"
	"time"

	"snagaudit/pkg/domain"
	"snagaudit/pkg/storage"
	"snagaudit/pkg/store"
)

type fakeObjectStore struct{}

func (fakeObjectStore) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/put/" + key, nil
}

func (fakeObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/get/" + key, nil
}

var _ storage.ObjectStore = fakeObjectStore{}

func newEmptyApp(t *testing.T) *App {
	t.Helper()
	coreApp, err := New(Config{Store: store.NewMemoryStore(), Objects: fakeObjectStore{}})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return coreApp
}

// fixture is a small but complete project: one tower, one floor, one flat,
// two rooms, and a checklist with one UNIT point and two ROOM points.
type fixture struct {
	app      *App
	store    *store.MemoryStore
	project  domain.Project
	root     domain.StructureNode
	block    domain.StructureNode
	floor    domain.StructureNode
	unit     domain.StructureNode
	room1    domain.StructureNode
	room2    domain.StructureNode
	template domain.AuditTemplate

	unitPoint  domain.TemplateAuditPoint
	roomHigh   domain.TemplateAuditPoint
	roomMedium domain.TemplateAuditPoint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memStore := store.NewMemoryStore()
	coreApp, err := New(Config{Store: memStore, Objects: fakeObjectStore{}})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	f := &fixture{app: coreApp, store: memStore}
	now := time.Now().UTC()

	f.project = domain.Project{ID: "proj_1", Name: "Test Project", Location: "Test City", CreatedAt: now}
	if err := memStore.SaveProject(f.project); err != nil {
		t.Fatalf("save project: %v", err)
	}

	node := func(id, parentID string, level domain.LevelType, name string, order int) domain.StructureNode {
		n := domain.StructureNode{
			ID:         id,
			ProjectID:  f.project.ID,
			ParentID:   parentID,
			LevelType:  level,
			Name:       name,
			OrderIndex: order,
		}
		if err := memStore.SaveStructureNode(n); err != nil {
			t.Fatalf("save node %s: %v", id, err)
		}
		return n
	}
	f.root = node("node_root", "", domain.LevelProject, "Test Project", 0)
	f.block = node("node_block", f.root.ID, domain.LevelBlock, "Tower A", 0)
	f.floor = node("node_floor", f.block.ID, domain.LevelFloor, "Floor 1", 0)
	f.unit = node("node_unit", f.floor.ID, domain.LevelUnit, "Flat 101", 0)
	f.room1 = node("node_room1", f.unit.ID, domain.LevelRoom, "Living Room", 0)
	f.room2 = node("node_room2", f.unit.ID, domain.LevelRoom, "Kitchen", 1)

	f.template = domain.AuditTemplate{ID: "tmpl_1", ProjectID: f.project.ID, Name: "Standard Checklist"}
	if err := memStore.SaveTemplate(f.template); err != nil {
		t.Fatalf("save template: %v", err)
	}
	point := func(id string, level domain.LevelType, name string, severity domain.Severity, order int) domain.TemplateAuditPoint {
		p := domain.TemplateAuditPoint{
			ID:                  id,
			TemplateID:          f.template.ID,
			ApplicableLevelType: level,
			Name:                name,
			IsMandatory:         true,
			Severity:            severity,
			OrderIndex:          order,
		}
		if err := memStore.SaveTemplatePoint(p); err != nil {
			t.Fatalf("save point %s: %v", id, err)
		}
		return p
	}
	f.unitPoint = point("pt_unit", domain.LevelUnit, "Main door alignment", domain.SeverityHigh, 0)
	f.roomHigh = point("pt_room_high", domain.LevelRoom, "Ceiling seepage", domain.SeverityHigh, 0)
	f.roomMedium = point("pt_room_med", domain.LevelRoom, "Wall paint finish", domain.SeverityMedium, 1)

	return f
}

func (f *fixture) startSession(t *testing.T) domain.AuditSession {
	t.Helper()
	session, err := f.app.StartSession(f.project.ID, "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return session
}

func (f *fixture) recordItem(t *testing.T, sessionID, nodeID, pointID string, status domain.ItemStatus, notes string) domain.AuditItem {
	t.Helper()
	item, err := f.app.RecordItem(RecordItemParams{
		SessionID: sessionID,
		NodeID:    nodeID,
		PointID:   pointID,
		Status:    status,
		Notes:     notes,
	})
	if err != nil {
		t.Fatalf("RecordItem(%s, %s): %v", pointID, status, err)
	}
	return item
}

func (f *fixture) attachMedia(t *testing.T, itemID string) domain.AuditMedia {
	t.Helper()
	media, err := f.app.AttachMedia(itemID, "audit-media/"+itemID+"/photo.jpg")
	if err != nil {
		t.Fatalf("AttachMedia(%s): %v", itemID, err)
	}
	return media
}
