package app

import (
	"errors"
	"testing"
	"time"

	"snagaudit/pkg/domain"
	"snagaudit/pkg/store"
)

func TestProjectSummaryPassRate(t *testing.T) {
	f := newFixture(t)

	// Unaudited project reports zeros, not a division error.
	summaries, err := f.app.ProjectSummaries()
	if err != nil {
		t.Fatalf("ProjectSummaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if s := summaries[0].Summary; s.TotalAudits != 0 || s.TotalDefects != 0 || s.PassRate != 0 {
		t.Fatalf("unaudited summary = %+v, want zeros", s)
	}

	session := f.startSession(t)
	for i := 0; i < 7; i++ {
		f.recordItem(t, session.ID, f.room1.ID, f.roomMedium.ID, domain.ItemPass, "")
	}
	f.recordItem(t, session.ID, f.room1.ID, f.roomHigh.ID, domain.ItemFail, "seepage")
	f.recordItem(t, session.ID, f.room2.ID, f.roomMedium.ID, domain.ItemFail, "paint")
	f.recordItem(t, session.ID, f.unit.ID, f.unitPoint.ID, domain.ItemFail, "door jam")

	summaries, err = f.app.ProjectSummaries()
	if err != nil {
		t.Fatalf("ProjectSummaries: %v", err)
	}
	s := summaries[0].Summary
	if s.TotalAudits != 1 {
		t.Fatalf("total audits = %d, want 1", s.TotalAudits)
	}
	if s.TotalDefects != 3 {
		t.Fatalf("total defects = %d, want 3", s.TotalDefects)
	}
	// 10 items, 3 FAIL: 100 * 7/10.
	if s.PassRate != 70.0 {
		t.Fatalf("pass rate = %v, want 70.0", s.PassRate)
	}
	// roomHigh and unitPoint are HIGH severity, roomMedium is not.
	if s.CriticalDefects != 2 {
		t.Fatalf("critical defects = %d, want 2", s.CriticalDefects)
	}
}

func TestGetProjectDefects(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t)

	f.recordItem(t, session.ID, f.room1.ID, f.roomMedium.ID, domain.ItemPass, "")
	failItem := f.recordItem(t, session.ID, f.room1.ID, f.roomHigh.ID, domain.ItemFail, "water stain on ceiling")
	f.attachMedia(t, failItem.ID)

	res, err := f.app.GetProjectDefects(f.project.ID)
	if err != nil {
		t.Fatalf("GetProjectDefects: %v", err)
	}
	if res.ProjectName != f.project.Name {
		t.Fatalf("project name = %q, want %q", res.ProjectName, f.project.Name)
	}
	if len(res.Defects) != 1 {
		t.Fatalf("got %d defects, want 1", len(res.Defects))
	}
	d := res.Defects[0]
	if d.ID != failItem.ID {
		t.Fatalf("defect id = %q, want %q", d.ID, failItem.ID)
	}
	if d.NodeName != f.room1.Name || d.NodeLevel != domain.LevelRoom {
		t.Fatalf("defect location = %q/%q, want %q/ROOM", d.NodeName, d.NodeLevel, f.room1.Name)
	}
	if d.AuditPointName != f.roomHigh.Name {
		t.Fatalf("defect point = %q, want %q", d.AuditPointName, f.roomHigh.Name)
	}
	if d.Severity != domain.SeverityHigh {
		t.Fatalf("defect severity = %q, want HIGH", d.Severity)
	}
	if d.Notes != "water stain on ceiling" {
		t.Fatalf("defect notes = %q", d.Notes)
	}
	if d.AuditorName == "" {
		t.Error("defect missing auditor name")
	}
	if !d.HasPhoto {
		t.Error("defect should report has_photo")
	}

	if _, err := f.app.GetProjectDefects("nope"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("unknown project err = %v, want ErrProjectNotFound", err)
	}
}

func TestDefectOrdering(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t)

	// Mix severities out of order; a LOW point first to exercise the full
	// rank spread.
	lowPoint := domain.TemplateAuditPoint{
		ID:                  "pt_room_low",
		TemplateID:          f.template.ID,
		ApplicableLevelType: domain.LevelRoom,
		Name:                "Switch plate alignment",
		Severity:            domain.SeverityLow,
		OrderIndex:          2,
	}
	if err := f.store.SaveTemplatePoint(lowPoint); err != nil {
		t.Fatalf("save point: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	saveFail := func(id, pointID string, at time.Time) {
		item := domain.AuditItem{
			ID:                   id,
			AuditSessionID:       session.ID,
			StructureNodeID:      f.room1.ID,
			TemplateAuditPointID: pointID,
			Status:               domain.ItemFail,
			CreatedAt:            at,
		}
		res, err := f.store.AppendItem(item)
		if err != nil || !res.Appended {
			t.Fatalf("append item %s: res=%+v err=%v", id, res, err)
		}
	}
	saveFail("it_low", lowPoint.ID, base)
	saveFail("it_high_old", f.roomHigh.ID, base.Add(1*time.Minute))
	saveFail("it_med", f.roomMedium.ID, base.Add(2*time.Minute))
	saveFail("it_high_new", f.roomHigh.ID, base.Add(3*time.Minute))

	res, err := f.app.GetProjectDefects(f.project.ID)
	if err != nil {
		t.Fatalf("GetProjectDefects: %v", err)
	}
	want := []string{"it_high_new", "it_high_old", "it_med", "it_low"}
	if len(res.Defects) != len(want) {
		t.Fatalf("got %d defects, want %d", len(res.Defects), len(want))
	}
	for i, id := range want {
		if res.Defects[i].ID != id {
			t.Fatalf("defects[%d] = %q, want %q (full order %+v)", i, res.Defects[i].ID, id, res.Defects)
		}
	}
}

func TestAllDefectsAcrossProjects(t *testing.T) {
	f := newFixture(t)

	// Second project with its own template and a FAIL of its own.
	second := domain.Project{ID: "proj_2", Name: "Second Project"}
	if err := f.store.SaveProject(second); err != nil {
		t.Fatalf("save project: %v", err)
	}
	root := domain.StructureNode{ID: "p2_root", ProjectID: second.ID, LevelType: domain.LevelProject, Name: "Second Project"}
	room := domain.StructureNode{ID: "p2_room", ProjectID: second.ID, ParentID: root.ID, LevelType: domain.LevelRoom, Name: "Lobby"}
	for _, n := range []domain.StructureNode{root, room} {
		if err := f.store.SaveStructureNode(n); err != nil {
			t.Fatalf("save node: %v", err)
		}
	}
	tmpl := domain.AuditTemplate{ID: "tmpl_2", ProjectID: second.ID, Name: "Second Checklist"}
	if err := f.store.SaveTemplate(tmpl); err != nil {
		t.Fatalf("save template: %v", err)
	}
	point := domain.TemplateAuditPoint{
		ID:                  "p2_point",
		TemplateID:          tmpl.ID,
		ApplicableLevelType: domain.LevelRoom,
		Name:                "Floor tiling",
		Severity:            domain.SeverityHigh,
	}
	if err := f.store.SaveTemplatePoint(point); err != nil {
		t.Fatalf("save point: %v", err)
	}

	sessionOne := f.startSession(t)
	f.recordItem(t, sessionOne.ID, f.room1.ID, f.roomMedium.ID, domain.ItemFail, "first project defect")
	sessionTwo, err := f.app.StartSession(second.ID, "")
	if err != nil {
		t.Fatalf("start second session: %v", err)
	}
	f.recordItem(t, sessionTwo.ID, room.ID, point.ID, domain.ItemFail, "second project defect")

	defects, err := f.app.AllDefects()
	if err != nil {
		t.Fatalf("AllDefects: %v", err)
	}
	if len(defects) != 2 {
		t.Fatalf("got %d defects, want 2", len(defects))
	}
	// Cross-project view carries project attribution; HIGH sorts first.
	if defects[0].ProjectName != second.Name {
		t.Fatalf("defects[0] project = %q, want %q", defects[0].ProjectName, second.Name)
	}
	if defects[1].ProjectName != f.project.Name {
		t.Fatalf("defects[1] project = %q, want %q", defects[1].ProjectName, f.project.Name)
	}
}

func TestAssembleDefectsSeverityFallback(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t)

	// Item referencing a point that no longer resolves falls back to MEDIUM.
	item := domain.AuditItem{
		ID:                   store.NewID(),
		AuditSessionID:       session.ID,
		StructureNodeID:      f.room1.ID,
		TemplateAuditPointID: "pt_deleted",
		Status:               domain.ItemFail,
		CreatedAt:            time.Now().UTC(),
	}
	if appended, err := f.store.AppendItem(item); err != nil || !appended.Appended {
		t.Fatalf("append item: res=%+v err=%v", appended, err)
	}

	res, err := f.app.GetProjectDefects(f.project.ID)
	if err != nil {
		t.Fatalf("GetProjectDefects: %v", err)
	}
	if len(res.Defects) != 1 {
		t.Fatalf("got %d defects, want 1", len(res.Defects))
	}
	if res.Defects[0].Severity != domain.SeverityMedium {
		t.Fatalf("severity = %q, want MEDIUM fallback", res.Defects[0].Severity)
	}
}
