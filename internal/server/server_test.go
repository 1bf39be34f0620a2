package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"snagaudit/internal/app"
	"snagaudit/pkg/domain"
	"snagaudit/pkg/storage"
	"snagaudit/pkg/store"
)

type stubObjectStore struct{}

func (stubObjectStore) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/put/" + key, nil
}

func (stubObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/get/" + key, nil
}

var _ storage.ObjectStore = stubObjectStore{}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	memStore := store.NewMemoryStore()
	coreApp, err := app.New(app.Config{Store: memStore, Objects: stubObjectStore{}})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	cfg.App = coreApp
	cfg.RedisAddr = mr.Addr()
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, memStore
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, raw
}

func decodeInto(t *testing.T, raw []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode response %q: %v", raw, err)
	}
}

// roomAndPoints finds one seeded ROOM node and the checklist points that
// apply at ROOM level.
func roomAndPoints(t *testing.T, memStore *store.MemoryStore, projectID string) (domain.StructureNode, []domain.TemplateAuditPoint) {
	t.Helper()
	nodes, err := memStore.ListStructureNodes(projectID)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	var room domain.StructureNode
	for _, n := range nodes {
		if n.LevelType == domain.LevelRoom {
			room = n
			break
		}
	}
	if room.ID == "" {
		t.Fatal("seed produced no ROOM node")
	}
	tmpl, ok, err := memStore.GetTemplateByProject(projectID)
	if err != nil || !ok {
		t.Fatalf("template lookup: ok=%v err=%v", ok, err)
	}
	allPoints, err := memStore.ListTemplatePoints(tmpl.ID)
	if err != nil {
		t.Fatalf("list points: %v", err)
	}
	var roomPoints []domain.TemplateAuditPoint
	for _, p := range allPoints {
		if p.ApplicableLevelType == domain.LevelRoom {
			roomPoints = append(roomPoints, p)
		}
	}
	return room, roomPoints
}

func TestAuditWorkflowEndToEnd(t *testing.T) {
	ts, memStore := newTestServer(t, Config{
		DemoSeed:                  true,
		SessionRateLimitPerMinute: 100,
		SeedRateLimitPerMinute:    100,
	})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/seed", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed status = %d, want 201", resp.StatusCode)
	}

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/api/v1/auditor/projects", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list projects status = %d, want 200", resp.StatusCode)
	}
	var projects []domain.Project
	decodeInto(t, raw, &projects)
	if len(projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(projects))
	}
	projectID := projects[0].ID

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/projects/"+projectID+"/structure", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("structure status = %d, want 200", resp.StatusCode)
	}
	var tree domain.TreeNode
	decodeInto(t, raw, &tree)
	if tree.LevelType != domain.LevelProject {
		t.Fatalf("root level = %q, want PROJECT", tree.LevelType)
	}
	if len(tree.Children) != 3 {
		t.Fatalf("root has %d children, want 3 towers", len(tree.Children))
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-sessions", map[string]string{"projectId": projectID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session status = %d, want 201: %s", resp.StatusCode, raw)
	}
	var session domain.AuditSession
	decodeInto(t, raw, &session)
	if session.Status != domain.SessionInProgress {
		t.Fatalf("session status = %q, want IN_PROGRESS", session.Status)
	}

	room, roomPoints := roomAndPoints(t, memStore, projectID)
	if len(roomPoints) != 7 {
		t.Fatalf("got %d ROOM points, want 7", len(roomPoints))
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/audit-sessions/"+session.ID+"/checklist/"+room.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checklist status = %d, want 200", resp.StatusCode)
	}
	var checklist app.ChecklistResponse
	decodeInto(t, raw, &checklist)
	if checklist.NodeName != room.Name {
		t.Fatalf("checklist node = %q, want %q", checklist.NodeName, room.Name)
	}
	if len(checklist.AuditPoints) != 7 {
		t.Fatalf("checklist has %d points, want 7", len(checklist.AuditPoints))
	}

	record := func(pointID string, status domain.ItemStatus, notes string) domain.AuditItem {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-items", map[string]string{
			"auditSessionId":       session.ID,
			"structureNodeId":      room.ID,
			"templateAuditPointId": pointID,
			"status":               string(status),
			"notes":                notes,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record item status = %d, want 201: %s", resp.StatusCode, raw)
		}
		var item domain.AuditItem
		decodeInto(t, raw, &item)
		return item
	}

	record(roomPoints[0].ID, domain.ItemPass, "")
	failItem := record(roomPoints[1].ID, domain.ItemFail, "hairline crack near the window")

	// Submit is refused while the FAIL item has no photo.
	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-sessions/"+session.ID+"/submit", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("submit without media status = %d, want 400", resp.StatusCode)
	}
	var refusal struct {
		OK                 bool   `json:"ok"`
		MissingMediaItemID string `json:"missingMediaItemId"`
	}
	decodeInto(t, raw, &refusal)
	if refusal.OK {
		t.Fatal("refused submit reported ok=true")
	}
	if refusal.MissingMediaItemID != failItem.ID {
		t.Fatalf("missingMediaItemId = %q, want %q", refusal.MissingMediaItemID, failItem.ID)
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-items/"+failItem.ID+"/media/upload-url", map[string]string{"filename": "crack.jpg"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload-url status = %d, want 200: %s", resp.StatusCode, raw)
	}
	var upload app.MediaUpload
	decodeInto(t, raw, &upload)
	if upload.URL == "" || upload.StorageKey == "" {
		t.Fatalf("incomplete upload grant: %+v", upload)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-items/"+failItem.ID+"/media", map[string]string{"storageKey": upload.StorageKey})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("attach media status = %d, want 201", resp.StatusCode)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/audit-items/"+failItem.ID+"/media", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list media status = %d, want 200", resp.StatusCode)
	}
	var mediaList struct {
		Items []app.MediaLink `json:"items"`
		Count int             `json:"count"`
	}
	decodeInto(t, raw, &mediaList)
	if mediaList.Count != 1 || len(mediaList.Items) != 1 {
		t.Fatalf("media count = %d, want 1", mediaList.Count)
	}
	if mediaList.Items[0].URL == "" {
		t.Fatal("media listing has no review URL")
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-sessions/"+session.ID+"/submit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d, want 200: %s", resp.StatusCode, raw)
	}
	var submitted struct {
		OK bool `json:"ok"`
	}
	decodeInto(t, raw, &submitted)
	if !submitted.OK {
		t.Fatal("submit reported ok=false")
	}

	// The session is now closed: no more submits, no more items.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-sessions/"+session.ID+"/submit", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second submit status = %d, want 409", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-items", map[string]string{
		"auditSessionId":       session.ID,
		"structureNodeId":      room.ID,
		"templateAuditPointId": roomPoints[2].ID,
		"status":               "PASS",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("record after submit status = %d, want 409", resp.StatusCode)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/audit-sessions/"+session.ID+"/summary", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d, want 200", resp.StatusCode)
	}
	var summary domain.SessionSummary
	decodeInto(t, raw, &summary)
	if summary.Total != 2 || summary.Pass != 1 || summary.Fail != 1 {
		t.Fatalf("summary = %+v, want total=2 pass=1 fail=1", summary)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/builder/projects", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("builder projects status = %d, want 200", resp.StatusCode)
	}
	var summaries []app.ProjectWithSummary
	decodeInto(t, raw, &summaries)
	if len(summaries) != 1 {
		t.Fatalf("got %d builder projects, want 1", len(summaries))
	}
	got := summaries[0].Summary
	if got.TotalAudits != 1 || got.TotalDefects != 1 {
		t.Fatalf("project summary = %+v, want 1 audit and 1 defect", got)
	}
	if got.PassRate != 50.0 {
		t.Fatalf("pass rate = %v, want 50.0", got.PassRate)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/builder/projects/"+projectID+"/defects", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("project defects status = %d, want 200", resp.StatusCode)
	}
	var projectDefects app.ProjectDefects
	decodeInto(t, raw, &projectDefects)
	if len(projectDefects.Defects) != 1 {
		t.Fatalf("got %d defects, want 1", len(projectDefects.Defects))
	}
	defect := projectDefects.Defects[0]
	if defect.NodeName != room.Name {
		t.Fatalf("defect room = %q, want %q", defect.NodeName, room.Name)
	}
	if !defect.HasPhoto {
		t.Fatal("defect should report has_photo after media attach")
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/builder/all-defects", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("all-defects status = %d, want 200", resp.StatusCode)
	}
	var allDefects struct {
		Defects []domain.Defect `json:"defects"`
	}
	decodeInto(t, raw, &allDefects)
	if len(allDefects.Defects) != 1 {
		t.Fatalf("got %d cross-project defects, want 1", len(allDefects.Defects))
	}
	if allDefects.Defects[0].ProjectName != projects[0].Name {
		t.Fatalf("defect project = %q, want %q", allDefects.Defects[0].ProjectName, projects[0].Name)
	}
}

func TestSeedEndpointGuards(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts, _ := newTestServer(t, Config{DemoSeed: false})
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/seed", nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("seed status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("refuses second seed", func(t *testing.T) {
		ts, _ := newTestServer(t, Config{DemoSeed: true, SeedRateLimitPerMinute: 100})
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/seed", nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("first seed status = %d, want 201", resp.StatusCode)
		}
		resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/seed", nil)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("second seed status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		ts, _ := newTestServer(t, Config{DemoSeed: true})
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/seed", nil)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("seed status = %d, want 405", resp.StatusCode)
		}
	})
}

func TestSessionStartRateLimit(t *testing.T) {
	ts, memStore := newTestServer(t, Config{SessionRateLimitPerMinute: 2})

	project := domain.Project{ID: store.NewID(), Name: "Limit Test", CreatedAt: time.Now().UTC()}
	if err := memStore.SaveProject(project); err != nil {
		t.Fatalf("save project: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-sessions", map[string]string{"projectId": project.ID})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("session start %d status = %d, want 201: %s", i+1, resp.StatusCode, raw)
		}
	}
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/audit-sessions", map[string]string{"projectId": project.ID})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("session start over quota status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("429 response missing Retry-After")
	}
}

func TestValidationAndNotFound(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"start session without project", http.MethodPost, "/api/v1/audit-sessions", map[string]string{}, http.StatusBadRequest},
		{"start session unknown project", http.MethodPost, "/api/v1/audit-sessions", map[string]string{"projectId": "nope"}, http.StatusNotFound},
		{"structure of unknown project", http.MethodGet, "/api/v1/projects/nope/structure", nil, http.StatusNotFound},
		{"record item bad status", http.MethodPost, "/api/v1/audit-items", map[string]string{
			"auditSessionId": "s", "structureNodeId": "n", "templateAuditPointId": "p", "status": "MAYBE",
		}, http.StatusBadRequest},
		{"summary of unknown session", http.MethodGet, "/api/v1/audit-sessions/nope/summary", nil, http.StatusNotFound},
		{"media for unknown item", http.MethodPost, "/api/v1/audit-items/nope/media", map[string]string{"storageKey": "k"}, http.StatusNotFound},
		{"defects of unknown project", http.MethodGet, "/api/v1/builder/projects/nope/defects", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := doJSON(t, tc.method, ts.URL+tc.path, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tc.want, raw)
			}
		})
	}
}

func TestRequestIDEchoedInErrors(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/audit-sessions/nope/summary", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Request-Id", "req-test-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var body struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	if body.RequestID != "req-test-123" {
		t.Fatalf("requestId = %q, want %q", body.RequestID, "req-test-123")
	}
	if got := resp.Header.Get("X-Request-Id"); got != "req-test-123" {
		t.Fatalf("response header X-Request-Id = %q", got)
	}
}
