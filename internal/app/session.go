package app

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"snagaudit/pkg/domain"
	"snagaudit/pkg/store"
)

// defaultAuditorID backs session starts that carry no auditor. The matching
// user is provisioned on first use so demo clients work out of the box.
const defaultAuditorID = "user_1"

// StartSession opens a new IN_PROGRESS session for a project. An unknown
// auditor id is materialized as a new AUDITOR-role user rather than
// rejected; that get-or-create is deliberate bootstrap behavior.
func (a *App) StartSession(projectID, auditorID string) (domain.AuditSession, error) {
	if _, ok, err := a.store.GetProject(projectID); err != nil {
		return domain.AuditSession{}, err
	} else if !ok {
		return domain.AuditSession{}, ErrProjectNotFound
	}

	if auditorID == "" {
		auditorID = defaultAuditorID
	}
	if err := a.ensureAuditor(auditorID); err != nil {
		return domain.AuditSession{}, err
	}

	session := domain.AuditSession{
		ID:        store.NewID(),
		ProjectID: projectID,
		AuditorID: auditorID,
		Status:    domain.SessionInProgress,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveSession(session); err != nil {
		return domain.AuditSession{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// ensureAuditor is the idempotent get-or-create behind session start.
func (a *App) ensureAuditor(id string) error {
	_, ok, err := a.store.GetUser(id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return a.store.SaveUser(domain.User{
		ID:        id,
		Name:      "Default Auditor",
		Role:      domain.RoleAuditor,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordItemParams are the fields of one checklist result.
type RecordItemParams struct {
	SessionID string
	NodeID    string
	PointID   string
	Status    domain.ItemStatus
	Notes     string
}

// RecordItem appends one PASS/FAIL result to an in-progress session.
// Recording is never an update: checking the same point twice in the same
// session produces two rows.
func (a *App) RecordItem(p RecordItemParams) (domain.AuditItem, error) {
	session, ok, err := a.store.GetSession(p.SessionID)
	if err != nil {
		return domain.AuditItem{}, err
	}
	if !ok {
		return domain.AuditItem{}, ErrSessionNotFound
	}
	if session.Status != domain.SessionInProgress {
		return domain.AuditItem{}, ErrSessionSubmitted
	}
	if _, ok, err := a.store.GetStructureNode(p.NodeID); err != nil {
		return domain.AuditItem{}, err
	} else if !ok {
		return domain.AuditItem{}, ErrNodeNotFound
	}
	if _, ok, err := a.store.GetTemplatePoint(p.PointID); err != nil {
		return domain.AuditItem{}, err
	} else if !ok {
		return domain.AuditItem{}, ErrPointNotFound
	}

	item := domain.AuditItem{
		ID:                   store.NewID(),
		AuditSessionID:       p.SessionID,
		StructureNodeID:      p.NodeID,
		TemplateAuditPointID: p.PointID,
		Status:               p.Status,
		Notes:                p.Notes,
		CreatedAt:            time.Now().UTC(),
	}
	// The insert re-checks session status atomically in the store; the
	// status read above may already be stale by now.
	res, err := a.store.AppendItem(item)
	if err != nil {
		return domain.AuditItem{}, fmt.Errorf("save item: %w", err)
	}
	switch {
	case !res.SessionFound:
		return domain.AuditItem{}, ErrSessionNotFound
	case res.SessionSubmitted:
		return domain.AuditItem{}, ErrSessionSubmitted
	}
	return item, nil
}

// SubmitSession finalizes a session. Every FAIL item must carry at least one
// media reference; the first one found without aborts with an EvidenceError
// naming it. The gate and the transition run atomically in the store, so a
// concurrently recorded FAIL item cannot slip past the check.
func (a *App) SubmitSession(sessionID string) (time.Time, error) {
	submittedAt := time.Now().UTC()
	res, err := a.store.SubmitSession(sessionID, submittedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("submit session: %w", err)
	}
	switch {
	case !res.Found:
		return time.Time{}, ErrSessionNotFound
	case res.AlreadySubmitted:
		return time.Time{}, ErrSessionSubmitted
	case res.MissingMediaItemID != "":
		return time.Time{}, &EvidenceError{ItemID: res.MissingMediaItemID}
	}
	return submittedAt, nil
}

// SessionSummary counts the session's recorded results.
func (a *App) SessionSummary(sessionID string) (domain.SessionSummary, error) {
	if _, ok, err := a.store.GetSession(sessionID); err != nil {
		return domain.SessionSummary{}, err
	} else if !ok {
		return domain.SessionSummary{}, ErrSessionNotFound
	}
	items, err := a.store.ListItemsBySession(sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	summary := domain.SessionSummary{Total: len(items)}
	for _, item := range items {
		if item.Status == domain.ItemPass {
			summary.Pass++
		} else {
			summary.Fail++
		}
	}
	return summary, nil
}

// AttachMedia records a blob-store reference against an audit item. The key
// is opaque; only its existence feeds the evidence gate.
func (a *App) AttachMedia(itemID, storageKey string) (domain.AuditMedia, error) {
	if _, ok, err := a.store.GetItem(itemID); err != nil {
		return domain.AuditMedia{}, err
	} else if !ok {
		return domain.AuditMedia{}, ErrItemNotFound
	}
	media := domain.AuditMedia{
		ID:          store.NewID(),
		AuditItemID: itemID,
		StorageKey:  storageKey,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.SaveMedia(media); err != nil {
		return domain.AuditMedia{}, fmt.Errorf("save media: %w", err)
	}
	return media, nil
}

// MediaUpload is a pre-signed upload slot in the blob store.
type MediaUpload struct {
	URL        string `json:"url"`
	StorageKey string `json:"storageKey"`
}

// MediaUploadURL issues a pre-signed PUT URL for a photo of the given item.
// The client uploads directly to the blob store and then attaches the
// returned key.
func (a *App) MediaUploadURL(ctx context.Context, itemID, filename string) (MediaUpload, error) {
	if _, ok, err := a.store.GetItem(itemID); err != nil {
		return MediaUpload{}, err
	} else if !ok {
		return MediaUpload{}, ErrItemNotFound
	}
	key := buildMediaKey(itemID, filename)
	url, err := a.objects.PresignPut(ctx, key, a.presignExpiry)
	if err != nil {
		return MediaUpload{}, fmt.Errorf("presign upload: %w", err)
	}
	return MediaUpload{URL: url, StorageKey: key}, nil
}

// MediaLink is one stored media record with a short-lived review URL.
type MediaLink struct {
	domain.AuditMedia
	URL string `json:"url"`
}

// ListItemMedia returns an item's media records with pre-signed GET URLs so
// builders can review defect photos.
func (a *App) ListItemMedia(ctx context.Context, itemID string) ([]MediaLink, error) {
	if _, ok, err := a.store.GetItem(itemID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrItemNotFound
	}
	media, err := a.store.ListMediaByItem(itemID)
	if err != nil {
		return nil, err
	}
	links := make([]MediaLink, 0, len(media))
	for _, m := range media {
		url, err := a.objects.PresignGet(ctx, m.StorageKey, a.presignExpiry)
		if err != nil {
			return nil, fmt.Errorf("presign media %s: %w", m.ID, err)
		}
		links = append(links, MediaLink{AuditMedia: m, URL: url})
	}
	return links, nil
}

func buildMediaKey(itemID, filename string) string {
	ext := path.Ext(filename)
	if ext == "" || strings.ContainsAny(ext, "/\\") {
		ext = ".jpg"
	}
	return path.Join("audit-media", itemID, store.NewID()+strings.ToLower(ext))
}
