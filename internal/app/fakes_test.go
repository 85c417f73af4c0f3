package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"mosaic/api/internal/config"
	"mosaic/api/internal/export"
	"mosaic/api/internal/realtime"
	"mosaic/api/internal/search"
	"mosaic/api/internal/snapshot"
	"mosaic/api/internal/store"
)

type fakeStore struct {
	ensureUserByEmailFn  func(context.Context, string, string) (store.User, error)
	getUserByIDFn        func(context.Context, string) (store.User, error)
	isRevokedFn          func(context.Context, string) (bool, error)
	listAppsFn           func(context.Context, string) ([]store.App, error)
	createAppFn          func(context.Context, string, string) (store.App, error)
	archiveAppFn         func(context.Context, string, string) error
	getAppForOwnerFn     func(context.Context, string, string) (store.App, error)
	getOrCreateCanvasFn  func(context.Context, string, string) (store.Canvas, error)
	updateCanvasFn       func(context.Context, string, string, string, store.CanvasPatch) (store.Canvas, error)
	createElementFn      func(context.Context, string, string, string, store.CanvasElement) (store.CanvasElement, error)
	updateElementFn      func(context.Context, string, string, string, string, store.ElementPatch) (store.CanvasElement, error)
	deleteElementFn      func(context.Context, string, string, string, string) (store.CanvasElement, error)
	duplicateElementFn   func(context.Context, string, string, string, string, string, float64, float64) (store.CanvasElement, error)
	replaceCanvasStateFn func(context.Context, string, string, string, []store.CanvasElement, []string, store.CanvasPatch, store.JSONMap) (store.Canvas, error)
	listHistoryFn        func(context.Context, string, string, int) ([]store.HistoryEntry, error)
}

func (f *fakeStore) EnsureUserByEmail(ctx context.Context, email, displayName string) (store.User, error) {
	if f.ensureUserByEmailFn != nil {
		return f.ensureUserByEmailFn(ctx, email, displayName)
	}
	return store.User{ID: "usr_1", Email: email, DisplayName: displayName}, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, Email: "avery@example.com", DisplayName: "Avery"}, nil
}

func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isRevokedFn != nil {
		return f.isRevokedFn(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) ListApps(ctx context.Context, ownerID string) ([]store.App, error) {
	if f.listAppsFn != nil {
		return f.listAppsFn(ctx, ownerID)
	}
	return []store.App{}, nil
}

func (f *fakeStore) CreateApp(ctx context.Context, ownerID, name string) (store.App, error) {
	if f.createAppFn != nil {
		return f.createAppFn(ctx, ownerID, name)
	}
	return store.App{ID: "app_1", Name: name, OwnerID: ownerID}, nil
}

func (f *fakeStore) ArchiveApp(ctx context.Context, appID, ownerID string) error {
	if f.archiveAppFn != nil {
		return f.archiveAppFn(ctx, appID, ownerID)
	}
	return nil
}

func (f *fakeStore) GetAppForOwner(ctx context.Context, appID, ownerID string) (store.App, error) {
	if f.getAppForOwnerFn != nil {
		return f.getAppForOwnerFn(ctx, appID, ownerID)
	}
	return store.App{ID: appID, OwnerID: ownerID}, nil
}

func (f *fakeStore) GetOrCreateCanvas(ctx context.Context, appID, ownerID string) (store.Canvas, error) {
	if f.getOrCreateCanvasFn != nil {
		return f.getOrCreateCanvasFn(ctx, appID, ownerID)
	}
	return store.Canvas{ID: "cvs_1", AppID: appID, Elements: []store.CanvasElement{}}, nil
}

func (f *fakeStore) UpdateCanvas(ctx context.Context, appID, ownerID, userID string, patch store.CanvasPatch) (store.Canvas, error) {
	if f.updateCanvasFn != nil {
		return f.updateCanvasFn(ctx, appID, ownerID, userID, patch)
	}
	return store.Canvas{ID: "cvs_1", AppID: appID}, nil
}

func (f *fakeStore) CreateElement(ctx context.Context, appID, ownerID, userID string, el store.CanvasElement) (store.CanvasElement, error) {
	if f.createElementFn != nil {
		return f.createElementFn(ctx, appID, ownerID, userID, el)
	}
	el.ID = 1
	return el, nil
}

func (f *fakeStore) UpdateElement(ctx context.Context, appID, ownerID, userID, elementID string, patch store.ElementPatch) (store.CanvasElement, error) {
	if f.updateElementFn != nil {
		return f.updateElementFn(ctx, appID, ownerID, userID, elementID, patch)
	}
	return store.CanvasElement{ID: 1, ElementID: elementID}, nil
}

func (f *fakeStore) DeleteElement(ctx context.Context, appID, ownerID, userID, elementID string) (store.CanvasElement, error) {
	if f.deleteElementFn != nil {
		return f.deleteElementFn(ctx, appID, ownerID, userID, elementID)
	}
	return store.CanvasElement{ID: 1, ElementID: elementID}, nil
}

func (f *fakeStore) DuplicateElement(ctx context.Context, appID, ownerID, userID, elementID, newElementID string, offsetX, offsetY float64) (store.CanvasElement, error) {
	if f.duplicateElementFn != nil {
		return f.duplicateElementFn(ctx, appID, ownerID, userID, elementID, newElementID, offsetX, offsetY)
	}
	return store.CanvasElement{ID: 2, ElementID: newElementID}, nil
}

func (f *fakeStore) ReplaceCanvasState(ctx context.Context, appID, ownerID, userID string, rows []store.CanvasElement, incomingIDs []string, patch store.CanvasPatch, snapshotState store.JSONMap) (store.Canvas, error) {
	if f.replaceCanvasStateFn != nil {
		return f.replaceCanvasStateFn(ctx, appID, ownerID, userID, rows, incomingIDs, patch, snapshotState)
	}
	return store.Canvas{ID: "cvs_1", AppID: appID, Elements: rows}, nil
}

func (f *fakeStore) ListHistory(ctx context.Context, appID, ownerID string, limit int) ([]store.HistoryEntry, error) {
	if f.listHistoryFn != nil {
		return f.listHistoryFn(ctx, appID, ownerID, limit)
	}
	return []store.HistoryEntry{}, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	saveFn   func(context.Context, string, store.User, time.Time) error
	lookupFn func(context.Context, string) (store.User, error)
	revokeFn func(context.Context, string) error
}

func (f *fakeSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, tokenHash, user, expiresAt)
	}
	return nil
}

func (f *fakeSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupFn != nil {
		return f.lookupFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeFn != nil {
		return f.revokeFn(ctx, tokenHash)
	}
	return nil
}

type publishedEvent struct {
	channel string
	event   realtime.Event
}

type fakePublisher struct {
	events chan publishedEvent
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(chan publishedEvent, 16)}
}

func (f *fakePublisher) Publish(_ context.Context, channel string, event realtime.Event) error {
	f.events <- publishedEvent{channel: channel, event: event}
	return nil
}

// wait blocks for the next broadcast; publishing is fire-and-forget so tests
// must synchronize on it.
func (f *fakePublisher) wait(t *testing.T) publishedEvent {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return publishedEvent{}
	}
}

type fakeCatalog struct {
	searchFn func(context.Context, search.Query) ([]search.TemplateRecord, error)
}

func (f *fakeCatalog) Search(ctx context.Context, q search.Query) ([]search.TemplateRecord, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return []search.TemplateRecord{}, nil
}

type fakeSnapshots struct {
	commitFn  func(string, json.RawMessage, string, string) (snapshot.CommitInfo, error)
	historyFn func(string, int) ([]snapshot.CommitInfo, error)
	getFn     func(string, string) (json.RawMessage, error)
}

func (f *fakeSnapshots) Commit(appID string, state json.RawMessage, author, message string) (snapshot.CommitInfo, error) {
	if f.commitFn != nil {
		return f.commitFn(appID, state, author, message)
	}
	return snapshot.CommitInfo{Hash: "abc1234"}, nil
}

func (f *fakeSnapshots) History(appID string, limit int) ([]snapshot.CommitInfo, error) {
	if f.historyFn != nil {
		return f.historyFn(appID, limit)
	}
	return []snapshot.CommitInfo{}, nil
}

func (f *fakeSnapshots) Get(appID, hash string) (json.RawMessage, error) {
	if f.getFn != nil {
		return f.getFn(appID, hash)
	}
	return json.RawMessage(`{}`), nil
}

type fakeExporter struct {
	exportFn func(store.Canvas) (*export.Result, error)
}

func (f *fakeExporter) Export(canvas store.Canvas) (*export.Result, error) {
	if f.exportFn != nil {
		return f.exportFn(canvas)
	}
	return &export.Result{Data: []byte("%PDF"), Filename: "canvas.pdf", MimeType: "application/pdf"}, nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:     fs,
		sessions:  &fakeSessions{},
		publisher: newFakePublisher(),
		catalog:   &fakeCatalog{},
		snapshots: &fakeSnapshots{},
		exporter:  &fakeExporter{},
	}
}
