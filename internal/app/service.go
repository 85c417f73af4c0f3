package app

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"mosaic/api/internal/assets"
	"mosaic/api/internal/auth"
	"mosaic/api/internal/config"
	"mosaic/api/internal/export"
	"mosaic/api/internal/realtime"
	"mosaic/api/internal/search"
	"mosaic/api/internal/session"
	"mosaic/api/internal/snapshot"
	"mosaic/api/internal/store"
	"mosaic/api/internal/util"

	"github.com/google/uuid"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

// CanvasUpdateInput is a partial canvas update. Nil fields are left
// unchanged; a blank name is ignored rather than applied.
type CanvasUpdateInput struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Width       *int           `json:"width"`
	Height      *int           `json:"height"`
	Background  map[string]any `json:"background"`
	GridEnabled *bool          `json:"gridEnabled"`
	SnapEnabled *bool          `json:"snapEnabled"`
	ZoomLevel   *float64       `json:"zoomLevel"`
}

type CreateElementInput struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	X           *float64       `json:"x"`
	Y           *float64       `json:"y"`
	Width       *float64       `json:"width"`
	Height      *float64       `json:"height"`
	Rotation    *float64       `json:"rotation"`
	ZIndex      *int           `json:"zIndex"`
	GroupID     *string        `json:"groupId"`
	ParentID    *int64         `json:"parentId"`
	Properties  map[string]any `json:"properties"`
	Styles      map[string]any `json:"styles"`
	Constraints map[string]any `json:"constraints"`
}

type UpdateElementInput struct {
	Name        *string        `json:"name"`
	X           *float64       `json:"x"`
	Y           *float64       `json:"y"`
	Width       *float64       `json:"width"`
	Height      *float64       `json:"height"`
	Rotation    *float64       `json:"rotation"`
	ZIndex      *int           `json:"zIndex"`
	Locked      *bool          `json:"locked"`
	Visible     *bool          `json:"visible"`
	GroupID     *string        `json:"groupId"`
	ParentID    *int64         `json:"parentId"`
	Properties  map[string]any `json:"properties"`
	Styles      map[string]any `json:"styles"`
	Constraints map[string]any `json:"constraints"`
}

type DuplicateElementInput struct {
	OffsetX *float64 `json:"offsetX"`
	OffsetY *float64 `json:"offsetY"`
}

// StateElement is one element of a bulk canvas save. The editor sends a flat
// shape with style values at the top level; the store keeps them in a styles
// map, so saving re-derives that split.
type StateElement struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Name            string         `json:"name"`
	X               *float64       `json:"x"`
	Y               *float64       `json:"y"`
	Width           *float64       `json:"width"`
	Height          *float64       `json:"height"`
	Rotation        *float64       `json:"rotation"`
	ZIndex          *int           `json:"zIndex"`
	GroupID         *string        `json:"groupId"`
	Opacity         *float64       `json:"opacity"`
	BackgroundColor any            `json:"backgroundColor"`
	Color           any            `json:"color"`
	FontSize        any            `json:"fontSize"`
	FontWeight      any            `json:"fontWeight"`
	TextAlign       any            `json:"textAlign"`
	BorderRadius    any            `json:"borderRadius"`
	BorderWidth     any            `json:"borderWidth"`
	BorderColor     any            `json:"borderColor"`
	Properties      map[string]any `json:"properties"`
	Constraints     map[string]any `json:"constraints"`
}

type CanvasStateInput struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Width       *int           `json:"width"`
	Height      *int           `json:"height"`
	Background  map[string]any `json:"background"`
	GridEnabled *bool          `json:"gridEnabled"`
	SnapEnabled *bool          `json:"snapEnabled"`
	ZoomLevel   *float64       `json:"zoomLevel"`
	Elements    []StateElement `json:"elements"`
}

type dataStore interface {
	EnsureUserByEmail(ctx context.Context, email, displayName string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	ListApps(ctx context.Context, ownerID string) ([]store.App, error)
	CreateApp(ctx context.Context, ownerID, name string) (store.App, error)
	ArchiveApp(ctx context.Context, appID, ownerID string) error
	GetAppForOwner(ctx context.Context, appID, ownerID string) (store.App, error)
	GetOrCreateCanvas(ctx context.Context, appID, ownerID string) (store.Canvas, error)
	UpdateCanvas(ctx context.Context, appID, ownerID, userID string, patch store.CanvasPatch) (store.Canvas, error)
	CreateElement(ctx context.Context, appID, ownerID, userID string, el store.CanvasElement) (store.CanvasElement, error)
	UpdateElement(ctx context.Context, appID, ownerID, userID, elementID string, patch store.ElementPatch) (store.CanvasElement, error)
	DeleteElement(ctx context.Context, appID, ownerID, userID, elementID string) (store.CanvasElement, error)
	DuplicateElement(ctx context.Context, appID, ownerID, userID, elementID, newElementID string, offsetX, offsetY float64) (store.CanvasElement, error)
	ReplaceCanvasState(ctx context.Context, appID, ownerID, userID string, rows []store.CanvasElement, incomingIDs []string, patch store.CanvasPatch, snapshot store.JSONMap) (store.Canvas, error)
	ListHistory(ctx context.Context, appID, ownerID string, limit int) ([]store.HistoryEntry, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type snapshotService interface {
	Commit(appID string, state json.RawMessage, author, message string) (snapshot.CommitInfo, error)
	History(appID string, limit int) ([]snapshot.CommitInfo, error)
	Get(appID, hash string) (json.RawMessage, error)
}

type templateCatalog interface {
	Search(ctx context.Context, q search.Query) ([]search.TemplateRecord, error)
}

type canvasExporter interface {
	Export(canvas store.Canvas) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	publisher realtime.Publisher
	catalog   templateCatalog
	snapshots snapshotService
	exporter  canvasExporter
	assets    *assets.Store
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions *session.RedisStore,
	publisher realtime.Publisher,
	catalog *search.Service,
	snapshots *snapshot.Service,
	exporter *export.Service,
	assetStore *assets.Store,
) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		publisher: publisher,
		catalog:   catalog,
		snapshots: snapshots,
		exporter:  exporter,
		assets:    assetStore,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Sessions

func (s *Service) Login(ctx context.Context, email, displayName string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}
	user, err := s.store.EnsureUserByEmail(ctx, email, strings.TrimSpace(displayName))
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Apps

func (s *Service) ListApps(ctx context.Context, session Session) ([]store.App, error) {
	return s.store.ListApps(ctx, session.UserID)
}

func (s *Service) CreateApp(ctx context.Context, session Session, name string) (store.App, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.App{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	return s.store.CreateApp(ctx, session.UserID, name)
}

func (s *Service) ArchiveApp(ctx context.Context, session Session, appID string) error {
	return s.store.ArchiveApp(ctx, appID, session.UserID)
}

// AuthorizeApp confirms the session's user owns the app. Missing and
// not-owned look the same to the caller.
func (s *Service) AuthorizeApp(ctx context.Context, session Session, appID string) error {
	_, err := s.store.GetAppForOwner(ctx, appID, session.UserID)
	return err
}

// Canvas

func (s *Service) GetCanvas(ctx context.Context, session Session, appID string) (store.Canvas, error) {
	return s.store.GetOrCreateCanvas(ctx, appID, session.UserID)
}

func (s *Service) UpdateCanvas(ctx context.Context, session Session, appID string, input CanvasUpdateInput) (store.Canvas, error) {
	patch := store.CanvasPatch{
		Description: input.Description,
		Width:       input.Width,
		Height:      input.Height,
		GridEnabled: input.GridEnabled,
		SnapEnabled: input.SnapEnabled,
		ZoomLevel:   input.ZoomLevel,
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		patch.Name = input.Name
	}
	if input.Background != nil {
		patch.Background = store.JSONMap(input.Background)
	}

	canvas, err := s.store.UpdateCanvas(ctx, appID, session.UserID, session.UserID, patch)
	if err != nil {
		return store.Canvas{}, err
	}

	s.publish(realtime.AppChannel(appID), "canvas:updated", map[string]any{
		"appId":     appID,
		"canvas":    canvas,
		"updatedBy": session.UserID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return canvas, nil
}

// Elements

func (s *Service) CreateElement(ctx context.Context, session Session, appID string, input CreateElementInput) (store.CanvasElement, error) {
	elementType := strings.TrimSpace(input.Type)
	if elementType == "" {
		return store.CanvasElement{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type is required", nil)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = fmt.Sprintf("%s Element", elementType)
	}

	el := store.CanvasElement{
		ElementID:   uuid.NewString(),
		Type:        elementType,
		Name:        name,
		X:           floatOr(input.X, 0),
		Y:           floatOr(input.Y, 0),
		Width:       floatOr(input.Width, 100),
		Height:      floatOr(input.Height, 50),
		Rotation:    floatOr(input.Rotation, 0),
		ZIndex:      intOr(input.ZIndex, 0),
		Visible:     true,
		GroupID:     input.GroupID,
		ParentID:    input.ParentID,
		Properties:  store.JSONMap(input.Properties),
		Styles:      store.JSONMap(input.Styles),
		Constraints: store.JSONMap(input.Constraints),
	}

	created, err := s.store.CreateElement(ctx, appID, session.UserID, session.UserID, el)
	if err != nil {
		return store.CanvasElement{}, err
	}

	s.publish(realtime.AppChannel(appID), "element:created", map[string]any{
		"appId":     appID,
		"element":   created,
		"createdBy": session.UserID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return created, nil
}

func (s *Service) UpdateElement(ctx context.Context, session Session, appID, elementID string, input UpdateElementInput) (store.CanvasElement, error) {
	patch := store.ElementPatch{
		X:        input.X,
		Y:        input.Y,
		Width:    input.Width,
		Height:   input.Height,
		Rotation: input.Rotation,
		ZIndex:   input.ZIndex,
		Locked:   input.Locked,
		Visible:  input.Visible,
		GroupID:  input.GroupID,
		ParentID: input.ParentID,
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		patch.Name = input.Name
	}
	if input.Properties != nil {
		patch.Properties = store.JSONMap(input.Properties)
	}
	if input.Styles != nil {
		patch.Styles = store.JSONMap(input.Styles)
	}
	if input.Constraints != nil {
		patch.Constraints = store.JSONMap(input.Constraints)
	}

	updated, err := s.store.UpdateElement(ctx, appID, session.UserID, session.UserID, elementID, patch)
	if err != nil {
		return store.CanvasElement{}, err
	}

	s.publish(realtime.AppChannel(appID), "element:updated", map[string]any{
		"appId":     appID,
		"element":   updated,
		"updatedBy": session.UserID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return updated, nil
}

func (s *Service) DeleteElement(ctx context.Context, session Session, appID, elementID string) error {
	deleted, err := s.store.DeleteElement(ctx, appID, session.UserID, session.UserID, elementID)
	if err != nil {
		return err
	}

	s.publish(realtime.AppChannel(appID), "element:deleted", map[string]any{
		"appId":     appID,
		"elementId": deleted.ElementID,
		"deletedBy": session.UserID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (s *Service) DuplicateElement(ctx context.Context, session Session, appID, elementID string, input DuplicateElementInput) (store.CanvasElement, error) {
	clone, err := s.store.DuplicateElement(
		ctx,
		appID,
		session.UserID,
		session.UserID,
		elementID,
		uuid.NewString(),
		floatOr(input.OffsetX, 20),
		floatOr(input.OffsetY, 20),
	)
	if err != nil {
		return store.CanvasElement{}, err
	}

	s.publish(realtime.AppChannel(appID), "element:duplicated", map[string]any{
		"appId":             appID,
		"originalElementId": elementID,
		"duplicateElement":  clone,
		"duplicatedBy":      session.UserID,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
	return clone, nil
}

// SaveCanvasState replaces the entire canvas with the editor's state in one
// shot. The accepted snapshot also lands in the app's git archive.
func (s *Service) SaveCanvasState(ctx context.Context, session Session, appID string, input CanvasStateInput) (store.Canvas, error) {
	rows := make([]store.CanvasElement, 0, len(input.Elements))
	incomingIDs := make([]string, 0, len(input.Elements))
	for _, el := range input.Elements {
		row := stateElementRow(el)
		rows = append(rows, row)
		incomingIDs = append(incomingIDs, row.ElementID)
	}

	patch := store.CanvasPatch{
		Description: input.Description,
		Width:       input.Width,
		Height:      input.Height,
		GridEnabled: input.GridEnabled,
		SnapEnabled: input.SnapEnabled,
		ZoomLevel:   input.ZoomLevel,
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		patch.Name = input.Name
	}
	if input.Background != nil {
		patch.Background = store.JSONMap(input.Background)
	}

	snapshotState, raw, err := stateSnapshot(input)
	if err != nil {
		return store.Canvas{}, err
	}

	canvas, err := s.store.ReplaceCanvasState(ctx, appID, session.UserID, session.UserID, rows, incomingIDs, patch, snapshotState)
	if err != nil {
		return store.Canvas{}, err
	}

	if s.snapshots != nil {
		author := session.DisplayName
		if author == "" {
			author = session.Email
		}
		if _, err := s.snapshots.Commit(appID, raw, author, "Save canvas state"); err != nil {
			log.Printf("snapshot commit for app %s failed: %v", appID, err)
		}
	}

	s.publish(realtime.StateChannel(appID), "canvasStateSaved", map[string]any{
		"appId":       appID,
		"canvasState": map[string]any(snapshotState),
		"userId":      session.UserID,
	})
	return canvas, nil
}

// History

func (s *Service) ListHistory(ctx context.Context, session Session, appID string, limit int) ([]store.HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListHistory(ctx, appID, session.UserID, limit)
}

// Templates

func (s *Service) ListTemplates(ctx context.Context, category, text string) ([]search.TemplateRecord, error) {
	q := search.Query{Text: strings.TrimSpace(text)}
	if c := strings.TrimSpace(category); c != "" && c != "all" {
		q.Category = c
	}
	return s.catalog.Search(ctx, q)
}

// EmitTemplateAccess publishes catalog usage to the analytics channel. It is
// separate from the listing query so a broadcast failure never breaks reads.
func (s *Service) EmitTemplateAccess(session Session, category string, results []search.TemplateRecord) {
	if category == "" {
		category = "all"
	}
	seen := make(map[string]struct{})
	for _, item := range results {
		seen[item.Category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	s.publish(realtime.AnalyticsChannel, "template:accessed", map[string]any{
		"userId":        session.UserID,
		"userEmail":     session.Email,
		"action":        "templates_listed",
		"category":      category,
		"templateCount": len(results),
		"categories":    categories,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// Snapshots

func (s *Service) ListSnapshots(ctx context.Context, session Session, appID string, limit int) ([]snapshot.CommitInfo, error) {
	if s.snapshots == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot archive not configured", nil)
	}
	if _, err := s.store.GetAppForOwner(ctx, appID, session.UserID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.snapshots.History(appID, limit)
}

func (s *Service) GetSnapshot(ctx context.Context, session Session, appID, hash string) (json.RawMessage, error) {
	if s.snapshots == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot archive not configured", nil)
	}
	if _, err := s.store.GetAppForOwner(ctx, appID, session.UserID); err != nil {
		return nil, err
	}
	return s.snapshots.Get(appID, hash)
}

// Export

func (s *Service) ExportCanvas(ctx context.Context, session Session, appID string) (*export.Result, error) {
	canvas, err := s.store.GetOrCreateCanvas(ctx, appID, session.UserID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(canvas)
}

// Assets

func (s *Service) UploadAsset(ctx context.Context, session Session, appID, filename, contentType string, size int64, body io.Reader) (assets.Asset, error) {
	if s.assets == nil {
		return assets.Asset{}, domainError(http.StatusServiceUnavailable, "ASSETS_UNAVAILABLE", "Asset storage not configured", nil)
	}
	if _, err := s.store.GetAppForOwner(ctx, appID, session.UserID); err != nil {
		return assets.Asset{}, err
	}
	return s.assets.Upload(ctx, appID, filename, contentType, size, body)
}

// publish fans a realtime event out after the owning transaction has
// committed. Failures are logged, never surfaced to the caller.
func (s *Service) publish(channel, event string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, channel, realtime.Event{Event: event, Payload: payload}); err != nil {
			log.Printf("broadcast %s on %s failed: %v", event, channel, err)
		}
	}()
}

func stateElementRow(el StateElement) store.CanvasElement {
	elementType := strings.TrimSpace(el.Type)
	if elementType == "" {
		elementType = "SHAPE"
	}
	name := strings.TrimSpace(el.Name)
	if name == "" {
		name = "Untitled Element"
	}
	elementID := strings.TrimSpace(el.ID)
	if elementID == "" {
		elementID = fmt.Sprintf("%s-%d-%s", strings.ToLower(elementType), time.Now().UnixMilli(), randomSuffix(9))
	}

	properties := el.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	locked, _ := properties["locked"].(bool)
	hidden, _ := properties["hidden"].(bool)

	styles := store.JSONMap{}
	for key, val := range map[string]any{
		"backgroundColor": el.BackgroundColor,
		"color":           el.Color,
		"fontSize":        el.FontSize,
		"fontWeight":      el.FontWeight,
		"textAlign":       el.TextAlign,
		"borderRadius":    el.BorderRadius,
		"borderWidth":     el.BorderWidth,
		"borderColor":     el.BorderColor,
	} {
		if val != nil {
			styles[key] = val
		}
	}
	if el.Opacity != nil {
		styles["opacity"] = *el.Opacity
	}

	return store.CanvasElement{
		ElementID:   elementID,
		Type:        elementType,
		Name:        name,
		X:           floatOr(el.X, 0),
		Y:           floatOr(el.Y, 0),
		Width:       floatOr(el.Width, 100),
		Height:      floatOr(el.Height, 50),
		Rotation:    floatOr(el.Rotation, 0),
		ZIndex:      intOr(el.ZIndex, 0),
		Locked:      locked,
		Visible:     !hidden,
		GroupID:     el.GroupID,
		Properties:  store.JSONMap(properties),
		Styles:      styles,
		Constraints: store.JSONMap(el.Constraints),
	}
}

// stateSnapshot captures the incoming state both as a JSONB history payload
// and as raw bytes for the git archive.
func stateSnapshot(input CanvasStateInput) (store.JSONMap, json.RawMessage, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal canvas state: %w", err)
	}
	var snapshotState store.JSONMap
	if err := json.Unmarshal(raw, &snapshotState); err != nil {
		return nil, nil, fmt.Errorf("decode canvas state: %w", err)
	}
	return snapshotState, json.RawMessage(raw), nil
}

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomSuffix(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
