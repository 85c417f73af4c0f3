package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mosaic/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by both *sql.DB and *sql.Tx so the row loaders can run
// inside or outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// Users and sessions
// =============================================================================

func (s *PostgresStore) EnsureUserByEmail(ctx context.Context, email, displayName string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	user = User{ID: util.NewID("usr"), Email: email, DisplayName: displayName}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email=EXCLUDED.email
		RETURNING id, email, display_name, created_at
	`, user.ID, user.Email, user.DisplayName).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// =============================================================================
// Apps
// =============================================================================

func (s *PostgresStore) ListApps(ctx context.Context, ownerID string) ([]App, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_id, archived, created_at, updated_at
		FROM apps
		WHERE owner_id=$1 AND archived=FALSE
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	items := make([]App, 0)
	for rows.Next() {
		var item App
		if err := rows.Scan(&item.ID, &item.Name, &item.OwnerID, &item.Archived, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate apps: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateApp(ctx context.Context, ownerID, name string) (App, error) {
	app := App{ID: util.NewID("app"), Name: name, OwnerID: ownerID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO apps (id, name, owner_id)
		VALUES ($1, $2, $3)
		RETURNING archived, created_at, updated_at
	`, app.ID, app.Name, app.OwnerID).Scan(&app.Archived, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return App{}, fmt.Errorf("insert app: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) ArchiveApp(ctx context.Context, appID, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE apps SET archived=TRUE, updated_at=NOW() WHERE id=$1 AND owner_id=$2
	`, appID, ownerID)
	if err != nil {
		return fmt.Errorf("archive app: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive app result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) GetAppForOwner(ctx context.Context, appID, ownerID string) (App, error) {
	return appForOwner(ctx, s.db, appID, ownerID)
}

// appForOwner returns sql.ErrNoRows both for missing and for not-owned apps so
// callers cannot distinguish the two. Mutations call it on their own
// transaction, which closes the check-then-act window.
func appForOwner(ctx context.Context, q querier, appID, ownerID string) (App, error) {
	var app App
	err := q.QueryRowContext(ctx, `
		SELECT id, name, owner_id, archived, created_at, updated_at
		FROM apps
		WHERE id=$1 AND owner_id=$2
	`, appID, ownerID).Scan(&app.ID, &app.Name, &app.OwnerID, &app.Archived, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return App{}, err
	}
	return app, nil
}

// =============================================================================
// Canvas
// =============================================================================

const canvasColumns = `id, app_id, name, description, width, height, background, grid_enabled, snap_enabled, zoom_level, created_at, updated_at`

func scanCanvas(row *sql.Row) (Canvas, error) {
	var c Canvas
	err := row.Scan(&c.ID, &c.AppID, &c.Name, &c.Description, &c.Width, &c.Height, &c.Background,
		&c.GridEnabled, &c.SnapEnabled, &c.ZoomLevel, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Canvas{}, err
	}
	return c, nil
}

func canvasByApp(ctx context.Context, q querier, appID string) (Canvas, error) {
	return scanCanvas(q.QueryRowContext(ctx, `SELECT `+canvasColumns+` FROM canvases WHERE app_id=$1`, appID))
}

func createCanvas(ctx context.Context, q querier, c Canvas) (Canvas, error) {
	if c.ID == "" {
		c.ID = util.NewID("cnv")
	}
	var background any
	if c.Background != nil {
		background = c.Background
	}
	row := q.QueryRowContext(ctx, `
		INSERT INTO canvases (id, app_id, name, description, width, height, background, zoom_level)
		VALUES ($1, $2, $3, $4,
			COALESCE(NULLIF($5, 0), 1200),
			COALESCE(NULLIF($6, 0), 800),
			COALESCE($7, '{"color": "#ffffff", "opacity": 100}'::jsonb),
			COALESCE(NULLIF($8, 0::double precision), 1))
		RETURNING `+canvasColumns, c.ID, c.AppID, c.Name, c.Description, c.Width, c.Height, background, c.ZoomLevel)
	return scanCanvas(row)
}

// GetOrCreateCanvas verifies ownership, lazily creating the canvas with the
// app-derived default name on first access, and returns it with its elements.
func (s *PostgresStore) GetOrCreateCanvas(ctx context.Context, appID, ownerID string) (Canvas, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Canvas{}, fmt.Errorf("begin get canvas: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	app, err := appForOwner(ctx, tx, appID, ownerID)
	if err != nil {
		return Canvas{}, err
	}

	canvas, err := canvasByApp(ctx, tx, appID)
	if errors.Is(err, sql.ErrNoRows) {
		canvas, err = createCanvas(ctx, tx, Canvas{
			AppID:       appID,
			Name:        app.Name + " Canvas",
			Description: "Drag-and-drop canvas interface",
		})
	}
	if err != nil {
		return Canvas{}, fmt.Errorf("get or create canvas: %w", err)
	}

	canvas.Elements, err = loadElements(ctx, tx, canvas.ID)
	if err != nil {
		return Canvas{}, err
	}
	if err := tx.Commit(); err != nil {
		return Canvas{}, fmt.Errorf("commit get canvas: %w", err)
	}
	return canvas, nil
}

// UpdateCanvas applies the non-nil patch fields and appends the canvas_update
// history row in the same transaction.
func (s *PostgresStore) UpdateCanvas(ctx context.Context, appID, ownerID, userID string, patch CanvasPatch) (Canvas, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Canvas{}, fmt.Errorf("begin update canvas: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := appForOwner(ctx, tx, appID, ownerID); err != nil {
		return Canvas{}, err
	}
	canvas, err := canvasByApp(ctx, tx, appID)
	if err != nil {
		return Canvas{}, err
	}

	set := newSetBuilder()
	set.add("name", patch.Name)
	set.add("description", patch.Description)
	set.add("width", patch.Width)
	set.add("height", patch.Height)
	if patch.Background != nil {
		set.addValue("background", patch.Background)
	}
	set.add("grid_enabled", patch.GridEnabled)
	set.add("snap_enabled", patch.SnapEnabled)
	set.add("zoom_level", patch.ZoomLevel)
	if !set.empty() {
		if _, err := tx.ExecContext(ctx, set.query("canvases", canvas.ID), set.args()...); err != nil {
			return Canvas{}, fmt.Errorf("update canvas: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, HistoryEntry{
		CanvasID: canvas.ID,
		Action:   "canvas_update",
		NewState: canvasPatchState(patch),
		UserID:   userID,
	}); err != nil {
		return Canvas{}, err
	}

	canvas, err = canvasByApp(ctx, tx, appID)
	if err != nil {
		return Canvas{}, err
	}
	canvas.Elements, err = loadElements(ctx, tx, canvas.ID)
	if err != nil {
		return Canvas{}, err
	}
	if err := tx.Commit(); err != nil {
		return Canvas{}, fmt.Errorf("commit update canvas: %w", err)
	}
	return canvas, nil
}

func canvasPatchState(patch CanvasPatch) JSONMap {
	state := JSONMap{}
	if patch.Name != nil {
		state["name"] = *patch.Name
	}
	if patch.Description != nil {
		state["description"] = *patch.Description
	}
	if patch.Width != nil {
		state["width"] = *patch.Width
	}
	if patch.Height != nil {
		state["height"] = *patch.Height
	}
	if patch.Background != nil {
		state["background"] = map[string]any(patch.Background)
	}
	if patch.GridEnabled != nil {
		state["gridEnabled"] = *patch.GridEnabled
	}
	if patch.SnapEnabled != nil {
		state["snapEnabled"] = *patch.SnapEnabled
	}
	if patch.ZoomLevel != nil {
		state["zoomLevel"] = *patch.ZoomLevel
	}
	return state
}

// =============================================================================
// Elements
// =============================================================================

const elementColumns = `id, element_id, canvas_id, type, name, x, y, width, height, rotation, z_index, locked, visible, group_id, parent_id, properties, styles, constraints, created_at, updated_at`

func scanElement(scan func(dest ...any) error) (CanvasElement, error) {
	var e CanvasElement
	err := scan(&e.ID, &e.ElementID, &e.CanvasID, &e.Type, &e.Name, &e.X, &e.Y, &e.Width, &e.Height,
		&e.Rotation, &e.ZIndex, &e.Locked, &e.Visible, &e.GroupID, &e.ParentID,
		&e.Properties, &e.Styles, &e.Constraints, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return CanvasElement{}, err
	}
	return e, nil
}

// loadElements returns the canvas's elements ordered by z-index, each with its
// interactions, validations and direct children attached.
func loadElements(ctx context.Context, q querier, canvasID string) ([]CanvasElement, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+elementColumns+`
		FROM canvas_elements
		WHERE canvas_id=$1
		ORDER BY z_index ASC, id ASC
	`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("list elements: %w", err)
	}
	defer rows.Close()

	elements := make([]CanvasElement, 0)
	for rows.Next() {
		element, err := scanElement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan element: %w", err)
		}
		elements = append(elements, element)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate elements: %w", err)
	}

	interactions, validations, err := loadElementRelations(ctx, q, canvasID)
	if err != nil {
		return nil, err
	}

	children := make(map[int64][]CanvasElement)
	for _, element := range elements {
		if element.ParentID != nil {
			children[*element.ParentID] = append(children[*element.ParentID], element)
		}
	}
	for i := range elements {
		elements[i].Interactions = nonNilInteractions(interactions[elements[i].ID])
		elements[i].Validations = nonNilValidations(validations[elements[i].ID])
		elements[i].Children = nonNilElements(children[elements[i].ID])
	}
	return elements, nil
}

func loadElementRelations(ctx context.Context, q querier, canvasID string) (map[int64][]ElementInteraction, map[int64][]ElementValidation, error) {
	interactions := make(map[int64][]ElementInteraction)
	rows, err := q.QueryContext(ctx, `
		SELECT i.id, i.element_id, i.event, i.action, i.created_at
		FROM element_interactions i
		JOIN canvas_elements e ON e.id = i.element_id
		WHERE e.canvas_id=$1
		ORDER BY i.id ASC
	`, canvasID)
	if err != nil {
		return nil, nil, fmt.Errorf("list interactions: %w", err)
	}
	for rows.Next() {
		var item ElementInteraction
		if err := rows.Scan(&item.ID, &item.ElementID, &item.Event, &item.Action, &item.CreatedAt); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan interaction: %w", err)
		}
		interactions[item.ElementID] = append(interactions[item.ElementID], item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, fmt.Errorf("iterate interactions: %w", err)
	}
	rows.Close()

	validations := make(map[int64][]ElementValidation)
	rows, err = q.QueryContext(ctx, `
		SELECT v.id, v.element_id, v.rule, v.value, v.message, v.created_at
		FROM element_validations v
		JOIN canvas_elements e ON e.id = v.element_id
		WHERE e.canvas_id=$1
		ORDER BY v.id ASC
	`, canvasID)
	if err != nil {
		return nil, nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item ElementValidation
		if err := rows.Scan(&item.ID, &item.ElementID, &item.Rule, &item.Value, &item.Message, &item.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan validation: %w", err)
		}
		validations[item.ElementID] = append(validations[item.ElementID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate validations: %w", err)
	}
	return interactions, validations, nil
}

func getElement(ctx context.Context, q querier, elementID string) (CanvasElement, error) {
	element, err := scanElement(q.QueryRowContext(ctx, `
		SELECT `+elementColumns+` FROM canvas_elements WHERE element_id=$1
	`, elementID).Scan)
	if err != nil {
		return CanvasElement{}, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, element_id, event, action, created_at
		FROM element_interactions WHERE element_id=$1 ORDER BY id ASC
	`, element.ID)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("element interactions: %w", err)
	}
	for rows.Next() {
		var item ElementInteraction
		if err := rows.Scan(&item.ID, &item.ElementID, &item.Event, &item.Action, &item.CreatedAt); err != nil {
			rows.Close()
			return CanvasElement{}, fmt.Errorf("scan interaction: %w", err)
		}
		element.Interactions = append(element.Interactions, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return CanvasElement{}, err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT id, element_id, rule, value, message, created_at
		FROM element_validations WHERE element_id=$1 ORDER BY id ASC
	`, element.ID)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("element validations: %w", err)
	}
	for rows.Next() {
		var item ElementValidation
		if err := rows.Scan(&item.ID, &item.ElementID, &item.Rule, &item.Value, &item.Message, &item.CreatedAt); err != nil {
			rows.Close()
			return CanvasElement{}, fmt.Errorf("scan validation: %w", err)
		}
		element.Validations = append(element.Validations, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return CanvasElement{}, err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT `+elementColumns+` FROM canvas_elements WHERE parent_id=$1 ORDER BY z_index ASC, id ASC
	`, element.ID)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("element children: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		child, err := scanElement(rows.Scan)
		if err != nil {
			return CanvasElement{}, fmt.Errorf("scan child element: %w", err)
		}
		element.Children = append(element.Children, child)
	}
	if err := rows.Err(); err != nil {
		return CanvasElement{}, err
	}

	element.Interactions = nonNilInteractions(element.Interactions)
	element.Validations = nonNilValidations(element.Validations)
	element.Children = nonNilElements(element.Children)
	return element, nil
}

func insertElement(ctx context.Context, q querier, el CanvasElement) (CanvasElement, error) {
	err := q.QueryRowContext(ctx, `
		INSERT INTO canvas_elements
			(element_id, canvas_id, type, name, x, y, width, height, rotation, z_index,
			 locked, visible, group_id, parent_id, properties, styles, constraints)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at
	`, el.ElementID, el.CanvasID, el.Type, el.Name, el.X, el.Y, el.Width, el.Height, el.Rotation, el.ZIndex,
		el.Locked, el.Visible, el.GroupID, el.ParentID, el.Properties, el.Styles, el.Constraints,
	).Scan(&el.ID, &el.CreatedAt, &el.UpdatedAt)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("insert element: %w", err)
	}
	el.Interactions = nonNilInteractions(el.Interactions)
	el.Validations = nonNilValidations(el.Validations)
	el.Children = nonNilElements(el.Children)
	return el, nil
}

// CreateElement inserts the element and its element_create history row in one
// transaction, re-checking app ownership first.
func (s *PostgresStore) CreateElement(ctx context.Context, appID, ownerID, userID string, el CanvasElement) (CanvasElement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("begin create element: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := appForOwner(ctx, tx, appID, ownerID); err != nil {
		return CanvasElement{}, err
	}
	canvas, err := canvasByApp(ctx, tx, appID)
	if err != nil {
		return CanvasElement{}, err
	}

	el.CanvasID = canvas.ID
	created, err := insertElement(ctx, tx, el)
	if err != nil {
		return CanvasElement{}, err
	}

	if err := insertHistory(ctx, tx, HistoryEntry{
		CanvasID:  canvas.ID,
		Action:    "element_create",
		ElementID: &created.ElementID,
		NewState:  elementState(created),
		UserID:    userID,
	}); err != nil {
		return CanvasElement{}, err
	}
	if err := tx.Commit(); err != nil {
		return CanvasElement{}, fmt.Errorf("commit create element: %w", err)
	}
	return created, nil
}

// UpdateElement applies the non-nil patch fields and records both snapshots in
// the element_update history row, all in one transaction.
func (s *PostgresStore) UpdateElement(ctx context.Context, appID, ownerID, userID, elementID string, patch ElementPatch) (CanvasElement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("begin update element: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := appForOwner(ctx, tx, appID, ownerID); err != nil {
		return CanvasElement{}, err
	}
	current, err := getElement(ctx, tx, elementID)
	if err != nil {
		return CanvasElement{}, err
	}

	set := newSetBuilder()
	set.add("name", patch.Name)
	set.add("x", patch.X)
	set.add("y", patch.Y)
	set.add("width", patch.Width)
	set.add("height", patch.Height)
	set.add("rotation", patch.Rotation)
	set.add("z_index", patch.ZIndex)
	set.add("locked", patch.Locked)
	set.add("visible", patch.Visible)
	set.add("group_id", patch.GroupID)
	set.add("parent_id", patch.ParentID)
	if patch.Properties != nil {
		set.addValue("properties", patch.Properties)
	}
	if patch.Styles != nil {
		set.addValue("styles", patch.Styles)
	}
	if patch.Constraints != nil {
		set.addValue("constraints", patch.Constraints)
	}
	if !set.empty() {
		if _, err := tx.ExecContext(ctx, set.queryByInt("canvas_elements", current.ID), set.args()...); err != nil {
			return CanvasElement{}, fmt.Errorf("update element: %w", err)
		}
	}

	updated, err := getElement(ctx, tx, elementID)
	if err != nil {
		return CanvasElement{}, err
	}

	if err := insertHistory(ctx, tx, HistoryEntry{
		CanvasID:  current.CanvasID,
		Action:    "element_update",
		ElementID: &elementID,
		OldState:  elementState(current),
		NewState:  elementState(updated),
		UserID:    userID,
	}); err != nil {
		return CanvasElement{}, err
	}
	if err := tx.Commit(); err != nil {
		return CanvasElement{}, fmt.Errorf("commit update element: %w", err)
	}
	return updated, nil
}

// DeleteElement removes the element (cascading to interactions, validations
// and children) and records the old snapshot, in one transaction.
func (s *PostgresStore) DeleteElement(ctx context.Context, appID, ownerID, userID, elementID string) (CanvasElement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("begin delete element: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := appForOwner(ctx, tx, appID, ownerID); err != nil {
		return CanvasElement{}, err
	}
	element, err := getElement(ctx, tx, elementID)
	if err != nil {
		return CanvasElement{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM canvas_elements WHERE element_id=$1`, elementID); err != nil {
		return CanvasElement{}, fmt.Errorf("delete element: %w", err)
	}

	if err := insertHistory(ctx, tx, HistoryEntry{
		CanvasID:  element.CanvasID,
		Action:    "element_delete",
		ElementID: &elementID,
		OldState:  elementState(element),
		UserID:    userID,
	}); err != nil {
		return CanvasElement{}, err
	}
	if err := tx.Commit(); err != nil {
		return CanvasElement{}, fmt.Errorf("commit delete element: %w", err)
	}
	return element, nil
}

// DuplicateElement clones the source element together with its interactions and
// validations under newElementID, offsetting position and bumping z-index.
func (s *PostgresStore) DuplicateElement(ctx context.Context, appID, ownerID, userID, elementID, newElementID string, offsetX, offsetY float64) (CanvasElement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CanvasElement{}, fmt.Errorf("begin duplicate element: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := appForOwner(ctx, tx, appID, ownerID); err != nil {
		return CanvasElement{}, err
	}
	source, err := getElement(ctx, tx, elementID)
	if err != nil {
		return CanvasElement{}, err
	}

	clone := source
	clone.ElementID = newElementID
	clone.Name = source.Name + " Copy"
	clone.X = source.X + offsetX
	clone.Y = source.Y + offsetY
	clone.ZIndex = source.ZIndex + 1
	clone.Interactions = nil
	clone.Validations = nil
	clone.Children = nil

	created, err := insertElement(ctx, tx, clone)
	if err != nil {
		return CanvasElement{}, err
	}

	for _, interaction := range source.Interactions {
		var cloned ElementInteraction
		err := tx.QueryRowContext(ctx, `
			INSERT INTO element_interactions (element_id, event, action)
			VALUES ($1, $2, $3)
			RETURNING id, element_id, event, action, created_at
		`, created.ID, interaction.Event, interaction.Action).Scan(
			&cloned.ID, &cloned.ElementID, &cloned.Event, &cloned.Action, &cloned.CreatedAt)
		if err != nil {
			return CanvasElement{}, fmt.Errorf("clone interaction: %w", err)
		}
		created.Interactions = append(created.Interactions, cloned)
	}
	for _, validation := range source.Validations {
		var cloned ElementValidation
		err := tx.QueryRowContext(ctx, `
			INSERT INTO element_validations (element_id, rule, value, message)
			VALUES ($1, $2, $3, $4)
			RETURNING id, element_id, rule, value, message, created_at
		`, created.ID, validation.Rule, validation.Value, validation.Message).Scan(
			&cloned.ID, &cloned.ElementID, &cloned.Rule, &cloned.Value, &cloned.Message, &cloned.CreatedAt)
		if err != nil {
			return CanvasElement{}, fmt.Errorf("clone validation: %w", err)
		}
		created.Validations = append(created.Validations, cloned)
	}

	if err := insertHistory(ctx, tx, HistoryEntry{
		CanvasID:  source.CanvasID,
		Action:    "element_duplicate",
		ElementID: &newElementID,
		NewState:  elementState(created),
		UserID:    userID,
	}); err != nil {
		return CanvasElement{}, err
	}
	if err := tx.Commit(); err != nil {
		return CanvasElement{}, fmt.Errorf("commit duplicate element: %w", err)
	}
	return created, nil
}

// ReplaceCanvasState destructively swaps the canvas contents for the incoming
// rows: existing elements of this canvas are deleted, as are elements anywhere
// holding one of the incoming external IDs, before the bulk insert. The whole
// replace, including the canvas property refresh and the canvas_state_save
// history row, is one transaction.
func (s *PostgresStore) ReplaceCanvasState(ctx context.Context, appID, ownerID, userID string, rows []CanvasElement, incomingIDs []string, patch CanvasPatch, snapshot JSONMap) (Canvas, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Canvas{}, fmt.Errorf("begin replace state: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := appForOwner(ctx, tx, appID, ownerID); err != nil {
		return Canvas{}, err
	}

	canvas, err := canvasByApp(ctx, tx, appID)
	if errors.Is(err, sql.ErrNoRows) {
		seed := Canvas{AppID: appID, Name: "Untitled Canvas"}
		if patch.Name != nil {
			seed.Name = *patch.Name
		}
		if patch.Width != nil {
			seed.Width = *patch.Width
		}
		if patch.Height != nil {
			seed.Height = *patch.Height
		}
		seed.Background = patch.Background
		if patch.ZoomLevel != nil {
			seed.ZoomLevel = *patch.ZoomLevel
		}
		canvas, err = createCanvas(ctx, tx, seed)
	}
	if err != nil {
		return Canvas{}, fmt.Errorf("replace state canvas: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM canvas_elements WHERE canvas_id=$1`, canvas.ID); err != nil {
		return Canvas{}, fmt.Errorf("clear canvas elements: %w", err)
	}
	for _, id := range incomingIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM canvas_elements WHERE element_id=$1`, id); err != nil {
			return Canvas{}, fmt.Errorf("clear conflicting element %s: %w", id, err)
		}
	}

	for i := range rows {
		rows[i].CanvasID = canvas.ID
		if _, err := insertElement(ctx, tx, rows[i]); err != nil {
			return Canvas{}, err
		}
	}

	set := newSetBuilder()
	set.add("name", patch.Name)
	set.add("width", patch.Width)
	set.add("height", patch.Height)
	if patch.Background != nil {
		set.addValue("background", patch.Background)
	}
	set.add("zoom_level", patch.ZoomLevel)
	if !set.empty() {
		if _, err := tx.ExecContext(ctx, set.query("canvases", canvas.ID), set.args()...); err != nil {
			return Canvas{}, fmt.Errorf("refresh canvas properties: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, HistoryEntry{
		CanvasID: canvas.ID,
		Action:   "canvas_state_save",
		NewState: snapshot,
		UserID:   userID,
	}); err != nil {
		return Canvas{}, err
	}

	canvas, err = canvasByApp(ctx, tx, appID)
	if err != nil {
		return Canvas{}, err
	}
	if err := tx.Commit(); err != nil {
		return Canvas{}, fmt.Errorf("commit replace state: %w", err)
	}
	return canvas, nil
}

// =============================================================================
// History
// =============================================================================

func insertHistory(ctx context.Context, q querier, entry HistoryEntry) error {
	var oldState, newState any
	if entry.OldState != nil {
		oldState = entry.OldState
	}
	if entry.NewState != nil {
		newState = entry.NewState
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO canvas_history (canvas_id, action, element_id, old_state, new_state, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.CanvasID, entry.Action, entry.ElementID, oldState, newState, entry.UserID)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, appID, ownerID string, limit int) ([]HistoryEntry, error) {
	if _, err := appForOwner(ctx, s.db, appID, ownerID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.canvas_id, h.action, h.element_id, h.old_state, h.new_state, h.user_id, h.created_at
		FROM canvas_history h
		JOIN canvases c ON c.id = h.canvas_id
		WHERE c.app_id=$1
		ORDER BY h.created_at DESC, h.id DESC
		LIMIT $2
	`, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var item HistoryEntry
		if err := rows.Scan(&item.ID, &item.CanvasID, &item.Action, &item.ElementID, &item.OldState, &item.NewState, &item.UserID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

// =============================================================================
// Helpers
// =============================================================================

func elementState(el CanvasElement) JSONMap {
	raw, err := json.Marshal(el)
	if err != nil {
		return JSONMap{}
	}
	var state JSONMap
	if err := json.Unmarshal(raw, &state); err != nil {
		return JSONMap{}
	}
	return state
}

func nonNilInteractions(items []ElementInteraction) []ElementInteraction {
	if items == nil {
		return []ElementInteraction{}
	}
	return items
}

func nonNilValidations(items []ElementValidation) []ElementValidation {
	if items == nil {
		return []ElementValidation{}
	}
	return items
}

func nonNilElements(items []CanvasElement) []CanvasElement {
	if items == nil {
		return []CanvasElement{}
	}
	return items
}

// setBuilder accumulates SET clauses for partial updates.
type setBuilder struct {
	clauses []string
	values  []any
}

func newSetBuilder() *setBuilder {
	return &setBuilder{}
}

func (b *setBuilder) add(column string, value any) {
	switch v := value.(type) {
	case *string:
		if v != nil {
			b.addValue(column, *v)
		}
	case *int:
		if v != nil {
			b.addValue(column, *v)
		}
	case *int64:
		if v != nil {
			b.addValue(column, *v)
		}
	case *float64:
		if v != nil {
			b.addValue(column, *v)
		}
	case *bool:
		if v != nil {
			b.addValue(column, *v)
		}
	}
}

func (b *setBuilder) addValue(column string, value any) {
	b.clauses = append(b.clauses, fmt.Sprintf("%s=$%d", column, len(b.values)+1))
	b.values = append(b.values, value)
}

func (b *setBuilder) empty() bool {
	return len(b.clauses) == 0
}

func (b *setBuilder) query(table, id string) string {
	return b.buildQuery(table, id)
}

func (b *setBuilder) queryByInt(table string, id int64) string {
	return b.buildQuery(table, id)
}

func (b *setBuilder) buildQuery(table string, id any) string {
	b.values = append(b.values, id)
	query := fmt.Sprintf("UPDATE %s SET ", table)
	for i, clause := range b.clauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	return query + fmt.Sprintf(", updated_at=NOW() WHERE id=$%d", len(b.values))
}

func (b *setBuilder) args() []any {
	return b.values
}
