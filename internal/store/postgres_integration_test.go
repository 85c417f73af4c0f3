package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"mosaic/api/internal/util"
)

// TestDuplicateElementClonesAttachments verifies that duplicating an element
// copies its interactions and validations onto the clone with the offset
// position, " Copy" name and bumped z-index.
func TestDuplicateElementClonesAttachments(t *testing.T) {
	s, ctx := openTestStore(t)
	user, app := seedApp(t, ctx, s)

	source, err := s.CreateElement(ctx, app.ID, user.ID, user.ID, CanvasElement{
		ElementID: util.NewID("el"),
		Type:      "BUTTON",
		Name:      "Submit",
		X:         40,
		Y:         60,
		Width:     120,
		Height:    48,
		ZIndex:    3,
		Visible:   true,
	})
	if err != nil {
		t.Fatalf("create element: %v", err)
	}

	_, err = s.DB().ExecContext(ctx, `
		INSERT INTO element_interactions (element_id, event, action)
		VALUES ($1, 'CLICK', '{"type": "ALERT", "message": "hi"}'::jsonb)
	`, source.ID)
	if err != nil {
		t.Fatalf("insert interaction: %v", err)
	}
	_, err = s.DB().ExecContext(ctx, `
		INSERT INTO element_validations (element_id, rule, value, message)
		VALUES ($1, 'required', 'true', 'Field is required')
	`, source.ID)
	if err != nil {
		t.Fatalf("insert validation: %v", err)
	}

	cloneID := util.NewID("el")
	clone, err := s.DuplicateElement(ctx, app.ID, user.ID, user.ID, source.ElementID, cloneID, 20, 20)
	if err != nil {
		t.Fatalf("duplicate element: %v", err)
	}

	if clone.ElementID != cloneID || clone.ID == source.ID {
		t.Fatalf("expected a new row under %s, got %+v", cloneID, clone)
	}
	if clone.Name != "Submit Copy" {
		t.Fatalf("expected copy name, got %q", clone.Name)
	}
	if clone.X != 60 || clone.Y != 80 {
		t.Fatalf("expected offset position 60,80, got %g,%g", clone.X, clone.Y)
	}
	if clone.ZIndex != 4 {
		t.Fatalf("expected z-index bumped to 4, got %d", clone.ZIndex)
	}
	if len(clone.Interactions) != 1 || clone.Interactions[0].Event != "CLICK" {
		t.Fatalf("expected cloned interaction, got %+v", clone.Interactions)
	}
	if clone.Interactions[0].ElementID != clone.ID {
		t.Fatal("expected cloned interaction to reference the clone")
	}
	if len(clone.Validations) != 1 || clone.Validations[0].Rule != "required" {
		t.Fatalf("expected cloned validation, got %+v", clone.Validations)
	}

	// The source keeps its own attachments.
	var count int
	err = s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM element_interactions WHERE element_id=$1
	`, source.ID).Scan(&count)
	if err != nil {
		t.Fatalf("count source interactions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected source interaction untouched, got %d", count)
	}
}

// TestDeleteElementCascades verifies that deleting an element removes its
// children, interactions and validations through the foreign keys.
func TestDeleteElementCascades(t *testing.T) {
	s, ctx := openTestStore(t)
	user, app := seedApp(t, ctx, s)

	parent, err := s.CreateElement(ctx, app.ID, user.ID, user.ID, CanvasElement{
		ElementID: util.NewID("el"),
		Type:      "CONTAINER",
		Name:      "Card",
		Visible:   true,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := s.CreateElement(ctx, app.ID, user.ID, user.ID, CanvasElement{
		ElementID: util.NewID("el"),
		Type:      "TEXT",
		Name:      "Label",
		Visible:   true,
		ParentID:  &parent.ID,
	})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	_, err = s.DB().ExecContext(ctx, `
		INSERT INTO element_interactions (element_id, event, action)
		VALUES ($1, 'HOVER', '{"type": "TOOLTIP"}'::jsonb)
	`, child.ID)
	if err != nil {
		t.Fatalf("insert interaction: %v", err)
	}

	if _, err := s.DeleteElement(ctx, app.ID, user.ID, user.ID, parent.ElementID); err != nil {
		t.Fatalf("delete parent: %v", err)
	}

	var count int
	err = s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM canvas_elements WHERE id IN ($1, $2)
	`, parent.ID, child.ID).Scan(&count)
	if err != nil {
		t.Fatalf("count elements: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected parent and child gone, got %d rows", count)
	}
	err = s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM element_interactions WHERE element_id=$1
	`, child.ID).Scan(&count)
	if err != nil {
		t.Fatalf("count interactions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected interactions gone, got %d rows", count)
	}
}

// TestUpdateElementEmptyPatchIsNoOp verifies that a patch with no fields set
// leaves the row untouched while still appending an element_update history
// entry with identical old and new snapshots.
func TestUpdateElementEmptyPatchIsNoOp(t *testing.T) {
	s, ctx := openTestStore(t)
	user, app := seedApp(t, ctx, s)

	created, err := s.CreateElement(ctx, app.ID, user.ID, user.ID, CanvasElement{
		ElementID: util.NewID("el"),
		Type:      "INPUT",
		Name:      "Email",
		X:         15,
		Width:     240,
		Height:    40,
		Visible:   true,
	})
	if err != nil {
		t.Fatalf("create element: %v", err)
	}
	before := historyCount(t, ctx, s, created.CanvasID)

	updated, err := s.UpdateElement(ctx, app.ID, user.ID, user.ID, created.ElementID, ElementPatch{})
	if err != nil {
		t.Fatalf("update element: %v", err)
	}

	if updated.Name != "Email" || updated.X != 15 || updated.Width != 240 {
		t.Fatalf("expected element unchanged, got %+v", updated)
	}
	if got := historyCount(t, ctx, s, created.CanvasID); got != before+1 {
		t.Fatalf("expected one new history row, got %d -> %d", before, got)
	}

	var action string
	err = s.DB().QueryRowContext(ctx, `
		SELECT action FROM canvas_history WHERE canvas_id=$1 ORDER BY id DESC LIMIT 1
	`, created.CanvasID).Scan(&action)
	if err != nil {
		t.Fatalf("read latest history: %v", err)
	}
	if action != "element_update" {
		t.Fatalf("expected element_update history action, got %q", action)
	}
}

// TestFailedMutationWritesNoHistory verifies that mutations and their history
// rows commit together: when the mutation fails, no history is left behind.
func TestFailedMutationWritesNoHistory(t *testing.T) {
	s, ctx := openTestStore(t)
	user, app := seedApp(t, ctx, s)

	canvas, err := s.GetOrCreateCanvas(ctx, app.ID, user.ID)
	if err != nil {
		t.Fatalf("get canvas: %v", err)
	}
	before := historyCount(t, ctx, s, canvas.ID)

	_, err = s.UpdateElement(ctx, app.ID, user.ID, user.ID, "el_does_not_exist", ElementPatch{})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing element, got %v", err)
	}
	if got := historyCount(t, ctx, s, canvas.ID); got != before {
		t.Fatalf("expected no new history rows, got %d -> %d", before, got)
	}

	if _, err := s.CreateElement(ctx, app.ID, user.ID, user.ID, CanvasElement{
		ElementID: util.NewID("el"),
		Type:      "SHAPE",
		Name:      "Box",
		Visible:   true,
	}); err != nil {
		t.Fatalf("create element: %v", err)
	}
	if got := historyCount(t, ctx, s, canvas.ID); got != before+1 {
		t.Fatalf("expected exactly one element_create history row, got %d -> %d", before, got)
	}
}

// TestGetAppForOwnerRejectsForeignOwner verifies that ownership checks surface
// sql.ErrNoRows for apps held by another user.
func TestGetAppForOwnerRejectsForeignOwner(t *testing.T) {
	s, ctx := openTestStore(t)
	user, app := seedApp(t, ctx, s)

	other, err := s.EnsureUserByEmail(ctx, util.NewID("it")+"@example.com", "Other Tester")
	if err != nil {
		t.Fatalf("ensure other user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.DB().ExecContext(context.Background(), `DELETE FROM users WHERE id=$1`, other.ID)
	})

	if _, err := s.GetAppForOwner(ctx, app.ID, user.ID); err != nil {
		t.Fatalf("owner lookup should succeed: %v", err)
	}
	_, err = s.GetAppForOwner(ctx, app.ID, other.ID)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for foreign owner, got %v", err)
	}
}

func openTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

// seedApp creates a throwaway user and app; the app cascades its canvas,
// elements and history on cleanup.
func seedApp(t *testing.T, ctx context.Context, s *PostgresStore) (User, App) {
	t.Helper()

	user, err := s.EnsureUserByEmail(ctx, util.NewID("it")+"@example.com", "Integration Tester")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	app, err := s.CreateApp(ctx, user.ID, "Integration App")
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	if _, err := s.GetOrCreateCanvas(ctx, app.ID, user.ID); err != nil {
		t.Fatalf("create canvas: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx := context.Background()
		_, _ = s.DB().ExecContext(cleanupCtx, `DELETE FROM apps WHERE id=$1`, app.ID)
		_, _ = s.DB().ExecContext(cleanupCtx, `DELETE FROM users WHERE id=$1`, user.ID)
	})
	return user, app
}

func historyCount(t *testing.T, ctx context.Context, s *PostgresStore, canvasID string) int {
	t.Helper()
	var count int
	err := s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM canvas_history WHERE canvas_id=$1
	`, canvasID).Scan(&count)
	if err != nil {
		t.Fatalf("count history: %v", err)
	}
	return count
}

// getTestDatabaseURL returns the database URL for integration tests. It checks
// TEST_DATABASE_URL first, then falls back to the standard Postgres environment
// variables with local development defaults.
func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := envOr("TEST_DATABASE_URL", ""); url != "" {
		return url
	}

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "mosaic")
	pass := envOr("POSTGRES_PASSWORD", "mosaic")
	dbname := envOr("POSTGRES_DB", "mosaic_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
