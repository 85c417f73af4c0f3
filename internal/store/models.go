package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a schema-less JSONB payload (element properties, styles,
// constraints, history snapshots, canvas background).
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("scan jsonb: unsupported source %T", src)
	}
}

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Canvas struct {
	ID          string          `json:"id"`
	AppID       string          `json:"appId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Background  JSONMap         `json:"background"`
	GridEnabled bool            `json:"gridEnabled"`
	SnapEnabled bool            `json:"snapEnabled"`
	ZoomLevel   float64         `json:"zoomLevel"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Elements    []CanvasElement `json:"elements"`
}

type CanvasElement struct {
	ID           int64                `json:"id"`
	ElementID    string               `json:"elementId"`
	CanvasID     string               `json:"canvasId"`
	Type         string               `json:"type"`
	Name         string               `json:"name"`
	X            float64              `json:"x"`
	Y            float64              `json:"y"`
	Width        float64              `json:"width"`
	Height       float64              `json:"height"`
	Rotation     float64              `json:"rotation"`
	ZIndex       int                  `json:"zIndex"`
	Locked       bool                 `json:"locked"`
	Visible      bool                 `json:"visible"`
	GroupID      *string              `json:"groupId"`
	ParentID     *int64               `json:"parentId"`
	Properties   JSONMap              `json:"properties"`
	Styles       JSONMap              `json:"styles"`
	Constraints  JSONMap              `json:"constraints"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	Interactions []ElementInteraction `json:"interactions"`
	Validations  []ElementValidation  `json:"validations"`
	Children     []CanvasElement      `json:"children"`
}

type ElementInteraction struct {
	ID        int64     `json:"id"`
	ElementID int64     `json:"elementId"`
	Event     string    `json:"event"`
	Action    JSONMap   `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
}

type ElementValidation struct {
	ID        int64     `json:"id"`
	ElementID int64     `json:"elementId"`
	Rule      string    `json:"rule"`
	Value     string    `json:"value"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

/// HistoryEntry is append-only: the store exposes inserts and reads, never
// updates or deletes.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	CanvasID  string    `json:"canvasId"`
	Action    string    `json:"action"`
	ElementID *string   `json:"elementId"`
	OldState  JSONMap   `json:"oldState"`
	NewState  JSONMap   `json:"newState"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Template struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	PreviewImage string    `json:"previewImage"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CanvasPatch carries a partial canvas update; nil fields are left unchanged.
type CanvasPatch struct {
	Name        *string
	Description *string
	Width       *int
	Height      *int
	Background  JSONMap
	GridEnabled *bool
	SnapEnabled *bool
	ZoomLevel   *float64
}

// ElementPatch carries a partial element update; nil fields are left unchanged.
type ElementPatch struct {
	Name        *string
	X           *float64
	Y           *float64
	Width       *float64
	Height      *float64
	Rotation    *float64
	ZIndex      *int
	Locked      *bool
	Visible     *bool
	GroupID     *string
	ParentID    *int64
	Properties  JSONMap
	Styles      JSONMap
	Constraints JSONMap
}
