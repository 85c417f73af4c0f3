package export

import (
	"strings"
	"testing"

	"mosaic/api/internal/store"
)

func TestRenderCanvasHTML(t *testing.T) {
	canvas := store.Canvas{
		Name:       "Landing Page",
		Width:      1200,
		Height:     800,
		Background: store.JSONMap{"color": "#fafafa"},
		Elements: []store.CanvasElement{
			{
				ElementID:  "text-1",
				Type:       "TEXT",
				X:          10,
				Y:          20,
				Width:      200,
				Height:     40,
				ZIndex:     2,
				Visible:    true,
				Properties: store.JSONMap{"text": "Welcome"},
				Styles:     store.JSONMap{"color": "#333333", "fontSize": "18px"},
			},
			{
				ElementID:  "shape-1",
				Type:       "SHAPE",
				X:          0,
				Y:          0,
				Width:      1200,
				Height:     120,
				ZIndex:     1,
				Visible:    true,
				Rotation:   5,
				Properties: store.JSONMap{},
				Styles:     store.JSONMap{"backgroundColor": "#0044cc"},
			},
			{
				ElementID:  "hidden-1",
				Type:       "BUTTON",
				Visible:    false,
				Properties: store.JSONMap{"label": "Should not render"},
				Styles:     store.JSONMap{},
			},
		},
	}

	html, err := RenderCanvasHTML(canvas)
	if err != nil {
		t.Fatalf("RenderCanvasHTML() error = %v", err)
	}

	for _, want := range []string{
		"width: 1200px",
		"height: 800px",
		"background: #fafafa",
		"left:10px;top:20px;width:200px;height:40px;z-index:2;",
		"color:#333333;",
		"font-size:18px;",
		">Welcome<",
		"transform:rotate(5deg);",
		"background-color:#0044cc;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered html missing %q", want)
		}
	}
	if strings.Contains(html, "Should not render") {
		t.Error("hidden element was rendered")
	}
	if strings.Index(html, "element-shape") > strings.Index(html, "element-text") {
		t.Error("expected lower z-index element to render first")
	}
}

func TestRenderCanvasHTMLEscapesContent(t *testing.T) {
	canvas := store.Canvas{
		Name:   "XSS",
		Width:  100,
		Height: 100,
		Elements: []store.CanvasElement{
			{
				ElementID:  "text-1",
				Type:       "TEXT",
				Visible:    true,
				Properties: store.JSONMap{"text": `<script>alert("x")</script>`},
				Styles:     store.JSONMap{"color": `red;background:url("evil")`},
			},
		},
	}

	html, err := RenderCanvasHTML(canvas)
	if err != nil {
		t.Fatalf("RenderCanvasHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("element text was not escaped")
	}
	if strings.Contains(html, "evil") {
		t.Error("unsafe style value leaked into rendered css")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Landing Page", "Landing-Page"},
		{"", "canvas"},
		{"!!!", "canvas"},
		{"my_app-v2", "my_app-v2"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Errorf("percentEncodeForDataURL() = %q", got)
	}
}
