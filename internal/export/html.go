package export

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"mosaic/api/internal/store"
)

// RenderCanvasHTML lays the canvas out as absolutely positioned divs so the
// PDF matches what the editor shows. Hidden elements are skipped; locked
// state only matters in the editor.
func RenderCanvasHTML(canvas store.Canvas) (string, error) {
	data := canvasPage{
		Name:       canvas.Name,
		Width:      canvas.Width,
		Height:     canvas.Height,
		Background: backgroundColor(canvas.Background),
	}

	elements := make([]store.CanvasElement, len(canvas.Elements))
	copy(elements, canvas.Elements)
	sort.SliceStable(elements, func(i, j int) bool {
		return elements[i].ZIndex < elements[j].ZIndex
	})

	for _, el := range elements {
		if !el.Visible {
			continue
		}
		data.Elements = append(data.Elements, canvasBox{
			Type:  strings.ToLower(el.Type),
			Style: template.CSS(elementCSS(el)),
			Text:  elementText(el),
		})
	}

	var buf bytes.Buffer
	if err := canvasTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render canvas html: %w", err)
	}
	return buf.String(), nil
}

type canvasPage struct {
	Name       string
	Width      int
	Height     int
	Background string
	Elements   []canvasBox
}

type canvasBox struct {
	Type  string
	Style template.CSS
	Text  string
}

func elementCSS(el store.CanvasElement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "left:%gpx;top:%gpx;width:%gpx;height:%gpx;z-index:%d;", el.X, el.Y, el.Width, el.Height, el.ZIndex)
	if el.Rotation != 0 {
		fmt.Fprintf(&b, "transform:rotate(%gdeg);", el.Rotation)
	}
	for _, prop := range []struct{ key, css string }{
		{"backgroundColor", "background-color"},
		{"color", "color"},
		{"fontSize", "font-size"},
		{"fontWeight", "font-weight"},
		{"textAlign", "text-align"},
		{"borderRadius", "border-radius"},
		{"borderWidth", "border-width"},
		{"borderColor", "border-color"},
		{"opacity", "opacity"},
	} {
		if val := styleValue(el.Styles[prop.key]); val != "" {
			fmt.Fprintf(&b, "%s:%s;", prop.css, val)
		}
	}
	return b.String()
}

// styleValue renders a style entry as CSS, keeping only values that cannot
// smuggle extra declarations into the inline style.
func styleValue(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case float64:
		s = fmt.Sprintf("%g", val)
	case int:
		s = fmt.Sprintf("%d", val)
	default:
		return ""
	}
	if strings.ContainsAny(s, ";:{}<>\"'\\") {
		return ""
	}
	return s
}

func elementText(el store.CanvasElement) string {
	for _, key := range []string{"text", "label", "placeholder", "title"} {
		if s, ok := el.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func backgroundColor(bg store.JSONMap) string {
	if s, ok := bg["color"].(string); ok {
		if v := styleValue(s); v != "" {
			return v
		}
	}
	return "#ffffff"
}

var canvasTemplate = template.Must(template.New("canvas").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body { font-family: Arial, sans-serif; }
    .canvas { position: relative; overflow: hidden; width: {{.Width}}px; height: {{.Height}}px; background: {{.Background}}; }
    .element { position: absolute; display: flex; align-items: center; justify-content: center; overflow: hidden; }
  </style>
</head>
<body>
  <div class="canvas">
  {{- range .Elements}}
    <div class="element element-{{.Type}}" style="{{.Style}}">{{.Text}}</div>
  {{- end}}
  </div>
</body>
</html>`))
