package export

import "mosaic/api/internal/store"

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the canvas to HTML and prints it to a PDF sized to the
// canvas dimensions.
func (s *Service) Export(canvas store.Canvas) (*Result, error) {
	html, err := RenderCanvasHTML(canvas)
	if err != nil {
		return nil, err
	}
	return exportPDF(html, canvas.Name, canvas.Width, canvas.Height)
}
