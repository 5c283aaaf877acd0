package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/render"
)

const pdfContentType = "application/pdf"

type ExportOptions struct {
	Page    render.PageSize
	Fit     render.Fit
	Workers int
	Author  string
}

// ExportResult is a finished PDF export.
type ExportResult struct {
	Filename string
	PDF      []byte
	Layout   *render.Layout
}

// ExportService renders contracts to paginated PDFs. At most Workers exports
// run at once; callers wait for a slot or give up with their context.
type ExportService struct {
	renderer  *render.Renderer
	opts      ExportOptions
	slots     chan struct{}
	artifacts ArtifactStore
}

// NewExportService builds an exporter. artifacts may be nil when exports are
// only streamed back to the caller.
func NewExportService(renderer *render.Renderer, opts ExportOptions, artifacts ArtifactStore) *ExportService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Page.Width <= 0 || opts.Page.Height <= 0 {
		opts.Page = render.A4
	}
	if opts.Fit == "" {
		opts.Fit = render.FitPage
	}
	return &ExportService{
		renderer:  renderer,
		opts:      opts,
		slots:     make(chan struct{}, opts.Workers),
		artifacts: artifacts,
	}
}

// CanStore reports whether exports can be uploaded.
func (s *ExportService) CanStore() bool { return s.artifacts != nil }

// Export renders, paginates and assembles c. If ctx ends first the partial
// work is dropped and only the context error is returned.
func (s *ExportService) Export(ctx context.Context, c *model.Contract) (*ExportResult, error) {
	ctx = logger.WithContractID(ctx, c.ID)

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	img, err := s.renderer.Render(ctx, c.Content)
	if err != nil {
		logger.Warn(ctx, "render failed", "error", err)
		return nil, err
	}
	b := img.Bounds()
	layout, err := render.Paginate(b.Dx(), b.Dy(), s.opts.Page, s.opts.Fit)
	if err != nil {
		return nil, err
	}
	pdf, err := render.Assemble(ctx, img, layout, render.DocumentInfo{
		Title:   c.Title,
		Author:  s.opts.Author,
		Created: c.UpdatedAt,
	})
	if err != nil {
		logger.Warn(ctx, "pdf assembly failed", "error", err)
		return nil, err
	}

	logger.Info(ctx, "contract exported",
		"pages", layout.PageCount(),
		"raster", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"bytes", len(pdf),
		"duration", time.Since(start).String(),
	)
	return &ExportResult{Filename: c.ExportFilename(), PDF: pdf, Layout: layout}, nil
}

// Store uploads a finished export.
func (s *ExportService) Store(ctx context.Context, c *model.Contract, res *ExportResult) (*Artifact, error) {
	if s.artifacts == nil {
		return nil, fmt.Errorf("no artifact store configured")
	}
	return s.artifacts.Put(ctx, ObjectKey(c.ID, res.Filename), res.PDF, pdfContentType)
}

// Document lets the orchestrator attach the exported PDF to signing requests.
func (s *ExportService) Document(ctx context.Context, c *model.Contract) ([]byte, string, error) {
	res, err := s.Export(ctx, c)
	if err != nil {
		return nil, "", err
	}
	return res.PDF, res.Filename, nil
}
