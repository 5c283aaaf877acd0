package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

func pageObjects(pdf []byte) int {
	return bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
}

func TestAssemble_OnePagePerSlice(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 800))
	layout, err := Paginate(200, 800, PageSize{Width: 200, Height: 300}, FitWidth)
	require.NoError(t, err)
	require.Equal(t, 3, layout.PageCount())

	out, err := Assemble(context.Background(), img, layout, DocumentInfo{
		Title:   "Contrato",
		Created: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, 3, pageObjects(out))
}

func TestAssemble_RenderedContract(t *testing.T) {
	r := newTestRenderer(t, Options{WidthPx: 300, Oversampling: 2})
	img, err := r.Render(context.Background(), testSections())
	require.NoError(t, err)

	layout, err := Paginate(img.Bounds().Dx(), img.Bounds().Dy(), A4, FitWidth)
	require.NoError(t, err)

	out, err := Assemble(context.Background(), img, layout, DocumentInfo{Title: "c1"})
	require.NoError(t, err)
	assert.Equal(t, layout.PageCount(), pageObjects(out))
}

func TestAssemble_LayoutMismatch(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	layout, err := Paginate(200, 200, A4, FitPage)
	require.NoError(t, err)

	out, err := Assemble(context.Background(), img, layout, DocumentInfo{})
	assert.Nil(t, out)
	var re *model.RenderError
	assert.True(t, errors.As(err, &re))
}

func TestAssemble_CancelledWritesNothing(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 1000))
	layout, err := Paginate(100, 1000, A4, FitWidth)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Assemble(ctx, img, layout, DocumentInfo{})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
}
