package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

const rasterName = "contract-raster"

// DocumentInfo is written into the PDF metadata.
type DocumentInfo struct {
	Title   string
	Author  string
	Created time.Time
}

// Assemble builds a PDF with one page per slice of layout. The raster is
// embedded once and placed on every page at the slice's offset, so each
// page shows exactly its band of the scaled image. Nothing is returned
// unless every page was written.
func Assemble(ctx context.Context, img image.Image, layout *Layout, info DocumentInfo) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() != layout.SourceWidth || b.Dy() != layout.SourceHeight {
		return nil, &model.RenderError{Reason: fmt.Sprintf("raster %dx%d does not match layout %dx%d",
			b.Dx(), b.Dy(), layout.SourceWidth, layout.SourceHeight)}
	}

	var raster bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&raster, img); err != nil {
		return nil, &model.RenderError{Reason: fmt.Sprintf("encode raster: %v", err)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: layout.Page.Width, Ht: layout.Page.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(info.Title, true)
	pdf.SetAuthor(info.Author, true)
	if !info.Created.IsZero() {
		pdf.SetCreationDate(info.Created)
		pdf.SetModificationDate(info.Created)
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(rasterName, opts, &raster)

	for _, s := range layout.Slices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.AddPage()
		pdf.ImageOptions(rasterName, layout.X, -s.Top, layout.ScaledWidth, layout.ScaledHeight, false, opts, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, &model.RenderError{Reason: fmt.Sprintf("write pdf: %v", err)}
	}
	return out.Bytes(), nil
}
