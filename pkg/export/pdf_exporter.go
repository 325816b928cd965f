package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	rowHeight    = 7.0
	headerHeight = 8.0
	footerSpace  = 15.0
	chartHeight  = 55.0
)

// MetaEntry is one label/value line of the document metadata block.
type MetaEntry struct {
	Label string
	Value string
}

// Document describes a paginated, titled report document.
type Document struct {
	Title    string
	Metadata []MetaEntry
	Dataset  Dataset
	// ChartSlot reserves a fixed placeholder section after the table.
	ChartSlot    bool
	ChartCaption string
	EmptyMessage string
}

// PDFExporter renders documents with gofpdf.
type PDFExporter struct {
	// Compress toggles stream compression; tests disable it to inspect content.
	Compress bool
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{Compress: true}
}

// RenderDocument writes the title block, metadata block, the table (header row repeated on
// every page) and, when requested, the chart placeholder section.
func (e *PDFExporter) RenderDocument(doc Document) ([]byte, error) {
	headers := doc.Dataset.Headers
	if len(headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}

	orientation, tableWidth := "P", 190.0
	if len(headers) > 6 {
		orientation, tableWidth = "L", 277.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetCompression(e.Compress)
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(false, footerSpace)
	pdf.SetTitle(doc.Title, true)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	_, pageHeight := pdf.GetPageSize()
	limit := pageHeight - footerSpace

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	for _, entry := range doc.Metadata {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 6, tr(entry.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(entry.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)

	colWidth := tableWidth / float64(len(headers))
	writeHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(225, 230, 240)
		for _, header := range headers {
			pdf.CellFormat(colWidth, headerHeight, fitText(pdf, tr(header), colWidth), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	writeHeader()

	records := doc.Dataset.Records()
	if len(records) == 0 {
		message := doc.EmptyMessage
		if message == "" {
			message = "No records for the selected period"
		}
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(tableWidth, rowHeight, tr(message), "1", 1, "C", false, 0, "")
	}
	for i, record := range records {
		if pdf.GetY()+rowHeight > limit {
			pdf.AddPage()
			writeHeader()
		}
		fill := i%2 == 1
		pdf.SetFillColor(246, 247, 250)
		for _, value := range record {
			pdf.CellFormat(colWidth, rowHeight, fitText(pdf, tr(value), colWidth), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if doc.ChartSlot {
		if pdf.GetY()+chartHeight+12 > limit {
			pdf.AddPage()
		}
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Charts", "", 1, "L", false, 0, "")
		x, y := pdf.GetXY()
		pdf.SetDrawColor(160, 160, 160)
		pdf.Rect(x, y, tableWidth, chartHeight-12, "D")
		caption := doc.ChartCaption
		if caption == "" {
			caption = "Chart visualisation reserved"
		}
		pdf.SetXY(x, y+(chartHeight-12)/2-3)
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(tableWidth, 6, tr(caption), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fitText shortens s with an ellipsis until it fits inside width (minus cell padding).
func fitText(pdf *gofpdf.Fpdf, s string, width float64) string {
	max := width - 2
	if pdf.GetStringWidth(s) <= max {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if pdf.GetStringWidth(candidate) <= max {
			return candidate
		}
	}
	return ""
}
