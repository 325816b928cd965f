package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument(rows int, charts bool) Document {
	data := Dataset{Headers: []string{"Department", "Total"}}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, map[string]string{"Department": fmt.Sprintf("Dept %03d", i), "Total": fmt.Sprint(i)})
	}
	return Document{
		Title:     "Department Summary Report",
		Metadata:  []MetaEntry{{Label: "Report type", Value: "Department Summary Report"}},
		Dataset:   data,
		ChartSlot: charts,
	}
}

func TestPDFExporterRendersTableAndMetadata(t *testing.T) {
	exporter := &PDFExporter{}
	out, err := exporter.RenderDocument(testDocument(3, false))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Contains(t, string(out), "Department Summary Report")
	assert.Contains(t, string(out), "Dept 002")
	assert.NotContains(t, string(out), "(Charts)")
}

func TestPDFExporterChartSlotOnlyWhenRequested(t *testing.T) {
	exporter := &PDFExporter{}
	out, err := exporter.RenderDocument(testDocument(1, true))
	require.NoError(t, err)
	assert.Contains(t, string(out), "(Charts)")
}

func TestPDFExporterRepeatsHeaderAcrossPages(t *testing.T) {
	exporter := &PDFExporter{}
	out, err := exporter.RenderDocument(testDocument(120, false))
	require.NoError(t, err)
	headerCount := bytes.Count(out, []byte("(Department)"))
	assert.GreaterOrEqual(t, headerCount, 3)
	assert.Contains(t, string(out), "Dept 119")
}

func TestPDFExporterEmptyDataset(t *testing.T) {
	exporter := &PDFExporter{}
	out, err := exporter.RenderDocument(testDocument(0, false))
	require.NoError(t, err)
	assert.Contains(t, string(out), "No records for the selected period")
}

func TestPDFExporterRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().RenderDocument(Document{Title: "x"})
	require.Error(t, err)
}
