package models

import "time"

// ReportRow is one normalised record keyed by column header.
type ReportRow map[string]string

// SummaryMetric is one entry of the per-type statistics block shown in notifications.
type SummaryMetric struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RowSet is the aggregator output: a fixed header list plus rows that share it.
type RowSet struct {
	Definition  ReportDefinition `json:"definition"`
	Title       string           `json:"title"`
	RangeStart  time.Time        `json:"rangeStart"`
	RangeEnd    time.Time        `json:"rangeEnd"`
	RangeLabel  string           `json:"rangeLabel"`
	Headers     []string         `json:"headers"`
	Rows        []ReportRow      `json:"rows"`
	Summary     []SummaryMetric  `json:"summary"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Records flattens the rows into header order.
func (r *RowSet) Records() [][]string {
	records := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make([]string, len(r.Headers))
		for i, header := range r.Headers {
			record[i] = row[header]
		}
		records = append(records, record)
	}
	return records
}

// ReportArtifact is a rendered, immutable report output.
type ReportArtifact struct {
	ID          string           `json:"id"`
	Format      ReportFormat     `json:"format"`
	Content     []byte           `json:"-"`
	ContentType string           `json:"contentType"`
	Filename    string           `json:"filename"`
	Checksum    string           `json:"checksum"`
	Title       string           `json:"title"`
	Headers     []string         `json:"headers"`
	RowCount    int              `json:"rowCount"`
	Summary     []SummaryMetric  `json:"summary"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Definition  ReportDefinition `json:"sourceDefinition"`
}

// Size returns the payload length in bytes.
func (a *ReportArtifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Content)
}
