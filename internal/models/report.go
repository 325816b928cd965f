package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ReportType enumerates the supported report shapes. Values are persisted and must not change.
type ReportType string

const (
	ReportTypeSubmissions ReportType = "submissions"
	ReportTypeFaculty     ReportType = "faculty"
	ReportTypeDepartments ReportType = "departments"
	ReportTypeSystem      ReportType = "system"
)

// ReportTypes lists every recognised report type in stable order.
var ReportTypes = []ReportType{ReportTypeSubmissions, ReportTypeFaculty, ReportTypeDepartments, ReportTypeSystem}

// Valid reports whether t is a recognised report type.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeSubmissions, ReportTypeFaculty, ReportTypeDepartments, ReportTypeSystem:
		return true
	default:
		return false
	}
}

// Label returns the human readable name, or a generic label for unknown types.
func (t ReportType) Label() string {
	switch t {
	case ReportTypeSubmissions:
		return "Submissions Report"
	case ReportTypeFaculty:
		return "Faculty Review Report"
	case ReportTypeDepartments:
		return "Department Summary Report"
	case ReportTypeSystem:
		return "System Overview Report"
	default:
		return "Report"
	}
}

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid reports whether f is a supported export format.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ContentType returns the MIME type of artifacts in this format.
func (f ReportFormat) ContentType() string {
	switch f {
	case ReportFormatCSV:
		return "text/csv; charset=utf-8"
	case ReportFormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Label names the format in notifications.
func (f ReportFormat) Label() string {
	switch f {
	case ReportFormatCSV:
		return "CSV spreadsheet"
	case ReportFormatPDF:
		return "PDF document"
	default:
		return "file"
	}
}

// DateRangePreset selects the reporting window relative to the run time.
type DateRangePreset string

const (
	DateRangeLast7Days   DateRangePreset = "last_7_days"
	DateRangeLast30Days  DateRangePreset = "last_30_days"
	DateRangeLast90Days  DateRangePreset = "last_90_days"
	DateRangeThisMonth   DateRangePreset = "this_month"
	DateRangeThisQuarter DateRangePreset = "this_quarter"
	DateRangeThisYear    DateRangePreset = "this_year"
	DateRangeCustom      DateRangePreset = "custom"
)

// Valid reports whether p is a known preset. The empty preset is valid and means the last 30 days.
func (p DateRangePreset) Valid() bool {
	switch p {
	case "", DateRangeLast7Days, DateRangeLast30Days, DateRangeLast90Days, DateRangeThisMonth,
		DateRangeThisQuarter, DateRangeThisYear, DateRangeCustom:
		return true
	default:
		return false
	}
}

// DateRange is the date-range selector of a report definition.
type DateRange struct {
	Preset DateRangePreset `json:"preset"`
	From   *time.Time      `json:"from,omitempty"`
	To     *time.Time      `json:"to,omitempty"`
}

// ErrInvalidDateRange is returned by Resolve for unknown presets and inverted or incomplete ranges.
var ErrInvalidDateRange = errors.New("invalid date range")

// Resolve turns the selector into a concrete [start, end] interval relative to now.
// Relative presets end at now; an empty preset means the last 30 days.
func (r DateRange) Resolve(now time.Time) (time.Time, time.Time, error) {
	startOfDay := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
	switch r.Preset {
	case DateRangeLast7Days:
		return startOfDay(now.AddDate(0, 0, -7)), now, nil
	case "", DateRangeLast30Days:
		return startOfDay(now.AddDate(0, 0, -30)), now, nil
	case DateRangeLast90Days:
		return startOfDay(now.AddDate(0, 0, -90)), now, nil
	case DateRangeThisMonth:
		y, m, _ := now.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), now, nil
	case DateRangeThisQuarter:
		y, m, _ := now.Date()
		first := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, first, 1, 0, 0, 0, 0, now.Location()), now, nil
	case DateRangeThisYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), now, nil
	case DateRangeCustom:
		if r.From == nil || r.To == nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: custom range requires from and to", ErrInvalidDateRange)
		}
		if r.From.After(*r.To) {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s is after to %s", ErrInvalidDateRange, r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
		}
		return *r.From, *r.To, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidDateRange, r.Preset)
	}
}

// Label describes the resolved interval, e.g. "Last 30 days (2026-09-16 to 2026-10-16)".
func (r DateRange) Label(start, end time.Time) string {
	var name string
	switch r.Preset {
	case DateRangeLast7Days:
		name = "Last 7 days"
	case "", DateRangeLast30Days:
		name = "Last 30 days"
	case DateRangeLast90Days:
		name = "Last 90 days"
	case DateRangeThisMonth:
		name = "This month"
	case DateRangeThisQuarter:
		name = "This quarter"
	case DateRangeThisYear:
		name = "This year"
	default:
		name = "Custom range"
	}
	return fmt.Sprintf("%s (%s to %s)", name, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// ReportParameters holds the tunable inputs of a report definition.
type ReportParameters struct {
	DateRange     DateRange    `json:"dateRange"`
	Departments   []string     `json:"departments,omitempty"`
	IncludeCharts bool         `json:"includeCharts"`
	Format        ReportFormat `json:"format"`
}

// ReportDefinition describes what to produce. Treat it as immutable; edits create a new value via Clone.
type ReportDefinition struct {
	Type       ReportType       `json:"type"`
	Parameters ReportParameters `json:"parameters"`
}

// Clone returns a deep copy so callers never share slices or pointers.
func (d ReportDefinition) Clone() ReportDefinition {
	out := d
	if d.Parameters.Departments != nil {
		out.Parameters.Departments = append([]string(nil), d.Parameters.Departments...)
	}
	if d.Parameters.DateRange.From != nil {
		from := *d.Parameters.DateRange.From
		out.Parameters.DateRange.From = &from
	}
	if d.Parameters.DateRange.To != nil {
		to := *d.Parameters.DateRange.To
		out.Parameters.DateRange.To = &to
	}
	return out
}

// Value marshals the definition to JSON for persistence.
func (d ReportDefinition) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal report definition: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the definition.
func (d *ReportDefinition) Scan(value interface{}) error {
	if value == nil {
		*d = ReportDefinition{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportDefinition", value)
	}
	if len(data) == 0 {
		*d = ReportDefinition{}
		return nil
	}
	if err := json.Unmarshal(data, d); err != nil {
		return fmt.Errorf("unmarshal report definition: %w", err)
	}
	return nil
}
