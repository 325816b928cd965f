package models

import (
	"fmt"
	"time"
)

// Frequency is the cadence of a schedule.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// Valid reports whether f is a supported cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	default:
		return false
	}
}

// Next adds one period to prev. Month based cadences land on anchorDay, clamped to the
// last day of the target month, so a schedule anchored on the 31st runs Jan 31, Feb 28, Mar 31.
// A non-positive anchorDay uses prev's day of month. Unknown cadences return the zero time.
func (f Frequency) Next(prev time.Time, anchorDay int) time.Time {
	return f.AddPeriods(prev, 1, anchorDay)
}

// AddPeriods adds n periods to t in one step.
func (f Frequency) AddPeriods(t time.Time, n, anchorDay int) time.Time {
	switch f {
	case FrequencyDaily:
		return t.AddDate(0, 0, n)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7*n)
	case FrequencyMonthly:
		return addMonthsClamped(t, n, anchorDay)
	case FrequencyQuarterly:
		return addMonthsClamped(t, 3*n, anchorDay)
	default:
		return time.Time{}
	}
}

func addMonthsClamped(t time.Time, months, anchorDay int) time.Time {
	if anchorDay <= 0 {
		anchorDay = t.Day()
	}
	y, m, _ := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := anchorDay
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// ScheduleStatus captures the schedule lifecycle.
type ScheduleStatus string

const (
	ScheduleStatusActive ScheduleStatus = "active"
	ScheduleStatusPaused ScheduleStatus = "paused"
)

// RunOutcome summarises one trigger.
type RunOutcome string

const (
	RunOutcomeSucceeded RunOutcome = "succeeded"
	RunOutcomePartial   RunOutcome = "partial"
	RunOutcomeFailed    RunOutcome = "failed"
)

// RunResult is the last recorded result of a schedule.
type RunResult struct {
	At          time.Time  `json:"at"`
	Outcome     RunOutcome `json:"outcome"`
	Retry       bool       `json:"retry"`
	Error       string     `json:"error,omitempty"`
	ArtifactID  string     `json:"artifactId,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	Delivered   int        `json:"delivered"`
	Failed      int        `json:"failed"`
}

// Schedule is a recurring instruction to regenerate and redeliver a report.
type Schedule struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Definition  ReportDefinition `json:"definition"`
	Frequency   Frequency        `json:"frequency"`
	NextRunAt   time.Time        `json:"nextRunAt"`
	AnchorDay   int              `json:"anchorDay"`
	Timezone    string           `json:"timezone"`
	Recipients  []string         `json:"recipients"`
	Status      ScheduleStatus   `json:"status"`
	LastRunAt   *time.Time       `json:"lastRunAt,omitempty"`
	LastResult  *RunResult       `json:"lastResult,omitempty"`
	RetryAt     *time.Time       `json:"retryAt,omitempty"`
	RemindedFor *time.Time       `json:"remindedFor,omitempty"`
	CreatedBy   string           `json:"createdBy,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy of the schedule.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	out := *s
	out.Definition = s.Definition.Clone()
	out.Recipients = append([]string(nil), s.Recipients...)
	out.LastRunAt = cloneTime(s.LastRunAt)
	out.RetryAt = cloneTime(s.RetryAt)
	out.RemindedFor = cloneTime(s.RemindedFor)
	if s.LastResult != nil {
		result := *s.LastResult
		out.LastResult = &result
	}
	return &out
}

// Location resolves Timezone. Empty or unloadable values fall back to UTC.
func (s *Schedule) Location() *time.Location {
	loc, err := LoadZone(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Following returns the run one period after t, computed on the schedule's wall clock so
// stores that hand times back in another zone do not shift the anchor day.
func (s *Schedule) Following(t time.Time) time.Time {
	return s.Frequency.Next(t.In(s.Location()), s.AnchorDay)
}

// ZoneName describes t's location as a Timezone value: its IANA name when loadable,
// otherwise the fixed offset such as "+07:00".
func ZoneName(t time.Time) string {
	if name := t.Location().String(); name != "" && name != "Local" {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}
	return t.Format("-07:00")
}

// LoadZone parses a Timezone value. The empty value is UTC.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if name[0] == '+' || name[0] == '-' {
		t, err := time.Parse("-07:00", name)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone offset %q", name)
		}
		_, offset := t.Zone()
		return time.FixedZone(name, offset), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// IsActive reports whether the schedule takes part in triggering.
func (s *Schedule) IsActive() bool {
	return s != nil && s.Status == ScheduleStatusActive
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ScheduleConfig is what an external caller supplies to create a schedule.
type ScheduleConfig struct {
	Name       string
	Definition ReportDefinition
	Frequency  Frequency
	NextRunAt  time.Time
	// Timezone overrides the zone nextRunAt was given in.
	Timezone   string
	Recipients []string
	CreatedBy  string
}
