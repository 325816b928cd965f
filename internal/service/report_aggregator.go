package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

type portalDataSource interface {
	ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	ListFaculty(ctx context.Context) ([]models.Faculty, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
}

const (
	colStudentID       = "Student ID"
	colStudentName     = "Student Name"
	colTitle           = "Title"
	colDepartment      = "Department"
	colStatus          = "Status"
	colSubmittedAt     = "Submitted At"
	colFacultyID       = "Faculty ID"
	colFacultyName     = "Faculty Name"
	colTotalReviews    = "Total Reviews"
	colApproved        = "Approved"
	colRejected        = "Rejected"
	colPending         = "Pending"
	colAvgReviewHours  = "Avg Review Hours"
	colTotalSubmission = "Total Submissions"
	colApprovalRate    = "Approval Rate (%)"
	colMetric          = "Metric"
	colCurrent         = "Current Value"
	colPrior           = "Prior Value"
	colChange          = "Change (%)"
)

var reportHeaders = map[models.ReportType][]string{
	models.ReportTypeSubmissions: {colStudentID, colStudentName, colTitle, colDepartment, colStatus, colSubmittedAt},
	models.ReportTypeFaculty:     {colFacultyID, colFacultyName, colDepartment, colTotalReviews, colApproved, colRejected, colPending, colAvgReviewHours},
	models.ReportTypeDepartments: {colDepartment, colTotalSubmission, colApproved, colRejected, colPending, colApprovalRate},
	models.ReportTypeSystem:      {colMetric, colCurrent, colPrior, colChange},
}

// HeadersFor returns the fixed column list of a report type.
func HeadersFor(t models.ReportType) ([]string, bool) {
	headers, ok := reportHeaders[t]
	if !ok {
		return nil, false
	}
	return append([]string(nil), headers...), true
}

const notAvailable = "n/a"

// ReportAggregator turns a report definition into a normalised row-set.
type ReportAggregator struct {
	source   portalDataSource
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewReportAggregator constructs the aggregator. Relative date ranges resolve in loc.
func NewReportAggregator(source portalDataSource, loc *time.Location, logger *zap.Logger) *ReportAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ReportAggregator{source: source, location: loc, now: time.Now, logger: logger}
}

// ValidateDefinition checks the type, format and date range of def without touching the data source.
func ValidateDefinition(def models.ReportDefinition, now time.Time) (time.Time, time.Time, error) {
	if !def.Type.Valid() {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrUnknownReportType, fmt.Sprintf("unknown report type %q", def.Type))
	}
	if !def.Parameters.Format.Valid() {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrInvalidParameters, fmt.Sprintf("unsupported format %q", def.Parameters.Format))
	}
	start, end, err := def.Parameters.DateRange.Resolve(now)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.WrapAs(appErrors.ErrInvalidParameters, err, err.Error())
	}
	return start, end, nil
}

// Aggregate produces the row-set for def.
func (a *ReportAggregator) Aggregate(ctx context.Context, def models.ReportDefinition) (*models.RowSet, error) {
	now := a.now().In(a.location)
	start, end, err := ValidateDefinition(def, now)
	if err != nil {
		return nil, err
	}

	departments, err := a.source.ListDepartments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load departments")
	}
	scope, err := departmentScope(departments, def.Parameters.Departments)
	if err != nil {
		return nil, err
	}

	headers, _ := HeadersFor(def.Type)
	rowSet := &models.RowSet{
		Definition:  def.Clone(),
		Title:       def.Type.Label(),
		RangeStart:  start,
		RangeEnd:    end,
		RangeLabel:  def.Parameters.DateRange.Label(start, end),
		Headers:     headers,
		GeneratedAt: now,
	}

	switch def.Type {
	case models.ReportTypeSubmissions:
		err = a.buildSubmissions(ctx, rowSet, scope)
	case models.ReportTypeFaculty:
		err = a.buildFaculty(ctx, rowSet, scope)
	case models.ReportTypeDepartments:
		err = a.buildDepartments(ctx, rowSet, scope)
	case models.ReportTypeSystem:
		err = a.buildSystem(ctx, rowSet, scope)
	}
	if err != nil {
		return nil, err
	}
	a.logger.Sugar().Debugw("report aggregated", "report_type", def.Type, "rows", len(rowSet.Rows), "range", rowSet.RangeLabel)
	return rowSet, nil
}

// deptScope is the ordered set of department names a report may mention.
type deptScope struct {
	names []string
	set   map[string]struct{}
}

func (s deptScope) contains(name string) bool {
	_, ok := s.set[name]
	return ok
}

// departmentScope intersects the known departments with the filter. Unknown filter names are rejected.
func departmentScope(known []models.Department, filter []string) (deptScope, error) {
	knownSet := make(map[string]struct{}, len(known))
	names := make([]string, 0, len(known))
	for _, dept := range known {
		if _, dup := knownSet[dept.Name]; dup || dept.Name == "" {
			continue
		}
		knownSet[dept.Name] = struct{}{}
		names = append(names, dept.Name)
	}
	sort.Strings(names)
	if len(filter) == 0 {
		return deptScope{names: names, set: knownSet}, nil
	}

	wanted := make(map[string]struct{}, len(filter))
	for _, raw := range filter {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := knownSet[name]; !ok {
			return deptScope{}, appErrors.Clone(appErrors.ErrInvalidParameters, fmt.Sprintf("unknown department %q", name))
		}
		wanted[name] = struct{}{}
	}
	if len(wanted) == 0 {
		return deptScope{names: names, set: knownSet}, nil
	}
	scoped := make([]string, 0, len(wanted))
	for _, name := range names {
		if _, ok := wanted[name]; ok {
			scoped = append(scoped, name)
		}
	}
	return deptScope{names: scoped, set: wanted}, nil
}

func (a *ReportAggregator) loadSubmissions(ctx context.Context, from, to time.Time, scope deptScope) ([]models.Submission, error) {
	submissions, err := a.source.ListSubmissions(ctx, models.SubmissionFilter{From: from, To: to, Departments: scope.names})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}
	out := make([]models.Submission, 0, len(submissions))
	for _, sub := range submissions {
		if scope.contains(sub.Department) {
			out = append(out, sub)
		}
	}
	return out, nil
}

type statusCounts struct {
	total, approved, rejected, pending int
}

func (c *statusCounts) add(status models.SubmissionStatus) {
	c.total++
	switch status {
	case models.SubmissionApproved:
		c.approved++
	case models.SubmissionRejected:
		c.rejected++
	default:
		c.pending++
	}
}

// approvalRate is approved over decided submissions, as a percentage.
func (c statusCounts) approvalRate() float64 {
	decided := c.approved + c.rejected
	if decided == 0 {
		return 0
	}
	return float64(c.approved) / float64(decided) * 100
}

func (a *ReportAggregator) buildSubmissions(ctx context.Context, rs *models.RowSet, scope deptScope) error {
	submissions, err := a.loadSubmissions(ctx, rs.RangeStart, rs.RangeEnd, scope)
	if err != nil {
		return err
	}
	var counts statusCounts
	rs.Rows = make([]models.ReportRow, 0, len(submissions))
	for _, sub := range submissions {
		counts.add(sub.Status)
		rs.Rows = append(rs.Rows, models.ReportRow{
			colStudentID:   sub.StudentID,
			colStudentName: sub.StudentName,
			colTitle:       sub.Title,
			colDepartment:  sub.Department,
			colStatus:      string(sub.Status),
			colSubmittedAt: sub.SubmittedAt.In(a.location).Format("2006-01-02 15:04"),
		})
	}
	rs.Summary = []models.SummaryMetric{
		{Label: "Total submissions", Value: strconv.Itoa(counts.total)},
		{Label: "Approved", Value: strconv.Itoa(counts.approved)},
		{Label: "Rejected", Value: strconv.Itoa(counts.rejected)},
		{Label: "Pending", Value: strconv.Itoa(counts.pending)},
	}
	return nil
}

func (a *ReportAggregator) buildFaculty(ctx context.Context, rs *models.RowSet, scope deptScope) error {
	faculty, err := a.source.ListFaculty(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	// Reviews cross department lines, so every known department is loaded here.
	submissions, err := a.source.ListSubmissions(ctx, models.SubmissionFilter{From: rs.RangeStart, To: rs.RangeEnd})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	type reviewStats struct {
		counts     statusCounts
		latency    time.Duration
		latencyObs int
	}
	byReviewer := make(map[string]*reviewStats)
	for _, sub := range submissions {
		if sub.ReviewerID == nil || *sub.ReviewerID == "" {
			continue
		}
		stats := byReviewer[*sub.ReviewerID]
		if stats == nil {
			stats = &reviewStats{}
			byReviewer[*sub.ReviewerID] = stats
		}
		stats.counts.add(sub.Status)
		if sub.ReviewedAt != nil && sub.Status != models.SubmissionPending && !sub.ReviewedAt.Before(sub.SubmittedAt) {
			stats.latency += sub.ReviewedAt.Sub(sub.SubmittedAt)
			stats.latencyObs++
		}
	}

	var (
		members, reviews int
		total            statusCounts
		latency          time.Duration
		latencyObs       int
	)
	rs.Rows = make([]models.ReportRow, 0, len(faculty))
	for _, member := range faculty {
		if !scope.contains(member.Department) {
			continue
		}
		members++
		stats := byReviewer[member.ID]
		if stats == nil {
			stats = &reviewStats{}
		}
		decided := stats.counts.approved + stats.counts.rejected
		reviews += decided
		total.approved += stats.counts.approved
		total.rejected += stats.counts.rejected
		latency += stats.latency
		latencyObs += stats.latencyObs
		rs.Rows = append(rs.Rows, models.ReportRow{
			colFacultyID:      member.ID,
			colFacultyName:    member.Name,
			colDepartment:     member.Department,
			colTotalReviews:   strconv.Itoa(decided),
			colApproved:       strconv.Itoa(stats.counts.approved),
			colRejected:       strconv.Itoa(stats.counts.rejected),
			colPending:        strconv.Itoa(stats.counts.pending),
			colAvgReviewHours: averageHours(stats.latency, stats.latencyObs),
		})
	}
	rs.Summary = []models.SummaryMetric{
		{Label: "Faculty members", Value: strconv.Itoa(members)},
		{Label: "Total reviews", Value: strconv.Itoa(reviews)},
		{Label: "Approval rate", Value: formatPercent(total.approvalRate())},
		{Label: "Avg review time (hours)", Value: averageHours(latency, latencyObs)},
	}
	return nil
}

func (a *ReportAggregator) buildDepartments(ctx context.Context, rs *models.RowSet, scope deptScope) error {
	submissions, err := a.loadSubmissions(ctx, rs.RangeStart, rs.RangeEnd, scope)
	if err != nil {
		return err
	}
	byDept := make(map[string]*statusCounts, len(scope.names))
	for _, name := range scope.names {
		byDept[name] = &statusCounts{}
	}
	var overall statusCounts
	for _, sub := range submissions {
		byDept[sub.Department].add(sub.Status)
		overall.add(sub.Status)
	}

	mostActive, mostActiveCount := notAvailable, 0
	rs.Rows = make([]models.ReportRow, 0, len(scope.names))
	for _, name := range scope.names {
		counts := byDept[name]
		if counts.total > mostActiveCount {
			mostActive, mostActiveCount = name, counts.total
		}
		rs.Rows = append(rs.Rows, models.ReportRow{
			colDepartment:      name,
			colTotalSubmission: strconv.Itoa(counts.total),
			colApproved:        strconv.Itoa(counts.approved),
			colRejected:        strconv.Itoa(counts.rejected),
			colPending:         strconv.Itoa(counts.pending),
			colApprovalRate:    formatPercent(counts.approvalRate()),
		})
	}
	rs.Summary = []models.SummaryMetric{
		{Label: "Departments", Value: strconv.Itoa(len(scope.names))},
		{Label: "Total submissions", Value: strconv.Itoa(overall.total)},
		{Label: "Most active department", Value: mostActive},
		{Label: "Overall approval rate", Value: formatPercent(overall.approvalRate())},
	}
	return nil
}

type systemMetrics struct {
	counts   statusCounts
	students int
}

func collectSystemMetrics(submissions []models.Submission) systemMetrics {
	var m systemMetrics
	students := make(map[string]struct{})
	for _, sub := range submissions {
		m.counts.add(sub.Status)
		students[sub.StudentID] = struct{}{}
	}
	m.students = len(students)
	return m
}

func (a *ReportAggregator) buildSystem(ctx context.Context, rs *models.RowSet, scope deptScope) error {
	current, err := a.loadSubmissions(ctx, rs.RangeStart, rs.RangeEnd, scope)
	if err != nil {
		return err
	}
	window := rs.RangeEnd.Sub(rs.RangeStart)
	priorEnd := rs.RangeStart.Add(-time.Nanosecond)
	prior, err := a.loadSubmissions(ctx, rs.RangeStart.Add(-window), priorEnd, scope)
	if err != nil {
		return err
	}
	cur, prev := collectSystemMetrics(current), collectSystemMetrics(prior)

	type metric struct {
		name        string
		cur, prev   float64
		decimalRate bool
	}
	metrics := []metric{
		{name: "Total Submissions", cur: float64(cur.counts.total), prev: float64(prev.counts.total)},
		{name: "Approved Submissions", cur: float64(cur.counts.approved), prev: float64(prev.counts.approved)},
		{name: "Rejected Submissions", cur: float64(cur.counts.rejected), prev: float64(prev.counts.rejected)},
		{name: "Pending Submissions", cur: float64(cur.counts.pending), prev: float64(prev.counts.pending)},
		{name: "Active Students", cur: float64(cur.students), prev: float64(prev.students)},
		{name: "Approval Rate (%)", cur: cur.counts.approvalRate(), prev: prev.counts.approvalRate(), decimalRate: true},
	}
	rs.Rows = make([]models.ReportRow, 0, len(metrics))
	for _, m := range metrics {
		format := func(v float64) string {
			if m.decimalRate {
				return formatPercent(v)
			}
			return strconv.FormatFloat(v, 'f', 0, 64)
		}
		rs.Rows = append(rs.Rows, models.ReportRow{
			colMetric:  m.name,
			colCurrent: format(m.cur),
			colPrior:   format(m.prev),
			colChange:  percentChange(m.cur, m.prev),
		})
	}
	rs.Summary = []models.SummaryMetric{
		{Label: "Total submissions", Value: strconv.Itoa(cur.counts.total)},
		{Label: "Approval rate", Value: formatPercent(cur.counts.approvalRate())},
		{Label: "Active students", Value: strconv.Itoa(cur.students)},
		{Label: "Change vs prior period", Value: percentChange(float64(cur.counts.total), float64(prev.counts.total))},
	}
	return nil
}

// percentChange is (cur-prev)/prev. A zero prior yields n/a unless both are zero.
func percentChange(cur, prev float64) string {
	if prev == 0 {
		if cur == 0 {
			return "0.00"
		}
		return notAvailable
	}
	return formatPercent((cur - prev) / prev * 100)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func averageHours(total time.Duration, n int) string {
	if n == 0 {
		return notAvailable
	}
	return strconv.FormatFloat(total.Hours()/float64(n), 'f', 2, 64)
}
