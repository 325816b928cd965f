package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/noah-isme/portal-reports/internal/models"
)

// RetryPolicyStatement closes every failure message for which a retry was scheduled.
func RetryPolicyStatement(delay time.Duration) string {
	return fmt.Sprintf("An automatic retry will run in %s. The schedule remains active.", formatDelay(delay))
}

// RetryExhaustedStatement closes the failure message of a retry that failed again.
const RetryExhaustedStatement = "The automatic retry also failed and will not be repeated. The schedule remains active and its next run follows the normal cadence."

// NoRetryStatement replaces RetryPolicyStatement when the failure is caused by the report definition itself.
const NoRetryStatement = "No automatic retry will run because the report parameters are invalid. The schedule remains active; update its parameters to resume delivery."

// AdHocStatement closes failure messages of one-off requests, which are never retried.
const AdHocStatement = "This was a one-off request and will not be retried automatically. Submit it again once the cause is resolved."

const timestampLayout = "Mon, 02 Jan 2006 15:04 MST"

// ReadyData feeds the delivery-ready message.
type ReadyData struct {
	ReportName  string
	Type        models.ReportType
	Format      models.ReportFormat
	GeneratedAt time.Time
	RangeLabel  string
	DownloadURL string
	ExpiresAt   time.Time
	Summary     []models.SummaryMetric
}

// ReminderData feeds the run-reminder message.
type ReminderData struct {
	ScheduleName string
	Type         models.ReportType
	Frequency    models.Frequency
	NextRunAt    time.Time
}

// FailureData feeds the generation-failure message.
type FailureData struct {
	ScheduleName string
	Type         models.ReportType
	FailedAt     time.Time
	Error        string
	WillRetry    bool
	RetryIn      time.Duration
	// RetryFailed marks the failure of a run that was already a retry.
	RetryFailed bool
	AdHoc       bool
}

type readyView struct {
	ReportName  string
	TypeLabel   string
	FormatLabel string
	GeneratedAt string
	RangeLabel  string
	DownloadURL string
	ExpiresAt   string
	Summary     []models.SummaryMetric
}

type reminderView struct {
	ScheduleName string
	TypeLabel    string
	Frequency    string
	NextRunAt    string
}

type failureView struct {
	ScheduleName string
	TypeLabel    string
	FailedAt     string
	Error        string
	Remediation  string
}

var (
	readyHTML = htmltemplate.Must(htmltemplate.New("ready").Parse(`<html><body>
<h2>{{.ReportName}} is ready</h2>
<p><strong>Report type:</strong> {{.TypeLabel}}<br>
<strong>Generated:</strong> {{.GeneratedAt}}{{if .RangeLabel}}<br>
<strong>Period:</strong> {{.RangeLabel}}{{end}}</p>
{{if .Summary}}<table border="1" cellpadding="4" cellspacing="0">
{{range .Summary}}<tr><th align="left">{{.Label}}</th><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}
<p><a href="{{.DownloadURL}}">Download the {{.FormatLabel}}</a>{{if .ExpiresAt}} (link valid until {{.ExpiresAt}}){{end}}</p>
</body></html>`))

	readyText = texttemplate.Must(texttemplate.New("ready").Parse(`{{.ReportName}} is ready

Report type: {{.TypeLabel}}
Generated: {{.GeneratedAt}}
{{if .RangeLabel}}Period: {{.RangeLabel}}
{{end}}{{if .Summary}}
Summary
{{range .Summary}}  {{.Label}}: {{.Value}}
{{end}}{{end}}
Download the {{.FormatLabel}}: {{.DownloadURL}}
{{if .ExpiresAt}}The link is valid until {{.ExpiresAt}}.
{{end}}`))

	reminderHTML = htmltemplate.Must(htmltemplate.New("reminder").Parse(`<html><body>
<h2>Upcoming report: {{.ScheduleName}}</h2>
<p>The {{.Frequency}} {{.TypeLabel}} will be generated on {{.NextRunAt}}.</p>
<p>No action is required. You will receive the report once it is ready.</p>
</body></html>`))

	reminderText = texttemplate.Must(texttemplate.New("reminder").Parse(`Upcoming report: {{.ScheduleName}}

The {{.Frequency}} {{.TypeLabel}} will be generated on {{.NextRunAt}}.
No action is required. You will receive the report once it is ready.
`))

	failureHTML = htmltemplate.Must(htmltemplate.New("failure").Parse(`<html><body>
<h2>Report generation failed: {{.ScheduleName}}</h2>
<p><strong>Report type:</strong> {{.TypeLabel}}<br>
<strong>Failed at:</strong> {{.FailedAt}}</p>
<pre>{{.Error}}</pre>
<p>{{.Remediation}}</p>
</body></html>`))

	failureText = texttemplate.Must(texttemplate.New("failure").Parse(`Report generation failed: {{.ScheduleName}}

Report type: {{.TypeLabel}}
Failed at: {{.FailedAt}}
Error: {{.Error}}

{{.Remediation}}
`))
)

// NotificationComposer builds the messages sent to recipients. It never fails: template
// errors degrade to a minimal plain-text body.
type NotificationComposer struct {
	location *time.Location
}

// NewNotificationComposer constructs a composer formatting timestamps in loc.
func NewNotificationComposer(loc *time.Location) *NotificationComposer {
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationComposer{location: loc}
}

// DeliveryReady announces a finished report with its download reference and summary block.
func (c *NotificationComposer) DeliveryReady(data ReadyData) models.Message {
	name := data.ReportName
	if name == "" {
		name = data.Type.Label()
	}
	summary := data.Summary
	if !data.Type.Valid() {
		summary = nil
	}
	view := readyView{
		ReportName:  name,
		TypeLabel:   data.Type.Label(),
		FormatLabel: data.Format.Label(),
		GeneratedAt: c.format(data.GeneratedAt),
		RangeLabel:  data.RangeLabel,
		DownloadURL: data.DownloadURL,
		ExpiresAt:   c.format(data.ExpiresAt),
		Summary:     summary,
	}
	subject := fmt.Sprintf("[Report] %s is ready", name)
	fallback := fmt.Sprintf("%s is ready. Download: %s", name, data.DownloadURL)
	return c.compose(models.MessageDeliveryReady, subject, readyHTML, readyText, view, fallback)
}

// RunReminder tells recipients that a schedule will run soon. No recipient action is required.
func (c *NotificationComposer) RunReminder(data ReminderData) models.Message {
	frequency := string(data.Frequency)
	if !data.Frequency.Valid() {
		frequency = "scheduled"
	}
	view := reminderView{
		ScheduleName: data.ScheduleName,
		TypeLabel:    data.Type.Label(),
		Frequency:    frequency,
		NextRunAt:    c.format(data.NextRunAt),
	}
	subject := fmt.Sprintf("[Reminder] %s runs %s", data.ScheduleName, view.NextRunAt)
	fallback := fmt.Sprintf("%s will run on %s. No action is required.", data.ScheduleName, view.NextRunAt)
	return c.compose(models.MessageRunReminder, subject, reminderHTML, reminderText, view, fallback)
}

// GenerationFailure reports a failed run and the remediation policy.
func (c *NotificationComposer) GenerationFailure(data FailureData) models.Message {
	name := data.ScheduleName
	if name == "" {
		name = data.Type.Label()
	}
	var remediation string
	switch {
	case data.WillRetry:
		remediation = RetryPolicyStatement(data.RetryIn)
	case data.RetryFailed:
		remediation = RetryExhaustedStatement
	case data.AdHoc:
		remediation = AdHocStatement
	default:
		remediation = NoRetryStatement
	}
	errText := data.Error
	if errText == "" {
		errText = "unknown error"
	}
	view := failureView{
		ScheduleName: name,
		TypeLabel:    data.Type.Label(),
		FailedAt:     c.format(data.FailedAt),
		Error:        errText,
		Remediation:  remediation,
	}
	subject := fmt.Sprintf("[Alert] %s failed to generate", name)
	fallback := fmt.Sprintf("%s failed at %s: %s. %s", name, view.FailedAt, errText, remediation)
	return c.compose(models.MessageGenerationFailure, subject, failureHTML, failureText, view, fallback)
}

func (c *NotificationComposer) compose(kind models.MessageKind, subject string, rich *htmltemplate.Template, plain *texttemplate.Template, view interface{}, fallback string) models.Message {
	msg := models.Message{Kind: kind, Subject: subject}

	var buf bytes.Buffer
	if err := plain.Execute(&buf, view); err != nil {
		msg.PlainBody = fallback
	} else {
		msg.PlainBody = buf.String()
	}
	buf.Reset()
	if err := rich.Execute(&buf, view); err != nil {
		msg.RichBody = "<p>" + htmltemplate.HTMLEscapeString(fallback) + "</p>"
	} else {
		msg.RichBody = buf.String()
	}
	return msg
}

func formatDelay(d time.Duration) string {
	switch {
	case d <= 0 || d == time.Hour:
		return "one hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d == time.Minute:
		return "one minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}

func (c *NotificationComposer) format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(c.location).Format(timestampLayout)
}
