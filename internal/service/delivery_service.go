package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
	"github.com/noah-isme/portal-reports/pkg/notify"
)

type deliveryMetrics interface {
	RecordDelivery(outcome models.DeliveryStatus, count int)
}

// AlertTarget names what failed: a schedule, or an ad-hoc request when ScheduleID is empty.
type AlertTarget struct {
	ScheduleID string
	Name       string
	Type       models.ReportType
	Recipients []string
	// Retry is set when the failed run was itself a retry.
	Retry bool
	// RetryIn is the delay before the scheduled retry, when there is one.
	RetryIn time.Duration
}

// DeliveryService fans messages out to recipients through a pluggable sender.
type DeliveryService struct {
	sender      notify.Sender
	composer    *NotificationComposer
	concurrency int
	now         func() time.Time
	metrics     deliveryMetrics
	logger      *zap.Logger
}

// NewDeliveryService constructs the service. concurrency bounds in-flight sends per call.
func NewDeliveryService(sender notify.Sender, composer *NotificationComposer, concurrency int, metrics deliveryMetrics, logger *zap.Logger) *DeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	if composer == nil {
		composer = NewNotificationComposer(time.UTC)
	}
	return &DeliveryService{
		sender:      sender,
		composer:    composer,
		concurrency: concurrency,
		now:         time.Now,
		metrics:     metrics,
		logger:      logger,
	}
}

// Composer exposes the composer used for reminder and failure messages.
func (s *DeliveryService) Composer() *NotificationComposer {
	return s.composer
}

// Deliver sends msg (with the artifact attached, when given) to every recipient independently.
// The returned attempt holds exactly one outcome per distinct input entry, keyed by the entry
// as given. Entries that differ only by surrounding whitespace share one send; blank entries
// are recorded as failed. A failed send never stops the others.
func (s *DeliveryService) Deliver(ctx context.Context, artifact *models.ReportArtifact, msg models.Message, recipients []string, scheduleID string) *models.DeliveryAttempt {
	entries := distinctEntries(recipients)
	addresses := NormalizeRecipients(entries)
	sent := make([]models.RecipientOutcome, len(addresses))

	var attachment *notify.Attachment
	artifactID := ""
	if artifact != nil {
		artifactID = artifact.ID
		attachment = &notify.Attachment{Filename: artifact.Filename, ContentType: artifact.ContentType, Content: artifact.Content}
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			sent[i] = s.sendOne(ctx, notify.Envelope{
				Recipient:  address,
				Subject:    msg.Subject,
				HTML:       msg.RichBody,
				Text:       msg.PlainBody,
				Attachment: attachment,
			})
			return nil
		})
	}
	_ = g.Wait()

	byAddress := make(map[string]models.RecipientOutcome, len(sent))
	for _, outcome := range sent {
		byAddress[outcome.Recipient] = outcome
	}
	outcomes := make([]models.RecipientOutcome, 0, len(entries))
	for _, entry := range entries {
		outcome, ok := byAddress[strings.TrimSpace(entry)]
		if !ok {
			outcome = models.RecipientOutcome{Status: models.DeliveryStatusFailed, Error: "empty recipient"}
		}
		outcome.Recipient = entry
		outcomes = append(outcomes, outcome)
	}

	attempt := models.NewDeliveryAttempt(scheduleID, artifactID, outcomes)
	if s.metrics != nil {
		s.metrics.RecordDelivery(models.DeliveryStatusDelivered, attempt.DeliveredCount)
		s.metrics.RecordDelivery(models.DeliveryStatusFailed, attempt.FailedCount)
	}
	if !attempt.IsFullSuccess {
		s.logger.Sugar().Warnw("report delivery incomplete",
			"schedule_id", scheduleID, "kind", msg.Kind, "delivered", attempt.DeliveredCount,
			"failed", attempt.FailedCount, "failed_recipients", attempt.FailedRecipients())
	}
	return attempt
}

func (s *DeliveryService) sendOne(ctx context.Context, env notify.Envelope) (outcome models.RecipientOutcome) {
	outcome.Recipient = env.Recipient
	defer func() {
		if r := recover(); r != nil {
			s.logger.Sugar().Errorw("sender panicked", "recipient", env.Recipient, "panic", r)
			outcome.Status = models.DeliveryStatusFailed
			outcome.Error = "sender panicked"
		}
	}()
	if err := s.sender.Send(ctx, env); err != nil {
		outcome.Status = models.DeliveryStatusFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = models.DeliveryStatusDelivered
	return outcome
}

// SendReminder notifies a schedule's recipients about its next run. Failures are only logged.
func (s *DeliveryService) SendReminder(ctx context.Context, schedule *models.Schedule) *models.DeliveryAttempt {
	msg := s.composer.RunReminder(ReminderData{
		ScheduleName: schedule.Name,
		Type:         schedule.Definition.Type,
		Frequency:    schedule.Frequency,
		NextRunAt:    schedule.NextRunAt,
	})
	attempt := s.Deliver(ctx, nil, msg, schedule.Recipients, schedule.ID)
	if attempt.FailedCount > 0 {
		s.logger.Sugar().Infow("reminder not delivered to every recipient", "schedule_id", schedule.ID, "failed", attempt.FailedCount)
	}
	return attempt
}

// SendFailureAlert reports a generation failure to the target's recipients. It is attempted
// even though no artifact exists.
func (s *DeliveryService) SendFailureAlert(ctx context.Context, target AlertTarget, runErr error, willRetry bool) *models.DeliveryAttempt {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	msg := s.composer.GenerationFailure(FailureData{
		ScheduleName: target.Name,
		Type:         target.Type,
		FailedAt:     s.now(),
		Error:        errText,
		WillRetry:    willRetry,
		RetryIn:      target.RetryIn,
		RetryFailed:  target.Retry && !willRetry,
		AdHoc:        target.ScheduleID == "",
	})
	s.logger.Sugar().Errorw("report generation failed", "schedule_id", target.ScheduleID, "report_type", target.Type, "error", errText, "retry", willRetry)
	return s.Deliver(ctx, nil, msg, target.Recipients, target.ScheduleID)
}

// distinctEntries drops exact repeats, keeping first-seen order.
func distinctEntries(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// NormalizeRecipients trims entries and drops blanks and duplicates, keeping first-seen order.
func NormalizeRecipients(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, raw := range recipients {
		recipient := strings.TrimSpace(raw)
		if recipient == "" {
			continue
		}
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}
		out = append(out, recipient)
	}
	return out
}

// DeliveryError summarises an incomplete attempt as ErrDelivery naming the failed recipients.
// It is nil when every recipient was reached.
func DeliveryError(attempt *models.DeliveryAttempt) error {
	if attempt == nil || attempt.IsFullSuccess {
		return nil
	}
	total := attempt.DeliveredCount + attempt.FailedCount
	return appErrors.Clone(appErrors.ErrDelivery, fmt.Sprintf("delivery failed for %d of %d recipients: %s",
		attempt.FailedCount, total, strings.Join(attempt.FailedRecipients(), ", ")))
}
