package models

// DeliveryStatus is the per-recipient result of a send.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// RecipientOutcome records what happened for one recipient.
type RecipientOutcome struct {
	Recipient string         `json:"recipient"`
	Status    DeliveryStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// DeliveryAttempt aggregates one fan-out of an artifact to a recipient list.
// It is built once by the delivery service and not mutated afterwards.
type DeliveryAttempt struct {
	ScheduleID     string                      `json:"scheduleId,omitempty"`
	ArtifactID     string                      `json:"artifactId,omitempty"`
	PerRecipient   map[string]RecipientOutcome `json:"-"`
	Recipients     []RecipientOutcome          `json:"perRecipient"`
	DeliveredCount int                         `json:"deliveredCount"`
	FailedCount    int                         `json:"failedCount"`
	IsFullSuccess  bool                        `json:"isFullSuccess"`
}

// NewDeliveryAttempt builds the attempt from outcomes listed in recipient order.
func NewDeliveryAttempt(scheduleID, artifactID string, outcomes []RecipientOutcome) *DeliveryAttempt {
	attempt := &DeliveryAttempt{
		ScheduleID:   scheduleID,
		ArtifactID:   artifactID,
		PerRecipient: make(map[string]RecipientOutcome, len(outcomes)),
		Recipients:   make([]RecipientOutcome, 0, len(outcomes)),
	}
	for _, outcome := range outcomes {
		attempt.PerRecipient[outcome.Recipient] = outcome
		attempt.Recipients = append(attempt.Recipients, outcome)
		if outcome.Status == DeliveryStatusDelivered {
			attempt.DeliveredCount++
		} else {
			attempt.FailedCount++
		}
	}
	attempt.IsFullSuccess = attempt.FailedCount == 0
	return attempt
}

// FailedRecipients lists recipients that did not receive the artifact, in send order.
func (a *DeliveryAttempt) FailedRecipients() []string {
	failed := make([]string, 0, a.FailedCount)
	for _, outcome := range a.Recipients {
		if outcome.Status == DeliveryStatusFailed {
			failed = append(failed, outcome.Recipient)
		}
	}
	return failed
}
