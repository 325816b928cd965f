package models

// MessageKind identifies the three notifications sent to humans.
type MessageKind string

const (
	MessageDeliveryReady     MessageKind = "delivery_ready"
	MessageRunReminder       MessageKind = "run_reminder"
	MessageGenerationFailure MessageKind = "generation_failure"
)

// Message is transport neutral: any sink can pick the rich or plain body.
type Message struct {
	Kind      MessageKind `json:"kind"`
	Subject   string      `json:"subject"`
	RichBody  string      `json:"richBody"`
	PlainBody string      `json:"plainBody"`
}
