package notification

import (
	"context"
	"log"

	"github.com/example/pos-sync/internal/email"
	"github.com/example/pos-sync/internal/notify"
)

// Handler turns sync status messages into operator emails
type Handler struct {
	emailService *email.Service
	alertTo      string
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, alertTo string) *Handler {
	return &Handler{
		emailService: emailSvc,
		alertTo:      alertTo,
	}
}

// HandleMessage processes one sync event from Kafka. The record key is
// the business ID the message belongs to. Only error-category messages
// produce an email; success and progress messages are log-only here.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	msg, err := notify.DecodeMessage(value)
	if err != nil {
		log.Printf("[Notifier] Failed to unmarshal message: %v", err)
		return err
	}

	businessID := string(key)
	log.Printf("[Notifier] %s message for business %s: %s", msg.Category, businessID, msg.Text)

	if msg.Category != notify.Error {
		return nil
	}

	if err := h.emailService.SendSyncFailureAlert(h.alertTo, businessID, msg.Text, msg.At); err != nil {
		log.Printf("[Notifier] Failed to send alert to %s: %v", h.alertTo, err)
		return err
	}

	log.Printf("[Notifier] Sync failure alert sent to %s", h.alertTo)
	return nil
}
