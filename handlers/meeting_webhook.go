package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"ilmhub_go/config"
	"ilmhub_go/models"
	"ilmhub_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// meetingEventEnvelope is the wire shape the meeting provider posts. One HTTP
// delivery carries one event; the provider retries until it sees a 2xx.
type meetingEventEnvelope struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	EventTimestamp time.Time `json:"event_timestamp"`
	SessionKind    string    `json:"session_kind"`
	SessionID      uint      `json:"session_id"`
	UserID         uint      `json:"user_id"`
	ParticipantSID string    `json:"participant_sid"`
}

type MeetingWebhookHandler struct {
	DB     *gorm.DB
	secret string
}

func NewMeetingWebhookHandler(db *gorm.DB) *MeetingWebhookHandler {
	secret := config.AppConfig.MeetingWebhookSecret
	if secret == "" {
		logrus.Warn("MEETING_WEBHOOK_SECRET not set: webhook signature verification disabled")
	}
	return &MeetingWebhookHandler{DB: db, secret: secret}
}

// Handle ingests one attendance event. The 2xx is sent only after the event
// row is durably stored, so a crash mid-request leaves the provider retrying
// and the unique event_id index makes the retry a no-op replay.
func (h *MeetingWebhookHandler) Handle(c *fiber.Ctx) error {
	body := c.Body()

	if h.secret != "" {
		signature := c.Get("X-Meeting-Signature")
		if signature == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing signature header"})
		}
		if !VerifySignature(h.secret, body, signature) {
			logrus.WithField("event_bytes", len(body)).Warn("Webhook signature mismatch")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature"})
		}
	}

	ev, err := ParseMeetingEvent(body)
	if err != nil {
		// Malformed payloads must not be acknowledged; the provider keeps
		// the delivery in its retry queue where an operator can see it.
		logrus.WithError(err).Warn("Rejected malformed attendance event")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := services.IngestEvent(h.DB, ev)
	if err != nil {
		logrus.WithError(err).WithField("event_id", ev.EventID).Error("Failed to ingest attendance event")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store event"})
	}

	status := fiber.StatusCreated
	if result.Replay {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"event_id": result.Event.EventID,
		"replay":   result.Replay,
	})
}

// ParseMeetingEvent decodes and validates one provider delivery.
func ParseMeetingEvent(body []byte) (services.IncomingEvent, error) {
	var env meetingEventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return services.IncomingEvent{}, fiber.NewError(fiber.StatusUnprocessableEntity, "invalid event payload")
	}
	if env.EventID == "" {
		return services.IncomingEvent{}, fiber.NewError(fiber.StatusUnprocessableEntity, "event_id is required")
	}
	if env.EventTimestamp.IsZero() {
		return services.IncomingEvent{}, fiber.NewError(fiber.StatusUnprocessableEntity, "event_timestamp is required")
	}
	switch env.EventType {
	case "join", "leave", "reconnect", "aborted":
	default:
		return services.IncomingEvent{}, fiber.NewError(fiber.StatusUnprocessableEntity, "unknown event_type")
	}
	if !(models.SessionRef{Kind: env.SessionKind, ID: env.SessionID}).Valid() {
		return services.IncomingEvent{}, fiber.NewError(fiber.StatusUnprocessableEntity, "unknown session reference")
	}

	return services.IncomingEvent{
		EventID:        env.EventID,
		EventType:      env.EventType,
		EventTimestamp: env.EventTimestamp,
		SessionKind:    env.SessionKind,
		SessionID:      env.SessionID,
		UserID:         env.UserID,
		ParticipantSID: env.ParticipantSID,
		RawPayload:     body,
	}, nil
}

// ComputeSignature returns the base64 HMAC-SHA256 of the body.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the provider's signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(ComputeSignature(secret, body)))
}
