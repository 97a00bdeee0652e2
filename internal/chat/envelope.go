// Package chat carries chat envelopes between users and the interview engine
// over websocket and plain HTTP.
package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/interview"
)

// Content item types on the wire.
const (
	ItemText         = "text"
	ItemStartSession = "start-session"
	ItemEndSession   = "end-session"
	ItemMetadata     = "metadata"
)

// Item is one wire content item.
type Item struct {
	Type     string            `json:"type" validate:"required,oneof=text start-session end-session metadata"`
	Text     string            `json:"text,omitempty" validate:"max=8000"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Envelope is an inbound chat message.
type Envelope struct {
	MsgID   string `json:"msg_id,omitempty" validate:"omitempty,max=128"`
	Sender  string `json:"sender,omitempty"`
	Content []Item `json:"content" validate:"required,min=1,max=16,dive"`
}

// Ack acknowledges receipt of an envelope.
type Ack struct {
	Type              string    `json:"type"`
	AcknowledgedMsgID string    `json:"acknowledged_msg_id"`
	Timestamp         time.Time `json:"timestamp"`
}

// Outgoing is a message produced for a user.
type Outgoing struct {
	Type      string    `json:"type"`
	MsgID     string    `json:"msg_id"`
	EventID   int64     `json:"event_id"`
	To        string    `json:"-"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrNoSender is returned when neither the envelope nor the request names a
// sender.
var ErrNoSender = errors.New("chat: sender is required")

// ErrInvalidSessionID is returned for an unusable x-session-id metadata value.
var ErrInvalidSessionID = errors.New("chat: invalid session id")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the envelope shape.
func (e *Envelope) Validate() error {
	if err := validatorInstance().Struct(e); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	return nil
}

// NewAck acknowledges msgID.
func NewAck(msgID string) Ack {
	return Ack{Type: "ack", AcknowledgedMsgID: msgID, Timestamp: time.Now().UTC()}
}

// ToMessage converts a validated envelope into an engine message. The
// request's sender wins over the envelope's, and a request-level session id
// is added as metadata when the envelope carries none.
func (e *Envelope) ToMessage(sender, sessionID string) (interview.Message, error) {
	if sender == "" {
		sender = e.Sender
	}
	if sender == "" {
		return interview.Message{}, ErrNoSender
	}
	if e.MsgID == "" {
		e.MsgID = uuid.NewString()
	}

	msg := interview.Message{ID: e.MsgID, Sender: sender}
	hasSID := false
	for _, it := range e.Content {
		switch it.Type {
		case ItemText:
			msg.Items = append(msg.Items, interview.Text{Text: it.Text})
		case ItemStartSession:
			msg.Items = append(msg.Items, interview.SessionStart{})
		case ItemEndSession:
			msg.Items = append(msg.Items, interview.SessionEnd{})
		case ItemMetadata:
			values := it.Metadata
			if raw := values[domain.SessionIDMetadataKey]; raw != "" {
				sid := domain.SanitizeSessionID(raw)
				if sid == "" {
					return interview.Message{}, fmt.Errorf("%w: %q", ErrInvalidSessionID, raw)
				}
				values = make(map[string]string, len(it.Metadata))
				for k, v := range it.Metadata {
					values[k] = v
				}
				values[domain.SessionIDMetadataKey] = sid
				hasSID = true
			}
			msg.Items = append(msg.Items, interview.Metadata{Values: values})
		default:
			return interview.Message{}, fmt.Errorf("chat: unknown content type %q", it.Type)
		}
	}
	if sessionID != "" && !hasSID {
		msg.Items = append([]interview.Content{interview.Metadata{
			Values: map[string]string{domain.SessionIDMetadataKey: sessionID},
		}}, msg.Items...)
	}
	return msg, nil
}
