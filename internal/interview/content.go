package interview

import "github.com/ashureev/interview-coach/internal/domain"

// Content is one item of an inbound envelope. The set of implementations is
// closed: Text, SessionStart, SessionEnd and Metadata.
type Content interface {
	isContent()
}

// Text carries user-typed text.
type Text struct {
	Text string
}

// SessionStart asks to open a chat session.
type SessionStart struct{}

// SessionEnd announces the chat session closed.
type SessionEnd struct{}

// Metadata carries transport key/value pairs such as x-session-id.
type Metadata struct {
	Values map[string]string
}

func (Text) isContent()         {}
func (SessionStart) isContent() {}
func (SessionEnd) isContent()   {}
func (Metadata) isContent()     {}

// Message is one inbound envelope.
type Message struct {
	ID     string
	Sender string
	Items  []Content
}

// SessionKey returns the storage key for m.
func (m Message) SessionKey() string {
	var sid string
	for _, item := range m.Items {
		if md, ok := item.(Metadata); ok {
			if v := md.Values[domain.SessionIDMetadataKey]; v != "" {
				sid = v
				break
			}
		}
	}
	return domain.SessionKey(sid, m.Sender)
}
