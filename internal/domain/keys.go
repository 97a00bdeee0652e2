package domain

import (
	"regexp"
	"strings"
)

// SessionIDMetadataKey is the envelope metadata field naming an explicit
// session.
const SessionIDMetadataKey = "x-session-id"

const senderKeyPrefix = "sender:"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SanitizeSessionID trims id and returns it when it is usable as an explicit
// session id, or "" otherwise. Ids in the sender namespace are rejected so an
// explicit session cannot alias a sender's default session.
func SanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) || strings.HasPrefix(strings.ToLower(id), senderKeyPrefix) {
		return ""
	}
	return id
}

// SessionKey derives the storage key for a session. A usable explicit
// session id wins over the sender.
func SessionKey(sessionID, sender string) string {
	if sid := SanitizeSessionID(sessionID); sid != "" {
		return "session:" + sid
	}
	return SenderSessionKey(sender)
}

// SenderSessionKey is the default key for a sender without a session id.
func SenderSessionKey(sender string) string {
	return "session:" + senderKeyPrefix + sender
}
