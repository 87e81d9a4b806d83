package models

import "strings"

// Participant represents a chat user that has been seen in a group.
// DisplayName is stored in "@username" form so operator commands can
// resolve users by mention.
type Participant struct {
	UserID      int64
	DisplayName string
}

// OperatorGrant gives a user write access to a group's ledger
// without being a chat administrator.
type OperatorGrant struct {
	GroupID int64
	UserID  int64
}

// MentionName normalizes a username into the stored "@username" form.
// Returns an empty string for an empty username.
func MentionName(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return ""
	}
	return "@" + username
}
