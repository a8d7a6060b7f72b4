package services

import "errors"

// Validation errors surfaced to callers before any store mutation.
// Handlers map these onto HTTP statuses.
var (
	// ErrSelfConversation rejects a conversation or message where both
	// participants are the same user
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")

	// ErrEmptyMessage rejects a message whose body is blank after trimming
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrMessageTooLong rejects a message body over the length bound
	ErrMessageTooLong = errors.New("message exceeds maximum length")

	// ErrNotParticipant rejects an operation by a user who is not one of the
	// conversation's two participants
	ErrNotParticipant = errors.New("user is not a participant in this conversation")
)
