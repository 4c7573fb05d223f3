package core

// Error codes for domain errors surfaced to clients.
const (
	ErrCodeChatNotFound   = "chat_not_found"
	ErrCodeNotParticipant = "not_participant"
	ErrCodeBadRequest     = "bad_request"
	ErrCodePersistence    = "persistence_failed"
	ErrCodeBlocked        = "blocked"
	ErrCodeCallError      = "call_error"
)

// RelayError wraps a code and human-readable message.
type RelayError struct {
	Code    string
	Message string
}

func (e *RelayError) Error() string {
	return e.Message
}

func relayError(code, msg string) *RelayError {
	return &RelayError{Code: code, Message: msg}
}
