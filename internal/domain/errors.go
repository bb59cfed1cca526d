package domain

import "errors"

// Sentinel errors for the chat core.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrConversationUnknown = errors.New("conversation not known to the store")
	ErrSendFailed          = errors.New("message send failed")
	ErrPageUnavailable     = errors.New("history page unavailable")
	ErrInvalidInput        = errors.New("invalid input")
)
