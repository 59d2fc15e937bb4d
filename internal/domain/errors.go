package domain

import "errors"

// KeyPrefix is the default namespace for every key the service writes.
const KeyPrefix = "coursechat:"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDocumentNotFound signals a missing course document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidDocument signals a document that failed validation.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrInvalidCursor signals a malformed pagination cursor.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrInvalidSession signals a malformed session id.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrEmptyMessages signals a chat request without messages.
	ErrEmptyMessages = errors.New("messages cannot be empty")
	// ErrInvalidMessages signals chat messages that could not be converted.
	ErrInvalidMessages = errors.New("invalid message format")
	// ErrEmptyContent signals a transcript with no usable text.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrNoDocuments signals that no course documents are available for grounding.
	ErrNoDocuments = errors.New("no course documents available")

	// ErrTokenQuotaExceeded signals an exhausted LLM token budget.
	ErrTokenQuotaExceeded = errors.New("token quota exceeded")
	// ErrLLMProviderError signals an upstream LLM failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrMalformedAnswer signals an LLM completion that is not a valid answer document.
	ErrMalformedAnswer = errors.New("malformed answer")
)
