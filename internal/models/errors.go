package models

import "errors"

var (
	// ErrDocumentNotFound is returned when a document id has no record.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrSessionNotFound is returned when a chat session id has no record.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrInvalidDocumentStatus is returned on an illegal status transition.
	ErrInvalidDocumentStatus = errors.New("invalid document status")
)
