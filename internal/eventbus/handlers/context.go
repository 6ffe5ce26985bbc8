package handlers

import (
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/eventbus/metadata"
)

// MessageContextBase holds the metadata and logger shared by typed handlers.
type MessageContextBase struct {
	Metadata metadata.Metadata
	Logger   logging.ServiceLogger
}

// CloneMetadata returns a copy of the current metadata map so handlers can
// safely mutate headers for outgoing events without touching the original.
func (b MessageContextBase) CloneMetadata() metadata.Metadata {
	return b.Metadata.Clone()
}

// Get retrieves a metadata value by key.
func (b MessageContextBase) Get(key string) string {
	return b.Metadata.Get(key)
}

// CorrelationID returns the correlation ID from metadata, if present.
func (b MessageContextBase) CorrelationID() string {
	return b.Metadata.Get(metadata.KeyCorrelationID)
}
