package eventstore

import (
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Sentinel errors for event store operations. Call sites wrap them with the
// underlying cause so callers can match with errors.Is.
var (
	ErrDatabaseOpenFailed     = errors.EventStoreError("could not open event store database").Build()
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize event store schema").Build()
	ErrEventAppendFailed      = errors.EventStoreError("failed to append event to store").Build()
	ErrEventQueryFailed       = errors.EventStoreError("failed to query events from store").Build()
	ErrEventScanFailed        = errors.EventStoreError("failed to scan event rows").Build()
	ErrMarshalPayloadFailed   = errors.EventStoreError("failed to marshal event payload").Build()
)
