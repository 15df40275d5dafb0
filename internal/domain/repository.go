package domain

import "context"

// RecordRepository persists storage records one at a time.
// Collection and index provisioning happens at startup and is not part of
// this contract.
type RecordRepository interface {
	// InsertRecord writes a single record. Implementations must be safe for
	// concurrent use; a batch issues all of its inserts at once.
	InsertRecord(ctx context.Context, record StorageRecord) error
}

// ForwardClient delivers an anonymized batch to an external endpoint.
type ForwardClient interface {
	// PostJSON sends payload as a JSON body and returns the response status.
	// A non-nil error means no response was received.
	PostJSON(ctx context.Context, url string, payload any) (int, error)
}
