package recordstore

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable means the engine could not be created or reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUnsupportedSchema means the stored schema is newer than this build understands.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
	// ErrRecordNotFound is returned by Get for an absent key.
	ErrRecordNotFound = errors.New("record not found")

	ErrUnknownCollection    = errors.New("unknown collection")
	ErrReadOnly             = errors.New("write in read-only transaction")
	ErrCollectionNotInScope = errors.New("collection not declared by transaction")
	ErrMissingKey           = errors.New("record has no id")
)

// Unavailable wraps an engine failure so callers can match ErrStorageUnavailable.
func Unavailable(engine string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, engine, err)
}

// NotFound reports a missing key in a collection.
func NotFound(collection, key string) error {
	return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, collection, key)
}

// UnknownCollection reports a collection that the schema does not declare.
func UnknownCollection(collection string) error {
	return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
}
