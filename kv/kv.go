// Package kv is the persistent key-value layer the session, ledger and
// settings blobs are written through. Values are opaque strings, normally the
// JSON encoding of one entity collection.
package kv

// Store is a synchronous string-keyed blob store.
type Store interface {
	// Get returns the value and true, or "" and false when the key is absent.
	Get(key string) (string, bool, error)

	// Set creates or replaces a value
	Set(key, value string) error

	// Remove deletes a key. Removing an absent key is not an error.
	Remove(key string) error
}

// Persisted keys
const (
	KeySession   = "korebog.session"
	KeyTrips     = "korebog.trips"
	KeyAddresses = "korebog.addresses"
	KeySettings  = "korebog.settings"
	KeySync      = "korebog.sync"
)
