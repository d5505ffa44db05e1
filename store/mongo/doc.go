// Package mongo implements store.Store using the official MongoDB
// driver. Checkpoint records and locks live in their own collections
// keyed by the domain key; invocations are claimed atomically with
// FindOneAndDelete to prevent double-delivery.
package mongo
