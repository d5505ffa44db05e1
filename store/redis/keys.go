package redis

// Redis key naming conventions for stride data.
// All keys are prefixed with "stride:" to avoid collisions. The domain
// key already carries its own "batch-record-" / "batch-record-lock-"
// prefix, so it is embedded verbatim.

const keyPrefix = "stride:"

// recordKey returns the Hash key for a checkpoint record: stride:{key}
func recordKey(key string) string { return keyPrefix + key }

// recordKeysKey is the Set tracking all record keys for enumeration.
const recordKeysKey = keyPrefix + "record_keys"

// lockKey returns the string key for a batch lock: stride:{key}
func lockKey(key string) string { return keyPrefix + key }

// queueKey is the Sorted Set holding serialized invocations, scored by
// due time: stride:queue:batch-execute
const queueKey = keyPrefix + "queue:batch-execute"
