package redisx

import "time"

// Every key lives under the wh: prefix so the fulfillment service can share
// a Redis instance.
const keyPrefix = "wh:"

// external_id -> order id
func orderCreateKey(externalID string) string { return keyPrefix + "idem:order:" + externalID }

// order id -> hash{view: StatusView JSON, at: UpdatedAt in unix micros}
func orderStatusKey(orderID string) string { return keyPrefix + "status:" + orderID }

// per consumer service, per event id
func dedupKey(service, eventID string) string { return keyPrefix + "dedup:" + service + ":" + eventID }

const (
	TTLIdempotency = 24 * time.Hour
	// Outlives a picking session so a stalled order still serves from cache.
	TTLStatusCache = 45 * time.Minute
	// Matches the broker default log retention.
	TTLDedup = 7 * 24 * time.Hour
)
