// Package eventsub implements the EventSub intake pipeline: HMAC callback
// verification, two-layer deduplication (Redis check-and-set in front of the
// store's unique constraint), payload normalization, durable persistence, and
// hand-off to the downstream bus with a background sweep for deferred
// dispatches.
package eventsub
