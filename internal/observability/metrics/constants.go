// Package metrics provides constants used across metric definitions.
package metrics

// Outcome and status label values shared by the collectors.
const (
	// StatusSuccess marks a completed operation.
	StatusSuccess = "success"
	// StatusError marks a failed operation.
	StatusError = "error"
	// StatusEmpty marks an extraction that returned no track (ICY L=0).
	StatusEmpty = "empty"
	// StatusSkipped marks a scheduler tick dropped because the job was in flight.
	StatusSkipped = "skipped"
	// StatusPanic marks a job run that panicked.
	StatusPanic = "panic"
)

// Datastore operation labels.
const (
	// OpDbQuery represents database query operations.
	OpDbQuery = "db_query"
	// OpDbInsert represents database insert operations.
	OpDbInsert = "db_insert"
	// OpDbUpdate represents database update operations.
	OpDbUpdate = "db_update"
	// OpTransaction represents database transaction operations.
	OpTransaction = "transaction"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// BytesPerMB converts RSS bytes to megabytes.
const BytesPerMB = 1024 * 1024
