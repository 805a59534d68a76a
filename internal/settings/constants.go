package settings

// DB config keys and defaults for settings.
const (
	// WorkerPollIntervalSecondsKey controls the expose request poll interval in seconds.
	WorkerPollIntervalSecondsKey = "WORKER_POLL_INTERVAL_SECONDS"
	// WorkerMaxConcurrencyKey controls how many requests one poll cycle may process in parallel.
	WorkerMaxConcurrencyKey = "WORKER_MAX_CONCURRENCY"
	// SchemaCatalogThrottleKey controls the permit pool for catalog introspection queries.
	SchemaCatalogThrottleKey = "SCHEMA_CATALOG_THROTTLE"

	// DefaultWorkerPollIntervalSeconds is the fallback poll interval (seconds).
	DefaultWorkerPollIntervalSeconds = 3
	// DefaultWorkerMaxConcurrency keeps request handling sequential per cycle.
	DefaultWorkerMaxConcurrency = 1
	// DefaultSchemaCatalogThrottle is the fallback catalog query permit count.
	DefaultSchemaCatalogThrottle = 12
)
