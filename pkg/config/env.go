package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvEnvFile  = "ENV_FILE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvQueueBatchSize         = "QUEUE_BATCH_SIZE"
	EnvQueueCheckInterval     = "QUEUE_CHECK_INTERVAL"
	EnvQueuePositionPreview   = "QUEUE_POSITION_PREVIEW"
	EnvEventLifecycleInterval = "EVENT_LIFECYCLE_INTERVAL"
	EnvSchedulerEventPageSize = "SCHEDULER_EVENT_PAGE_SIZE"

	EnvLockWaitTime      = "LOCK_WAIT_TIME"
	EnvLockLeaseTime     = "LOCK_LEASE_TIME"
	EnvLockRetryInterval = "LOCK_RETRY_INTERVAL"

	EnvDefaultReservationTimeLimit   = "DEFAULT_RESERVATION_TIME_LIMIT"
	EnvDefaultMaxReservationsPerUser = "DEFAULT_MAX_RESERVATIONS_PER_USER"

	EnvNotificationTransport = "NOTIFICATION_TRANSPORT"
)
