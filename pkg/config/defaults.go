package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "queuegate"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultPort     = "8080"
	DefaultLogLevel = "info"
	DefaultEnvFile  = ".env"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultQueueBatchSize = 100
	// queue.check-interval is expressed in milliseconds.
	DefaultQueueCheckIntervalMs   = 5000
	DefaultQueuePositionPreview   = 1000
	DefaultEventLifecycleInterval = 60 * time.Second
	DefaultSchedulerEventPageSize = 100

	DefaultLockWaitTime      = 5 * time.Second
	DefaultLockLeaseTime     = 10 * time.Second
	DefaultLockRetryInterval = 50 * time.Millisecond

	DefaultReservationTimeLimitSec = 600
	DefaultMaxReservationsPerUser  = 1

	DefaultPaginationLimit = 100
)

// Notification transports. Local keeps notifications inside one API process
// and runs the scheduler there too; kafka fans them out across instances.
const (
	NotificationTransportKafka = "kafka"
	NotificationTransportLocal = "local"

	DefaultNotificationTransport = NotificationTransportKafka
)
