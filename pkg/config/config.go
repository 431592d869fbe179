package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"queuegate/pkg/client"
	kafkaconfig "queuegate/pkg/kafka/config"
	"queuegate/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	QueueBatchSize         int
	QueueCheckInterval     time.Duration
	QueuePositionPreview   int
	EventLifecycleInterval time.Duration
	SchedulerEventPageSize int

	LockWaitTime      time.Duration
	LockLeaseTime     time.Duration
	LockRetryInterval time.Duration

	DefaultReservationTimeLimit   time.Duration
	DefaultMaxReservationsPerUser int

	NotificationTransport string

	Kafka *kafkaconfig.Config

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the optional .env file, then the environment, validates the
// result and exits the process on invalid configuration.
func Load(serviceName string) *Config {
	envFileErr := loadEnvFile(getEnvStr(EnvEnvFile, DefaultEnvFile))

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		QueueBatchSize:         getEnvNum(EnvQueueBatchSize, DefaultQueueBatchSize),
		QueueCheckInterval:     time.Duration(getEnvNum(EnvQueueCheckInterval, DefaultQueueCheckIntervalMs)) * time.Millisecond,
		QueuePositionPreview:   getEnvNum(EnvQueuePositionPreview, DefaultQueuePositionPreview),
		EventLifecycleInterval: getEnvDuration(EnvEventLifecycleInterval, DefaultEventLifecycleInterval),
		SchedulerEventPageSize: getEnvNum(EnvSchedulerEventPageSize, DefaultSchedulerEventPageSize),

		LockWaitTime:      getEnvDuration(EnvLockWaitTime, DefaultLockWaitTime),
		LockLeaseTime:     getEnvDuration(EnvLockLeaseTime, DefaultLockLeaseTime),
		LockRetryInterval: getEnvDuration(EnvLockRetryInterval, DefaultLockRetryInterval),

		DefaultReservationTimeLimit:   time.Duration(getEnvNum(EnvDefaultReservationTimeLimit, DefaultReservationTimeLimitSec)) * time.Second,
		DefaultMaxReservationsPerUser: getEnvNum(EnvDefaultMaxReservationsPerUser, DefaultMaxReservationsPerUser),

		NotificationTransport: getEnvStr(EnvNotificationTransport, DefaultNotificationTransport),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if envFileErr != nil {
		cfg.Log.Warn("Failed to load env file", "error", envFileErr)
	}

	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.Kafka = kafkaCfg

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// Default returns a configuration populated with the built-in defaults only.
// No environment is read and no connection is opened.
func Default(log *logger.Logger) *Config {
	return &Config{
		MongoURI:          DefaultMongoURI,
		MongoDatabaseName: DefaultMongoDatabaseName,
		MongoConnTimeout:  DefaultMongoConnTimeout,

		RedisAddr: DefaultRedisAddr,
		RedisDB:   DefaultRedisDB,

		Port: DefaultPort,

		RateLimitRequests: DefaultRateLimitRequests,
		RateLimitWindow:   DefaultRateLimitWindow,

		RequestTimeout: DefaultRequestTimeout,
		IdempotencyTTL: DefaultIdempotencyTTL,
		MaxRequestSize: DefaultMaxRequestSize,

		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,

		QueueBatchSize:         DefaultQueueBatchSize,
		QueueCheckInterval:     DefaultQueueCheckIntervalMs * time.Millisecond,
		QueuePositionPreview:   DefaultQueuePositionPreview,
		EventLifecycleInterval: DefaultEventLifecycleInterval,
		SchedulerEventPageSize: DefaultSchedulerEventPageSize,

		LockWaitTime:      DefaultLockWaitTime,
		LockLeaseTime:     DefaultLockLeaseTime,
		LockRetryInterval: DefaultLockRetryInterval,

		DefaultReservationTimeLimit:   DefaultReservationTimeLimitSec * time.Second,
		DefaultMaxReservationsPerUser: DefaultMaxReservationsPerUser,

		NotificationTransport: DefaultNotificationTransport,

		Log:    log,
		Client: client.NewClient(),
	}
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

// LocalNotifications reports whether notifications stay in-process.
func (cfg *Config) LocalNotifications() bool {
	return cfg.NotificationTransport == NotificationTransportLocal
}

// QueueCheckIntervalSeconds is the promotion period used for wait estimates.
func (cfg *Config) QueueCheckIntervalSeconds() int64 {
	return int64(cfg.QueueCheckInterval / time.Second)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.QueueBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("QueueBatchSize must be positive, got: %d", cfg.QueueBatchSize))
	}
	if cfg.QueueCheckInterval < time.Second {
		errors = append(errors, fmt.Sprintf("QueueCheckInterval must be at least 1s, got: %s", cfg.QueueCheckInterval))
	}
	if cfg.QueuePositionPreview < 0 {
		errors = append(errors, fmt.Sprintf("QueuePositionPreview cannot be negative, got: %d", cfg.QueuePositionPreview))
	}
	if cfg.EventLifecycleInterval <= 0 {
		errors = append(errors, fmt.Sprintf("EventLifecycleInterval must be positive, got: %s", cfg.EventLifecycleInterval))
	}
	if cfg.SchedulerEventPageSize <= 0 {
		errors = append(errors, fmt.Sprintf("SchedulerEventPageSize must be positive, got: %d", cfg.SchedulerEventPageSize))
	}

	if cfg.LockWaitTime <= 0 {
		errors = append(errors, fmt.Sprintf("LockWaitTime must be positive, got: %s", cfg.LockWaitTime))
	}
	if cfg.LockLeaseTime <= 0 {
		errors = append(errors, fmt.Sprintf("LockLeaseTime must be positive, got: %s", cfg.LockLeaseTime))
	}
	if cfg.LockRetryInterval <= 0 || cfg.LockRetryInterval > cfg.LockWaitTime {
		errors = append(errors, fmt.Sprintf("LockRetryInterval must be positive and <= LockWaitTime, got: %s", cfg.LockRetryInterval))
	}

	if cfg.DefaultReservationTimeLimit <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultReservationTimeLimit must be positive, got: %s", cfg.DefaultReservationTimeLimit))
	}
	if cfg.DefaultMaxReservationsPerUser <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultMaxReservationsPerUser must be positive, got: %d", cfg.DefaultMaxReservationsPerUser))
	}

	if cfg.NotificationTransport != NotificationTransportKafka && cfg.NotificationTransport != NotificationTransportLocal {
		errors = append(errors, fmt.Sprintf("NotificationTransport must be %q or %q, got: %q", NotificationTransportKafka, NotificationTransportLocal, cfg.NotificationTransport))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"redis_password_set", cfg.RedisPassword != "",
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"queue_batch_size", cfg.QueueBatchSize,
		"queue_check_interval", cfg.QueueCheckInterval,
		"queue_position_preview", cfg.QueuePositionPreview,
		"event_lifecycle_interval", cfg.EventLifecycleInterval,
		"scheduler_event_page_size", cfg.SchedulerEventPageSize,
		"lock_wait_time", cfg.LockWaitTime,
		"lock_lease_time", cfg.LockLeaseTime,
		"lock_retry_interval", cfg.LockRetryInterval,
		"default_reservation_time_limit", cfg.DefaultReservationTimeLimit,
		"default_max_reservations_per_user", cfg.DefaultMaxReservationsPerUser,
		"notification_transport", cfg.NotificationTransport,
	)
	if cfg.Kafka != nil {
		cfg.Kafka.LogConfiguration(cfg.Log.Info)
	}
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown(ctx context.Context) {
	cfg.Client.GracefulShutdown(ctx, cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
