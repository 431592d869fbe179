package main

import (
	eventsrepository "queuegate/internal/events/repository"
	"queuegate/internal/lock"
	"queuegate/internal/notifications"
	"queuegate/internal/queue"
	"queuegate/internal/reservations/consumer"
	reservationsrepository "queuegate/internal/reservations/repository"
	reservationsservice "queuegate/internal/reservations/service"
	reservationsvalidator "queuegate/internal/reservations/validator"
	"queuegate/internal/stock"
	"queuegate/pkg/app"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	"queuegate/pkg/kafka"
)

const ServiceName = "reservation-worker"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting reservation command worker")

	notificationProducer, err := kafka.NewProducer(cfg.Kafka, cfg.Log, cfg.Kafka.TopicNotifications, "")
	if err != nil {
		cfg.Log.Fatal("Failed to create notification producer", "error", err)
	}
	defer func() {
		if err := notificationProducer.Close(); err != nil {
			cfg.Log.Warn("Failed to close notification producer", "error", err)
		}
	}()

	reservationService, reservationValidator := initServices(cfg, notifications.NewKafkaPublisher(notificationProducer, ServiceName, cfg.Log))

	commandConsumer, err := consumer.NewCommandConsumer(cfg.Kafka, reservationService, reservationValidator, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create reservation command consumer", "error", err)
	}
	defer func() {
		if err := commandConsumer.Close(); err != nil {
			cfg.Log.Warn("Failed to close reservation command consumer", "error", err)
		}
	}()

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(nil, nil)
	serverApp.AddRunner("reservation-commands", commandConsumer.Start)
	serverApp.Run()
}

func initServices(cfg *config.Config, notifier notifications.Notifier) (reservationsservice.ReservationService, *reservationsvalidator.ReservationValidator) {
	rdb := cfg.Client.Redis
	reservationValidator := reservationsvalidator.NewReservationValidator(cfg.Log)

	reservationService := reservationsservice.NewReservationService(
		reservationsrepository.NewMongoReservationRepository(cfg),
		eventsrepository.NewMongoEventRepository(cfg),
		eventsrepository.NewMongoSlotRepository(cfg),
		stock.NewRedisLedger(rdb),
		queue.NewRedisQueue(rdb),
		lock.NewRedisLocker(rdb, cfg.Log,
			lock.WithWaitTime(cfg.LockWaitTime),
			lock.WithLeaseTime(cfg.LockLeaseTime),
			lock.WithRetryInterval(cfg.LockRetryInterval),
		),
		notifier,
		reservationValidator,
		clock.NewSystem(),
		cfg,
	)

	cfg.Log.Info("Reservation service initialized", "database", cfg.MongoDatabaseName)
	return reservationService, reservationValidator
}
