package main

import (
	eventshandler "queuegate/internal/events/handler"
	eventsrepository "queuegate/internal/events/repository"
	eventsservice "queuegate/internal/events/service"
	eventsvalidator "queuegate/internal/events/validator"
	"queuegate/internal/lock"
	"queuegate/internal/notifications"
	"queuegate/internal/queue"
	queuehandler "queuegate/internal/queue/handler"
	queueservice "queuegate/internal/queue/service"
	reservationshandler "queuegate/internal/reservations/handler"
	reservationsrepository "queuegate/internal/reservations/repository"
	reservationsservice "queuegate/internal/reservations/service"
	reservationsvalidator "queuegate/internal/reservations/validator"
	"queuegate/internal/scheduler"
	"queuegate/internal/stock"
	"queuegate/pkg/app"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	"queuegate/pkg/contracts"
	"queuegate/pkg/kafka"
	kafkamiddleware "queuegate/pkg/kafka/middleware"
)

const ServiceName = "api"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting API service")

	commandProducer, err := kafka.NewProducer(cfg.Kafka, cfg.Log, cfg.Kafka.TopicReservationCommands, cfg.Kafka.TopicDLQ)
	if err != nil {
		cfg.Log.Fatal("Failed to create reservation command producer", "error", err)
	}
	commandMetrics := kafkamiddleware.NewMetrics()
	commandProducer.Use(commandMetrics.ProducerMiddleware())
	defer closeQuietly(cfg, "reservation command producer", commandProducer.Close)
	defer func() {
		cfg.Log.Info("Reservation command publishing totals", commandMetrics.Snapshot().LogArgs()...)
	}()

	hub := notifications.NewHub(cfg.Log, 0)
	defer hub.Close()

	serverApp := app.NewApplication(cfg)

	var notifier notifications.Notifier
	if cfg.LocalNotifications() {
		// Single process: notifications go straight to the hub, so the
		// scheduler has to run here to reach the connected streams.
		notifier = notifications.NewHubNotifier(hub)
		sched := scheduler.New(eventsrepository.NewMongoEventRepository(cfg), queue.NewRedisQueue(cfg.Client.Redis), notifier, clock.NewSystem(), cfg)
		serverApp.AddRunner("scheduler", sched.Run)
		cfg.Log.Info("Notifications delivered in-process; scheduler embedded")
	} else {
		notificationProducer, err := kafka.NewProducer(cfg.Kafka, cfg.Log, cfg.Kafka.TopicNotifications, "")
		if err != nil {
			cfg.Log.Fatal("Failed to create notification producer", "error", err)
		}
		defer closeQuietly(cfg, "notification producer", notificationProducer.Close)

		notificationConsumer, err := notifications.NewConsumer(cfg.Kafka, hub, cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create notification consumer", "error", err)
		}
		defer closeQuietly(cfg, "notification consumer", notificationConsumer.Close)

		notifier = notifications.NewKafkaPublisher(notificationProducer, ServiceName, cfg.Log)
		serverApp.AddRunner("notification-consumer", notificationConsumer.Start)
	}

	serverApp.SetApp(initHandlers(cfg, notifier, commandProducer), notifications.NewStreamHandler(hub, notifications.DefaultKeepAlive, cfg.Log))
	serverApp.Run()
}

func initHandlers(cfg *config.Config, notifier notifications.Notifier, commands kafka.Publisher) contracts.Handlers {
	clk := clock.NewSystem()
	rdb := cfg.Client.Redis

	events := eventsrepository.NewMongoEventRepository(cfg)
	slots := eventsrepository.NewMongoSlotRepository(cfg)
	reservations := reservationsrepository.NewMongoReservationRepository(cfg)

	ledger := stock.NewRedisLedger(rdb)
	admission := queue.NewRedisQueue(rdb)
	locker := lock.NewRedisLocker(rdb, cfg.Log,
		lock.WithWaitTime(cfg.LockWaitTime),
		lock.WithLeaseTime(cfg.LockLeaseTime),
		lock.WithRetryInterval(cfg.LockRetryInterval),
	)

	eventService := eventsservice.NewEventService(
		events,
		slots,
		reservations,
		ledger,
		admission,
		eventsvalidator.NewEventValidator(cfg.Log),
		clk,
		cfg,
	)

	queueService := queueservice.NewQueueService(events, admission, clk, cfg)

	reservationValidator := reservationsvalidator.NewReservationValidator(cfg.Log)
	reservationService := reservationsservice.NewReservationService(
		reservations,
		events,
		slots,
		ledger,
		admission,
		locker,
		notifier,
		reservationValidator,
		clk,
		cfg,
	)
	commandService := reservationsservice.NewCommandService(commands, reservationValidator, ServiceName, cfg.Log)

	cfg.Log.Info("API services initialized", "database", cfg.MongoDatabaseName)

	return contracts.Handlers{
		eventshandler.NewEventHandler(eventService, cfg.Log),
		queuehandler.NewQueueHandler(queueService, cfg.Log),
		reservationshandler.NewReservationHandler(reservationService, commandService, cfg.Log),
	}
}

func closeQuietly(cfg *config.Config, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		cfg.Log.Warn("Failed to close", "component", name, "error", err)
	}
}
