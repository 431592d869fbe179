package main

import (
	eventsrepository "queuegate/internal/events/repository"
	"queuegate/internal/notifications"
	"queuegate/internal/queue"
	"queuegate/internal/scheduler"
	"queuegate/pkg/app"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	"queuegate/pkg/kafka"
)

const ServiceName = "queue-scheduler"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting queue scheduler",
		"queue_check_interval", cfg.QueueCheckInterval,
		"event_lifecycle_interval", cfg.EventLifecycleInterval,
	)

	notificationProducer, err := kafka.NewProducer(cfg.Kafka, cfg.Log, cfg.Kafka.TopicNotifications, "")
	if err != nil {
		cfg.Log.Fatal("Failed to create notification producer", "error", err)
	}
	defer func() {
		if err := notificationProducer.Close(); err != nil {
			cfg.Log.Warn("Failed to close notification producer", "error", err)
		}
	}()

	sched := scheduler.New(
		eventsrepository.NewMongoEventRepository(cfg),
		queue.NewRedisQueue(cfg.Client.Redis),
		notifications.NewKafkaPublisher(notificationProducer, ServiceName, cfg.Log),
		clock.NewSystem(),
		cfg,
	)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(nil, nil)
	serverApp.AddRunner("scheduler", sched.Run)
	serverApp.Run()
}
