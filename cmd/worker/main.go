package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/report"
	"rollcall/internal/store"
)

// Worker consumes check-in events, drops the affected class's cached report,
// and writes the audit trail.
func main() {
	cfg := config.Load()
	if cfg.Env == "production" || cfg.Env == "prod" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:events")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("queue consume init failed")
	}

	logrus.Info("worker started, waiting for events")
	for msg := range messages {
		if msg.Type != "checkin" {
			continue
		}

		var evt queue.CheckinEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			logrus.WithError(err).Warn("malformed checkin event")
			continue
		}

		if err := redisClient.Delete(ctx, report.CacheKey(evt.ClassID)); err != nil {
			logrus.WithError(err).WithField("class_id", evt.ClassID).Warn("report cache invalidation failed")
		}

		logrus.WithFields(logrus.Fields{
			"record_id":  evt.RecordID,
			"session_id": evt.SessionID,
			"class_id":   evt.ClassID,
			"student_id": evt.StudentID,
			"status":     evt.Status,
			"at":         evt.At,
		}).Info("check-in recorded")
	}

	logrus.Info("worker stopped")
}
