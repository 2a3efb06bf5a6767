package worker

import (
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
)

// RedisOpt builds the asynq connection options from config
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewServer creates the asynq server running the worker pool
func NewServer(cfg *config.Config, log *logrus.Logger) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(
		RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				model.QueueGeneration: 6,
				model.QueueSync:       4,
			},
			LogLevel: asynqLogLevel,
			Logger:   log.WithField("component", "asynq"),
		},
	)
}

// NewServeMux routes task types to their workers
func NewServeMux(generationWorker *GenerationWorker, syncWorker *SyncWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(model.TaskTypeGenerate, generationWorker.ProcessTask)
	mux.HandleFunc(model.TaskTypeSync, syncWorker.ProcessTask)
	return mux
}
