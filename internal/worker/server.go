package worker

import (
	"log"

	"github.com/hibiken/asynq"

	"fx-eod-service/internal/services"
)

// StartWorker runs the background task server. Report exports are the only
// queued work; archiving runs on its own cron inside the service.
func StartWorker(redisOpt asynq.RedisClientOpt, exports *services.ExportService) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(services.TypeEODExport, exports.HandleExportTask)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run worker server: %v", err)
	}
}
