package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

type resetCodeSender interface {
	SendResetCode(ctx context.Context, to, code string) error
}

// Worker consumes queued reset code mails and delivers them with the wrapped sender.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sender resetCodeSender
}

func NewWorker(redisOpt asynq.RedisConnOpt, concurrency int, sender resetCodeSender) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}

	w := &Worker{
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueName: 1,
			},
			Logger: logrus.StandardLogger(),
		}),
		mux:    asynq.NewServeMux(),
		sender: sender,
	}
	w.mux.HandleFunc(TaskTypeResetCode, w.HandleResetCode)
	return w
}

// Start runs the worker in the background until Shutdown is called.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) HandleResetCode(ctx context.Context, task *asynq.Task) error {
	var payload resetCodePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode reset code payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" || payload.Code == "" {
		return fmt.Errorf("incomplete reset code payload: %w", asynq.SkipRetry)
	}

	if err := w.sender.SendResetCode(ctx, payload.To, payload.Code); err != nil {
		logrus.WithError(err).Warn("Reset code mail delivery failed, will retry")
		return err
	}
	return nil
}
