package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	TaskTypeResetCode = "mail:reset-code"
	QueueName         = "mail"

	resetCodeMaxRetry = 3
	resetCodeTimeout  = 30 * time.Second
)

type resetCodePayload struct {
	To   string `json:"to"`
	Code string `json:"code"`
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSender defers delivery to the mail worker through an asynq queue.
// The payload carries the plaintext code, so each task is dropped once the code would have expired.
type QueueSender struct {
	client taskEnqueuer
	ttl    time.Duration
	now    func() time.Time
}

func NewQueueSender(client taskEnqueuer, codeTTL time.Duration) *QueueSender {
	return &QueueSender{client: client, ttl: codeTTL, now: time.Now}
}

func NewResetCodeTask(to, code string) (*asynq.Task, error) {
	body, err := json.Marshal(resetCodePayload{To: to, Code: code})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeResetCode, body,
		asynq.Queue(QueueName),
		asynq.MaxRetry(resetCodeMaxRetry),
		asynq.Timeout(resetCodeTimeout),
	), nil
}

func (s *QueueSender) SendResetCode(ctx context.Context, to, code string) error {
	task, err := NewResetCodeTask(to, code)
	if err != nil {
		return fmt.Errorf("build reset code task: %w", err)
	}

	info, err := s.client.EnqueueContext(ctx, task, asynq.Deadline(s.now().Add(s.ttl)))
	if err != nil {
		return fmt.Errorf("enqueue reset code mail: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"task_id": info.ID,
		"queue":   info.Queue,
	}).Debug("Reset code mail queued")
	return nil
}
