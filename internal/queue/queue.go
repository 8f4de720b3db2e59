package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names, also used as queue names.
const (
	TaskMatchAndEnqueue  = "notification:match"
	TaskSendNotification = "notification:send"
	TaskDailyDigest      = "notification:digest"
)

// MatchPayload drives one match-and-enqueue run over content updated in the
// trailing lookback window.
type MatchPayload struct {
	Domain       string `json:"domain"`
	SinceMinutes int    `json:"since_minutes"`
}

// SendPayload identifies one queued notification row to deliver.
type SendPayload struct {
	NotificationID int64 `json:"notification_id"`
}

// Client wraps the asynq producer side.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(redisAddr string) *Client {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
	}
}

// EnqueueSend queues the delivery of one notification. Retries are bounded
// with exponential backoff; the worker decides which failures are
// retryable.
func (c *Client) EnqueueSend(notificationID int64) (string, error) {
	payloadBytes, err := json.Marshal(SendPayload{NotificationID: notificationID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %v", err)
	}

	task := asynq.NewTask(TaskSendNotification, payloadBytes)

	info, err := c.client.Enqueue(task,
		asynq.Queue(TaskSendNotification),
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue send task: %v", err)
	}

	slog.Info("Successfully enqueued send task",
		"task_id", info.ID, "notification_id", notificationID)
	return info.ID, nil
}

// EnqueueMatch queues one matching run, normally fired by the scheduler but
// also invocable ad hoc. Reruns are safe: the notification upsert is
// idempotent.
func (c *Client) EnqueueMatch(domain string, sinceMinutes int) (string, error) {
	payloadBytes, err := json.Marshal(MatchPayload{Domain: domain, SinceMinutes: sinceMinutes})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %v", err)
	}

	task := asynq.NewTask(TaskMatchAndEnqueue, payloadBytes)

	info, err := c.client.Enqueue(task,
		asynq.Queue(TaskMatchAndEnqueue),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue match task: %v", err)
	}
	return info.ID, nil
}

// NewMatchTask builds a match task without enqueueing it, for scheduler
// registration.
func NewMatchTask(domain string, sinceMinutes int) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(MatchPayload{Domain: domain, SinceMinutes: sinceMinutes})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %v", err)
	}
	return asynq.NewTask(TaskMatchAndEnqueue, payloadBytes), nil
}

// GetTaskStatus returns the current state of a task in the given queue.
func (c *Client) GetTaskStatus(queueName, taskID string) (*asynq.TaskInfo, error) {
	info, err := c.inspector.GetTaskInfo(queueName, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task info: %v", err)
	}
	return info, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
