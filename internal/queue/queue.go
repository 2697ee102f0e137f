// Package queue hands accepted render jobs from the intake API to the
// worker over a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

const QueueRender = "queue:render"

// Envelope wraps a RenderJob with queue bookkeeping.
type Envelope struct {
	ID         uuid.UUID         `json:"id"`
	Job        *models.RenderJob `json:"job"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue pushes a render job and returns its queue id.
func (q *Queue) Enqueue(ctx context.Context, job *models.RenderJob) (uuid.UUID, error) {
	env := Envelope{
		ID:         uuid.New(),
		Job:        job,
		EnqueuedAt: time.Now(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.RPush(ctx, QueueRender, data).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return env.ID, nil
}

// Dequeue blocks up to timeout for the next render job. Returns (nil, nil)
// when the queue stays empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueRender).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var env Envelope
	if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if env.Job == nil {
		return nil, fmt.Errorf("queued envelope carries no job")
	}

	return &env, nil
}

// Length reports the number of waiting render jobs.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueRender).Result()
}
