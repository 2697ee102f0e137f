// Package worker drains the render queue and runs each job through the
// pipeline.
package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dignitatesocial/dignitatevideo/internal/pipeline"
	"github.com/dignitatesocial/dignitatevideo/internal/queue"
)

const dequeueTimeout = 5 * time.Second

type Worker struct {
	queue *queue.Queue
	orch  *pipeline.Orchestrator
}

func New(q *queue.Queue, orch *pipeline.Orchestrator) *Worker {
	return &Worker{queue: q, orch: orch}
}

// Start runs concurrency dequeue loops and blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	g := new(errgroup.Group)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	_ = g.Wait()
	log.Println("[Worker] Shut down")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Dequeue error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if env == nil {
			continue
		}

		log.Printf("[Worker] Picked up job %s (%q)", env.ID, env.Job.Title)

		// The orchestrator owns outcome callbacks; a failure here is already
		// reported to the job's webhook.
		if _, err := w.orch.Run(ctx, env.Job); err != nil {
			log.Printf("[Worker] Job %s failed: %v", env.ID, err)
		}
	}
}
