package peers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Coordinator talks to the request coordinator, whose task queue is used as
// an early signal for predictive preloading.
type Coordinator struct {
	c *Client
}

// NewCoordinator builds the request coordinator client.
func NewCoordinator(url string, timeout time.Duration, log zerolog.Logger) *Coordinator {
	return &Coordinator{c: NewClient("request_coordinator", url, timeout, log)}
}

// QueueTaskTypes returns the task types currently waiting upstream, in queue
// order. An empty slice means the queue is idle.
func (r *Coordinator) QueueTaskTypes(ctx context.Context) ([]string, error) {
	var payload struct {
		Tasks []struct {
			TaskType string `json:"task_type"`
		} `json:"tasks"`
	}
	if err := r.c.Call(ctx, "get_queue_status", nil, &payload); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(payload.Tasks))
	for _, t := range payload.Tasks {
		out = append(out, t.TaskType)
	}
	return out, nil
}

// Ping checks reachability.
func (r *Coordinator) Ping(ctx context.Context) error { return r.c.Ping(ctx) }

// Evaluation is the model evaluation peer. The resource manager only health
// checks it; it issues no other calls.
type Evaluation struct {
	c *Client
}

// NewEvaluation builds the model evaluation client.
func NewEvaluation(url string, timeout time.Duration, log zerolog.Logger) *Evaluation {
	return &Evaluation{c: NewClient("model_evaluation", url, timeout, log)}
}

// Ping checks reachability.
func (e *Evaluation) Ping(ctx context.Context) error { return e.c.Ping(ctx) }
