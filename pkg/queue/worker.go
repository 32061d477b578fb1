package queue

import (
	"context"
	"time"

	"github.com/fieldsignal/relay/pkg/common/logger"
)

// HandlerFunc processes one job. Errors are logged at the worker boundary
// and never propagate; a handler that wants retries performs them itself.
type HandlerFunc func(ctx context.Context, job *Job) error

// Popper yields due jobs. Satisfied by Queue.
type Popper interface {
	Pop(ctx context.Context) (*Job, error)
}

// Worker polls the queue and runs jobs on a bounded pool. Each job gets a
// soft deadline; on expiry the handler's context is cancelled and the abort
// is logged without touching the records the job referenced.
type Worker struct {
	queue        Popper
	handlers     map[string]HandlerFunc
	sem          chan struct{}
	pollInterval time.Duration
	softDeadline time.Duration
}

func NewWorker(q Popper, concurrency int, softDeadline time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if softDeadline <= 0 {
		softDeadline = 30 * time.Second
	}
	return &Worker{
		queue:        q,
		handlers:     make(map[string]HandlerFunc),
		sem:          make(chan struct{}, concurrency),
		pollInterval: 250 * time.Millisecond,
		softDeadline: softDeadline,
	}
}

func (w *Worker) Handle(name string, handler HandlerFunc) {
	w.handlers[name] = handler
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.Pop(ctx)
		if err != nil {
			logger.Log.WithError(err).Error("failed to pop job")
			select {
			case <-time.After(w.pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			select {
			case <-time.After(w.pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		w.sem <- struct{}{}
		go func(job *Job) {
			defer func() { <-w.sem }()
			w.process(ctx, job)
		}(job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	log := logger.Log.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"job_name": job.Name,
	})

	handler, ok := w.handlers[job.Name]
	if !ok {
		log.Error("no handler registered for job")
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.softDeadline)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		if jobCtx.Err() == context.DeadlineExceeded {
			// Soft deadline expired: silent abort, the job is not
			// rescheduled by the worker.
			log.WithError(err).Error("job aborted on soft deadline")
			return
		}
		log.WithError(err).Error("job failed")
		return
	}

	log.Debug("job completed")
}

// String pulls a string value from a job payload.
func (j *Job) String(key string) string {
	if v, ok := j.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Strings pulls a string slice from a job payload, tolerating the
// []interface{} shape JSON round-trips produce.
func (j *Job) Strings(key string) []string {
	switch v := j.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
