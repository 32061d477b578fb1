package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldsignal/relay/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	m.Run()
}

type idlePopper struct{}

func (idlePopper) Pop(ctx context.Context) (*Job, error) {
	return nil, nil
}

func TestProcessAbortsOnSoftDeadline(t *testing.T) {
	w := NewWorker(idlePopper{}, 1, 20*time.Millisecond)

	cancelled := make(chan struct{}, 1)
	w.Handle("slow.job", func(ctx context.Context, job *Job) error {
		<-ctx.Done()
		cancelled <- struct{}{}
		return ctx.Err()
	})

	done := make(chan struct{})
	go func() {
		w.process(context.Background(), &Job{ID: "j1", Name: "slow.job"})
		close(done)
	}()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was never cancelled by the soft deadline")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("process did not return after the deadline abort")
	}
}

func TestProcessCompletesFastHandlerWithinDeadline(t *testing.T) {
	w := NewWorker(idlePopper{}, 1, time.Second)

	var gotID string
	w.Handle("fast.job", func(ctx context.Context, job *Job) error {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			t.Error("fast handler started with an expired context")
		}
		gotID = job.ID
		return nil
	})

	w.process(context.Background(), &Job{ID: "j2", Name: "fast.job"})
	if gotID != "j2" {
		t.Fatalf("handler never ran, got id %q", gotID)
	}
}

func TestProcessSkipsUnregisteredJob(t *testing.T) {
	w := NewWorker(idlePopper{}, 1, time.Second)
	w.process(context.Background(), &Job{ID: "j3", Name: "no.such.job"})
}
