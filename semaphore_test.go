package zipkit

import (
	"context"
	"testing"
	"time"
)

func TestSemaphoreSynchronizeSerializes(t *testing.T) {
	sem := NewSemaphore(1)
	order := make(chan int, 2)

	done := make(chan struct{})
	go func() {
		sem.Synchronize(context.Background(), func() error {
			order <- 1
			time.Sleep(10 * time.Millisecond)
			return nil
		})
		close(done)
	}()
	time.Sleep(2 * time.Millisecond)
	sem.Synchronize(context.Background(), func() error {
		order <- 2
		return nil
	})
	<-done

	if got := <-order; got != 1 {
		t.Fatalf("first critical section ran = %d, want 1", got)
	}
	if got := <-order; got != 2 {
		t.Fatalf("second critical section ran = %d, want 2", got)
	}
}

func TestSemaphoreAcquireFailsOnCanceledContext(t *testing.T) {
	sem := NewSemaphore(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sem.Acquire(ctx, 1); err == nil {
		t.Fatal("Acquire with an already-canceled context: expected an error")
	}
}

func TestSemaphoreRunReleasesOnError(t *testing.T) {
	sem := NewSemaphore(1)
	wantErr := context.Canceled
	err := sem.Run(context.Background(), 1, func() error { return wantErr })
	if err != wantErr {
		t.Fatalf("Run: err = %v, want %v", err, wantErr)
	}

	// The permit must have been released even though action returned an
	// error; a second Run must not block.
	ran := false
	if err := sem.Run(context.Background(), 1, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !ran {
		t.Error("second Run did not execute its action; permit was not released")
	}
}
