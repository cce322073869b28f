package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// mockNotifier fails the first failN calls, then succeeds.
type mockNotifier struct {
	mu        sync.Mutex
	failN     int
	permanent bool
	calls     int
	delivered []Message
}

func (m *mockNotifier) Notify(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failN {
		err := errors.New("mailer unavailable")
		if m.permanent {
			return backoff.Permanent(err)
		}
		return err
	}
	m.delivered = append(m.delivered, msg)
	return nil
}

func (m *mockNotifier) snapshot() (int, []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]Message(nil), m.delivered...)
}

func fastOptions() DispatcherOptions {
	return DispatcherOptions{
		Workers:         1,
		QueueSize:       8,
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestDispatcher_DeliversAfterRetries(t *testing.T) {
	n := &mockNotifier{failN: 2}
	d := NewDispatcher(n, fastOptions(), nil)
	msg := NewMessage(EventSignatureRequested, "sid-1", "a@b.com", "http://x/session/sid-1/", "Acme", "NDA")
	if err := d.Enqueue(msg); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	calls, delivered := n.snapshot()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(delivered) != 1 || delivered[0].ID != msg.ID {
		t.Errorf("delivered = %v, want [%s]", delivered, msg.ID)
	}
}

func TestDispatcher_GivesUpAndReportsFailure(t *testing.T) {
	n := &mockNotifier{failN: 100}
	var (
		mu     sync.Mutex
		failed []Message
	)
	opts := fastOptions()
	opts.MaxRetries = 2
	opts.OnFailure = func(msg Message, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, msg)
	}
	d := NewDispatcher(n, opts, nil)
	if err := d.Enqueue(NewMessage(EventSignatureRequested, "sid-1", "a@b.com", "u", "Acme", "NDA")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	calls, _ := n.snapshot()
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 {
		t.Errorf("OnFailure called %d times, want 1", len(failed))
	}
}

func TestDispatcher_PermanentErrorNotRetried(t *testing.T) {
	n := &mockNotifier{failN: 1, permanent: true}
	d := NewDispatcher(n, fastOptions(), nil)
	if err := d.Enqueue(NewMessage(EventSignatureRequested, "sid-1", "a@b.com", "u", "Acme", "NDA")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	calls, delivered := n.snapshot()
	if calls != 1 || len(delivered) != 0 {
		t.Errorf("calls = %d delivered = %d, want 1 and 0", calls, len(delivered))
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	n := NotifierFunc(func(ctx context.Context, msg Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	opts := fastOptions()
	opts.QueueSize = 1
	d := NewDispatcher(n, opts, nil)

	if err := d.Enqueue(Message{ID: "1"}); err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	<-started
	if err := d.Enqueue(Message{ID: "2"}); err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}
	if err := d.Enqueue(Message{ID: "3"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue 3 err = %v, want ErrQueueFull", err)
	}
	close(release)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(&mockNotifier{}, fastOptions(), nil)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Enqueue(Message{ID: "1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue err = %v, want ErrClosed", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDispatcher_CloseDeadlineAbandonsRetries(t *testing.T) {
	n := &mockNotifier{failN: 1000}
	opts := fastOptions()
	opts.MaxRetries = 1000
	opts.InitialInterval = 50 * time.Millisecond
	opts.MaxInterval = 50 * time.Millisecond
	d := NewDispatcher(n, opts, nil)
	if err := d.Enqueue(Message{ID: "1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close err = %v, want DeadlineExceeded", err)
	}
}

func TestRetrier_Deliver(t *testing.T) {
	tests := []struct {
		name      string
		failN     int
		permanent bool
		wantErr   bool
		wantCalls int
	}{
		{"first attempt", 0, false, false, 1},
		{"after retries", 3, false, false, 4},
		{"retries exhausted", 10, false, true, 4},
		{"permanent", 1, true, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &mockNotifier{failN: tt.failN, permanent: tt.permanent}
			r := NewRetrier(n, fastOptions(), nil)
			msg := NewMessage(EventSignatureRequested, "sid-1", "a@b.com", "http://x/session/sid-1/", "Acme", "NDA")
			err := r.Deliver(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Deliver err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls, _ := n.snapshot(); calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetrier_StopsWhenContextDone(t *testing.T) {
	n := &mockNotifier{failN: 100}
	opts := fastOptions()
	opts.MaxRetries = 100
	opts.InitialInterval = 50 * time.Millisecond
	r := NewRetrier(n, opts, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Deliver(ctx, NewMessage(EventSignatureRequested, "sid-1", "a@b.com", "", "Acme", "NDA")); err == nil {
		t.Fatal("Deliver should fail once ctx is done")
	}
	if calls, _ := n.snapshot(); calls >= 100 {
		t.Errorf("calls = %d, retries should stop with ctx", calls)
	}
}
