package dispatcher

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, msg := range l.messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_SyncSubscriber(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Subscribe("marker_changed", func(e Event) error {
		got = e
		return nil
	})

	d.Publish("marker_changed", "payload")

	if got.Type != "marker_changed" {
		t.Errorf("expected marker_changed, got %q", got.Type)
	}
	if got.Payload != "payload" {
		t.Errorf("expected payload, got %v", got.Payload)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected a publish timestamp")
	}
}

func TestDispatcher_FanOut(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var first, second bool
	d.Subscribe("transport_changed", func(e Event) error {
		first = true
		return nil
	})
	d.Subscribe("transport_changed", func(e Event) error {
		second = true
		return nil
	})

	d.Publish("transport_changed", nil)

	if !first || !second {
		t.Errorf("expected both subscribers called, got first=%v second=%v", first, second)
	}
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// must not panic or block
	d.Publish("unheard", 42)

	if d.HasSubscribers("unheard") {
		t.Error("expected no subscribers")
	}
}

func TestDispatcher_BufferedSubscriber(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Subscribe("position_reported", func(e Event) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		d.Publish("position_reported", i)
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var once sync.Once
	started := make(chan struct{})
	block := make(chan struct{})
	d.Subscribe("drift_corrected", func(e Event) error {
		once.Do(func() { close(started) })
		<-block
		return nil
	}, Buffered(2))

	d.Publish("drift_corrected", 1)
	<-started // consumer is now blocked inside the handler, queue empty
	d.Publish("drift_corrected", 2)
	d.Publish("drift_corrected", 3)

	// queue is full, this one must drop
	d.Publish("drift_corrected", 4)

	if !logger.contains("queue full") {
		t.Error("expected a queue full log entry")
	}

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var once sync.Once
	started := make(chan struct{})
	block := make(chan struct{})
	d.Subscribe("snapshot_saved", func(e Event) error {
		once.Do(func() { close(started) })
		<-block
		return nil
	}, Buffered(1), Blocking())

	d.Publish("snapshot_saved", 1)
	<-started
	d.Publish("snapshot_saved", 2) // fills the queue

	done := make(chan struct{})
	go func() {
		d.Publish("snapshot_saved", 3)
		close(done)
	}()

	select {
	case <-done:
		t.Error("publish should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Expected - publish is blocking
	}

	close(block)
	<-done
}

func TestDispatcher_SubscriberError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Subscribe("save_failed", func(e Event) error {
		return fmt.Errorf("handler exploded")
	})

	d.Publish("save_failed", nil)

	if !logger.contains("handler exploded") {
		t.Error("expected the handler error to be logged")
	}
}

func TestDispatcher_LoggedSubscriber(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Subscribe("stream_loaded", func(e Event) error {
		return nil
	}, Logged())

	d.Publish("stream_loaded", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected at least 2 log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_LoggedSubscriberError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Subscribe("stream_unloaded", func(e Event) error {
		return fmt.Errorf("test error")
	}, Logged())

	d.Publish("stream_unloaded", nil)

	if !logger.contains("ERROR") {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasSubscribers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Subscribe("master_changed", func(e Event) error { return nil })

	if !d.HasSubscribers("master_changed") {
		t.Error("expected subscribers to exist")
	}

	if d.HasSubscribers("never_registered") {
		t.Error("expected no subscribers")
	}
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	d.Subscribe("user_sought", func(e Event) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100), Logged())

	d.Publish("user_sought", nil)

	wg.Wait()

	if processed.Load() != 1 {
		t.Errorf("expected 1 processed, got %d", processed.Load())
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 1 {
		t.Errorf("expected log messages, got %d", len(logger.messages))
	}
}
