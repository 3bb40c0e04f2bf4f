package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestBridge(t *testing.T, opts ...Option) *ToolchainBridge {
	t.Helper()
	b := NewToolchainBridge("test", opts...)
	t.Cleanup(func() { b.Shutdown(time.Second) })
	return b
}

func TestBridgeResolvesSubmittedRequest(t *testing.T) {
	b := newTestBridge(t)
	b.RegisterHandler("echo", func(_ context.Context, payload map[string]interface{}) (interface{}, error) {
		return payload, nil
	})

	payload := map[string]interface{}{"echo": "hello"}
	future, err := b.SubmitRequest(context.Background(), "echo", payload, "")
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}

	result, err := future.Await(time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	got, ok := result.(map[string]interface{})
	if !ok || got["echo"] != "hello" {
		t.Errorf("expected payload echoed back, got %v", result)
	}
}

func TestBridgeFIFOOrder(t *testing.T) {
	b := newTestBridge(t)

	var mu sync.Mutex
	var completed []int
	b.RegisterHandler("record", func(_ context.Context, payload map[string]interface{}) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, payload["n"].(int))
		return nil, nil
	})

	const n = 20
	futures := make([]*ResultFuture, 0, n)
	for i := 0; i < n; i++ {
		f, err := b.SubmitRequest(context.Background(), "record", map[string]interface{}{"n": i}, "")
		if err != nil {
			t.Fatalf("SubmitRequest() error = %v", err)
		}
		futures = append(futures, f)
	}
	for _, f := range futures {
		if _, err := f.Await(time.Second); err != nil {
			t.Fatalf("Await() error = %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range completed {
		if got != i {
			t.Fatalf("completion order broken at position %d: got %d", i, got)
		}
	}
}

func TestBridgeSlowHandlerPreservesSubmissionOrder(t *testing.T) {
	b := newTestBridge(t)

	var mu sync.Mutex
	counter := 0
	order := make(map[string]int)
	b.RegisterHandler("slow_handler", func(_ context.Context, payload map[string]interface{}) (interface{}, error) {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		counter++
		order[payload["id"].(string)] = counter
		return counter, nil
	})

	first, err := b.SubmitRequest(context.Background(), "slow_handler", map[string]interface{}{"id": "first"}, "")
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}
	second, err := b.SubmitRequest(context.Background(), "slow_handler", map[string]interface{}{"id": "second"}, "")
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}

	if _, err := first.Await(2 * time.Second); err != nil {
		t.Fatalf("first Await() error = %v", err)
	}
	if _, err := second.Await(2 * time.Second); err != nil {
		t.Fatalf("second Await() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if order["first"] != 1 || order["second"] != 2 {
		t.Errorf("expected strict submission order, got %v", order)
	}
}

func TestBridgeCachesIdempotentRequests(t *testing.T) {
	b := newTestBridge(t)

	var mu sync.Mutex
	calls := 0
	b.RegisterCacheableHandler("generate_image", func(_ context.Context, payload map[string]interface{}) (interface{}, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return map[string]interface{}{"uri": "assets://x.png"}, nil
	})

	payload := map[string]interface{}{"prompt": "castle"}
	first, err := b.SubmitRequest(context.Background(), "generate_image", payload, "")
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}
	want, err := first.Await(time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	// Identical content: resolved from cache, already done, no queueing.
	second, err := b.SubmitRequest(context.Background(), "generate_image", map[string]interface{}{"prompt": "castle"}, "")
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}
	if !second.IsDone() {
		t.Error("cache hit should return an already-completed future")
	}
	got, err := second.Await(time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("cached result %v differs from original %v", got, want)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler should run once, ran %d times", calls)
	}
}

func TestBridgeDeduplicatesInflightRequests(t *testing.T) {
	b := newTestBridge(t)

	var mu sync.Mutex
	calls := 0
	b.RegisterCacheableHandler("generate_image", func(_ context.Context, payload map[string]interface{}) (interface{}, error) {
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		calls++
		mu.Unlock()
		return "asset", nil
	})

	payload := map[string]interface{}{"prompt": "castle"}
	first, _ := b.SubmitRequest(context.Background(), "generate_image", payload, "")
	second, _ := b.SubmitRequest(context.Background(), "generate_image", payload, "")

	if _, err := first.Await(time.Second); err != nil {
		t.Fatalf("first Await() error = %v", err)
	}
	if _, err := second.Await(time.Second); err != nil {
		t.Fatalf("second Await() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler should run once, ran %d times", calls)
	}
}

func TestBridgeHandlerErrorDoesNotStallWorker(t *testing.T) {
	b := newTestBridge(t)
	b.RegisterHandler("broken", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		return nil, errors.New("tool exploded")
	})
	b.RegisterHandler("ok", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		return "fine", nil
	})

	failing, _ := b.SubmitRequest(context.Background(), "broken", nil, "")
	following, _ := b.SubmitRequest(context.Background(), "ok", nil, "")

	_, err := failing.Await(time.Second)
	var execErr *HandlerExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected HandlerExecutionError, got %v", err)
	}
	if execErr.RequestType != "broken" {
		t.Errorf("error should carry the request type, got %q", execErr.RequestType)
	}

	// The worker must keep going: the queued request behind the failure still
	// resolves.
	result, err := following.Await(time.Second)
	if err != nil {
		t.Fatalf("following request failed: %v", err)
	}
	if result != "fine" {
		t.Errorf("expected %q, got %v", "fine", result)
	}
}

func TestBridgeHandlerPanicIsCaptured(t *testing.T) {
	b := newTestBridge(t)
	b.RegisterHandler("panics", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		panic("unexpected nil")
	})
	b.RegisterHandler("ok", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		return "fine", nil
	})

	panicking, _ := b.SubmitRequest(context.Background(), "panics", nil, "")
	following, _ := b.SubmitRequest(context.Background(), "ok", nil, "")

	_, err := panicking.Await(time.Second)
	var execErr *HandlerExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected HandlerExecutionError from panic, got %v", err)
	}

	if _, err := following.Await(time.Second); err != nil {
		t.Fatalf("worker died on panic: %v", err)
	}
}

func TestBridgeUnknownRequestType(t *testing.T) {
	b := newTestBridge(t)

	future, err := b.SubmitRequest(context.Background(), "nonexistent", nil, "")
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}
	_, err = future.Await(time.Second)
	if !errors.Is(err, ErrUnknownRequestType) {
		t.Errorf("expected ErrUnknownRequestType, got %v", err)
	}
}

func TestBridgeShutdownDrainsQueue(t *testing.T) {
	b := NewToolchainBridge("drain-test")

	var mu sync.Mutex
	processed := 0
	b.RegisterHandler("work", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		processed++
		mu.Unlock()
		return nil, nil
	})

	futures := make([]*ResultFuture, 0, 10)
	for i := 0; i < 10; i++ {
		f, err := b.SubmitRequest(context.Background(), "work", map[string]interface{}{"n": i}, "")
		if err != nil {
			t.Fatalf("SubmitRequest() error = %v", err)
		}
		futures = append(futures, f)
	}

	b.Shutdown(5 * time.Second)

	mu.Lock()
	got := processed
	mu.Unlock()
	if got != 10 {
		t.Errorf("shutdown should drain the queue: processed %d of 10", got)
	}
	for i, f := range futures {
		if !f.IsDone() {
			t.Errorf("future %d not resolved after drain", i)
		}
	}

	if _, err := b.SubmitRequest(context.Background(), "work", nil, ""); !errors.Is(err, ErrBridgeClosed) {
		t.Errorf("submissions after shutdown should fail with ErrBridgeClosed, got %v", err)
	}
}
