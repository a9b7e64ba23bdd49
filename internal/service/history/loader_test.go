package history

import (
	"context"
	"errors"
	"testing"

	"github.com/risklock/livesync/internal/events"
	"github.com/risklock/livesync/internal/model/support"
)

type fakeFetcher struct {
	calls    int
	messages []support.Message
	err      error
}

func (f *fakeFetcher) History(_ context.Context, _ support.ID) ([]support.Message, error) {
	f.calls++
	return f.messages, f.err
}

func TestLoadOncePerSession(t *testing.T) {
	fetcher := &fakeFetcher{messages: []support.Message{{Content: "welcome", SenderType: support.SenderBot}}}
	loader := NewLoader(fetcher, nil)
	ctx := context.Background()

	got, err := loader.Load(ctx, "1")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}

	if _, err := loader.Load(ctx, "1"); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("expected ErrAlreadyLoaded, got %v", err)
	}
	if _, err := loader.Load(ctx, "2"); err != nil {
		t.Fatalf("other session should load: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", fetcher.calls)
	}
}

func TestLoadWithoutSession(t *testing.T) {
	fetcher := &fakeFetcher{}
	if _, err := NewLoader(fetcher, nil).Load(context.Background(), ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatal("no fetch may happen without a session id")
	}
}

func TestLoadFailureYieldsEmpty(t *testing.T) {
	bus := events.NewBus()
	published := 0
	bus.Subscribe(func(events.Event) { published++ }, events.TransientError)

	got, err := NewLoader(&fakeFetcher{err: errors.New("502 bad gateway")}, bus).Load(context.Background(), "3")
	if err != nil {
		t.Fatalf("failure must not propagate: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty transcript, got %v", got)
	}
	if published != 1 {
		t.Fatalf("expected a transient error event, got %d", published)
	}
}

func TestLoadSkipsInvalidEntries(t *testing.T) {
	fetcher := &fakeFetcher{messages: []support.Message{
		{Content: "ok", SenderType: support.SenderUser},
		{Content: "", SenderType: support.SenderUser},
		{Content: "ghost", SenderType: "ALIEN"},
	}}

	got, _ := NewLoader(fetcher, nil).Load(context.Background(), "4")
	if len(got) != 1 || got[0].Content != "ok" {
		t.Fatalf("unexpected transcript: %v", got)
	}
}

func TestLoadReportsFailure(t *testing.T) {
	boom := errors.New("gone")
	loader := NewLoader(&fakeFetcher{err: boom}, nil)

	var gotID support.ID
	var gotErr error
	loader.OnFailure(func(id support.ID, err error) {
		gotID, gotErr = id, err
	})

	msgs, err := loader.Load(context.Background(), "9")
	if err != nil || msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty transcript, got %v, %v", msgs, err)
	}
	if gotID != "9" || !errors.Is(gotErr, boom) {
		t.Fatalf("failure hook saw %q, %v", gotID, gotErr)
	}
}

func TestForgetAllowsReload(t *testing.T) {
	fetcher := &fakeFetcher{messages: []support.Message{{Content: "welcome", SenderType: support.SenderBot}}}
	loader := NewLoader(fetcher, nil)
	ctx := context.Background()

	if _, err := loader.Load(ctx, "1"); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	loader.Forget("1")

	got, err := loader.Load(ctx, "1")
	if err != nil {
		t.Fatalf("reload after Forget: %v", err)
	}
	if len(got) != 1 || fetcher.calls != 2 {
		t.Fatalf("expected a second fetch, got %d messages after %d calls", len(got), fetcher.calls)
	}
}

type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) History(ctx context.Context, _ support.ID) ([]support.Message, error) {
	close(f.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLoadCancelledIsSilent(t *testing.T) {
	bus := events.NewBus()
	published := 0
	bus.Subscribe(func(events.Event) { published++ }, events.TransientError)

	fetcher := &blockingFetcher{started: make(chan struct{})}
	loader := NewLoader(fetcher, bus)
	failed := false
	loader.OnFailure(func(support.ID, error) { failed = true })

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan []support.Message, 1)
	go func() {
		msgs, _ := loader.Load(ctx, "7")
		result <- msgs
	}()

	<-fetcher.started
	cancel()

	msgs := <-result
	if len(msgs) != 0 {
		t.Fatalf("cancelled load returned %v", msgs)
	}
	if failed || published != 0 {
		t.Fatalf("teardown must not be reported as a failure (hook=%v, events=%d)", failed, published)
	}
}
