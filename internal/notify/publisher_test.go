package notify

import (
	"context"
	"testing"
	"time"

	"github.com/talgya/mini-reasoner/internal/config"
	"github.com/talgya/mini-reasoner/internal/engine"
)

func TestNewPublisherWithoutAddress(t *testing.T) {
	cfg := config.Default()
	p := NewPublisher(cfg)
	if p != nil {
		t.Fatalf("expected nil publisher without redis address")
	}
	if err := p.Publish(context.Background(), engine.Event{Agent: "moon", To: "Seek"}); err != nil {
		t.Fatalf("nil publisher should drop silently: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestNewPublisherOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Password = "secret"
	cfg.Redis.DB = 15
	cfg.Redis.Channel = ""

	p := NewPublisher(cfg)
	if p == nil {
		t.Fatalf("NewPublisher returned nil")
	}
	defer p.Close()

	opts := p.Client().Options()
	if opts.Addr != cfg.Redis.Addr {
		t.Errorf("expected Addr %s, got %s", cfg.Redis.Addr, opts.Addr)
	}
	if opts.Password != cfg.Redis.Password {
		t.Errorf("expected Password %s, got %s", cfg.Redis.Password, opts.Password)
	}
	if opts.DB != cfg.Redis.DB {
		t.Errorf("expected DB %d, got %d", cfg.Redis.DB, opts.DB)
	}
	if p.channel != "reasoner:transitions" || p.stateKey != "reasoner:transitions:active" {
		t.Errorf("unexpected keys: %q %q", p.channel, p.stateKey)
	}
}

func TestRunStopsOnClosedChannel(t *testing.T) {
	events := make(chan engine.Event)
	close(events)
	done := make(chan struct{})
	go func() {
		var p *Publisher
		p.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		var p *Publisher
		p.Run(ctx, make(chan engine.Event))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
