//go:build integration

package hermes

import (
	"sync/atomic"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PubSub(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	logger := slog.Default()

	client, err := NewClient(natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan map[string]string, 1)

	err = client.Subscribe("quill.test.>", func(subject string, data []byte) {
		var msg map[string]string
		json.Unmarshal(data, &msg)
		received <- msg
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	err = client.Publish("quill.test.ping", map[string]string{
		"message": "hello from integration test",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg["message"] != "hello from integration test" {
			t.Errorf("expected hello message, got %v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_QueueGroupDeliversOnce(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	logger := slog.Default()

	var delivered atomic.Int32
	for i := 0; i < 2; i++ {
		c, err := NewClient(natsURL, os.Getenv("NATS_TOKEN"), logger)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer c.Close()
		if err := c.QueueSubscribe("quill.test.queue", "quill-test", func(string, []byte) {
			delivered.Add(1)
		}); err != nil {
			t.Fatalf("queue subscribe failed: %v", err)
		}
	}

	pub, err := NewClient(natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pub.Close()

	time.Sleep(100 * time.Millisecond)
	if err := pub.Publish("quill.test.queue", map[string]string{"n": "1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if got := delivered.Load(); got != 1 {
		t.Errorf("expected one delivery across the group, got %d", got)
	}
}

func TestIntegration_HandlerPanicRecovered(t *testing.T) {
	natsURL := skipWithoutNATS(t)

	client, err := NewClient(natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	got := make(chan string, 2)
	err = client.Subscribe("quill.test.panic", func(_ string, data []byte) {
		if string(data) == `"boom"` {
			panic("bad payload")
		}
		got <- string(data)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	client.Publish("quill.test.panic", "boom")
	client.Publish("quill.test.panic", "ok")

	select {
	case msg := <-got:
		if msg != `"ok"` {
			t.Errorf("expected ok message, got %s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription stopped after a handler panic")
	}
}
