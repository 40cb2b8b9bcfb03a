package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
)

func TestNewSelectsDriver(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := p.(*Noop); !ok {
		t.Fatalf("want noop, got %T", p)
	}
	if err := p.Publish(context.Background(), Event{Type: "message.create"}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}

	p, err = New(Config{Driver: "redis", RedisURL: "redis://localhost:6390/1", RedisStream: "s"})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	if _, ok := p.(*redisPublisher); !ok {
		t.Fatalf("want redis publisher, got %T", p)
	}
	_ = p.Close()

	p, err = New(Config{Driver: "kafka", KafkaBrokers: []string{"k1:9092, k2:9092"}})
	if err != nil {
		t.Fatalf("kafka: %v", err)
	}
	if _, ok := p.(*kafkaPublisher); !ok {
		t.Fatalf("want kafka publisher, got %T", p)
	}
	_ = p.Close()
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Driver: "nats"}); err == nil {
		t.Fatal("unknown driver must fail")
	}
	if _, err := New(Config{Driver: "kafka"}); err == nil {
		t.Fatal("kafka without brokers must fail")
	}
	if _, err := New(Config{Driver: "redis", RedisURL: "://bad"}); err == nil {
		t.Fatal("bad redis url must fail")
	}
}

func TestEncode(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	b, err := encode(Event{Type: "message.approve", MessageID: 9, From: ports.StatusPendingManager, To: ports.StatusApproved, ActorID: 2, ActorRole: "manager", At: at})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["type"] != "message.approve" || m["from"] != "pending_manager_approval" || m["to"] != "approved" {
		t.Fatalf("unexpected payload: %s", b)
	}
}
