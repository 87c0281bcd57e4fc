//go:build integration

package events

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_FileAccepted(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	logger := slog.Default()

	p, err := Connect(natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer p.Close()

	sub, err := nats.Connect(natsURL)
	if err != nil {
		t.Fatalf("subscriber connect failed: %v", err)
	}
	defer sub.Close()

	received := make(chan FileEvent, 1)
	_, err = sub.Subscribe(SubjectFileAccepted, func(m *nats.Msg) {
		var evt FileEvent
		json.Unmarshal(m.Data, &evt)
		received <- evt
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	sub.Flush()

	p.FileAccepted(FileEvent{
		FileID:       "deadbeef0001",
		OriginalName: "chat.txt",
		FileType:     "text",
		DetectedType: "WhatsApp",
	})

	select {
	case evt := <-received:
		if evt.FileID != "deadbeef0001" || evt.DetectedType != "WhatsApp" {
			t.Errorf("event = %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not set by publisher")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}
