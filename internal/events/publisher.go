// Package events publishes ingest outcomes to NATS so downstream consumers
// (reindexers, dashboards) can react without polling the corpus directory.
// The publisher is optional: a nil *Publisher is safe to call and does
// nothing, so the pipeline runs unchanged without a broker.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectFileAccepted    = "alterecho.corpus.file.accepted"
	SubjectFileRejected    = "alterecho.corpus.file.rejected"
	SubjectArchivePending  = "alterecho.corpus.archive.pending"
	SubjectArchiveSelected = "alterecho.corpus.archive.selected"
)

// FileEvent describes one upload verdict.
type FileEvent struct {
	FileID       string    `json:"file_id,omitempty"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	DetectedType string    `json:"detected_type,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ArchiveEvent describes an archive entering or leaving the pending state.
type ArchiveEvent struct {
	ArchiveID     string    `json:"archive_id"`
	Kind          string    `json:"kind"`
	OriginalName  string    `json:"original_name"`
	Conversations int       `json:"conversations"`
	Timestamp     time.Time `json:"timestamp"`
}

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials NATS with reconnect handling. Token may be empty.
func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, logger: logger}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, v any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("marshal event failed", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		// Event loss never blocks ingestion.
		p.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}

func (p *Publisher) FileAccepted(evt FileEvent) {
	evt.Timestamp = time.Now().UTC()
	p.publish(SubjectFileAccepted, evt)
}

func (p *Publisher) FileRejected(evt FileEvent) {
	evt.Timestamp = time.Now().UTC()
	p.publish(SubjectFileRejected, evt)
}

func (p *Publisher) ArchivePending(evt ArchiveEvent) {
	evt.Timestamp = time.Now().UTC()
	p.publish(SubjectArchivePending, evt)
}

func (p *Publisher) ArchiveSelected(evt ArchiveEvent) {
	evt.Timestamp = time.Now().UTC()
	p.publish(SubjectArchiveSelected, evt)
}
