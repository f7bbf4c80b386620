// Package notify publishes plan verdicts to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/planval/internal/validator"
)

// Verdict is the message published for every validated plan.
type Verdict struct {
	RunID       string         `json:"run_id"`
	Task        string         `json:"task"`
	Plan        string         `json:"plan"`
	Status      string         `json:"status"`
	Value       *float64       `json:"value,omitempty"`
	Happenings  int            `json:"happenings"`
	Conditions  []string       `json:"conditions,omitempty"`
	Violations  []string       `json:"violations,omitempty"`
	Preferences map[string]int `json:"preferences,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewVerdict summarises a result.
func NewVerdict(res *validator.Result) Verdict {
	v := Verdict{
		RunID:      res.RunID,
		Task:       res.Task,
		Plan:       res.Plan,
		Status:     string(res.Status),
		Happenings: res.Happenings,
		DurationMS: res.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if res.HasValue {
		value := res.Value
		v.Value = &value
	}
	for _, c := range res.Conditions {
		v.Conditions = append(v.Conditions, c.String())
	}
	for _, vi := range res.Violations {
		v.Violations = append(v.Violations, vi.String())
	}
	if len(res.Preferences) > 0 {
		v.Preferences = res.Preferences
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

// Conn is the part of a NATS connection the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is a validator.Sink that publishes verdicts.
type Publisher struct {
	conn    Conn
	nc      *nats.Conn // set when the publisher owns the connection
	subject string
	logger  *logging.Logger
}

// NewPublisher publishes on an existing connection.
func NewPublisher(conn Conn, subject string) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logging.New().WithComponent("notify"),
	}
}

// Connect dials the NATS server at url.
func Connect(url, subject string) (*Publisher, error) {
	logger := logging.New().WithComponent("notify")
	nc, err := nats.Connect(url,
		nats.Name("planval"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	p := NewPublisher(nc, subject)
	p.nc = nc
	p.logger.Info("connected to nats", map[string]interface{}{"url": nc.ConnectedUrl(), "subject": subject})
	return p, nil
}

// Record implements validator.Sink.
func (p *Publisher) Record(ctx context.Context, res *validator.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewVerdict(res))
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish verdict: %w", err)
	}
	p.logger.Debug("verdict published", map[string]interface{}{"run": res.RunID, "subject": p.subject})
	return nil
}

// Close drains the connection if the publisher opened it.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
