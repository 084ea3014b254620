package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/metorial/bluefox/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	DefaultSubject = "bluefox.actions"

	flushTimeout = 2 * time.Second
)

type Publisher struct {
	nc     *nats.Conn
	url    string
	logger *zap.Logger
}

func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name("bluefoxctl"),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(disconnectHandler(logger)),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{nc: nc, url: url, logger: logger}, nil
}

// disconnectHandler logs lost connections. nats.go passes a nil error when
// the connection is closed by Close.
func disconnectHandler(logger *zap.Logger) nats.ConnErrHandler {
	return func(nc *nats.Conn, err error) {
		if err == nil {
			return
		}
		logger.Warn("nats disconnected", zap.Error(err))
	}
}

func (p *Publisher) Publish(ctx context.Context, subject string, ev models.Event) error {
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject), zap.String("event", ev.Event))
	return nil
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return
	}
	if err := p.nc.FlushTimeout(flushTimeout); err != nil {
		p.logger.Warn("flush events failed", zap.Error(err))
	}
	p.nc.Close()
}
