package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/avtovin/avtovin-backend/pkg/config"
	"github.com/avtovin/avtovin-backend/pkg/logger"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Publisher sends messages to a single configured Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  string
	cfg    config.PubSubConfig
	logg   *logger.Logger
}

// NewPublisher creates a Pub/Sub client bound to the notification topic.
func NewPublisher(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Publisher, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.NotificationTopic) == "" {
		return nil, errors.New("notification topic is required")
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "pubsub publisher initialized")
	}

	return &Publisher{
		client: psClient,
		topic:  cfg.NotificationTopic,
		cfg:    cfg,
		logg:   logg,
	}, nil
}

// Publish hands the message to the client and returns without waiting for the
// server ack. Request latency must not depend on the broker, so the ack is
// awaited in the background and a failure is only logged.
func (p *Publisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	if p == nil || p.client == nil {
		return errors.New("publisher not initialized")
	}

	// detached from the request context so an aborted request does not
	// cancel an in-flight publish
	ackCtx := context.WithoutCancel(ctx)
	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ackCtx, cancel = context.WithTimeout(ackCtx, p.cfg.PublishTimeout)
		go func() {
			defer cancel()
			p.awaitAck(ackCtx, p.client.Publisher(p.topic).Publish(ackCtx, &pubsub.Message{
				Data:       data,
				Attributes: attrs,
			}))
		}()
		return nil
	}

	result := p.client.Publisher(p.topic).Publish(ackCtx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	go p.awaitAck(ackCtx, result)
	return nil
}

// ackResult is the part of pubsub.PublishResult the background waiter needs.
type ackResult interface {
	Get(ctx context.Context) (string, error)
}

func (p *Publisher) awaitAck(ctx context.Context, result ackResult) {
	if _, err := result.Get(ctx); err != nil {
		if p.logg != nil {
			p.logg.Error(ctx, "publishing to "+p.topic+" failed", err)
		}
	}
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
