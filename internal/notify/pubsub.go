package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jmylchreest/vodarr/internal/config"
)

// PubSub publishes notifications as JSON messages on a topic. A separate
// mailer service consumes them.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSub connects to the configured topic.
func NewPubSub(ctx context.Context, cfg config.PubSubConfig, logger *slog.Logger, opts ...option.ClientOption) (*PubSub, error) {
	if cfg.EmulatorEndpoint != "" {
		opts = append(opts,
			option.WithEndpoint(cfg.EmulatorEndpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSub{
		client: client,
		topic:  client.Topic(cfg.TopicID),
		logger: logger,
	}, nil
}

// Notify publishes n and waits for the server to acknowledge it.
func (p *PubSub) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":    string(n.Kind),
			"videoId": n.VideoID,
		},
	})
	id, err := res.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	p.logger.DebugContext(ctx, "notification published",
		slog.String("kind", string(n.Kind)),
		slog.String("message_id", id),
	)
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
