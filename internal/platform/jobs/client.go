package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/anh26092005/web-thu-c-sub000/internal/platform/config"
)

const envPubSubEmulatorHost = "PUBSUB_EMULATOR_HOST"

// NewClient dials Pub/Sub for the configured project, honouring the emulator
// host the same way the Firestore provider does.
func NewClient(ctx context.Context, cfg config.PubSubConfig, opts ...option.ClientOption) (*pubsub.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("pubsub: project id is required")
	}

	host := strings.TrimSpace(cfg.EmulatorHost)
	if host == "" {
		host = strings.TrimSpace(os.Getenv(envPubSubEmulatorHost))
	}
	if host != "" {
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: create client: %w", err)
	}
	return client, nil
}

// Probe reports whether the topic is reachable. Used by readiness checks.
func Probe(ctx context.Context, topic *pubsub.Topic) error {
	if topic == nil {
		return errors.New("pubsub: topic is nil")
	}
	ok, err := topic.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pubsub: topic %s does not exist", topic.ID())
	}
	return nil
}
