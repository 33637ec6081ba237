package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection and one ordered publisher per loan topic.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails fast when a loan topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	conn, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     conn,
		projectID:  projectID,
		topics:     topics,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.checkTopics(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a key file. With neither set
// the SDK falls back to ADC, or to PUBSUB_EMULATOR_HOST when present.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.CredentialsFile) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.CredentialsFile)}
	default:
		return nil
	}
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.BorrowTopic, cfg.ReturnTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// checkTopics looks every configured topic up concurrently.
func (c *Client) checkTopics(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.topics {
		g.Go(func() error {
			_, err := c.client.TopicAdminClient.GetTopic(gctx, &pubsubpb.GetTopicRequest{Topic: c.topicResourceName(name)})
			switch {
			case err == nil:
				return nil
			case status.Code(err) == codes.NotFound:
				return fmt.Errorf("topic %q does not exist", name)
			default:
				return fmt.Errorf("checking topic %q: %w", name, err)
			}
		})
	}
	return g.Wait()
}

// Publisher returns the shared ordered publisher for a topic ID or resource
// name. Messages sharing an ordering key are delivered in order.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	resource := c.topicResourceName(name)
	if resource == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[resource]; ok {
		return pub
	}
	pub := c.client.Publisher(resource)
	pub.EnableMessageOrdering = true
	c.publishers[resource] = pub
	return pub
}

// Ping verifies Pub/Sub connectivity by checking the configured topics exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkTopics(ctx)
}

// Close flushes every publisher before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for resource, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, resource)
	}
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/"):
		return n
	case c.projectID == "":
		return ""
	}
	return "projects/" + c.projectID + "/topics/" + n
}
