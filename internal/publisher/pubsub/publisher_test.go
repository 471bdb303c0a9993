package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func fakeServer(t *testing.T, topics ...string) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	opts := []option.ClientOption{option.WithGRPCConn(conn)}

	if len(topics) > 0 {
		admin, err := pubsub.NewClient(ctx, "project-id", opts...)
		require.NoError(t, err)
		for _, topic := range topics {
			_, err = admin.CreateTopic(ctx, topic)
			require.NoError(t, err)
		}
	}
	return srv, opts
}

func TestPublishSendsJSON(t *testing.T) {
	srv, opts := fakeServer(t, "scrapes")
	ctx := context.Background()

	pub, err := New(ctx, Config{ProjectID: "project-id", TopicName: "scrapes"}, nil, opts...)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	id, err := pub.Publish(ctx, "scrapes", map[string]int{"appended": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]int
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, 3, got["appended"])
	assert.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishRoutesByTopic(t *testing.T) {
	srv, opts := fakeServer(t, "scrapes", "alerts")
	ctx := context.Background()

	pub, err := New(ctx, Config{ProjectID: "project-id", TopicName: "scrapes"}, nil, opts...)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	_, err = pub.Publish(ctx, "alerts", "to-alerts")
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "", "to-default")
	require.NoError(t, err)

	require.Len(t, srv.Messages(), 2)
}

func TestPublishUnknownTopic(t *testing.T) {
	_, opts := fakeServer(t, "scrapes")
	ctx := context.Background()

	pub, err := New(ctx, Config{ProjectID: "project-id", TopicName: "scrapes"}, nil, opts...)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	// The argument names the topic; an unknown one is not silently redirected.
	_, err = pub.Publish(ctx, "absent", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"absent"`)
}

func TestNewMissingTopic(t *testing.T) {
	_, opts := fakeServer(t)
	_, err := New(context.Background(), Config{ProjectID: "project-id", TopicName: "absent"}, nil, opts...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Config{TopicName: "t"}, nil)
	require.Error(t, err)
}

func TestPublishUnmarshalable(t *testing.T) {
	_, opts := fakeServer(t, "scrapes")
	pub, err := New(context.Background(), Config{ProjectID: "project-id", TopicName: "scrapes"}, nil, opts...)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	_, err = pub.Publish(context.Background(), "scrapes", func() {})
	require.Error(t, err)
}
