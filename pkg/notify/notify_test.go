package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func TestEvent_JSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b, err := json.Marshal(Event{Kind: KindBought, Token: "0xabc", Symbol: "TST", State: "bought", At: at})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"bought","token":"0xabc","symbol":"TST","state":"bought","at":"2024-05-01T12:00:00Z"}`, string(b))
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Kind: KindDetected}))
	assert.NoError(t, p.Close())
}

func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	cleanup := func() {
		_ = rdb.Close()
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return rdb, cleanup
}

func TestRedis_Publish(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "sniper:test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := newRedis(redis.NewClient(&redis.Options{Addr: rdb.Options().Addr}), "sniper:test", zap.NewNop())
	defer pub.Close()

	ev := Event{Kind: KindSold, Token: "0xabc", State: "sold", Detail: "pnl 0.1", At: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, pub.Publish(ctx, ev))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, ev, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
