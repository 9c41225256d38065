package notify

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type recordingDispatcher struct {
	msgs   []Message
	err    error
	ctxErr error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg Message) error {
	d.msgs = append(d.msgs, msg)
	d.ctxErr = ctx.Err()
	return d.err
}

func TestNotifier_SwallowsDispatchErrors(t *testing.T) {
	var buf bytes.Buffer
	d := &recordingDispatcher{err: errors.New("queue down")}
	n := NewNotifier(d, log.New(&buf, "", 0))

	n.Notify(context.Background(), Message{Kind: KindOrderConfirmation, To: "buyer@example.com"})

	require.Len(t, d.msgs, 1)
	assert.False(t, d.msgs[0].CreatedAt.IsZero())
	assert.Contains(t, buf.String(), "notify: dispatch order-confirmation to=buyer@example.com err=queue down")
}

func TestNotifier_SurvivesCancelledRequest(t *testing.T) {
	d := &recordingDispatcher{}
	n := NewNotifier(d, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.Notify(ctx, Message{Kind: KindPasswordReset, To: "a@b.c"})

	require.Len(t, d.msgs, 1)
	assert.NoError(t, d.ctxErr)
}

func TestNotifier_SkipsMissingRecipient(t *testing.T) {
	d := &recordingDispatcher{}
	NewNotifier(d, nil).Notify(context.Background(), Message{Kind: KindAccountRegistered})
	assert.Empty(t, d.msgs)

	var nilNotifier *Notifier
	nilNotifier.Notify(context.Background(), Message{To: "x@y.z"})
}

func TestRedisQueue_PushPop(t *testing.T) {
	addr := redisAddr(t)
	ctx := context.Background()
	q := NewRedisQueue(addr, "", 0, "notifications:test")
	t.Cleanup(func() { _ = q.Close() })
	require.NoError(t, q.Ping(ctx))

	sent := Message{Kind: KindEmailConfirmation, ProjectID: "p", To: "a@b.c", Data: map[string]interface{}{"token": "t1"}, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, q.Dispatch(ctx, sent))
	require.NoError(t, q.Dispatch(ctx, Message{Kind: KindPasswordReset, To: "b@b.c"}))

	got, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sent, got)

	_, ok, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func redisAddr(t *testing.T) (addr string) {
	t.Helper()
	if v := os.Getenv("TEST_REDIS_ADDR"); v != "" {
		return v
	}
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker unavailable: %v", r)
		}
	}()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })
	addr, err = container.Endpoint(ctx, "")
	if err != nil {
		t.Skipf("redis endpoint: %v", err)
	}
	return addr
}
