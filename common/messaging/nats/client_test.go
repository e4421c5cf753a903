package nats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/airhawk/common/messaging"
	"github.com/telhawk-systems/airhawk/common/messaging/natstest"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Name = "airhawk-test"
	return cfg
}

func TestClient_PublishSubscribe(t *testing.T) {
	client, err := NewClient(testConfig(natstest.RunServer(t)))
	require.NoError(t, err)
	defer client.Close()

	got := make(chan *messaging.Message, 1)
	sub, err := client.Subscribe(messaging.SubjectBlocklistChanged, func(_ context.Context, msg *messaging.Message) error {
		got <- msg
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sub.IsValid())
	assert.Equal(t, messaging.SubjectBlocklistChanged, sub.Subject())

	ctx := context.Background()
	require.NoError(t, client.PublishMsg(ctx, &messaging.Message{
		Subject:  messaging.SubjectBlocklistChanged,
		Data:     []byte(`{"action":"block"}`),
		Metadata: map[string]string{"Source": "test"},
	}))
	require.NoError(t, client.Flush(ctx))

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"action":"block"}`, string(msg.Data))
		assert.Equal(t, "test", msg.Metadata["Source"])
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	assert.True(t, client.IsConnected())
	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())
}

func TestClient_PublishHonoursCancelledContext(t *testing.T) {
	client, err := NewClient(testConfig(natstest.RunServer(t)))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.Publish(ctx, messaging.SubjectCaptureFrames, []byte("{}")), context.Canceled)
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := testConfig("nats://127.0.0.1:1")
	cfg.Timeout = 200 * time.Millisecond
	_, err := NewClient(cfg)
	require.Error(t, err)
}

func TestJetStream_LedgerStream(t *testing.T) {
	client, err := NewJetStreamClient(testConfig(natstest.RunServer(t)))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DeauthLedgerStream
	cfg.Storage = jetstream.MemoryStorage
	_, err = client.CreateOrUpdateStream(ctx, cfg)
	require.NoError(t, err)

	subject := messaging.LedgerSubject("de:ad:be:ef:00:01")
	for i := 1; i <= 3; i++ {
		ack, err := client.PublishSync(ctx, subject, []byte(fmt.Sprintf(`{"n":%d}`, i)), jetstream.WithMsgID(fmt.Sprintf("id-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), ack.Sequence)
	}

	// same message ID inside the duplicate window is not stored twice
	ack, err := client.PublishSync(ctx, subject, []byte(`{"n":3}`), jetstream.WithMsgID("id-3"))
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)

	state, err := client.StreamState(ctx, cfg.Name)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), state.Msgs)

	last, err := client.LastMessages(ctx, cfg.Name, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.JSONEq(t, `{"n":3}`, string(last[0].Data))
	assert.JSONEq(t, `{"n":2}`, string(last[1].Data))
	assert.Equal(t, subject, last[0].Subject)
}

func TestJetStream_MissingStream(t *testing.T) {
	client, err := NewJetStreamClient(testConfig(natstest.RunServer(t)))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.StreamState(context.Background(), "NOPE")
	require.Error(t, err)
}
