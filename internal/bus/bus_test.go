package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBus(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func TestOpenFailsWhenServerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), "redis://"+addr+"/0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus: ping")
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := Open(context.Background(), "http://not-redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse url")
}

func TestSubscribeDeliversPublishedPayloads(t *testing.T) {
	_, b := openTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := b.Subscribe(ctx, channel.Scan, channel.Chat)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, channel.Scan, `{"userId":"u1"}`))
	require.NoError(t, b.Publish(ctx, channel.Chat, "plain text"))

	var got []Message
	for len(got) < 2 {
		select {
		case m := <-msgs:
			got = append(got, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 2 messages", len(got))
		}
	}
	assert.Equal(t, Message{Channel: channel.Scan, Payload: `{"userId":"u1"}`}, got[0])
	assert.Equal(t, Message{Channel: channel.Chat, Payload: "plain text"}, got[1])

	cancel()
	select {
	case _, ok := <-msgs:
		for ok {
			_, ok = <-msgs
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message stream not closed after cancel")
	}
}

func TestSubscribeRequiresChannels(t *testing.T) {
	_, b := openTestBus(t)
	_, err := b.Subscribe(context.Background())
	require.Error(t, err)
}

func TestPublishRejectsUnregisteredChannel(t *testing.T) {
	_, b := openTestBus(t)
	err := b.Publish(context.Background(), channel.Channel(42), "x")
	require.Error(t, err)
}

func TestProbe(t *testing.T) {
	mr, b := openTestBus(t)

	st, err := b.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "redis://"+mr.Addr()+"/0", st.URL)
	assert.NotEmpty(t, st.Timestamp)

	mr.Close()
	st, err = b.Probe(context.Background())
	require.Error(t, err)
	assert.False(t, st.Connected)
	assert.Contains(t, st.Message, "redis connection failed")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "redis://:xxxxx@cache:6379/0", RedactURL("redis://:secret@cache:6379/0"))
	assert.Equal(t, "redis://cache:6379/0", RedactURL("redis://cache:6379/0"))
}
