package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestPublishReachesSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr() + "/0"
	b, err := bus.Open(context.Background(), url)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := b.Subscribe(ctx, channel.Scan)
	require.NoError(t, err)

	out, _, err := execute(t, context.Background(), "--redis", url, "publish", "Scan", `{"userId":"u1"}`)
	require.NoError(t, err)
	assert.Equal(t, "published 15 bytes on scan_monitor\n", out)

	select {
	case m := <-msgs:
		assert.Equal(t, bus.Message{Channel: channel.Scan, Payload: `{"userId":"u1"}`}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive published payload")
	}
}

func TestPublishRejectsUnknownChannel(t *testing.T) {
	_, _, err := execute(t, context.Background(), "--redis", "redis://127.0.0.1:1/0", "publish", "billing_monitor", "{}")
	var unknown *channel.UnknownError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "billing_monitor", unknown.Wire)
}

func TestPublishRequiresTwoArgs(t *testing.T) {
	_, _, err := execute(t, context.Background(), "publish", "scan_monitor")
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr() + "/0"

	out, _, err := execute(t, context.Background(), "--redis", url, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"connected": true`)
	assert.Contains(t, out, `"message": "redis connection ok"`)

	mr.Close()
	out, _, err = execute(t, context.Background(), "--redis", url, "status")
	require.Error(t, err)
	assert.Contains(t, out, `"connected": false`)
}

func TestTailPrintsSelectedChannels(t *testing.T) {
	hub := relay.NewHub(relay.HubOptions{SweepInterval: time.Hour})
	msgs := make(chan bus.Message, 4)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go func() { _ = hub.Run(hubCtx, msgs) }()

	srv := httptest.NewServer(relay.WSHandler(hub, nil, time.Second))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	record := t.TempDir()

	type result struct {
		out, errOut string
		err         error
	}
	done := make(chan result, 1)
	go func() {
		out, errOut, err := execute(t, context.Background(),
			"--url", wsURL, "tail", "--channel", "scan_monitor", "--count", "1", "--record", record)
		done <- result{out, errOut, err}
	}()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-done:
			require.NoError(t, res.err)
			lines := strings.Split(strings.TrimSpace(res.out), "\n")
			require.Len(t, lines, 1)
			assert.Contains(t, lines[0], `"type":"scan_monitor"`)
			assert.Contains(t, lines[0], `"userId":"u1"`)
			assert.Regexp(t, `scan_monitor: [1-9]`, res.errOut)

			files, _ := filepath.Glob(filepath.Join(record, "*", "tail.jsonl"))
			require.Len(t, files, 1)
			data, err := os.ReadFile(files[0])
			require.NoError(t, err)
			assert.Contains(t, string(data), "scan_monitor")
			return
		case <-tick.C:
			msgs <- bus.Message{Channel: channel.Execution, Payload: `{"qty":1}`}
			msgs <- bus.Message{Channel: channel.Scan, Payload: `{"userId":"u1"}`}
		case <-deadline:
			t.Fatal("tail did not print an envelope")
		}
	}
}

func TestTailRejectsUnknownChannel(t *testing.T) {
	_, _, err := execute(t, context.Background(), "tail", "--channel", "nope")
	require.Error(t, err)
}

func TestLogLevelFlagDefaultsFromEnv(t *testing.T) {
	t.Setenv("RELAY_CLIENT_LOG_LEVEL", "debug")
	flag := NewRootCommand().PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Equal(t, "debug", flag.DefValue)
}
