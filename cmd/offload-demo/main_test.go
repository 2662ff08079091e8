package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/Swind/go-offload/internal/config"
)

func TestRunDemo_SheepCountedWhileSleeping(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Default()

	err := runDemo(context.Background(), cfg, demoOptions{
		Sheep:    3,
		Interval: 20 * time.Millisecond,
		Sleep:    250 * time.Millisecond,
	}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{"Pre-sleep", "1 sheep", "2 sheep", "3 sheep", "Post-sleep"}, lines)
}

func TestRunDemo_NoSheep(t *testing.T) {
	var out bytes.Buffer

	err := runDemo(context.Background(), config.Default(), demoOptions{
		Interval: time.Millisecond,
		Sleep:    time.Millisecond,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Pre-sleep\nPost-sleep\n", out.String())
}

func TestRunDemo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := runDemo(ctx, config.Default(), demoOptions{
		Sheep:    100,
		Interval: time.Second,
		Sleep:    10 * time.Millisecond,
	}, io.Discard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunDemo_ServesMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Metrics.ListenAddr = addr

	done := make(chan error, 1)
	go func() {
		done <- runDemo(context.Background(), cfg, demoOptions{
			Sheep:    1,
			Interval: 400 * time.Millisecond,
			Sleep:    10 * time.Millisecond,
		}, io.Discard)
	}()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(raw)
		return strings.Contains(body, "offload_call_duration_seconds")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, `dispatcher="native"`)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("demo did not finish")
	}
}

func TestOpsCommand_ListsBoundOperations(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run([]string{"offload-demo", "ops"}))

	listing := out.String()
	assert.Contains(t, listing, "rust_sleep func(int32) int32")
	assert.Contains(t, listing, "RustSleep func(int32) int32")
	assert.Contains(t, listing, "sleep_context func(context.Context, time.Duration) error")
	assert.Contains(t, listing, "add func(int64, int64) int64")
}

func TestRunCommand_RejectsBadFlags(t *testing.T) {
	app := newApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run([]string{"offload-demo", "run", "--sheep", "-1"})
	assert.Error(t, err)
}
