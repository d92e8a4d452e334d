package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/broker"
	"github.com/bromq-dev/minibroker/pkg/listeners"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBroker(t *testing.T) (*broker.Broker, string, int) {
	t.Helper()
	users := []auth.User{
		{Username: "user", Password: "password", Permissions: []auth.Permission{auth.Read, auth.Write}},
	}
	b := broker.New(nil, broker.WithAuthorizer(auth.New(users, false)), broker.WithLogger(quietLogger()))

	l := listeners.NewTCP("tcp", "127.0.0.1:0", nil)
	require.NoError(t, l.Listen())
	require.NoError(t, b.AddListener(l))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})

	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return b, host, p
}

func TestPublisherToSubscriber(t *testing.T) {
	b, host, port := startBroker(t)

	base := Options{
		Host:     host,
		Port:     port,
		Username: "user",
		Password: "password",
		Topic:    "test/topic",
		Interval: 10 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out lockedBuffer
	subOpts := base
	subOpts.Count = 2
	subDone := make(chan error, 1)
	go func() { subDone <- RunSubscriber(ctx, subOpts, &out, quietLogger()) }()

	require.Eventually(t, func() bool { return b.Stats().Subscriptions == 1 }, 5*time.Second, 10*time.Millisecond)

	pubOpts := base
	pubOpts.Count = 2
	require.NoError(t, RunPublisher(ctx, pubOpts, quietLogger()))

	require.NoError(t, <-subDone)
	assert.Equal(t,
		"test/topic: test message #0 from user\ntest/topic: test message #1 from user\n",
		out.String())
}

func TestConnectRefused(t *testing.T) {
	_, host, port := startBroker(t)

	err := RunPublisher(context.Background(), Options{
		Host:     host,
		Port:     port,
		Username: "user",
		Password: "wrong",
		Topic:    "t",
		Interval: time.Millisecond,
		Count:    1,
	}, quietLogger())
	assert.Error(t, err)
}

func TestLookupPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":[{"username":"test","password":"test123","permissions":["read"]}]}`), 0o600))

	pw, err := lookupPassword(path, "test")
	require.NoError(t, err)
	assert.Equal(t, "test123", pw)

	_, err = lookupPassword(path, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = lookupPassword(filepath.Join(t.TempDir(), "missing.json"), "test")
	assert.Error(t, err)
}
