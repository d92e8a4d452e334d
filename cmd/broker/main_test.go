package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/minibroker/pkg/config"
	"github.com/bromq-dev/minibroker/pkg/packet"
)

func TestDefaultsServeMoreClientsThanBacklog(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Host = "127.0.0.1"
	cfg.Broker.Port = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b := newBroker(cfg, config.DefaultUsers(), logger)
	tcp := newTCPListener(cfg, logger)
	require.NoError(t, tcp.Listen())
	require.NoError(t, b.AddListener(tcp))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})

	n := cfg.Broker.MaxConnections + 3
	for i := range n {
		conn, err := net.Dial("tcp", tcp.Addr().String())
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		_, err = conn.Write(packet.Marshal(&packet.Connect{
			ProtocolName:  "MQTT",
			ProtocolLevel: packet.Level311,
			CleanSession:  true,
			ClientID:      "client-" + string(rune('a'+i)),
			UsernameFlag:  true,
			Username:      "user",
			PasswordFlag:  true,
			Password:      "password",
		}))
		require.NoError(t, err)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		pkt, err := packet.NewReader(conn, 0).ReadPacket()
		require.NoError(t, err, "client %d got no CONNACK", i)
		ack, ok := pkt.(*packet.Connack)
		require.True(t, ok)
		assert.Equal(t, packet.ConnAccepted, ack.ReturnCode)
	}

	assert.Equal(t, n, b.Stats().Clients)
}
