package broker

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/listeners"
	"github.com/bromq-dev/minibroker/pkg/packet"
)

var testUsers = []auth.User{
	{Username: "user", Password: "password", Permissions: []auth.Permission{auth.Read, auth.Write}},
	{Username: "reader", Password: "r", Permissions: []auth.Permission{auth.Read}},
	{Username: "writer", Password: "w", Permissions: []auth.Permission{auth.Write}},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startBroker runs a broker on a loopback TCP listener and returns its address.
func startBroker(t *testing.T, allowAnonymous bool, hooks ...Hook) (*Broker, string) {
	t.Helper()
	return startBrokerWith(t, nil, allowAnonymous, hooks...)
}

func startBrokerWith(t *testing.T, cfg *Config, allowAnonymous bool, hooks ...Hook) (*Broker, string) {
	t.Helper()

	b := New(cfg,
		WithAuthorizer(auth.New(testUsers, allowAnonymous)),
		WithLogger(discardLogger()),
	)
	for _, h := range hooks {
		b.RegisterHook(h)
	}

	l := listeners.NewTCP("test", "127.0.0.1:0", nil)
	require.NoError(t, l.Listen())
	require.NoError(t, b.AddListener(l))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})
	return b, l.Addr().String()
}

// rawClient speaks the wire protocol directly.
type rawClient struct {
	t    *testing.T
	conn net.Conn
	r    *packet.Reader
}

func dial(t *testing.T, addr string) *rawClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawClient{t: t, conn: conn, r: packet.NewReader(conn, 0)}
}

func (c *rawClient) write(data []byte) {
	c.t.Helper()
	_, err := c.conn.Write(data)
	require.NoError(c.t, err)
}

func (c *rawClient) read(timeout time.Duration) (packet.Packet, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})
	return c.r.ReadPacket()
}

func (c *rawClient) expect(timeout time.Duration) packet.Packet {
	c.t.Helper()
	pkt, err := c.read(timeout)
	require.NoError(c.t, err)
	return pkt
}

// expectNothing asserts no packet arrives within d.
func (c *rawClient) expectNothing(d time.Duration) {
	c.t.Helper()
	pkt, err := c.read(d)
	if err == nil {
		c.t.Fatalf("unexpected %s packet", pkt.Type())
	}
	var ne net.Error
	require.ErrorAs(c.t, err, &ne)
	require.True(c.t, ne.Timeout(), "expected timeout, got %v", err)
}

// expectClosed asserts the broker closes the connection.
func (c *rawClient) expectClosed() {
	c.t.Helper()
	_, err := c.read(2 * time.Second)
	require.ErrorIs(c.t, err, io.EOF)
}

func (c *rawClient) connectPacket(clientID, username, password string) *packet.Connect {
	return &packet.Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: packet.Level311,
		CleanSession:  true,
		KeepAlive:     60,
		ClientID:      clientID,
		UsernameFlag:  username != "",
		Username:      username,
		PasswordFlag:  password != "",
		Password:      password,
	}
}

func (c *rawClient) connect(clientID, username, password string) byte {
	c.t.Helper()
	c.write(packet.Marshal(c.connectPacket(clientID, username, password)))
	ack, ok := c.expect(2 * time.Second).(*packet.Connack)
	require.True(c.t, ok, "expected CONNACK")
	return ack.ReturnCode
}

func (c *rawClient) subscribe(id uint16, filters ...string) []byte {
	c.t.Helper()
	sub := &packet.Subscribe{PacketID: id}
	for _, f := range filters {
		sub.Subscriptions = append(sub.Subscriptions, packet.Subscription{TopicFilter: f})
	}
	c.write(packet.Marshal(sub))
	ack, ok := c.expect(2 * time.Second).(*packet.Suback)
	require.True(c.t, ok, "expected SUBACK")
	require.Equal(c.t, id, ack.PacketID)
	return ack.ReturnCodes
}

func (c *rawClient) publish(topic, msg string) {
	c.t.Helper()
	c.write(packet.EncodePublish(topic, []byte(msg)))
}

func (c *rawClient) expectPublish() *packet.Publish {
	c.t.Helper()
	p, ok := c.expect(2 * time.Second).(*packet.Publish)
	require.True(c.t, ok, "expected PUBLISH")
	return p
}

// recordingHook records hook calls for assertions.
type recordingHook struct {
	mu        sync.Mutex
	events    []string
	published []int
}

func (h *recordingHook) ID() string { return "recording" }

func (h *recordingHook) add(e string) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recordingHook) OnConnected(_ context.Context, c ClientInfo) {
	h.add("connected:" + c.ClientID())
}

func (h *recordingHook) OnDisconnect(_ context.Context, c ClientInfo, err error) {
	if err != nil {
		h.add("disconnected:" + c.ClientID() + ":error")
		return
	}
	h.add("disconnected:" + c.ClientID())
}

func (h *recordingHook) OnConnectRejected(_ context.Context, c ClientInfo, code byte) {
	h.add("rejected:" + c.ClientID())
}

func (h *recordingHook) OnPermissionDenied(_ context.Context, c ClientInfo, action auth.Permission, topic string) {
	h.add("denied:" + string(action) + ":" + topic)
}

func (h *recordingHook) OnPublished(_ context.Context, c ClientInfo, pkt *packet.Publish, deliveries int) {
	h.mu.Lock()
	h.published = append(h.published, deliveries)
	h.mu.Unlock()
	h.add("published:" + pkt.TopicName)
}

func (h *recordingHook) OnSubscribed(_ context.Context, c ClientInfo, filter string) {
	h.add("subscribed:" + filter)
}

func (h *recordingHook) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHook) deliveries() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.published...)
}
