package broker

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/packet"
)

const quiet = 150 * time.Millisecond

func TestPublishReachesWildcardSubscriber(t *testing.T) {
	_, addr := startBroker(t, false)

	a := dial(t, addr)
	require.Equal(t, packet.ConnAccepted, a.connect("A", "user", "password"))
	assert.Equal(t, []byte{packet.SubackGranted}, a.subscribe(1, "sensors/+/temp"))

	b := dial(t, addr)
	require.Equal(t, packet.ConnAccepted, b.connect("B", "user", "password"))
	b.subscribe(1, "sensors/#")

	b.publish("sensors/room1/temp", "21.5")

	p := a.expectPublish()
	assert.Equal(t, "sensors/room1/temp", p.TopicName)
	assert.Equal(t, []byte("21.5"), p.Payload)
	assert.Equal(t, packet.QoS0, p.QoS)

	a.expectNothing(quiet)
	b.expectNothing(quiet)
}

func TestConnectRefusedBadCredentials(t *testing.T) {
	h := &recordingHook{}
	b, addr := startBroker(t, false, h)

	c := dial(t, addr)
	assert.Equal(t, packet.ConnRefusedNotAuthorized, c.connect("A", "user", "wrong"))
	c.expectClosed()

	c = dial(t, addr)
	assert.Equal(t, packet.ConnRefusedNotAuthorized, c.connect("A", "", ""))
	c.expectClosed()

	assert.Zero(t, b.Stats().Clients)
	assert.Equal(t, []string{"rejected:A", "rejected:A"}, h.snapshot())
}

func TestAnonymousAcceptsAnyCredentials(t *testing.T) {
	_, addr := startBroker(t, true)

	c := dial(t, addr)
	assert.Equal(t, packet.ConnAccepted, c.connect("A", "", ""))
	assert.Equal(t, []byte{0}, c.subscribe(1, "a"))

	d := dial(t, addr)
	assert.Equal(t, packet.ConnAccepted, d.connect("B", "ghost", "nope"))
	d.publish("a", "hi")
	assert.Equal(t, "a", c.expectPublish().TopicName)
}

func TestPublishWithoutWritePermissionIsDropped(t *testing.T) {
	h := &recordingHook{}
	_, addr := startBroker(t, false, h)

	sub := dial(t, addr)
	sub.connect("S", "user", "password")
	sub.subscribe(1, "#")

	r := dial(t, addr)
	require.Equal(t, packet.ConnAccepted, r.connect("R", "reader", "r"))
	r.publish("news", "blocked")

	sub.expectNothing(quiet)

	// The session stays open.
	assert.Equal(t, []byte{0}, r.subscribe(2, "news"))
	assert.Contains(t, h.snapshot(), "denied:write:news")
}

func TestSubscribeWithoutReadPermissionFailsEveryFilter(t *testing.T) {
	b, addr := startBroker(t, false)

	w := dial(t, addr)
	require.Equal(t, packet.ConnAccepted, w.connect("W", "writer", "w"))

	codes := w.subscribe(5, "a", "b/+", "c/#")
	assert.Equal(t, []byte{0x80, 0x80, 0x80}, codes)
	assert.Zero(t, b.Stats().Subscriptions)
}

func TestSubscriberWithoutReadPermissionGetsNothing(t *testing.T) {
	b, addr := startBroker(t, false)

	w := dial(t, addr)
	w.connect("W", "writer", "w")
	// Registered directly since SUBSCRIBE would be refused.
	b.subscriptions.Subscribe("W", "t")

	u := dial(t, addr)
	u.connect("U", "user", "password")
	assert.Zero(t, b.Publish("U", "t", []byte("x")))
	w.expectNothing(quiet)
}

func TestOverlappingFiltersDeliverOncePerFilter(t *testing.T) {
	h := &recordingHook{}
	_, addr := startBroker(t, false, h)

	a := dial(t, addr)
	a.connect("A", "user", "password")
	assert.Equal(t, []byte{0, 0}, a.subscribe(1, "a/+", "a/#"))

	b := dial(t, addr)
	b.connect("B", "user", "password")
	b.publish("a/b", "m")

	a.expectPublish()
	a.expectPublish()
	a.expectNothing(quiet)

	require.Eventually(t, func() bool { return len(h.deliveries()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{2}, h.deliveries())
}

func TestInvalidFilterIsRefused(t *testing.T) {
	_, addr := startBroker(t, false)

	c := dial(t, addr)
	c.connect("A", "user", "password")
	assert.Equal(t, []byte{0x00, 0x80, 0x80}, c.subscribe(1, "ok/+", "bad/#/x", ""))
}

func TestResubscribeKeepsSingleEntry(t *testing.T) {
	b, addr := startBroker(t, false)

	a := dial(t, addr)
	a.connect("A", "user", "password")
	a.subscribe(1, "t")
	a.subscribe(2, "t")

	assert.Equal(t, []string{"A"}, b.subscriptions.Subscribers("t"))

	p := dial(t, addr)
	p.connect("P", "user", "password")
	p.publish("t", "once")
	a.expectPublish()
	a.expectNothing(quiet)
}

func TestPacketsBeforeConnectAreIgnored(t *testing.T) {
	b, addr := startBroker(t, false)

	c := dial(t, addr)
	c.publish("t", "early")
	c.write(packet.Marshal(&packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: "t"}}}))
	c.expectNothing(quiet)

	assert.Zero(t, b.Stats().Subscriptions)
	assert.Equal(t, packet.ConnAccepted, c.connect("C", "user", "password"))
}

func TestUnknownPacketTypeIsConsumed(t *testing.T) {
	_, addr := startBroker(t, false)

	c := dial(t, addr)
	c.connect("C", "user", "password")
	c.write([]byte{0xC0, 0x00})                // PINGREQ
	c.write([]byte{0xA2, 0x04, 0, 1, 'x', 'y'}) // UNSUBSCRIBE with a body
	c.expectNothing(quiet)

	assert.Equal(t, []byte{0}, c.subscribe(3, "still/open"))
}

func TestDisconnectTearsDownSession(t *testing.T) {
	h := &recordingHook{}
	b, addr := startBroker(t, false, h)

	c := dial(t, addr)
	c.connect("C", "user", "password")
	c.subscribe(1, "a", "b/#")
	require.Equal(t, 1, b.Stats().Clients)

	c.write(packet.Marshal(&packet.Disconnect{}))
	c.expectClosed()

	require.Eventually(t, func() bool { return b.clients.Get("C") == nil }, time.Second, 10*time.Millisecond)
	for filter, ids := range b.Subscriptions() {
		assert.NotContains(t, ids, "C", filter)
	}
	require.Eventually(t, func() bool {
		ev := h.snapshot()
		return len(ev) > 0 && ev[len(ev)-1] == "disconnected:C"
	}, time.Second, 10*time.Millisecond)
}

func TestSocketCloseTearsDownSession(t *testing.T) {
	b, addr := startBroker(t, false)

	c := dial(t, addr)
	c.connect("C", "user", "password")
	c.subscribe(1, "a")
	c.conn.Close()

	require.Eventually(t, func() bool {
		return b.Stats().Clients == 0 && b.Stats().Subscriptions == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMalformedRemainingLengthClosesConnection(t *testing.T) {
	h := &recordingHook{}
	b, addr := startBroker(t, false, h)

	c := dial(t, addr)
	c.connect("C", "user", "password")
	c.write([]byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF})
	c.expectClosed()

	require.Eventually(t, func() bool { return b.Stats().Clients == 0 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		ev := h.snapshot()
		return len(ev) > 0 && ev[len(ev)-1] == "disconnected:C:error"
	}, time.Second, 10*time.Millisecond)
}

func TestMalformedConnectClosesWithoutResponse(t *testing.T) {
	_, addr := startBroker(t, false)

	c := dial(t, addr)
	c.write([]byte{0x10, 0x03, 0x00, 0x04, 'M'})
	c.expectClosed()
}

func TestSecondConnectClosesSession(t *testing.T) {
	_, addr := startBroker(t, false)

	c := dial(t, addr)
	c.connect("C", "user", "password")
	c.write(packet.Marshal(c.connectPacket("C", "user", "password")))
	c.expectClosed()
}

func TestDuplicateClientIDTakesOver(t *testing.T) {
	b, addr := startBroker(t, false)

	old := dial(t, addr)
	old.connect("dup", "user", "password")
	old.subscribe(1, "old/topic")

	fresh := dial(t, addr)
	require.Equal(t, packet.ConnAccepted, fresh.connect("dup", "user", "password"))
	old.expectClosed()

	assert.Equal(t, 1, b.Stats().Clients)
	assert.Empty(t, b.subscriptions.Subscribers("old/topic"))

	fresh.subscribe(2, "new/topic")
	p := dial(t, addr)
	p.connect("P", "user", "password")
	p.publish("new/topic", "hello")
	assert.Equal(t, []byte("hello"), fresh.expectPublish().Payload)

	// The superseded session's teardown leaves the new registration alone.
	fresh.expectNothing(quiet)
	assert.Equal(t, []string{"dup"}, b.subscriptions.Subscribers("new/topic"))
	assert.NotNil(t, b.clients.Get("dup"))
}

func TestEmptyClientID(t *testing.T) {
	b, addr := startBroker(t, false)

	c := dial(t, addr)
	assert.Equal(t, packet.ConnAccepted, c.connect("", "user", "password"))
	clients := b.Clients()
	require.Len(t, clients, 1)
	assert.True(t, strings.HasPrefix(clients[0].ClientID, "auto-"))

	d := dial(t, addr)
	pkt := d.connectPacket("", "user", "password")
	pkt.CleanSession = false
	d.write(packet.Marshal(pkt))
	ack := d.expect(time.Second).(*packet.Connack)
	assert.Equal(t, packet.ConnRefusedIdentifier, ack.ReturnCode)
	d.expectClosed()
}

func TestUnsupportedProtocolLevel(t *testing.T) {
	_, addr := startBroker(t, true)

	c := dial(t, addr)
	pkt := c.connectPacket("A", "", "")
	pkt.ProtocolLevel = 5
	c.write(packet.Marshal(pkt))
	ack := c.expect(time.Second).(*packet.Connack)
	assert.Equal(t, packet.ConnRefusedProtocolVersion, ack.ReturnCode)
	c.expectClosed()
}

func TestHooksSeeLifecycle(t *testing.T) {
	h := &recordingHook{}
	_, addr := startBroker(t, false, h)

	c := dial(t, addr)
	c.connect("C", "user", "password")
	c.subscribe(1, "t")
	c.publish("t", "self")
	c.write(packet.Marshal(&packet.Disconnect{}))
	c.expectClosed()

	require.Eventually(t, func() bool { return len(h.snapshot()) == 4 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"connected:C", "subscribed:t", "published:t", "disconnected:C"}, h.snapshot())
	// Self-exclusion: the publisher's own subscription is skipped.
	assert.Equal(t, []int{0}, h.deliveries())
}

func TestClientsSnapshot(t *testing.T) {
	b, addr := startBroker(t, false)

	c := dial(t, addr)
	c.connect("C", "user", "password")

	clients := b.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, "C", clients[0].ClientID)
	assert.Equal(t, "user", clients[0].Username)
	assert.Equal(t, c.conn.LocalAddr().String(), clients[0].RemoteAddr)
	assert.False(t, clients[0].ConnectedAt.IsZero())
	assert.False(t, clients[0].LastActivity.Before(clients[0].ConnectedAt.Add(-time.Second)))
}

func TestShutdownClosesSessions(t *testing.T) {
	b, addr := startBroker(t, false)

	c := dial(t, addr)
	c.connect("C", "user", "password")
	idle := dial(t, addr) // never sends CONNECT

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))

	c.expectClosed()
	idle.expectClosed()
	assert.ErrorIs(t, b.AddListener(nil), ErrBrokerClosed)
}

func TestDeliverToFullQueue(t *testing.T) {
	b := New(&Config{OutboundBuffer: 1}, WithLogger(discardLogger()))
	s := newSession(nil, b)

	require.NoError(t, s.deliver([]byte{1}))
	err := s.deliver([]byte{2})
	assert.ErrorIs(t, err, ErrQueueFull)

	s.closeOutbound()
	assert.ErrorIs(t, s.deliver([]byte{3}), ErrSessionClosed)
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(ErrPermissionDenied))
	assert.False(t, IsFatal(&DeliveryError{ClientID: "a", Err: ErrQueueFull}))
	assert.True(t, IsFatal(&ConnectError{Code: packet.ConnRefusedNotAuthorized}))
	assert.True(t, IsFatal(&packet.ProtocolError{Op: "read", Err: packet.ErrMalformedRemainingLength}))
	assert.ErrorIs(t, &ConnectError{Code: packet.ConnRefusedNotAuthorized}, ErrNotAuthorized)
}

func TestReplacedSessionCannotActOnClientID(t *testing.T) {
	b := New(nil, WithAuthorizer(auth.New(testUsers, false)), WithLogger(discardLogger()))

	connect := func() *Session {
		conn, peer := net.Pipe()
		t.Cleanup(func() {
			conn.Close()
			peer.Close()
		})
		s := newSession(conn, b)
		require.NoError(t, b.handleConnect(s, &packet.Connect{
			ProtocolName:  "MQTT",
			ProtocolLevel: packet.Level311,
			CleanSession:  true,
			ClientID:      "dup",
			UsernameFlag:  true,
			Username:      "user",
			PasswordFlag:  true,
			Password:      "password",
		}))
		return s
	}
	subscribe := func(filter string) *packet.Subscribe {
		return &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: filter}}}
	}

	old := connect()
	fresh := connect()
	assert.Equal(t, stateReplaced, old.getState())

	// A SUBSCRIBE the old connection had already buffered.
	assert.ErrorIs(t, b.handlePacket(old, subscribe("stale/#")), ErrSessionReplaced)
	// The same SUBSCRIBE past the state check when the takeover landed.
	assert.ErrorIs(t, b.handleSubscribe(old, subscribe("stale/#")), ErrSessionReplaced)
	assert.ErrorIs(t, b.handlePublish(old, &packet.Publish{TopicName: "t", Payload: []byte("x")}), ErrSessionReplaced)
	assert.Empty(t, b.subscriptions.Subscribers("stale/#"))

	require.NoError(t, b.handleSubscribe(fresh, subscribe("new/#")))
	b.teardown(old, nil)

	assert.Same(t, fresh, b.clients.Get("dup"))
	assert.Equal(t, []string{"dup"}, b.subscriptions.Subscribers("new/#"))
}

func TestMaxClientsRefusesNewClientIDs(t *testing.T) {
	h := &recordingHook{}
	b, addr := startBrokerWith(t, &Config{MaxClients: 2}, false, h)

	a := dial(t, addr)
	require.Equal(t, packet.ConnAccepted, a.connect("A", "user", "password"))
	c := dial(t, addr)
	require.Equal(t, packet.ConnAccepted, c.connect("B", "user", "password"))

	full := dial(t, addr)
	assert.Equal(t, packet.ConnRefusedServerUnavailable, full.connect("C", "user", "password"))
	full.expectClosed()

	// Taking over a registered id does not need a free slot.
	again := dial(t, addr)
	assert.Equal(t, packet.ConnAccepted, again.connect("A", "user", "password"))
	a.expectClosed()

	assert.Equal(t, 2, b.Stats().Clients)
	assert.Contains(t, h.snapshot(), "rejected:C")
	assert.ErrorIs(t, &ConnectError{Code: packet.ConnRefusedServerUnavailable}, ErrClientLimit)
}

func TestOversizedPacketClosesConnection(t *testing.T) {
	_, addr := startBroker(t, false)

	c := dial(t, addr)
	c.write([]byte{0x10, 0xFF, 0xFF, 0xFF, 0x7F})
	c.expectClosed()

	d := dial(t, addr)
	assert.Equal(t, packet.ConnAccepted, d.connect("D", "user", "password"))
}

func TestAbandonedPacketBodyEndsSession(t *testing.T) {
	b, addr := startBrokerWith(t, &Config{MaxPacketSize: packet.MaxRemainingLength}, false)

	live := func() int {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.live)
	}

	c := dial(t, addr)
	c.write([]byte{0x10, 0xFF, 0xFF, 0xFF, 0x7F})
	require.Eventually(t, func() bool { return live() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return live() == 0 }, 2*time.Second, 10*time.Millisecond)
}
