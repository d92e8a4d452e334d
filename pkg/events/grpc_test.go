package events

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func startObserver(t *testing.T, bus *Bus) ObserverClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	RegisterObserverServer(s, NewBusObserver(bus))
	go func() {
		if err := s.Serve(lis); err != nil {
			t.Logf("observer server stopped: %v", err)
		}
	}()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewObserverClient(conn)
}

func TestObserverWatch(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()
	client := startObserver(t, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Watch(ctx, &WatchRequest{Kinds: []Kind{MessagePublished}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bus.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	bus.Emit(Event{Kind: ClientConnected, ClientID: "skipped"})
	bus.Emit(Event{Kind: MessagePublished, ClientID: "pub", Topic: "sensors/room1/temp", Payload: "21.5", Deliveries: 1})

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, MessagePublished, ev.Kind)
	assert.Equal(t, "sensors/room1/temp", ev.Topic)
	assert.Equal(t, "21.5", ev.Payload)
	assert.Equal(t, 1, ev.Deliveries)
}

func TestObserverWatchEndsWithClient(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()
	client := startObserver(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.Watch(ctx, &WatchRequest{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bus.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return bus.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
