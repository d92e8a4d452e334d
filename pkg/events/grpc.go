package events

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used by the observer service.
const CodecName = "msgpack"

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

const watchMethod = "/minibroker.events.Observer/Watch"

// WatchRequest selects the kinds to stream. Empty means all.
type WatchRequest struct {
	Kinds []Kind `msgpack:"kinds"`
}

// ObserverServer is the server API for the Observer service.
type ObserverServer interface {
	Watch(*WatchRequest, Observer_WatchServer) error
}

// Observer_WatchServer is the server side of a Watch stream.
type Observer_WatchServer interface {
	Send(*Event) error
	grpc.ServerStream
}

type observerWatchServer struct {
	grpc.ServerStream
}

func (x *observerWatchServer) Send(ev *Event) error {
	return x.ServerStream.SendMsg(ev)
}

// RegisterObserverServer registers srv on s.
func RegisterObserverServer(s *grpc.Server, srv ObserverServer) {
	s.RegisterService(&_Observer_serviceDesc, srv)
}

var _Observer_serviceDesc = grpc.ServiceDesc{
	ServiceName: "minibroker.events.Observer",
	HandlerType: (*ObserverServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       _Observer_Watch_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "events.proto",
}

func _Observer_Watch_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ObserverServer).Watch(in, &observerWatchServer{stream})
}

// BusObserver serves Watch streams from a Bus.
type BusObserver struct {
	bus *Bus
}

// NewBusObserver creates an ObserverServer backed by bus.
func NewBusObserver(bus *Bus) *BusObserver {
	return &BusObserver{bus: bus}
}

func (o *BusObserver) Watch(req *WatchRequest, stream Observer_WatchServer) error {
	ctx := stream.Context()
	sub := o.bus.Subscribe(ctx, req.Kinds...)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := stream.Send(&ev); err != nil {
				return err
			}
		}
	}
}

// ObserverClient is the client API for the Observer service.
type ObserverClient interface {
	Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (Observer_WatchClient, error)
}

// Observer_WatchClient is the client side of a Watch stream.
type Observer_WatchClient interface {
	Recv() (*Event, error)
	grpc.ClientStream
}

type observerClient struct {
	cc grpc.ClientConnInterface
}

// NewObserverClient creates a client. Calls use the msgpack codec.
func NewObserverClient(cc grpc.ClientConnInterface) ObserverClient {
	return &observerClient{cc}
}

func (c *observerClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (Observer_WatchClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &_Observer_serviceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &observerWatchClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type observerWatchClient struct {
	grpc.ClientStream
}

func (x *observerWatchClient) Recv() (*Event, error) {
	m := new(Event)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

var _ ObserverServer = (*BusObserver)(nil)
