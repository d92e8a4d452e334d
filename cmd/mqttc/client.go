package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/bromq-dev/minibroker/pkg/config"
)

const connectTimeout = 10 * time.Second

var ErrUserNotFound = errors.New("user not found")

// Options configures the driver client.
type Options struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	Topic    string
	Message  string
	Interval time.Duration
	Count    int
}

func (o Options) brokerURL() string {
	return "tcp://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func lookupPassword(path, username string) (string, error) {
	users, err := config.LoadUsers(path)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.Username == username {
			return u.Password, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUserNotFound, username)
}

func connect(opts Options, prefix string, logger *slog.Logger) (mqtt.Client, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = prefix + "-" + uuid.NewString()[:8]
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.brokerURL()).
		SetClientID(clientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("connection lost", "error", err)
		})

	logger.Info("connecting", "broker", opts.brokerURL(), "client_id", clientID, "username", opts.Username)
	c := mqtt.NewClient(co)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", opts.brokerURL())
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.brokerURL(), err)
	}
	logger.Info("connected")
	return c, nil
}

// RunPublisher publishes a message every interval until ctx ends or Count
// messages have been sent.
func RunPublisher(ctx context.Context, opts Options, logger *slog.Logger) error {
	c, err := connect(opts, "pub", logger)
	if err != nil {
		return err
	}
	defer c.Disconnect(250)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for n := 0; opts.Count == 0 || n < opts.Count; n++ {
		msg := opts.Message
		if msg == "" {
			msg = fmt.Sprintf("test message #%d from %s", n, opts.Username)
		}
		tok := c.Publish(opts.Topic, 0, false, msg)
		tok.Wait()
		if err := tok.Error(); err != nil {
			logger.Warn("publish failed", "topic", opts.Topic, "error", err)
		} else {
			logger.Info("published", "topic", opts.Topic, "message", msg)
		}

		if opts.Count != 0 && n+1 == opts.Count {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// RunSubscriber prints "topic: message" lines to out until ctx ends or Count
// messages have been received.
func RunSubscriber(ctx context.Context, opts Options, out io.Writer, logger *slog.Logger) error {
	c, err := connect(opts, "sub", logger)
	if err != nil {
		return err
	}
	defer c.Disconnect(250)

	received := make(chan mqtt.Message, 64)
	tok := c.Subscribe(opts.Topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case received <- m:
		default:
			logger.Warn("dropping message, output is behind", "topic", m.Topic())
		}
	})
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe %s: timed out", opts.Topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", opts.Topic, err)
	}
	if st, ok := tok.(*mqtt.SubscribeToken); ok {
		if code := st.Result()[opts.Topic]; code == 0x80 {
			return fmt.Errorf("subscribe %s: refused by broker", opts.Topic)
		}
	}
	logger.Info("subscribed", "filter", opts.Topic)

	for n := 0; opts.Count == 0 || n < opts.Count; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-received:
			fmt.Fprintf(out, "%s: %s\n", m.Topic(), m.Payload())
		}
	}
	return nil
}
