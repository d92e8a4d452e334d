// Command mqttc publishes test messages to, or prints messages from, an MQTT broker.
//
// Usage:
//
//	mqttc sub -u test -t sensors/temp
//	mqttc pub -u user -p password -t control/lights -interval 1s -n 10
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
)

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), "usage: mqttc pub|sub [options]\n\noptions:\n")
		fs.PrintDefaults()
	}
}

func main() {
	if len(os.Args) < 2 || (os.Args[1] != "pub" && os.Args[1] != "sub") {
		fmt.Fprintln(os.Stderr, "usage: mqttc pub|sub [options] (mqttc pub -help for options)")
		os.Exit(2)
	}
	mode := os.Args[1]

	fs := flag.NewFlagSet("mqttc "+mode, flag.ExitOnError)
	fs.Usage = usage(fs)

	var opts Options
	fs.StringVar(&opts.Username, "u", "user", "Username")
	fs.StringVar(&opts.Password, "p", "", "Password (looked up in -users when empty)")
	fs.StringVar(&opts.Topic, "t", "test/topic", "Topic to publish to, or filter to subscribe to")
	fs.StringVar(&opts.Host, "h", "localhost", "Broker host")
	fs.IntVar(&opts.Port, "port", 1883, "Broker port")
	fs.StringVar(&opts.ClientID, "i", "", "Client id (generated when empty)")
	fs.StringVar(&opts.Message, "m", "", "Fixed message body (default: numbered test message)")
	fs.DurationVar(&opts.Interval, "interval", 5*time.Second, "Publish interval")
	fs.IntVar(&opts.Count, "n", 0, "Messages to publish or receive before exiting (0 = forever)")
	usersFile := fs.String("users", "users.json", "User store used to look up -p")
	_ = fs.Parse(os.Args[2:])

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.TimeOnly}))

	if opts.Password == "" {
		if pw, err := lookupPassword(*usersFile, opts.Username); err == nil {
			opts.Password = pw
		} else {
			logger.Warn("no password given", "username", opts.Username, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case "pub":
		err = RunPublisher(ctx, opts, logger)
	case "sub":
		err = RunSubscriber(ctx, opts, os.Stdout, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mqttc failed", "error", err)
		os.Exit(1)
	}
}
