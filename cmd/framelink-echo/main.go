// Command framelink-echo is a loopback exerciser for the framelink
// transport layer.
//
// In serve mode it accepts connections and echoes every frame back to
// the sender. In dial mode it connects to a server, sends a number of
// frames and verifies the echoes.
//
// Usage:
//
//	framelink-echo -serve :7430
//	framelink-echo -dial localhost:7430 -count 100 -size 1024
//
// Flags:
//
//	-serve string        Address to listen on
//	-dial string         Address to connect to
//	-count int           Number of frames to send in dial mode (default 10)
//	-size int            Payload size per frame in dial mode (default 64)
//	-config string       Path to a YAML transport config file
//	-protocol-log string File path for protocol event logging (CBOR format)
//	-verbose             Log protocol events to the console
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"

	"github.com/framelink-protocol/framelink-go/pkg/frame"
	flog "github.com/framelink-protocol/framelink-go/pkg/log"
	"github.com/framelink-protocol/framelink-go/pkg/transport"
)

var (
	serveAddr   = flag.String("serve", "", "Address to listen on")
	dialAddr    = flag.String("dial", "", "Address to connect to")
	count       = flag.Int("count", 10, "Number of frames to send in dial mode")
	size        = flag.Int("size", 64, "Payload size per frame in dial mode")
	configPath  = flag.String("config", "", "Path to a YAML transport config file")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	verbose     = flag.Bool("verbose", false, "Log protocol events to the console")
)

func main() {
	flag.Parse()

	if (*serveAddr == "") == (*dialAddr == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -serve or -dial is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, cleanup, err := buildConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	defer cleanup()

	if *serveAddr != "" {
		err = serve(cfg)
	} else {
		err = dial(cfg)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func buildConfig() (transport.Config, func(), error) {
	cfg := transport.DefaultConfig()
	if *configPath != "" {
		loaded, err := transport.LoadConfig(*configPath)
		if err != nil {
			return transport.Config{}, nil, err
		}
		cfg = loaded
	}

	var loggers []flog.Logger
	cleanup := func() {}
	if *protocolLog != "" {
		fl, err := flog.NewFileLogger(*protocolLog)
		if err != nil {
			return transport.Config{}, nil, err
		}
		loggers = append(loggers, fl)
		cleanup = func() { _ = fl.Close() }
	}
	if *verbose {
		loggers = append(loggers, flog.NewSlogAdapter(slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}
	switch len(loggers) {
	case 0:
	case 1:
		cfg.Logger = loggers[0]
	default:
		cfg.Logger = flog.NewMultiLogger(loggers...)
	}

	return cfg, cleanup, nil
}

func serve(cfg transport.Config) error {
	cfg.OnHandlerError = func(remote net.Addr, err error) {
		log.Printf("handler error from %s: %v", remote, err)
	}
	srv, err := transport.Listen(*serveAddr, cfg, echoHandler)
	if err != nil {
		return err
	}
	log.Printf("echo server listening on %s", srv.Addr())
	select {} // serve until killed
}

func echoHandler(t *transport.Transport) error {
	log.Printf("connection %s from %s", t.ConnID(), t.RemoteAddr())
	_, _, err := t.Reader().ReadMessages(func(p []byte) frame.Decision {
		if err := t.Writer().Send(append([]byte(nil), p...)); err != nil {
			return frame.Stop(err)
		}
		return frame.Continue()
	}, nil)
	if errors.Is(err, frame.ErrStreamEnded) {
		log.Printf("connection %s closed by peer", t.ConnID())
		return nil
	}
	return err
}

func dial(cfg transport.Config) error {
	t, peer, err := transport.Connect(context.Background(), *dialAddr, cfg)
	if err != nil {
		return err
	}
	defer t.Close()
	log.Printf("connected to %s", peer)

	payload := bytes.Repeat([]byte("e"), *size)
	for i := 0; i < *count; i++ {
		if err := t.Writer().Send(payload); err != nil {
			return fmt.Errorf("send %d: %w", i, err)
		}
		_, echoed, err := t.Reader().ReadMessages(func(p []byte) frame.Decision {
			return frame.Stop(append([]byte(nil), p...))
		}, nil)
		if err != nil {
			return fmt.Errorf("receive %d: %w", i, err)
		}
		if !bytes.Equal(echoed.([]byte), payload) {
			return fmt.Errorf("echo %d mismatch", i)
		}
	}
	log.Printf("echoed %d frames of %d bytes", *count, *size)
	return nil
}
