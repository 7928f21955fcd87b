// Command framelink-log views framelink protocol log files.
//
// Log files are created by configuring a FileLogger (for example via the
// -protocol-log flag of framelink-echo). Events are stored as CBOR; this
// tool renders them in human-readable form and can filter by connection
// or direction.
//
// Usage:
//
//	framelink-log [flags] <file>
//
// Flags:
//
//	-conn-id string    Only show events for this connection ID
//	-direction string  Only show events in one direction: in, out
//	-frames            Only show frame events
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	flog "github.com/framelink-protocol/framelink-go/pkg/log"
)

var (
	connID    = flag.String("conn-id", "", "Only show events for this connection ID")
	direction = flag.String("direction", "", "Only show events in one direction: in, out")
	frames    = flag.Bool("frames", false, "Only show frame events")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: framelink-log [flags] <file>")
		os.Exit(2)
	}

	filter := flog.Filter{ConnectionID: *connID}
	switch *direction {
	case "":
	case "in":
		d := flog.DirectionIn
		filter.Direction = &d
	case "out":
		d := flog.DirectionOut
		filter.Direction = &d
	default:
		log.Fatalf("unknown direction %q", *direction)
	}
	if *frames {
		c := flog.CategoryFrame
		filter.Category = &c
	}

	r, err := flog.NewFilteredReader(flag.Arg(0), filter)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("read event: %v", err)
		}
		printEvent(ev)
	}
}

func printEvent(ev flog.Event) {
	ts := ev.Timestamp.Format("15:04:05.000000")
	prefix := fmt.Sprintf("%s %-8s %-3s %-5s", ts, short(ev.ConnectionID), ev.Direction, ev.Category)

	switch {
	case ev.Frame != nil:
		fmt.Printf("%s size=%d", prefix, ev.Frame.Size)
		if ev.Frame.Truncated {
			fmt.Print(" (truncated)")
		}
		fmt.Println()
	case ev.StateChange != nil:
		if ev.StateChange.OldState != "" {
			fmt.Printf("%s %s -> %s\n", prefix, ev.StateChange.OldState, ev.StateChange.NewState)
		} else {
			fmt.Printf("%s -> %s\n", prefix, ev.StateChange.NewState)
		}
	case ev.Error != nil:
		fmt.Printf("%s %s\n", prefix, ev.Error.Message)
	default:
		fmt.Println(prefix)
	}
}

func short(connID string) string {
	if len(connID) > 8 {
		return connID[:8]
	}
	return connID
}
