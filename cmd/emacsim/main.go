// Emacsim runs the EMAC driver against a host model of the DMA engine
// in loopback mode. It sends UDP frames, checks what comes back and
// optionally writes the traffic to a pcap file and exports the driver
// counters to Prometheus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	"github.com/knieriem/tinygo-emac/emac"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file; defaults are used if empty")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	pcapPath := flag.String("pcap", "", "Write the frames put on the wire to this file, overriding the config")
	frames := flag.Int("n", -1, "Number of frames to send, overriding the config")
	printVersion := flag.Bool("version", false, "Print version")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		os.Exit(0)
	}

	c := DefaultConfig()
	if *configPath != "" {
		var err error
		c, err = LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *pcapPath != "" {
		c.Pcap = *pcapPath
	}
	if *frames >= 0 {
		c.Traffic.Frames = *frames
	}

	if *configTest {
		e := yamlEncoder(os.Stdout)
		if err := e.Encode(c); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	level, _ := c.logLevel()
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	emac.SetLogger(l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := Main(ctx, l, c); err != nil {
		l.Error("simulation failed", "err", err)
		os.Exit(1)
	}
}

// Main runs a simulation as described by c. If stats are enabled, it
// keeps serving them after the run until ctx is done.
func Main(ctx context.Context, l *slog.Logger, c *Config) error {
	s, err := newSimulation(c, l)
	if err != nil {
		return err
	}

	if c.Pcap != "" {
		f, err := os.Create(c.Pcap)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := s.capture(f); err != nil {
			return err
		}
	}

	if c.Stats.Listen != "" {
		if err := startStats(ctx, l, c, s.d); err != nil {
			return err
		}
	}

	r, err := s.run(ctx)
	if err != nil {
		return err
	}
	l.Info("done",
		"sent", r.Sent,
		"received", r.Received,
		"lost", r.Lost,
		"mismatched", r.Mismatched,
		"tx_errors", r.Stats.TxErrors,
		"rx_errors", r.Stats.RxErrors)

	if c.Stats.Listen != "" {
		l.Info("serving stats until interrupted")
		<-ctx.Done()
	}
	if r.Mismatched > 0 {
		return fmt.Errorf("%d frames mismatched", r.Mismatched)
	}
	return nil
}
