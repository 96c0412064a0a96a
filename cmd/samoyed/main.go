// Command samoyed runs a standalone packet-radio station: KISS/AX.25
// transport, connected-mode link layer, APRS digipeater, message retry
// engine and station database, bridged to client applications over
// KISS-TCP and AGWPE.
//
// Grounded in the teacher's cmd/direwolf/main.go: parse flags over a
// config file, initialize each subsystem in dependency order, then run
// until interrupted. The teacher's main is almost entirely cgo audio/DSP
// setup that this station has no equivalent of; what survives is the
// flag-then-config-then-init-then-run shape and the signal handling.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/k1fsy/station-samoyed/internal/kax25"
	"github.com/k1fsy/station-samoyed/internal/kbridge"
	"github.com/k1fsy/station-samoyed/internal/kconfig"
	"github.com/k1fsy/station-samoyed/internal/kdedupe"
	"github.com/k1fsy/station-samoyed/internal/kdigi"
	"github.com/k1fsy/station-samoyed/internal/klink"
	"github.com/k1fsy/station-samoyed/internal/kpipeline"
	"github.com/k1fsy/station-samoyed/internal/kretry"
	"github.com/k1fsy/station-samoyed/internal/kstation"
	"github.com/k1fsy/station-samoyed/internal/ktransport"
)

func main() {
	var configFile = pflag.StringP("config-file", "c", "station.yaml", "Configuration file name.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	cfg := kconfig.Defaults()
	kconfig.BindFlags(pflag.CommandLine, &cfg)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "samoyed - an APRS packet station: KISS/AX.25, digipeater, KISS-TCP/AGWPE bridges.\n")
		fmt.Fprintf(os.Stderr, "\nUsage: samoyed [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	if _, err := os.Stat(*configFile); err == nil {
		loaded, err := kconfig.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "samoyed: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		// Flags take precedence over the file, so re-apply them now
		// that the file's been read into cfg.
		fs := pflag.NewFlagSet("samoyed-overlay", pflag.ContinueOnError)
		kconfig.BindFlags(fs, &cfg)
		fs.Parse(os.Args[1:]) //nolint:errcheck
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           debugToLevel(cfg.DebugLevel),
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal("station exited", "err", err)
	}
}

func debugToLevel(n int) log.Level {
	switch {
	case n >= 2:
		return log.DebugLevel
	case n == 1:
		return log.InfoLevel
	default:
		return log.WarnLevel
	}
}

// station owns every wired collaborator for the lifetime of the
// process. Everything is passed explicitly at construction time per
// spec.md §9's "Cyclic references" guidance: no package-level mutable
// state, no globals.
type station struct {
	cfg    kconfig.Config
	log    *log.Logger
	mycall kax25.Callsign

	transport transportHandle
	link      *klink.Link
	digi      *kdigi.Digipeater
	retry     *kretry.Engine
	dedupe    *kdedupe.Detector
	stations  *kstation.DB
	pipeline  *kpipeline.Pipeline

	kissBridge *kbridge.KISSBridge
	agwServer  *kbridge.AGWServer
	mdns       *kbridge.Advertiser
}

// transportHandle is the narrow surface main needs from whichever
// concrete ktransport type was selected: reading frames (Listen),
// writing them (via kpipeline.Transmitter/klink.Transport) and closing
// cleanly on shutdown.
type transportHandle interface {
	Listen(ctx context.Context) error
	WriteFrame(frame []byte) error
	ChannelBusy() bool
	Close() error
}

func run(cfg kconfig.Config, logger *log.Logger) error {
	mycall, err := kax25.ParseCallsign(cfg.MyCall)
	if err != nil {
		return fmt.Errorf("samoyed: mycall: %w", err)
	}

	st := &station{cfg: cfg, log: logger, mycall: mycall}

	// The pipeline is constructed before the transport since the
	// transport needs pipeline.HandleFrame as its frame callback; its
	// Link/Digipeater/Retry/Transmitter collaborators are wired in once
	// they, and the transport they depend on, exist.
	st.dedupe = kdedupe.New()
	st.stations = kstation.New(logger)
	st.pipeline = kpipeline.New(mycall, st.dedupe, st.stations, logger)

	if cfg.MyLocation != "" {
		if lat, lon, err := kstation.LatLonForGrid(cfg.MyLocation); err != nil {
			logger.Warn("mylocation ignored", "err", err)
		} else {
			st.stations.SetHome(lat, lon)
		}
	}
	for call, level := range cfg.DebugStationFilters {
		st.stations.SetDebugLevelFor(call, level)
	}

	if err := st.openTransport(); err != nil {
		return fmt.Errorf("samoyed: transport: %w", err)
	}
	defer st.transport.Close()

	st.digi = kdigi.New(mycall, cfg.MyAlias, cfg.DigipeatMode(), st.stations, logger)

	if cfg.AutoAck {
		st.retry = kretry.New(st, cfg.RetryFast, cfg.RetrySlow, cfg.RetryMax, nil, logger)
	}

	// Connected-mode is always available; a peer only uses it by sending
	// SABM, which costs nothing to accept when idle.
	st.link = klink.NewLink(mycall, st.transport, st.deliverConnectedData, st.deliverRemoteDisconnect, logger, klink.Timing{})

	st.pipeline.Link = st.link
	st.pipeline.Digipeater = st.digi
	st.pipeline.Retry = st.retry
	st.pipeline.Transmitter = st.transport

	if err := st.openBridges(); err != nil {
		return fmt.Errorf("samoyed: bridges: %w", err)
	}
	defer st.closeBridges()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return st.serve(ctx)
}

// openTransport selects and opens the one configured C1 transport.
func (st *station) openTransport() error {
	tc := st.cfg.Transport
	switch tc.Kind {
	case "tcp":
		t, err := ktransport.DialTCP(tc.TCPAddr, 0, st.pipeline.HandleFrame, st.log)
		if err != nil {
			return err
		}
		st.transport = t
	case "pty":
		t, err := ktransport.OpenPTY(0, st.pipeline.HandleFrame, st.log)
		if err != nil {
			return err
		}
		st.transport = t
	default:
		t, err := ktransport.OpenSerial(tc.SerialDevice, tc.SerialBaud, 0, st.pipeline.HandleFrame, st.log)
		if err != nil {
			return err
		}
		t.EnableDCDBusySignal()
		st.transport = t
	}
	return nil
}

// deliverConnectedData is the klink.Link delivery callback: connected-
// mode I-frame payloads are handed to bridge clients the same way UI
// frames are, via DeliverConnectedData on the AGWPE server.
func (st *station) deliverConnectedData(info []byte) {
	if st.agwServer == nil {
		return
	}
	peer, ok := st.link.Peer()
	if !ok {
		return
	}
	st.agwServer.DeliverConnectedData(peer.String(), info)
}

// deliverRemoteDisconnect is the klink.Link disconnect callback: a
// remote-initiated DISC or DM is forwarded to the owning AGWPE client as
// a 'd' frame so it stops treating the connection as live.
func (st *station) deliverRemoteDisconnect(peer string) {
	if st.agwServer == nil {
		return
	}
	st.agwServer.DeliverRemoteDisconnect(peer)
}

// SendMessage implements kretry.Sender: outbound APRS messages are sent
// as UI frames addressed to APRS's "APRS" destination via the
// digipeater's own callsign as source, through the transport directly
// (retried messages don't go through the RX pipeline).
func (st *station) SendMessage(toCall, text string) error {
	dest, err := kax25.ParseCallsign("APRS")
	if err != nil {
		return err
	}
	msg := fmt.Sprintf(":%-9s:%s", toCall, text)
	f := kax25.Frame{
		Addrs:   kax25.ParsedAddresses{Destination: dest, Source: st.mycall},
		Control: kax25.Control{Class: kax25.ClassU, UType: kax25.UI},
		PID:     kax25.NoL3PID,
		Info:    []byte(msg),
	}
	return st.transport.WriteFrame(f.Encode())
}

func (st *station) openBridges() error {
	var err error
	st.kissBridge, err = kbridge.ListenKISSBridge(st.cfg.Bridges.KISSAddr, st.transport, st.log)
	if err != nil {
		return err
	}
	st.pipeline.RegisterSink(st.kissBridge)

	var linkIface kbridge.Link
	if st.link != nil {
		linkIface = kbridge.LinkAdapter{Link: st.link}
	}
	st.agwServer, err = kbridge.ListenAGWServer(st.cfg.Bridges.AGWAddr, st.mycall.String(), st.transport, linkIface, st.log)
	if err != nil {
		return err
	}
	st.pipeline.RegisterSink(st.agwServer)

	if st.cfg.Bridges.Advertise {
		kissPort, kErr := portOf(st.cfg.Bridges.KISSAddr)
		agwPort, aErr := portOf(st.cfg.Bridges.AGWAddr)
		if kErr != nil || aErr != nil {
			st.log.Warn("mdns advertisement unavailable", "err", fmt.Errorf("%v / %v", kErr, aErr))
		} else if adv, err := kbridge.NewAdvertiser(context.Background(), st.mycall.String(), kissPort, agwPort, st.log); err != nil {
			st.log.Warn("mdns advertisement unavailable", "err", err)
		} else {
			st.mdns = adv
		}
	}
	return nil
}

// portOf extracts the numeric port from a "host:port" listen address.
func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0, fmt.Errorf("samoyed: invalid port in %q: %w", addr, err)
	}
	return port, nil
}

func (st *station) closeBridges() {
	if st.kissBridge != nil {
		st.kissBridge.Close()
	}
	if st.agwServer != nil {
		st.agwServer.Close()
	}
}

// serve launches every long-lived worker and blocks until ctx is
// cancelled (SIGINT/SIGTERM), then waits briefly for shutdown.
func (st *station) serve(ctx context.Context) error {
	errCh := make(chan error, 4)

	go func() { errCh <- st.transport.Listen(ctx) }()
	if st.link != nil {
		go st.link.Run(ctx)
	}
	if st.retry != nil {
		go st.retry.Run(ctx)
	}
	go func() { errCh <- st.kissBridge.Serve(ctx) }()
	go func() { errCh <- st.agwServer.Serve(ctx) }()

	<-ctx.Done()
	st.log.Info("shutting down")

	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
	case <-time.After(2 * time.Second):
	}
	return nil
}
