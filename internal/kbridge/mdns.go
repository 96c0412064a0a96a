package kbridge

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// Advertiser publishes the bridge servers over mDNS so LAN clients (a
// phone app, Xastir) can auto-discover the station, the way the
// teacher's src/dns_sd.go/dns_sd_avahi.go advertise the pseudo-TNC.
type Advertiser struct {
	responder dnssd.Responder
	log       *log.Logger
}

// NewAdvertiser constructs an mDNS responder and registers the KISS-TCP
// (_kiss._tcp) and AGWPE (_agwpe._tcp) services at their listen ports.
func NewAdvertiser(ctx context.Context, host string, kissPort, agwPort int, logger *log.Logger) (*Advertiser, error) {
	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("kbridge: mdns responder: %w", err)
	}

	for _, svc := range []struct {
		name string
		port int
	}{
		{"_kiss._tcp", kissPort},
		{"_agwpe._tcp", agwPort},
	} {
		cfg := dnssd.Config{
			Name: host,
			Type: svc.name,
			Port: svc.port,
		}
		entry, err := dnssd.NewService(cfg)
		if err != nil {
			return nil, fmt.Errorf("kbridge: mdns service %s: %w", svc.name, err)
		}
		if _, err := responder.Add(entry); err != nil {
			return nil, fmt.Errorf("kbridge: mdns register %s: %w", svc.name, err)
		}
	}

	a := &Advertiser{responder: responder, log: logger}
	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil && logger != nil {
			logger.Error("mdns responder stopped", "err", err)
		}
	}()
	return a, nil
}
