// Package discovery advertises and finds pinbridge servers over mDNS/DNS-SD.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_pinbridge._tcp"
	Domain      = "local."

	DefaultScanTimeout = 3 * time.Second
)

// Service is one pinbridge server found on the network.
type Service struct {
	Instance string
	Addr     string
	Backend  string
	Version  string
	TXT      map[string]string
}

// Advertisement describes this server.
type Advertisement struct {
	Instance string
	Port     int
	Backend  string
	Version  string
}

// Advertise registers ad on the local network and blocks until ctx is done.
func Advertise(ctx context.Context, ad Advertisement, logger *slog.Logger) error {
	instance := strings.TrimSpace(ad.Instance)
	if instance == "" {
		return fmt.Errorf("mdns instance name is empty")
	}
	if ad.Port <= 0 || ad.Port > 65535 {
		return fmt.Errorf("mdns port %d out of range", ad.Port)
	}

	server, err := zeroconf.Register(instance, ServiceType, Domain, ad.Port, txtRecords(ad), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	defer server.Shutdown()

	if logger != nil {
		logger.Info("mdns advertising", "instance", instance, "service", ServiceType, "port", ad.Port)
	}
	<-ctx.Done()
	return nil
}

// Scan browses for pinbridge servers until timeout or ctx ends.
func Scan(ctx context.Context, timeout time.Duration) ([]Service, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu       sync.Mutex
		services []Service
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			svc := entryToService(entry)
			mu.Lock()
			services = append(services, svc)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(scanCtx, ServiceType, Domain, entries); err != nil {
		cancel()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return dedupe(services), nil
}

func txtRecords(ad Advertisement) []string {
	txt := []string{"proto=ndjson"}
	if ad.Backend != "" {
		txt = append(txt, "backend="+ad.Backend)
	}
	if ad.Version != "" {
		txt = append(txt, "version="+ad.Version)
	}
	return txt
}

func entryToService(entry *zeroconf.ServiceEntry) Service {
	var addr string
	switch {
	case len(entry.AddrIPv4) > 0:
		addr = net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port))
	case len(entry.AddrIPv6) > 0:
		addr = net.JoinHostPort(entry.AddrIPv6[0].String(), strconv.Itoa(entry.Port))
	case entry.HostName != "":
		addr = net.JoinHostPort(strings.TrimSuffix(entry.HostName, "."), strconv.Itoa(entry.Port))
	}

	txt := parseTXT(entry.Text)
	return Service{
		Instance: entry.Instance,
		Addr:     addr,
		Backend:  txt["backend"],
		Version:  txt["version"],
		TXT:      txt,
	}
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// dedupe keeps the first entry per instance, sorted by instance name.
func dedupe(services []Service) []Service {
	seen := make(map[string]bool, len(services))
	out := make([]Service, 0, len(services))
	for _, svc := range services {
		if seen[svc.Instance] {
			continue
		}
		seen[svc.Instance] = true
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
