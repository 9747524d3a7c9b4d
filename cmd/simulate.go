package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/vyos"
)

// simulatedRouters serves an in-memory VyOS API per configured router on
// loopback, so serve can run without devices.
type simulatedRouters struct {
	urls    map[string]string
	servers []*http.Server
}

func startSimulators(cfg *config.Config) (*simulatedRouters, error) {
	s := &simulatedRouters{urls: make(map[string]string, len(cfg.Routers))}
	for _, rc := range cfg.Routers {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("simulator for %s: %w", rc.Name, err)
		}
		srv := &http.Server{
			Handler:           vyos.NewSimulator(rc.ResolveAPIKey(), configtree.EmptyMapping()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Printer.Fprintf(Stderr, "simulator %s stopped: %v\n", rc.Name, err)
			}
		}()
		s.servers = append(s.servers, srv)
		s.urls[rc.Name] = "http://" + ln.Addr().String()
	}
	return s, nil
}

// URLs maps router names to simulator base URLs.
func (s *simulatedRouters) URLs() map[string]string {
	return s.urls
}

func (s *simulatedRouters) Close() {
	for _, srv := range s.servers {
		srv.Close()
	}
}
