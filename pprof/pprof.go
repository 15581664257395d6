package pprof

import (
	"context"
	"net/http"
	// #nosec G108
	_ "net/http/pprof"
	"strconv"
	"time"

	"github.com/antiyro/starkroot/service"
	"github.com/antiyro/starkroot/utils"
)

var _ service.Service = (*Profiler)(nil)

type Profiler struct {
	enabled bool
	log     utils.SimpleLogger
	server  *http.Server
}

func New(enabled bool, port uint16, log utils.SimpleLogger) *Profiler {
	server := &http.Server{
		Addr:              "localhost:" + strconv.Itoa(int(port)),
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Profiler{
		enabled: enabled,
		server:  server,
		log:     log,
	}
}

// Run blocks until ctx is cancelled. With the profiler disabled it only
// waits, so callers can register the service unconditionally.
func (p *Profiler) Run(ctx context.Context) error {
	if !p.enabled {
		<-ctx.Done()
		return nil
	}

	go func() {
		p.log.Infow("Starting pprof...", "address", p.server.Addr)
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.log.Errorw("Pprof server error", "err", err)
		}
	}()

	<-ctx.Done()
	return p.server.Shutdown(context.Background())
}
