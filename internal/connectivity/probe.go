package connectivity

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// ProbeConfig configures a ProbeSource.
type ProbeConfig struct {
	// URL is polled with GET; any 2xx answer means reachable.
	URL string

	// Interval between probes (default: 15s).
	Interval time.Duration

	// Timeout per probe (default: 5s).
	Timeout time.Duration

	// Client overrides the HTTP client, for tests.
	Client *http.Client

	// Logger for probe activity (default: stderr logger).
	Logger *log.Logger
}

// ProbeSource polls a health endpoint and emits a Signal whenever the
// answer flips between reachable and unreachable.
type ProbeSource struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *log.Logger

	signals chan Signal

	mu      sync.Mutex
	online  bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewProbeSource creates a probe. It reports offline until the first probe
// has run; Start runs one synchronously.
func NewProbeSource(cfg ProbeConfig) (*ProbeSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("probe URL is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[probe] ", log.LstdFlags)
	}

	return &ProbeSource{
		url:      cfg.URL,
		interval: cfg.Interval,
		client:   client,
		logger:   logger,
		signals:  make(chan Signal, 16),
	}, nil
}

// Online implements Source.
func (p *ProbeSource) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Signals implements Source.
func (p *ProbeSource) Signals() <-chan Signal {
	return p.signals
}

// Check probes once and reports whether the endpoint answered 2xx.
func (p *ProbeSource) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// Start runs an initial probe, then polls in the background until Stop or
// ctx cancellation.
func (p *ProbeSource) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("probe already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	p.update(p.Check(ctx))

	p.wg.Add(1)
	go p.poll(ctx)
	return nil
}

// Stop ends polling and waits for the poll goroutine to exit.
func (p *ProbeSource) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// IsRunning returns true if the probe is polling.
func (p *ProbeSource) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ProbeSource) poll(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := p.Check(ctx)
			if ctx.Err() != nil {
				return
			}
			p.update(online)
		}
	}
}

// update records a probe result and emits a signal if it changed. A full
// signal buffer drops the signal; Online still reports the latest state.
func (p *ProbeSource) update(online bool) {
	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()

	if !changed {
		return
	}

	if online {
		p.logger.Printf("Server reachable at %s", p.url)
	} else {
		p.logger.Printf("Server unreachable at %s", p.url)
	}

	select {
	case p.signals <- Signal{Online: online, At: time.Now()}:
	default:
		p.logger.Printf("WARNING: signal buffer full, dropped %v", online)
	}
}
