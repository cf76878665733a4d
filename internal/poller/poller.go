// Package poller queries an instrument at a fixed interval over one
// long-lived device link, re-linking after connection loss.
package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

// DefaultTimeout bounds one poll started by Run.
const DefaultTimeout = 10 * time.Second

// ConnectFunc opens a linked session. Connect of pkg/vxi11 bound to a host
// and its options is the usual implementation.
type ConnectFunc func(ctx context.Context) (*vxi11.Session, error)

// Config configures a Poller.
type Config struct {
	Host        string
	Device      string
	Query       string
	Interval    time.Duration
	DialTimeout time.Duration

	// Timeout bounds one poll started by Run. Cancelling Run does not
	// interrupt a poll in flight, so the session stays in sync and the
	// link can be destroyed. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the outcome of one poll.
type Result struct {
	Time     time.Time     `json:"time" yaml:"time"`
	Query    string        `json:"query" yaml:"query"`
	Response string        `json:"response,omitempty" yaml:"response,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`

	raw []byte
}

// Raw returns the instrument response byte for byte.
func (r Result) Raw() []byte {
	return r.raw
}

// Headers implements output.TableRenderer.
func (r Result) Headers() []string {
	return []string{"TIME", "QUERY", "RESPONSE", "DURATION", "ERROR"}
}

// Rows implements output.TableRenderer.
func (r Result) Rows() [][]string {
	return [][]string{{
		r.Time.Format(time.RFC3339),
		r.Query,
		r.Response,
		r.Duration.Round(time.Microsecond).String(),
		r.Error,
	}}
}

// Status is a snapshot of the poller, served on /health.
type Status struct {
	Host        string    `json:"host"`
	Device      string    `json:"device"`
	Linked      bool      `json:"linked"`
	LinkID      int32     `json:"link_id,omitempty"`
	Polls       uint64    `json:"polls"`
	Failures    uint64    `json:"failures"`
	Reconnects  uint64    `json:"reconnects"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Poller runs Query on a session every Interval.
type Poller struct {
	connect ConnectFunc

	mu      sync.RWMutex
	cfg     Config
	status  Status
	session *vxi11.Session
	reload  chan struct{}
}

// New creates a Poller. Nothing is dialed until Run.
func New(cfg Config, connect ConnectFunc) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Poller{
		connect: connect,
		cfg:     cfg,
		status:  Status{Host: cfg.Host, Device: cfg.Device},
		reload:  make(chan struct{}, 1),
	}
}

// Status returns a copy of the current status.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Update replaces the query and interval of a running poller. The new
// interval applies from the next tick.
func (p *Poller) Update(query string, interval time.Duration) {
	p.mu.Lock()
	if query != "" {
		p.cfg.Query = query
	}
	if interval > 0 {
		p.cfg.Interval = interval
	}
	p.mu.Unlock()

	select {
	case p.reload <- struct{}{}:
	default:
	}
}

func (p *Poller) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Run polls until ctx is cancelled, passing every result to onResult (which
// may be nil). A poll in flight when ctx is cancelled runs to completion and
// its result is dropped. The link is destroyed before Run returns.
func (p *Poller) Run(ctx context.Context, onResult func(Result)) error {
	defer p.closeSession()

	ticker := time.NewTicker(p.config().Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		pollCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config().Timeout)
		res := p.Poll(pollCtx)
		cancel()
		if ctx.Err() != nil {
			return nil
		}
		if onResult != nil {
			onResult(res)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.reload:
			cfg := p.config()
			ticker.Reset(cfg.Interval)
			logger.Info("Poll settings reloaded", "query", cfg.Query, "interval", cfg.Interval.String())
		case <-ticker.C:
		}
	}
}

// Poll performs a single query, linking first when no session is open.
func (p *Poller) Poll(ctx context.Context) Result {
	cfg := p.config()
	res := Result{Time: time.Now(), Query: cfg.Query}

	s, err := p.ensureSession(ctx, cfg)
	if err == nil {
		var data []byte
		data, err = s.Query(ctx, []byte(terminate(cfg.Query)))
		res.raw = data
		res.Response = strings.TrimRight(string(data), "\r\n")
	}
	res.Duration = time.Since(res.Time)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Polls++
	if err != nil {
		res.Error = err.Error()
		p.status.Failures++
		p.status.LastError = res.Error
	} else {
		p.status.LastSuccess = res.Time
		p.status.LastError = ""
	}
	p.status.Linked = p.session != nil && p.session.State() == vxi11.StateLinked
	if !p.status.Linked {
		p.status.LinkID = 0
	}
	return res
}

func (p *Poller) ensureSession(ctx context.Context, cfg Config) (*vxi11.Session, error) {
	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()

	if s != nil && s.State() == vxi11.StateLinked {
		return s, nil
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	s, err := p.connect(dialCtx)
	if err != nil {
		logger.WarnCtx(ctx, "Link to instrument failed", logger.Host(cfg.Host), logger.Err(err))
		return nil, err
	}

	p.mu.Lock()
	if p.session != nil {
		p.status.Reconnects++
	}
	p.session = s
	p.status.LinkID = s.Link().ID
	p.mu.Unlock()

	logger.InfoCtx(ctx, "Linked to instrument",
		logger.Host(cfg.Host), logger.Device(cfg.Device), logger.LinkID(s.Link().ID))
	return s, nil
}

func (p *Poller) closeSession() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.status.Linked = false
	p.mu.Unlock()

	if s == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		logger.Warn("Destroy link failed", logger.Err(err))
	}
}

// terminate appends a newline unless cmd already ends with one.
func terminate(cmd string) string {
	if strings.HasSuffix(cmd, "\n") {
		return cmd
	}
	return cmd + "\n"
}
