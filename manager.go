package serialdevice

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ManagerState is the phase of a connect sequence
type ManagerState int

const (
	StateIdle ManagerState = iota
	StateEnumerating
	StateTryingPort
	StateConnected
	StateFailed
)

func (s ManagerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateTryingPort:
		return "trying-port"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Connection is an open port at a given bitrate
type Connection struct {
	ID       ConnectionID
	Port     PortDescriptor
	Bitrate  int
	OpenedAt time.Time
}

// ConnectionManager finds and opens a port matching a pattern.
//
// Ports that fail to open are remembered in a skip set for the lifetime of the
// manager and never attempted again.
type ConnectionManager struct {
	transport Transport
	config    Config
	log       zerolog.Logger
	metrics   *Metrics

	seq sync.Mutex // one connect sequence at a time

	mu    sync.Mutex
	skip  map[string]struct{}
	state ManagerState
}

// NewConnectionManager creates a manager over the given transport
func NewConnectionManager(t Transport, opts ...Option) (*ConnectionManager, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	var metrics *Metrics
	if config.Registerer != nil {
		if metrics, err = NewMetrics(config.Registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return newConnectionManager(t, config, config.Logger, metrics), nil
}

func newConnectionManager(t Transport, config Config, log zerolog.Logger, metrics *Metrics) *ConnectionManager {
	return &ConnectionManager{
		transport: t,
		config:    config,
		log:       log,
		metrics:   metrics,
		skip:      make(map[string]struct{}),
	}
}

// State returns the current phase of the connect sequence
func (m *ConnectionManager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) setState(s ManagerState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Skipped reports whether path failed to open earlier
func (m *ConnectionManager) Skipped(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.skip[path]
	return ok
}

// SkipList returns the skipped port paths in sorted order
func (m *ConnectionManager) SkipList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.skip))
	for p := range m.skip {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Candidates enumerates ports whose path matches pattern and that are not
// skipped, in enumeration order
func (m *ConnectionManager) Candidates(ctx context.Context, pattern *regexp.Regexp) ([]PortDescriptor, error) {
	ports, err := m.transport.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []PortDescriptor
	for _, p := range ports {
		if !pattern.MatchString(p.Path) || m.Skipped(p.Path) {
			continue
		}
		candidates = append(candidates, p)
	}
	return candidates, nil
}

// Connect opens the first candidate port that accepts the connection.
//
// Candidates are tried one at a time in enumeration order. A failed open puts
// the path in the skip set and moves on; only the aggregate ErrPortUnavailable
// is returned when nothing opens.
func (m *ConnectionManager) Connect(ctx context.Context, pattern *regexp.Regexp, bitrate int) (*Connection, error) {
	m.seq.Lock()
	defer m.seq.Unlock()

	m.setState(StateEnumerating)
	candidates, err := m.Candidates(ctx, pattern)
	if err != nil {
		m.setState(StateFailed)
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	m.log.Debug().
		Str("pattern", pattern.String()).
		Int("candidates", len(candidates)).
		Msg("trying ports")

	for _, p := range candidates {
		m.setState(StateTryingPort)
		id, err := m.open(ctx, p.Path, bitrate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				m.setState(StateFailed)
				return nil, ctxErr
			}
			m.mu.Lock()
			m.skip[p.Path] = struct{}{}
			m.mu.Unlock()
			m.metrics.openFailed()
			m.log.Debug().Err(err).Str("port", p.Path).Msg("port failed to open, skipping")
			continue
		}

		m.setState(StateConnected)
		m.log.Info().
			Str("port", p.Path).
			Str("conn", string(id)).
			Int("bitrate", bitrate).
			Msg("connection worked")
		return &Connection{ID: id, Port: p, Bitrate: bitrate, OpenedAt: time.Now()}, nil
	}

	m.setState(StateFailed)
	return nil, fmt.Errorf("%w: pattern %q, %d candidate(s)", ErrPortUnavailable, pattern.String(), len(candidates))
}

// Reopen opens port again at a new bitrate. The skip set is not consulted or
// updated.
func (m *ConnectionManager) Reopen(ctx context.Context, port PortDescriptor, bitrate int) (*Connection, error) {
	m.seq.Lock()
	defer m.seq.Unlock()

	id, err := m.open(ctx, port.Path, bitrate)
	if err != nil {
		m.setState(StateFailed)
		return nil, fmt.Errorf("reopen %s: %w", port.Path, err)
	}
	m.setState(StateConnected)
	return &Connection{ID: id, Port: port, Bitrate: bitrate, OpenedAt: time.Now()}, nil
}

func (m *ConnectionManager) open(ctx context.Context, path string, bitrate int) (ConnectionID, error) {
	if m.config.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.OpenTimeout)
		defer cancel()
	}
	return m.transport.Open(ctx, path, OpenOptions{
		Bitrate:     bitrate,
		SendTimeout: m.config.SendTimeout,
	})
}
