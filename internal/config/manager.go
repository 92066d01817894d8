package config

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	logx "posterbot/pkg/logx"
)

const DefaultPath = "./config.yaml"

// ValidateFunc checks a parsed config before Manager commits it.
type ValidateFunc func(ctx context.Context, cfg *Config) error

// Manager holds the committed config and hands out reloads from Watch.
type Manager struct {
	path     string
	log      logx.Logger
	validate ValidateFunc
	debounce time.Duration

	mu  sync.RWMutex
	cfg *Config
	sum [sha256.Size]byte

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

func NewManager(path string) *Manager {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &Manager{
		path:     path,
		log:      logx.Nop(),
		validate: func(_ context.Context, cfg *Config) error { return Validate(cfg) },
		debounce: 250 * time.Millisecond,
		subs:     make(map[chan *Config]struct{}),
	}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator replaces the check run by Load and reloads. nil keeps the current one.
func (m *Manager) SetValidator(fn ValidateFunc) {
	if fn != nil {
		m.validate = fn
	}
}

// Parse reads and decodes the file without validating or committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "read config"), "pass the config path with --config")
	}
	return decode(m.path, b)
}

// Load parses, validates and commits the file.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := m.validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	m.commit(cfg, fingerprint(cfg))
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config, sum [sha256.Size]byte) {
	m.mu.Lock()
	m.cfg, m.sum = cfg, sum
	m.mu.Unlock()
}

// Subscribe returns a channel holding at most the newest committed reload.
// A slow reader skips intermediate configs. The channel closes when ctx ends.
func (m *Manager) Subscribe(ctx context.Context) <-chan *Config {
	ch := make(chan *Config, 1)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	context.AfterFunc(ctx, func() {
		m.subsMu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.subsMu.Unlock()
	})
	return ch
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case <-ch: // replace the unread older config
		default:
		}
		ch <- cfg
	}
}

// reload commits and publishes the file if it parses, differs and validates.
func (m *Manager) reload(ctx context.Context) {
	log := m.log.With(logx.String("path", m.path))
	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config parse failed", logx.Err(err))
		return
	}

	sum := fingerprint(cfg)
	m.mu.RLock()
	same := m.cfg != nil && sum == m.sum
	m.mu.RUnlock()
	if same {
		log.Debug("config unchanged")
		return
	}

	vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.validate(vctx, cfg); err != nil {
		log.Warn("config rejected", logx.Err(err))
		return
	}
	m.commit(cfg, sum)
	m.publish(cfg)
	log.Info("config reloaded")
}

// fingerprint hashes the decoded config, so formatting-only edits are not reloads.
func fingerprint(cfg *Config) [sha256.Size]byte {
	b, err := json.Marshal(cfg)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(b)
}
