package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const defaultLogPath = "./posterbot.log"

// Service owns the sinks. Loggers it hands out read the current root on every
// event, so Apply takes effect immediately.
type Service struct {
	mu       sync.Mutex
	stdout   io.Writer
	file     *os.File
	filePath string

	root atomic.Pointer[zerolog.Logger]
}

type Option func(*Service)

// WithStdout redirects console output. Tests pass a buffer.
func WithStdout(w io.Writer) Option { return func(s *Service) { s.stdout = w } }

// New applies cfg and returns the service with its root logger.
func New(cfg Config, opts ...Option) (*Service, Logger) {
	s := &Service{stdout: Stdout()}
	for _, o := range opts {
		o(s)
	}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger {
	return Logger{src: func() zerolog.Logger {
		if zl := s.root.Load(); zl != nil {
			return *zl
		}
		return zerolog.Nop()
	}}
}

// Apply swaps level and sinks. An unchanged file path keeps the open file.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(s.stdout))
	}

	wantPath := ""
	if cfg.File.Enabled {
		wantPath = filepath.Clean(strings.TrimSpace(cfg.File.Path))
		if wantPath == "." {
			wantPath = defaultLogPath
		}
	}
	if wantPath != s.filePath {
		s.closeFileLocked()
		if wantPath != "" {
			if err := s.openFileLocked(wantPath); err != nil {
				fmt.Fprintf(Stderr(), "logx: %v\n", err)
			}
		}
	}
	if s.file != nil {
		writers = append(writers, zerolog.SyncWriter(s.file))
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(s.stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) openFileLocked(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("log dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("log file %q: %w", path, err)
	}
	s.file, s.filePath = f, path
	return nil
}

func (s *Service) closeFileLocked() error {
	f := s.file
	s.file, s.filePath = nil, ""
	if f == nil {
		return nil
	}
	return f.Close()
}

// Close releases the log file. Loggers keep working on the remaining sinks
// until the next Apply.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFileLocked()
}

// Stdout is the default console sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr receives logx's own failures.
func Stderr() io.Writer { return os.Stderr }
