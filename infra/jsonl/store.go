// Package jsonl records samples and vehicle events as JSON lines in a
// size-rotated file. The file doubles as a local history source.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/core/telemetry"
	"github.com/kilianp07/enginesim/infra/logger"
)

const (
	recordSample = "sample"
	recordEvent  = "event"
)

// Config configures the rotating store. Sizes are in megabytes, ages in days.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("jsonl: path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.New("jsonl: rotation limits must not be negative")
	}
	return nil
}

type record struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	ElapsedS  float64       `json:"elapsed_s"`
	Sample    *model.Sample `json:"sample,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Store appends records to a lumberjack-managed file.
type Store struct {
	mu   sync.Mutex
	w    *lumberjack.Logger
	path string
	now  func() time.Time
	log  logger.Logger
}

// NewStore creates the parent directory of cfg.Path and opens the store.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &Store{w: lj, path: cfg.Path, now: time.Now, log: logger.New("jsonl_store")}, nil
}

func (s *Store) append(rec record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.NewEncoder(s.w).Encode(rec)
}

// Send implements telemetry.Sink.
func (s *Store) Send(ctx context.Context, smp model.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.append(record{
		Type:      recordSample,
		Timestamp: s.now().UTC(),
		ElapsedS:  smp.Elapsed.Seconds(),
		Sample:    &smp,
	})
}

// RecordEvent implements telemetry.EventRecorder.
func (s *Store) RecordEvent(ctx context.Context, ev events.VehicleEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.append(record{
		Type:      recordEvent,
		Timestamp: s.now().UTC(),
		ElapsedS:  ev.Elapsed.Seconds(),
		Kind:      ev.Kind.String(),
		Message:   ev.Message(),
	})
}

// Fetch returns the last limit samples found in the current and rotated
// files, oldest first. Lines that cannot be decoded are skipped.
func (s *Store) Fetch(ctx context.Context, limit int) ([]model.Sample, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	var out []model.Sample
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := readSamples(f)
		if err != nil {
			if !(f == s.path && errors.Is(err, os.ErrNotExist)) {
				s.log.Warnf("skip history file %s: %v", f, err)
			}
			continue
		}
		out = append(out, got...)
	}
	if len(out) == 0 {
		return nil, telemetry.ErrNoHistory
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// files lists rotated backups oldest first followed by the active file.
// Compressed backups carry a .gz suffix after the original extension.
func (s *Store) files() ([]string, error) {
	ext := filepath.Ext(s.path)
	prefix := s.path[:len(s.path)-len(ext)]
	backups, err := filepath.Glob(prefix + "-*" + ext + "*")
	if err != nil {
		return nil, err
	}
	// lumberjack backup names embed a sortable timestamp.
	sort.Strings(backups)
	return append(backups, s.path), nil
}

func readSamples(path string) ([]model.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		src = zr
	}
	var out []model.Sample
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Type != recordSample || r.Sample == nil {
			continue
		}
		out = append(out, *r.Sample)
	}
	return out, sc.Err()
}

// Close closes the active file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

func init() {
	_ = telemetry.RegisterSink("jsonl", func(conf map[string]any) (telemetry.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		st, err := NewStore(c)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}
