// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no saved memory snapshot")

// Persister saves and loads a serialized store.
type Persister interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	Save(ctx context.Context, data []byte) error
	// Load returns ErrNoSnapshot when nothing has been saved.
	Load(ctx context.Context) ([]byte, error)
	Close() error
}

// Open returns the persister selected by cfg, or nil for the in-process backend.
func Open(cfg types.MemoryConfig) (Persister, error) {
	switch cfg.Backend {
	case "", types.MemoryInProcess:
		return nil, nil
	case types.MemoryFile:
		return NewFilePersister(cfg.Path), nil
	case types.MemorySQLite:
		return NewSQLitePersister(cfg.Path)
	case types.MemoryRedis:
		return NewRedisPersister(cfg.RedisAddr, cfg.RedisKey)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

// FilePersister keeps the snapshot in a single JSON file.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Name() string { return string(types.MemoryFile) }

// Save writes data to a temporary file and renames it over the snapshot.
func (p *FilePersister) Save(_ context.Context, data []byte) error {
	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating memory directory: %w", err)
		}
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing memory snapshot: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replacing memory snapshot: %w", err)
	}
	return nil
}

func (p *FilePersister) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading memory snapshot: %w", err)
	}
	return data, nil
}

func (p *FilePersister) Close() error { return nil }

// saveTimeout bounds the save that follows each stored record.
const saveTimeout = 10 * time.Second

// Durable is a Store that writes itself through a Persister after every
// stored research record. With a nil persister it behaves as a plain Store.
type Durable struct {
	*Store
	persister Persister
	logger    *zap.Logger
}

// NewDurable wraps store with p.
func NewDurable(store *Store, p Persister, logger *zap.Logger) *Durable {
	return &Durable{Store: store, persister: p, logger: logging.OrNop(logger)}
}

// Restore loads the last snapshot into the store. A missing snapshot is not
// an error. A corrupt one leaves the store empty and is reported.
func (d *Durable) Restore(ctx context.Context) error {
	if d.persister == nil {
		return nil
	}
	data, err := d.persister.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	if err == nil {
		err = d.Store.Deserialize(data)
	}
	d.record("load", err)
	if err != nil {
		return fmt.Errorf("restoring memory from %s: %w", d.persister.Name(), err)
	}
	d.logger.Info("memory restored", zap.String("backend", d.persister.Name()), zap.Int("records", d.Len()))
	return nil
}

// Flush saves the current store.
func (d *Durable) Flush(ctx context.Context) error {
	if d.persister == nil {
		return nil
	}
	data, err := d.Store.Serialize()
	if err == nil {
		err = d.persister.Save(ctx, data)
	}
	d.record("save", err)
	if err != nil {
		return fmt.Errorf("saving memory to %s: %w", d.persister.Name(), err)
	}
	return nil
}

// Put stores rec and saves the store. A failed save is logged; the record
// stays in memory.
func (d *Durable) Put(session, query string, rec types.ResearchRecord) {
	d.Store.Put(session, query, rec)
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		d.logger.Error("memory save failed", zap.Error(err))
	}
}

// Clear removes session and saves the store.
func (d *Durable) Clear(session string) {
	d.Store.Clear(session)
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		d.logger.Error("memory save failed", zap.Error(err))
	}
}

// Close closes the persister.
func (d *Durable) Close() error {
	if d.persister == nil {
		return nil
	}
	return d.persister.Close()
}

func (d *Durable) record(op string, err error) {
	result := metrics.OutcomeSuccess
	if err != nil {
		result = metrics.OutcomeError
	}
	metrics.MemoryPersistOps.WithLabelValues(d.persister.Name(), op, result).Inc()
}
