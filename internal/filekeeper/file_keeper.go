package filekeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/storage"
)

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// snapshot is the on-disk layout.
type snapshot struct {
	Values map[string]string `json:"values"`
}

// FileKeeper keeps local storage in memory and mirrors it to a JSON file.
// Writes are coalesced by a background goroutine so callers never wait on disk.
type FileKeeper struct {
	mu     sync.RWMutex
	values map[string]string
	path   string
	log    Log

	persist chan snapshot
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewFileKeeper loads the snapshot at path, if any, and starts the writer.
func NewFileKeeper(path string, log Log) (*FileKeeper, error) {
	values, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	k := &FileKeeper{
		values:  values,
		path:    path,
		log:     log,
		persist: make(chan snapshot, 1),
		done:    make(chan struct{}),
	}
	k.wg.Add(1)
	go k.persistenceLoop()

	log.Info("local storage snapshot opened", zap.String("path", path), zap.Int("keys", len(values)))
	return k, nil
}

func (k *FileKeeper) Get(_ context.Context, key string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (k *FileKeeper) Put(_ context.Context, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("file keeper is closed")
	}
	k.values[key] = value
	k.queuePersist()
	return nil
}

func (k *FileKeeper) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.values[key]; !ok {
		return storage.ErrNotFound
	}
	delete(k.values, key)
	k.queuePersist()
	return nil
}

func (k *FileKeeper) Ping(context.Context) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return !k.closed
}

// Close stops the writer after flushing the latest state.
func (k *FileKeeper) Close() bool {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return false
	}
	k.closed = true
	final := k.snapshotLocked()
	k.mu.Unlock()

	close(k.done)
	k.wg.Wait()

	if err := writeSnapshot(k.path, final); err != nil {
		k.log.Error("failed to flush local storage snapshot", zap.Error(err))
		return false
	}
	k.log.Info("local storage snapshot closed", zap.String("path", k.path))
	return true
}

// queuePersist replaces any pending snapshot with the current one. Caller holds k.mu.
func (k *FileKeeper) queuePersist() {
	snap := k.snapshotLocked()
	select {
	case k.persist <- snap:
	default:
		select {
		case <-k.persist:
		default:
		}
		k.persist <- snap
	}
}

func (k *FileKeeper) snapshotLocked() snapshot {
	values := make(map[string]string, len(k.values))
	for key, v := range k.values {
		values[key] = v
	}
	return snapshot{Values: values}
}

func (k *FileKeeper) persistenceLoop() {
	defer k.wg.Done()
	for {
		select {
		case snap := <-k.persist:
			if err := writeSnapshot(k.path, snap); err != nil {
				k.log.Error("failed to write local storage snapshot", zap.Error(err))
			}
		case <-k.done:
			return
		}
	}
}

func readSnapshot(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]string), nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Values == nil {
		snap.Values = make(map[string]string)
	}
	return snap.Values, nil
}

// writeSnapshot replaces the file atomically through a temp file in the same directory.
func writeSnapshot(path string, snap snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".storefront-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
