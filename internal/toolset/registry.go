package toolset

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mtehis/internal/model"
	"mtehis/internal/repository"
)

// Registry is the process-wide cache of loaded toolsets, mapping toolset
// name to Handle. It is the single source of truth for which toolsets are
// active. Loaded handles stay resident until Flush; there is no eviction
// policy, so the cache grows with the number of distinct toolsets used.
//
// Construct one explicitly and inject it; the cache starts empty.
type Registry struct {
	store  repository.ToolsetRepository
	logger *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	gen     uint64
	handles map[string]*Handle
}

// NewRegistry creates an empty registry backed by the given store.
func NewRegistry(store repository.ToolsetRepository, logger *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		logger:  logger,
		handles: make(map[string]*Handle),
	}
}

// GetOrLoad returns the cached handle for name, loading and deserializing
// the stored record on first access. Concurrent first accesses for the
// same name are collapsed into a single store read. Returns
// ErrToolsetNotFound when no record exists.
func (r *Registry) GetOrLoad(name string) (*Handle, error) {
	r.mu.RLock()
	handle, ok := r.handles[name]
	r.mu.RUnlock()
	if ok {
		return handle, nil
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		// A racing call may have inserted the handle already.
		r.mu.RLock()
		handle, ok := r.handles[name]
		r.mu.RUnlock()
		if ok {
			return handle, nil
		}
		return r.load(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (r *Registry) load(name string) (*Handle, error) {
	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	record, err := r.store.GetByName(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrToolsetNotFound
		}
		return nil, fmt.Errorf("failed to load toolset %q: %w", name, err)
	}

	detector, err := model.UnmarshalDetector(record.Detector)
	if err != nil {
		return nil, fmt.Errorf("failed to restore detector for toolset %q: %w", name, err)
	}

	var classifier model.Classifier
	if len(record.Classifier) > 0 {
		classifier, err = model.UnmarshalClassifier(record.Classifier)
		if err != nil {
			return nil, fmt.Errorf("failed to restore classifier for toolset %q: %w", name, err)
		}
	}

	handle := NewHandle(record.ID, record.Name, detector, classifier, r.store, r.logger)

	// A flush that raced the store read wins: the handle is handed to the
	// caller but not cached, so the next lookup reloads.
	r.mu.Lock()
	if r.gen == gen {
		r.handles[name] = handle
	}
	r.mu.Unlock()

	r.logger.Info("Toolset loaded into cache",
		zap.String("toolset", name),
		zap.Bool("classifier", classifier != nil))
	return handle, nil
}

// Flush discards all cached handles, e.g. on config reload. A flushed
// handle with a processing session is abandoned, not cancelled: the
// running evaluation keeps the old handle alive until it completes. This
// is a known, accepted resource leak.
func (r *Registry) Flush() {
	r.mu.Lock()
	dropped := len(r.handles)
	r.gen++
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	r.logger.Info("Toolset cache flushed", zap.Int("dropped", dropped))
}

// Active returns the names of all resident toolsets, sorted.
func (r *Registry) Active() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
