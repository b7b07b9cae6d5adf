// Package registry implements the Tool Registry (C2): it checks the
// external tool inventory from internal/tools against PATH, memoizes
// successful checks so repeated Ensure calls from concurrent stages don't
// re-exec the same binary, and coalesces concurrent first-checks for the
// same tool into a single lookup via singleflight. The install-memo is
// persisted to a small embedded store so a restarted process doesn't
// re-probe tools it already confirmed.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"

	"github.com/hakim/reconcore/internal/supervisor"
	"github.com/hakim/reconcore/internal/tools"
)

// installTimeout bounds how long a single tool's install command is given
// to run before Ensure gives up and reports the tool still missing.
const installTimeout = 5 * time.Minute

var memoBucket = []byte("tool_checks")

// Registry checks and memoizes tool availability.
type Registry struct {
	db *bbolt.DB
	sf singleflight.Group

	mu    sync.RWMutex
	cache map[string]tools.CheckResult
}

// Open creates or opens a Tool Registry backed by a bbolt file at path.
func Open(path string) (*Registry, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("registry: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(memoBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: initializing bucket: %w", err)
	}
	return &Registry{db: db, cache: make(map[string]tools.CheckResult)}, nil
}

// Close releases the underlying bbolt handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Ensure reports whether binary is installed, checking PATH at most once
// per process per tool and persisting the result so a restarted process
// skips the lookup for tools it already confirmed present. If the probe
// fails and req carries an InstallCmd, Ensure runs it through the Process
// Supervisor and re-probes before giving up — installation is still
// best-effort, so a failing or malformed InstallCmd just leaves the tool
// reported missing. Concurrent callers asking about the same tool at once
// share a single probe-install-reprobe attempt.
func (r *Registry) Ensure(ctx context.Context, req tools.ToolRequirement) (tools.CheckResult, error) {
	r.mu.RLock()
	if cached, ok := r.cache[req.Binary]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	if memo, ok, err := r.loadMemo(req.Binary); err != nil {
		return tools.CheckResult{}, err
	} else if ok && memo.Found {
		r.mu.Lock()
		r.cache[req.Binary] = memo
		r.mu.Unlock()
		return memo, nil
	}

	v, err, _ := r.sf.Do(req.Binary, func() (any, error) {
		result := tools.CheckTool(req)
		if !result.Found && req.InstallCmd != "" {
			r.install(ctx, req)
			result = tools.CheckTool(req)
		}
		if err := r.saveMemo(req.Binary, result); err != nil {
			return result, err
		}
		r.mu.Lock()
		r.cache[req.Binary] = result
		r.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return tools.CheckResult{}, err
	}
	return v.(tools.CheckResult), nil
}

// install runs req.InstallCmd to completion through the Process Supervisor.
// Any failure — spawn failure, non-zero exit, timeout — is swallowed here;
// the caller re-probes afterward and treats a still-missing binary as the
// outcome, matching ensure()'s best-effort install contract.
func (r *Registry) install(ctx context.Context, req tools.ToolRequirement) {
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	proc, err := supervisor.Command(installCtx, req.InstallCmd)
	if err != nil {
		return
	}
	_, _ = proc.Run(nil)
}

// EnsureAll checks every tool in the default registry, returning the full
// result set used by `reconcore check`.
func (r *Registry) EnsureAll(ctx context.Context) ([]tools.CheckResult, error) {
	reqs := tools.DefaultTools()
	out := make([]tools.CheckResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := r.Ensure(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// MissingRequired returns the subset of DefaultTools() marked Required that
// Ensure could not find (or install) on PATH.
func (r *Registry) MissingRequired(ctx context.Context) ([]tools.ToolRequirement, error) {
	var missing []tools.ToolRequirement
	for _, req := range tools.DefaultTools() {
		if !req.Required {
			continue
		}
		res, err := r.Ensure(ctx, req)
		if err != nil {
			return nil, err
		}
		if !res.Found {
			missing = append(missing, req)
		}
	}
	return missing, nil
}

func (r *Registry) loadMemo(binary string) (tools.CheckResult, bool, error) {
	var result tools.CheckResult
	found := false
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(memoBucket)
		data := b.Get([]byte(binary))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return tools.CheckResult{}, false, fmt.Errorf("registry: loading memo for %s: %w", binary, err)
	}
	return result, found, nil
}

func (r *Registry) saveMemo(binary string, result tools.CheckResult) error {
	if !result.Found {
		// Negative results are never memoized across process restarts: a
		// missing tool might be installed between runs and PATH should be
		// re-checked next time.
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("registry: marshaling memo for %s: %w", binary, err)
	}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(memoBucket).Put([]byte(binary), data)
	})
	if err != nil {
		return fmt.Errorf("registry: saving memo for %s: %w", binary, err)
	}
	return nil
}
