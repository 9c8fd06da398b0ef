package budget

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Manager evaluates spend for a key against configured window limits and
// optionally enforces them. Limits are shared across keys; per-key spend is
// always recomputed from SpendSource rather than cached here.
type Manager struct {
	mu     sync.RWMutex
	limits Limits
	source SpendSource
	path   string
}

// NewManager builds a budget manager backed by src. If configPath is
// non-empty, limits are loaded from it (falling back to defaults on a
// missing or corrupted file) and persisted back on every Update.
func NewManager(src SpendSource, configPath string) *Manager {
	m := &Manager{limits: DefaultLimits(), source: src, path: configPath}
	if configPath != "" {
		m.loadOrDefault()
	}
	return m
}

func (m *Manager) loadOrDefault() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return // absent file falls back to defaults
	}
	var l Limits
	if err := json.Unmarshal(data, &l); err != nil {
		return // corrupted file falls back to defaults
	}
	m.mu.Lock()
	m.limits = l
	m.mu.Unlock()
}

// Update replaces the current limits and persists them to disk if a config
// path was configured, creating the containing directory on first write.
func (m *Manager) Update(l Limits) error {
	m.mu.Lock()
	m.limits = l
	path := m.path
	m.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Manager) currentLimits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// Summary computes the per-window spend summary for key without enforcing.
func (m *Manager) Summary(ctx context.Context, key string) (Summary, error) {
	l := m.currentLimits()
	now := time.Now()

	windows := []struct {
		w     Window
		limit float64
	}{
		{Window24h, l.Limit24h},
		{Window168h, l.Limit168h},
		{Window720h, l.Limit720h},
	}

	var statuses []WindowStatus
	var worst []Status
	for _, entry := range windows {
		spent, err := m.source.SpendSince(ctx, key, now.Add(-entry.w.Duration()))
		if err != nil {
			return Summary{}, err
		}
		ws := evaluateWindow(entry.w, entry.limit, spent, l.WarningFraction)
		statuses = append(statuses, ws)
		worst = append(worst, ws.Status)
	}

	return Summary{Windows: statuses, Status: worstOf(worst...)}, nil
}

// CheckAllowed evaluates whether a request estimated to cost estimatedCost
// may proceed. In ModeAdvisory it always returns true (status is
// informational only). In ModeHard it returns false when current spend has
// already exceeded any enabled limit, or when adding estimatedCost would
// cross one.
func (m *Manager) CheckAllowed(ctx context.Context, key string, estimatedCost float64) (bool, Summary, error) {
	summary, err := m.Summary(ctx, key)
	if err != nil {
		return false, Summary{}, err
	}

	l := m.currentLimits()
	if l.Mode == ModeAdvisory {
		return true, summary, nil
	}

	for _, ws := range summary.Windows {
		if ws.Limit <= 0 {
			continue
		}
		if ws.Spent >= ws.Limit {
			return false, summary, nil
		}
		if ws.Spent+estimatedCost > ws.Limit {
			return false, summary, nil
		}
	}
	return true, summary, nil
}
