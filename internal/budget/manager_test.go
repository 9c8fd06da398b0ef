package budget

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeSource struct {
	spend map[Window]float64
}

func (f fakeSource) SpendSince(ctx context.Context, key string, since time.Time) (float64, error) {
	until := time.Now().Sub(since)
	switch {
	case until <= Window24h.Duration()+time.Second:
		return f.spend[Window24h], nil
	case until <= Window168h.Duration()+time.Second:
		return f.spend[Window168h], nil
	default:
		return f.spend[Window720h], nil
	}
}

func TestAdvisoryModeAlwaysAllows(t *testing.T) {
	m := NewManager(fakeSource{spend: map[Window]float64{Window24h: 1000}}, "")
	m.Update(Limits{Limit24h: 10, Mode: ModeAdvisory})
	allowed, summary, err := m.CheckAllowed(context.Background(), "k", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Fatal("advisory mode must always allow")
	}
	if summary.Status != StatusExceeded {
		t.Fatalf("expected status to reflect overspend even though allowed, got %v", summary.Status)
	}
}

func TestHardModeDeniesOnProjectedOverspend(t *testing.T) {
	m := NewManager(fakeSource{spend: map[Window]float64{Window24h: 9}}, "")
	m.Update(Limits{Limit24h: 10, Mode: ModeHard})
	allowed, _, err := m.CheckAllowed(context.Background(), "k", 5)
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Fatal("expected denial when spend+estimated would cross the limit")
	}
}

func TestZeroLimitDisablesWindow(t *testing.T) {
	m := NewManager(fakeSource{spend: map[Window]float64{Window24h: 1_000_000}}, "")
	m.Update(Limits{Limit24h: 0, Mode: ModeHard})
	allowed, _, err := m.CheckAllowed(context.Background(), "k", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Fatal("zero limit should disable the window, not deny")
	}
}

func TestConfigPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "budget.json")

	m1 := NewManager(fakeSource{}, path)
	if err := m1.Update(Limits{Limit24h: 42, Mode: ModeHard}); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(fakeSource{}, path)
	if m2.currentLimits().Limit24h != 42 {
		t.Fatalf("expected reloaded limit 42, got %v", m2.currentLimits().Limit24h)
	}
}

func TestCorruptedConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "budget.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(fakeSource{}, path)
	if m.currentLimits() != DefaultLimits() {
		t.Fatalf("expected defaults on corrupted config, got %+v", m.currentLimits())
	}
}
