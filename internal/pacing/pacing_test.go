package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

func TestPresetTable(t *testing.T) {
	cases := []struct {
		name       string
		pageLoad   int
		scroll     int
		between    int
		jitterLow  int
		jitterHigh int
	}{
		{PresetUltraSlow, 5000, 4000, 10000, 2000, 5000},
		{PresetSlow, 3000, 2500, 5000, 1000, 3000},
		{PresetNormal, 2000, 1500, 3000, 500, 1500},
		{PresetFast, 1000, 800, 1500, 200, 800},
	}
	for _, testCase := range cases {
		config, ok := Preset(testCase.name)
		if !ok {
			t.Fatalf("preset %q not found", testCase.name)
		}
		if config.PageLoadDelayMs != testCase.pageLoad || config.ScrollDelayMs != testCase.scroll ||
			config.BetweenPostsDelayMs != testCase.between || config.JitterMinMs != testCase.jitterLow ||
			config.JitterMaxMs != testCase.jitterHigh {
			t.Fatalf("preset %q mismatch: %+v", testCase.name, config)
		}
	}
}

func TestUnknownPresetFallsBackToNormal(t *testing.T) {
	config, ok := Preset("nonexistent")
	if ok {
		t.Fatalf("expected ok=false for unknown preset")
	}
	normal, _ := Preset(PresetNormal)
	if config != normal {
		t.Fatalf("expected fallback to normal preset, got %+v", config)
	}
}

func TestDelayBoundsWithoutJitter(t *testing.T) {
	policy := New()
	config, _ := Preset(PresetFast)
	config.RandomJitter = false
	policy.SetConfig(config)

	started := time.Now()
	policy.ScrollDelay(context.Background())
	elapsed := time.Since(started)

	if elapsed < time.Duration(config.ScrollDelayMs)*time.Millisecond {
		t.Fatalf("delay returned too early: %v", elapsed)
	}
}

func TestDelayRespectsContextCancellation(t *testing.T) {
	policy := New()
	policy.SetConfig(harvestmodel.PacingConfig{RandomJitter: false})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	started := time.Now()
	policy.Delay(ctx, 10_000)
	elapsed := time.Since(started)

	if elapsed > 500*time.Millisecond {
		t.Fatalf("delay did not respect context cancellation, took %v", elapsed)
	}
}
