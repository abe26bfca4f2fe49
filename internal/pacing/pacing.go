// Package pacing maintains the single mutable delay configuration the rest
// of the harvester suspends on between page loads, scrolls, and root posts.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

// Preset names accepted by the policy.
const (
	PresetUltraSlow = "ultraSlow"
	PresetSlow      = "slow"
	PresetNormal    = "normal"
	PresetFast      = "fast"
)

var presetTable = map[string]harvestmodel.PacingConfig{
	PresetUltraSlow: {PageLoadDelayMs: 5000, ScrollDelayMs: 4000, BetweenPostsDelayMs: 10000, RandomJitter: true, JitterMinMs: 2000, JitterMaxMs: 5000},
	PresetSlow:      {PageLoadDelayMs: 3000, ScrollDelayMs: 2500, BetweenPostsDelayMs: 5000, RandomJitter: true, JitterMinMs: 1000, JitterMaxMs: 3000},
	PresetNormal:    {PageLoadDelayMs: 2000, ScrollDelayMs: 1500, BetweenPostsDelayMs: 3000, RandomJitter: true, JitterMinMs: 500, JitterMaxMs: 1500},
	PresetFast:      {PageLoadDelayMs: 1000, ScrollDelayMs: 800, BetweenPostsDelayMs: 1500, RandomJitter: true, JitterMinMs: 200, JitterMaxMs: 800},
}

// Preset looks up a named preset. The normal preset is returned, along with
// false, when name is unknown.
func Preset(name string) (harvestmodel.PacingConfig, bool) {
	config, ok := presetTable[name]
	if !ok {
		return presetTable[PresetNormal], false
	}
	return config, true
}

// Policy holds the process-wide pacing configuration and suspends callers
// for the configured delay, optionally jittered.
type Policy struct {
	mutex  sync.RWMutex
	config harvestmodel.PacingConfig
	rnd    *rand.Rand
}

// New constructs a Policy seeded with the normal preset.
func New() *Policy {
	normalConfig, _ := Preset(PresetNormal)
	return &Policy{
		config: normalConfig,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPreset replaces the current configuration with the named preset. Unknown
// names fall back to the normal preset.
func (policy *Policy) SetPreset(name string) {
	config, _ := Preset(name)
	policy.SetConfig(config)
}

// SetConfig replaces the current configuration outright.
func (policy *Policy) SetConfig(config harvestmodel.PacingConfig) {
	policy.mutex.Lock()
	policy.config = config
	policy.mutex.Unlock()
}

// Config returns a copy of the current configuration.
func (policy *Policy) Config() harvestmodel.PacingConfig {
	policy.mutex.RLock()
	defer policy.mutex.RUnlock()
	return policy.config
}

// PageLoadDelay suspends the caller for the configured page-load delay.
func (policy *Policy) PageLoadDelay(ctx context.Context) {
	policy.delay(ctx, policy.Config().PageLoadDelayMs)
}

// ScrollDelay suspends the caller for the configured scroll delay.
func (policy *Policy) ScrollDelay(ctx context.Context) {
	policy.delay(ctx, policy.Config().ScrollDelayMs)
}

// BetweenPostsDelay suspends the caller for the configured between-posts delay.
func (policy *Policy) BetweenPostsDelay(ctx context.Context) {
	policy.delay(ctx, policy.Config().BetweenPostsDelayMs)
}

// Delay suspends the caller for baseMs plus jitter, honoring ctx cancellation.
func (policy *Policy) Delay(ctx context.Context, baseMs int) {
	policy.delay(ctx, baseMs)
}

func (policy *Policy) delay(ctx context.Context, baseMs int) {
	duration := policy.duration(baseMs)
	if duration <= 0 {
		return
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (policy *Policy) duration(baseMs int) time.Duration {
	config := policy.Config()
	total := baseMs
	if config.RandomJitter && config.JitterMaxMs > config.JitterMinMs {
		policy.mutex.Lock()
		jitter := config.JitterMinMs + policy.rnd.Intn(config.JitterMaxMs-config.JitterMinMs+1)
		policy.mutex.Unlock()
		total += jitter
	}
	if total < 0 {
		total = 0
	}
	return time.Duration(total) * time.Millisecond
}
