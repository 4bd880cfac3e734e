package services

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceOptimizer sizes adapter fan-out from the host's cores, memory and
// current load.
type ResourceOptimizer struct {
	mu                 sync.RWMutex
	config             ResourceOptimizerConfig
	cpuCores           int
	memoryGB           float64
	currentCPUUsage    float64
	currentMemoryUsage float64
	optimal            OptimalConcurrency
	lastOptimization   time.Time
	logger             *logrus.Logger
}

// OptimalConcurrency holds the computed limits.
type OptimalConcurrency struct {
	MaxFanOut       int     `json:"max_fan_out"`
	MaxWarmers      int     `json:"max_warmers"`
	MemoryThreshold float64 `json:"memory_threshold"`
	CPUThreshold    float64 `json:"cpu_threshold"`
}

// SystemInfo is the host view reported by the health endpoint.
type SystemInfo struct {
	CPUCores         int                `json:"cpu_cores"`
	MemoryGB         float64            `json:"memory_gb"`
	CPUUsage         float64            `json:"cpu_usage"`
	MemoryUsage      float64            `json:"memory_usage"`
	Goroutines       int                `json:"goroutines"`
	LastOptimization time.Time          `json:"last_optimization"`
	Optimal          OptimalConcurrency `json:"optimal"`
}

// ResourceOptimizerConfig bounds the computed limits.
type ResourceOptimizerConfig struct {
	CPUThreshold    float64 `mapstructure:"cpu_threshold" json:"cpu_threshold"`
	MemoryThreshold float64 `mapstructure:"memory_threshold" json:"memory_threshold"`
	MinWorkers      int     `mapstructure:"min_workers" json:"min_workers"`
	MaxWorkers      int     `mapstructure:"max_workers" json:"max_workers"`
}

// NewResourceOptimizer probes the host and computes initial limits.
func NewResourceOptimizer(config ResourceOptimizerConfig, logger *logrus.Logger) *ResourceOptimizer {
	if config.CPUThreshold == 0 {
		config.CPUThreshold = 80.0
	}
	if config.MemoryThreshold == 0 {
		config.MemoryThreshold = 85.0
	}
	if config.MinWorkers <= 0 {
		config.MinWorkers = 2
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = 16
		if config.MaxWorkers < config.MinWorkers {
			config.MaxWorkers = config.MinWorkers
		}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	ro := &ResourceOptimizer{
		config:   config,
		cpuCores: runtime.NumCPU(),
		logger:   logger,
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		ro.memoryGB = float64(memInfo.Total) / (1024 * 1024 * 1024)
	} else {
		ro.logger.WithError(err).Warn("Could not read memory info, assuming 8GB")
		ro.memoryGB = 8.0
	}

	ro.recalculate()
	ro.logger.WithFields(logrus.Fields{
		"component":   "resource_optimizer",
		"cpu_cores":   ro.cpuCores,
		"memory_gb":   fmt.Sprintf("%.1f", ro.memoryGB),
		"max_fan_out": ro.optimal.MaxFanOut,
	}).Info("Resource optimizer initialized")
	return ro
}

func (ro *ResourceOptimizer) recalculate() {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	base := ro.cpuCores * 2
	memoryFactor := 1.0
	switch {
	case ro.memoryGB < 4.0:
		memoryFactor = 0.5
	case ro.memoryGB < 8.0:
		memoryFactor = 0.75
	}
	loadFactor := 1.0
	switch {
	case ro.currentCPUUsage > ro.config.CPUThreshold:
		loadFactor = 0.7
	case ro.currentMemoryUsage > ro.config.MemoryThreshold:
		loadFactor = 0.8
	}

	workers := int(float64(base) * memoryFactor * loadFactor)
	workers = max(ro.config.MinWorkers, min(workers, ro.config.MaxWorkers))

	ro.optimal = OptimalConcurrency{
		MaxFanOut:       workers,
		MaxWarmers:      max(1, workers/2),
		MemoryThreshold: ro.config.MemoryThreshold,
		CPUThreshold:    ro.config.CPUThreshold,
	}
	ro.lastOptimization = time.Now()
}

// MaxFanOut is the number of concurrent adapter calls a snapshot may issue.
func (ro *ResourceOptimizer) MaxFanOut() int {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return ro.optimal.MaxFanOut
}

// Optimal returns the current limits.
func (ro *ResourceOptimizer) Optimal() OptimalConcurrency {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return ro.optimal
}

// UpdateSystemMetrics samples CPU and memory usage and recomputes limits.
// The CPU sample blocks for one second.
func (ro *ResourceOptimizer) UpdateSystemMetrics(ctx context.Context) error {
	cpuPercent, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return fmt.Errorf("failed to get CPU usage: %w", err)
	}
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get memory usage: %w", err)
	}

	ro.mu.Lock()
	if len(cpuPercent) > 0 {
		ro.currentCPUUsage = cpuPercent[0]
	}
	ro.currentMemoryUsage = memInfo.UsedPercent
	ro.mu.Unlock()

	ro.recalculate()
	return nil
}

// SystemInfo reports the host and the limits derived from it.
func (ro *ResourceOptimizer) SystemInfo() SystemInfo {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return SystemInfo{
		CPUCores:         ro.cpuCores,
		MemoryGB:         ro.memoryGB,
		CPUUsage:         ro.currentCPUUsage,
		MemoryUsage:      ro.currentMemoryUsage,
		Goroutines:       runtime.NumGoroutine(),
		LastOptimization: ro.lastOptimization,
		Optimal:          ro.optimal,
	}
}

// Start refreshes metrics every interval until ctx is done.
func (ro *ResourceOptimizer) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ro.UpdateSystemMetrics(ctx); err != nil && ctx.Err() == nil {
					ro.logger.WithError(err).Warn("Failed to refresh system metrics")
				}
			}
		}
	}()
}
