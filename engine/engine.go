package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/vkcore/engine/assets"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageBootComplete:
		return "boot complete"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

var ErrInvalidStage = errors.New("operation not allowed in the current engine stage")

type Engine struct {
	Config *Config

	currentStage  Stage
	configPath    string
	systemManager *systems.SystemManager
	watcher       *assets.ConfigWatcher
}

// New builds the engine around driver. When configPath is not empty and the
// application asks for it, the file is watched and reloaded while running.
func New(config *Config, configPath string, driver systems.Driver) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	e := &Engine{
		Config:       config,
		configPath:   configPath,
		currentStage: EngineStageBooting,
	}
	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(config.Log.Level)

	sm, err := systems.NewSystemManager(config.DeviceCreateInfo(), driver)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.systemManager = sm

	if configPath != "" && config.Application.WatchConfig {
		w, err := assets.NewConfigWatcher(configPath)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		e.watcher = w
	}

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

// Initialize creates the device and, if enabled, the first swapchain.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("func Initialize - %w: %s", ErrInvalidStage, e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	if err := e.systemManager.Initialize(); err != nil {
		e.currentStage = EngineStageBootComplete
		return err
	}

	if e.Config.Swapchain.Enabled {
		sc, _, err := e.systemManager.DeviceSystem().ConfigureSwapchain(e.Config.SwapchainParameters())
		if err != nil {
			core.LogError("Failed to create the swapchain: %s", err)
			e.systemManager.Shutdown()
			e.currentStage = EngineStageBootComplete
			return err
		}
		core.LogInfo("Swapchain ready: %dx%d, %d images, %s.", sc.Parameters.Width, sc.Parameters.Height, sc.ImageCount, sc.PresentMode)
	}

	if e.watcher != nil {
		if err := e.watcher.Start(); err != nil {
			core.LogWarn("Configuration reload disabled: %s", err)
			if err := e.watcher.Close(); err != nil {
				core.LogWarn("Closing the configuration watcher: %s", err)
			}
			e.watcher = nil
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized.", e.Config.Application.Name)
	return nil
}

// Run blocks until ctx is done, applying configuration reloads and
// reporting device statistics in the meantime.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("func Run - %w: %s", ErrInvalidStage, e.currentStage)
	}
	e.currentStage = EngineStageRunning
	defer func() {
		if e.currentStage == EngineStageRunning {
			e.currentStage = EngineStageInitialized
		}
	}()

	var reloads <-chan string
	var watchErrors <-chan error
	if e.watcher != nil {
		reloads = e.watcher.Events()
		watchErrors = e.watcher.Errors()
	}

	var ticker *time.Ticker
	var ticks <-chan time.Time
	interval := uint32(0)
	resetTicker := func() {
		if e.Config.Log.StatsInterval == interval {
			return
		}
		interval = e.Config.Log.StatsInterval
		if ticker != nil {
			ticker.Stop()
			ticker, ticks = nil, nil
		}
		if interval > 0 {
			ticker = time.NewTicker(time.Duration(interval) * time.Second)
			ticks = ticker.C
		}
	}
	resetTicker()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			core.LogInfo("Stopping: %s", context.Cause(ctx))
			return nil
		case path, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			if err := e.Reload(); err != nil {
				core.LogError("Ignoring the new contents of %s: %s", path, err)
				continue
			}
			resetTicker()
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			core.LogWarn("Configuration watcher: %s", err)
		case <-ticks:
			e.logStats()
		}
	}
}

// Reload reads the configuration file again and applies the settings that
// can change on a live device. A broken file leaves everything as it was.
func (e *Engine) Reload() error {
	if e.configPath == "" {
		return fmt.Errorf("func Reload - no configuration file")
	}
	next, err := LoadConfig(e.configPath)
	if err != nil {
		return err
	}
	if e.Config.RequiresRestart(next) {
		core.LogWarn("Device settings in %s changed; they apply after a restart.", e.configPath)
	}
	if err := e.systemManager.ApplyConfig(next.RuntimeConfig()); err != nil {
		return err
	}
	e.Config.Log = next.Log
	e.Config.Cache = next.Cache
	core.LogInfo("Configuration reloaded from %s.", e.configPath)
	return nil
}

func (e *Engine) logStats() {
	stats := e.systemManager.DeviceSystem().Stats()
	core.LogDebug("buffers=%d images=%d framebuffers=%d/%d hits=%d misses=%d evictions=%d",
		stats.Resources.LiveBuffers, stats.Resources.LiveImages,
		stats.Framebuffers.Live, stats.Framebuffers.Capacity,
		stats.Framebuffers.Cache.Hits, stats.Framebuffers.Cache.Misses, stats.Framebuffers.Cache.Evictions)
}

// Shutdown stops watching and tears the device down. Calling it again is a no-op.
func (e *Engine) Shutdown() error {
	switch e.currentStage {
	case EngineStageShutdown, EngineStageShuttingDown:
		return nil
	case EngineStageRunning:
		return fmt.Errorf("func Shutdown - %w: stop Run first", ErrInvalidStage)
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	errs = append(errs, e.systemManager.Shutdown())

	e.currentStage = EngineStageShutdown
	core.LogInfo("%s shut down.", e.Config.Application.Name)
	return errors.Join(errs...)
}
