/*
vkcore brings up a logical device from a TOML configuration, either on a
simulated GPU profile or on the Vulkan driver with a window surface, and
keeps it running until interrupted.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spaghettifunk/vkcore/engine"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/platform"
	"github.com/spaghettifunk/vkcore/engine/renderer/vulkan"
	"github.com/spaghettifunk/vkcore/engine/systems"
	"github.com/spaghettifunk/vkcore/testbed"
)

const defaultConfigPath = "vkcore.toml"

func main() {
	configPath := flag.String("config", "", "path to the TOML configuration (default vkcore.toml when present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		core.LogFatal("vkcore: %s", err)
	}
}

func run(configPath string) error {
	if configPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			configPath = defaultConfigPath
		}
	}

	config := engine.DefaultConfig()
	if configPath != "" {
		c, err := engine.LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = c
	}
	core.SetLogLevel(config.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch config.Driver.Kind {
	case engine.DriverVulkan:
		return runVulkan(ctx, config, configPath)
	default:
		driver, err := headlessDriver(config.Driver.Profile)
		if err != nil {
			return err
		}
		return runEngine(ctx, config, configPath, driver, nil)
	}
}

// headlessDriver takes either a builtin profile name or a path to a profile file.
func headlessDriver(profile string) (*testbed.HeadlessDriver, error) {
	var (
		p   *testbed.Profile
		err error
	)
	if strings.HasSuffix(profile, ".toml") || strings.ContainsRune(profile, filepath.Separator) {
		p, err = testbed.LoadProfile(profile)
	} else {
		p, err = testbed.BuiltinProfile(profile)
	}
	if err != nil {
		return nil, err
	}
	return testbed.NewHeadlessDriver(p)
}

func runVulkan(ctx context.Context, config *engine.Config, configPath string) error {
	p := platform.New()
	app := config.Application
	if err := p.Startup(app.Name, app.StartWidth, app.StartHeight, true); err != nil {
		return err
	}
	defer func() {
		if err := p.Shutdown(); err != nil {
			core.LogError(err.Error())
		}
	}()

	driver, err := vulkan.NewDriver(vulkan.DriverConfig{
		ApplicationName: app.Name,
		Validation:      config.Driver.Validation,
	}, p)
	if err != nil {
		return err
	}
	defer driver.Destroy()

	return runEngine(ctx, config, configPath, driver, p)
}

// runEngine drives the engine until ctx is done. With a window, the calling
// goroutine pumps its events and follows framebuffer resizes.
func runEngine(ctx context.Context, config *engine.Config, configPath string, driver systems.Driver, window *platform.Platform) error {
	e, err := engine.New(config, configPath, driver)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return errors.Join(err, e.Shutdown())
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	if window != nil {
		pumpWindow(ctx, cancel, e, window)
	}

	runErr := <-done
	return errors.Join(runErr, e.Shutdown())
}

var errWindowClosed = errors.New("window closed")

func pumpWindow(ctx context.Context, cancel context.CancelCauseFunc, e *engine.Engine, window *platform.Platform) {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	width, height := window.FramebufferSize()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !window.PumpMessages() {
			cancel(errWindowClosed)
			return
		}
		w, h := window.FramebufferSize()
		if w == width && h == height {
			continue
		}
		width, height = w, h
		// Minimized; keep the old swapchain until there is something to draw to.
		if w == 0 || h == 0 || !e.Config.Swapchain.Enabled {
			continue
		}
		params := e.Config.SwapchainParameters()
		params.Width, params.Height = w, h
		if _, _, err := e.SystemManager().DeviceSystem().ConfigureSwapchain(params); err != nil {
			core.LogError("Swapchain resize to %dx%d failed: %s", w, h, err)
		}
	}
}
