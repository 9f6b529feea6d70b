package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"github.com/spaghettifunk/vkcore/engine/systems"
	"golang.org/x/exp/slices"
)

type DriverKind string

const (
	DriverHeadless DriverKind = "headless"
	DriverVulkan   DriverKind = "vulkan"
)

type LogConfig struct {
	Level core.LogLevel `toml:"level"`
	// Seconds between two device statistics reports while running. Zero disables them.
	StatsInterval uint32 `toml:"stats_interval"`
}

type DriverConfig struct {
	Kind DriverKind `toml:"kind"`
	// Builtin profile name or path to a TOML hardware profile, headless only.
	Profile string `toml:"profile"`
	// Enable the Khronos validation layer, vulkan only.
	Validation bool `toml:"validation"`
}

type DeviceConfig struct {
	GPUGroupIndex      uint32               `toml:"gpu_group_index"`
	RequiredExtensions []string             `toml:"required_extensions"`
	OptionalExtensions []string             `toml:"optional_extensions"`
	RequiredQueues     []metadata.QueueRole `toml:"required_queues"`
	OptionalQueues     []metadata.QueueRole `toml:"optional_queues"`
	QueuePriority      []metadata.QueueRole `toml:"queue_priority"`
	ThreadSafe         bool                 `toml:"thread_safe"`
}

type CacheConfig struct {
	FramebufferCapacity uint32 `toml:"framebuffer_capacity"`
}

type PoolConfig struct {
	BufferCapacity uint32 `toml:"buffer_capacity"`
	ImageCapacity  uint32 `toml:"image_capacity"`
}

type SwapchainConfig struct {
	Enabled         bool            `toml:"enabled"`
	ImageCount      uint32          `toml:"image_count"`
	Format          metadata.Format `toml:"format"`
	VSync           bool            `toml:"vsync"`
	AllowFrameDrops bool            `toml:"allow_frame_drops"`
}

/** @brief The whole process configuration, as read from a TOML file. */
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Log         LogConfig         `toml:"log"`
	Driver      DriverConfig      `toml:"driver"`
	Device      DeviceConfig      `toml:"device"`
	Cache       CacheConfig       `toml:"cache"`
	Pool        PoolConfig        `toml:"pool"`
	Swapchain   SwapchainConfig   `toml:"swapchain"`
}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:        "vkcore",
			StartWidth:  1280,
			StartHeight: 720,
		},
		Log: LogConfig{
			Level: core.InfoLevel,
		},
		Driver: DriverConfig{
			Kind:    DriverHeadless,
			Profile: "discrete",
		},
		Device: DeviceConfig{
			RequiredExtensions: []string{metadata.ExtensionSwapchain},
			OptionalExtensions: []string{metadata.ExtensionValidationCache},
			RequiredQueues:     []metadata.QueueRole{metadata.QueueRoleGraphics, metadata.QueueRolePresent},
			OptionalQueues:     []metadata.QueueRole{metadata.QueueRoleAsyncTransfer, metadata.QueueRoleAsyncCompute},
		},
		Cache: CacheConfig{
			FramebufferCapacity: 64,
		},
		Pool: PoolConfig{
			BufferCapacity: 256,
			ImageCapacity:  128,
		},
		Swapchain: SwapchainConfig{
			Enabled:    true,
			ImageCount: 3,
			Format:     metadata.FormatB8G8R8A8Srgb,
			VSync:      true,
		},
	}
}

// LoadConfig reads path on top of the defaults. Keys the file does not set
// keep their default value, unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("func LoadConfig - %w", err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("func LoadConfig - %s: %w", path, err)
	}
	return config, nil
}

func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, strict.String())
		}
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Application.Name == "" {
		errs = append(errs, errors.New("application name is empty"))
	}
	switch c.Driver.Kind {
	case DriverHeadless:
		if c.Driver.Profile == "" {
			errs = append(errs, errors.New("headless driver needs a profile"))
		}
	case DriverVulkan:
	default:
		errs = append(errs, fmt.Errorf("unknown driver kind %q", c.Driver.Kind))
	}
	if c.Cache.FramebufferCapacity == 0 {
		errs = append(errs, errors.New("framebuffer cache capacity must be > 0"))
	}
	if len(c.Device.RequiredQueues) == 0 {
		errs = append(errs, errors.New("at least one queue role is required"))
	}
	for _, r := range c.Device.RequiredQueues {
		if slices.Contains(c.Device.OptionalQueues, r) {
			errs = append(errs, fmt.Errorf("queue role %s is both required and optional", r))
		}
	}
	if _, err := systems.NewQueueSelector(c.Device.QueuePriority); err != nil {
		errs = append(errs, err)
	}
	if c.Swapchain.Enabled {
		if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
			errs = append(errs, errors.New("swapchain needs a non-zero width and height"))
		}
		if !slices.Contains(c.Device.RequiredQueues, metadata.QueueRolePresent) && !slices.Contains(c.Device.OptionalQueues, metadata.QueueRolePresent) {
			errs = append(errs, errors.New("swapchain needs the present queue role"))
		}
		if c.Swapchain.Format.IsDepth() {
			errs = append(errs, fmt.Errorf("swapchain format %s is a depth format", c.Swapchain.Format))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
}

// DeviceCreateInfo converts the device related sections for the orchestrator.
func (c *Config) DeviceCreateInfo() *systems.DeviceCreateInfo {
	return &systems.DeviceCreateInfo{
		GPUGroupIndex:            c.Device.GPUGroupIndex,
		RequiredExtensions:       slices.Clone(c.Device.RequiredExtensions),
		OptionalExtensions:       slices.Clone(c.Device.OptionalExtensions),
		RequiredQueues:           slices.Clone(c.Device.RequiredQueues),
		OptionalQueues:           slices.Clone(c.Device.OptionalQueues),
		QueuePriority:            slices.Clone(c.Device.QueuePriority),
		FramebufferCacheCapacity: c.Cache.FramebufferCapacity,
		BufferPoolCapacity:       c.Pool.BufferCapacity,
		ImagePoolCapacity:        c.Pool.ImageCapacity,
		ThreadSafe:               c.Device.ThreadSafe,
	}
}

// RuntimeConfig is the part of the configuration that applies without
// recreating the device.
func (c *Config) RuntimeConfig() systems.RuntimeConfig {
	return systems.RuntimeConfig{
		LogLevel:                 c.Log.Level,
		FramebufferCacheCapacity: c.Cache.FramebufferCapacity,
	}
}

func (c *Config) SwapchainParameters() metadata.SwapchainParameters {
	return metadata.SwapchainParameters{
		Width:           c.Application.StartWidth,
		Height:          c.Application.StartHeight,
		ImageCount:      c.Swapchain.ImageCount,
		Format:          c.Swapchain.Format,
		EnableVSync:     c.Swapchain.VSync,
		AllowFrameDrops: c.Swapchain.AllowFrameDrops,
	}
}

// RequiresRestart reports whether next differs from c in anything that was
// fixed when the device was created.
func (c *Config) RequiresRestart(next *Config) bool {
	a, b := c.Device, next.Device
	return c.Driver != next.Driver ||
		c.Pool != next.Pool ||
		c.Swapchain != next.Swapchain ||
		c.Application.StartWidth != next.Application.StartWidth ||
		c.Application.StartHeight != next.Application.StartHeight ||
		a.GPUGroupIndex != b.GPUGroupIndex ||
		a.ThreadSafe != b.ThreadSafe ||
		!slices.Equal(a.RequiredExtensions, b.RequiredExtensions) ||
		!slices.Equal(a.OptionalExtensions, b.OptionalExtensions) ||
		!slices.Equal(a.RequiredQueues, b.RequiredQueues) ||
		!slices.Equal(a.OptionalQueues, b.OptionalQueues) ||
		!slices.Equal(a.QueuePriority, b.QueuePriority)
}
