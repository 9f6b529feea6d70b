package systems

import (
	"github.com/spaghettifunk/vkcore/engine/core"
)

/** @brief Settings that can change while the device is running. */
type RuntimeConfig struct {
	LogLevel                 core.LogLevel
	FramebufferCacheCapacity uint32
}

type SystemManager struct {
	deviceSystem *DeviceSystem
}

func NewSystemManager(config *DeviceCreateInfo, driver Driver) (*SystemManager, error) {
	ds, err := NewDeviceSystem(config, driver)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		deviceSystem: ds,
	}, nil
}

func (sm *SystemManager) Initialize() error {
	return sm.deviceSystem.Initialize()
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.deviceSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}

func (sm *SystemManager) DeviceSystem() *DeviceSystem {
	return sm.deviceSystem
}

// ApplyConfig updates the settings that do not require recreating the device.
// Nothing changes when any of them is rejected.
func (sm *SystemManager) ApplyConfig(config RuntimeConfig) error {
	if config.FramebufferCacheCapacity != sm.deviceSystem.Config.FramebufferCacheCapacity {
		evicted, err := sm.deviceSystem.ResizeFramebufferCache(config.FramebufferCacheCapacity)
		if err != nil {
			core.LogError("Failed to resize the framebuffer cache: %s", err)
			return err
		}
		core.LogInfo("Framebuffer cache capacity set to %d, %d entries evicted.", config.FramebufferCacheCapacity, evicted)
	}
	core.SetLogLevel(config.LogLevel)
	return nil
}
