package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/platform"
	"github.com/spaghettifunk/vkcore/engine/systems"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var _ systems.Driver = (*VulkanDriver)(nil)

type DriverConfig struct {
	ApplicationName string
	// Enable the Khronos validation layer and route its reports to the logger.
	Validation bool
}

/**
 * @brief A native Vulkan backend for the device system. The instance, debug
 * callback and surface live as long as the driver; the logical device and
 * everything created on it come and go with CreateDevice/DestroyDevice.
 */
type VulkanDriver struct {
	Config   DriverConfig
	platform *platform.Platform
	context  *VulkanContext

	// guards the object registries below; the device system already
	// serializes calls per resource kind when it is shared
	mutex        sync.Mutex
	renderpasses map[uint64]*VulkanRenderpass
	nextPass     uint64
}

func NewDriver(config DriverConfig, p *platform.Platform) (*VulkanDriver, error) {
	procAddr, err := p.ProcAddress()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	vd := &VulkanDriver{
		Config:       config,
		platform:     p,
		context:      &VulkanContext{Allocator: nil},
		renderpasses: make(map[uint64]*VulkanRenderpass),
	}
	if err := vd.createInstance(); err != nil {
		return nil, err
	}
	if err := vd.createSurface(); err != nil {
		vd.Destroy()
		return nil, err
	}
	if err := vd.enumeratePhysicalDevices(); err != nil {
		vd.Destroy()
		return nil, err
	}
	return vd, nil
}

func (vd *VulkanDriver) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vd.Config.ApplicationName),
		PEngineName:        VulkanSafeString("vkcore"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{vk.KhrSurfaceExtensionName}
	requiredExtensions = append(requiredExtensions, vd.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if vd.Config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		if err := checkInstanceLayers(validationLayer); err != nil {
			core.LogError(err.Error())
			return err
		}
		layers = []string{validationLayer}
	}
	for _, e := range requiredExtensions {
		core.LogDebug("Instance extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, vd.context.Allocator, &vd.context.Instance)); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vd.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vd.Config.Validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallbackEXT", vk.CreateDebugReportCallback(vd.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError(err.Error())
			return err
		}
		vd.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkInstanceLayers(required ...string) error {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	names := make(map[string]bool, count)
	for i := range available {
		available[i].Deref()
		names[cString(available[i].LayerName[:])] = true
	}
	for _, r := range required {
		if !names[r] {
			return fmt.Errorf("%w: layer %s", ErrFeatureNotPresent, r)
		}
	}
	return nil
}

func (vd *VulkanDriver) createSurface() error {
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vd.platform.CreateSurface(vd.context.Instance)
	if err != nil {
		core.LogError("Failed to create platform surface: %s", err)
		return err
	}
	vd.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")
	return nil
}

func (vd *VulkanDriver) enumeratePhysicalDevices() error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(vd.context.Instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: no devices which support Vulkan were found", ErrInvalidGPU)
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(vd.context.Instance, &count, devices)); err != nil {
		return err
	}
	vd.context.PhysicalDevices = devices

	for i, pd := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		core.LogInfo("GPU %d: '%s' (%s), Vulkan %d.%d.%d", i, cString(properties.DeviceName[:]), deviceTypeName(properties.DeviceType),
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch())
	}
	return nil
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "unknown"
}

// Destroy releases the instance level objects. The logical device must be
// destroyed first.
func (vd *VulkanDriver) Destroy() {
	if vd.context.Device != nil {
		vd.DestroyDevice()
	}
	if vd.context.Surface != vk.NullSurface {
		vk.DestroySurface(vd.context.Instance, vd.context.Surface, vd.context.Allocator)
		vd.context.Surface = vk.NullSurface
	}
	if vd.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vd.context.Instance, vd.context.debugMessenger, vd.context.Allocator)
		vd.context.debugMessenger = vk.NullDebugReportCallback
	}
	if vd.context.Instance != nil {
		vk.DestroyInstance(vd.context.Instance, vd.context.Allocator)
		vd.context.Instance = nil
	}
	core.LogInfo("Vulkan instance destroyed.")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
