package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

type VulkanDevice struct {
	Name           string
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Extensions     []string
	Queues         metadata.QueueRoleMap

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties
}

func (vd *VulkanDriver) AvailableExtensions(gpu uint32) ([]string, error) {
	pd, err := vd.context.physicalDevice(gpu)
	if err != nil {
		return nil, err
	}
	var count uint32
	if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)); err != nil {
		return nil, err
	}
	available := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &count, available)); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, count)
	for i := range available {
		available[i].Deref()
		names = append(names, cString(available[i].ExtensionName[:]))
	}
	return names, nil
}

// QueueFamilies reports every family with presentation support checked
// against the driver's surface.
func (vd *VulkanDriver) QueueFamilies(gpu uint32) ([]metadata.QueueFamilyProperties, error) {
	pd, err := vd.context.physicalDevice(gpu)
	if err != nil {
		return nil, err
	}
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	out := make([]metadata.QueueFamilyProperties, count)
	for i := range families {
		families[i].Deref()
		var flags metadata.QueueFlags
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			flags |= metadata.QueueFlagGraphics
		}
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			flags |= metadata.QueueFlagCompute
		}
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
			flags |= metadata.QueueFlagTransfer
		}
		if vd.context.Surface != vk.NullSurface {
			var supportsPresent vk.Bool32 = vk.False
			if err := check("vkGetPhysicalDeviceSurfaceSupportKHR", vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), vd.context.Surface, &supportsPresent)); err != nil {
				return nil, err
			}
			if supportsPresent == vk.True {
				flags |= metadata.QueueFlagPresent
			}
		}
		out[i] = metadata.QueueFamilyProperties{Flags: flags, QueueCount: families[i].QueueCount}
		core.LogDebug("GPU %d queue family %d: %s x%d", gpu, i, flags, families[i].QueueCount)
	}
	return out, nil
}

// CreateDevice requests, for each family in use, as many queues as the
// highest queue index assigned in it.
func (vd *VulkanDriver) CreateDevice(descriptor *metadata.DeviceDescriptor) error {
	if vd.context.Device != nil {
		return fmt.Errorf("func CreateDevice - device '%s' still exists", vd.context.Device.Name)
	}
	pd, err := vd.context.physicalDevice(descriptor.GPUGroupIndex)
	if err != nil {
		return err
	}

	requests := descriptor.Queues.Families()
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(requests))
	for i, r := range requests {
		priorities := make([]float32, r.QueueCount)
		for j := range priorities {
			priorities[j] = 1.0
		}
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: r.FamilyIndex,
			QueueCount:       r.QueueCount,
			PQueuePriorities: priorities,
		}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(descriptor.Extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(descriptor.Extensions),
	}

	var logical vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(pd, &deviceCreateInfo, vd.context.Allocator, &logical)); err != nil {
		core.LogError("Failed to create logical device '%s': %s", descriptor.Name, err)
		return err
	}

	device := &VulkanDevice{
		Name:           descriptor.Name,
		PhysicalDevice: pd,
		LogicalDevice:  logical,
		Extensions:     slices.Clone(descriptor.Extensions),
		Queues:         descriptor.Queues,
	}
	vk.GetPhysicalDeviceProperties(pd, &device.Properties)
	device.Properties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(pd, &device.Memory)
	device.Memory.Deref()
	vd.context.Device = device

	core.LogInfo("Logical device '%s' created on '%s' with %d queue families.", descriptor.Name, cString(device.Properties.DeviceName[:]), len(requests))
	return nil
}

func (vd *VulkanDriver) Queue(assignment metadata.QueueAssignment) (*metadata.Queue, error) {
	device := vd.context.Device
	if device == nil {
		return nil, ErrNoDevice
	}
	requested := false
	for _, r := range device.Queues.Families() {
		if r.FamilyIndex == assignment.FamilyIndex && assignment.QueueIndex < r.QueueCount {
			requested = true
		}
	}
	if !requested {
		return nil, fmt.Errorf("func Queue - %s was not requested at device creation", assignment)
	}
	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, assignment.FamilyIndex, assignment.QueueIndex, &queue)
	return &metadata.Queue{Assignment: assignment, InternalData: queue}, nil
}

func (vd *VulkanDriver) WaitIdle() error {
	if vd.context.Device == nil {
		return ErrNoDevice
	}
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(vd.context.Device.LogicalDevice))
}

// DestroyDevice also drops the render passes, which belong to the device.
func (vd *VulkanDriver) DestroyDevice() {
	device := vd.context.Device
	if device == nil {
		return
	}
	vd.mutex.Lock()
	for id, rp := range vd.renderpasses {
		rp.RenderpassDestroy(vd.context)
		delete(vd.renderpasses, id)
	}
	vd.mutex.Unlock()

	core.LogInfo("Destroying logical device '%s'...", device.Name)
	vk.DestroyDevice(device.LogicalDevice, vd.context.Allocator)
	vd.context.Device = nil
}
