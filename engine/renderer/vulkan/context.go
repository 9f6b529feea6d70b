package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

/**
 * @brief Instance level state shared by every object the driver creates.
 */
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	// Null when the driver runs without a window.
	Surface vk.Surface

	debugMessenger vk.DebugReportCallback

	// Physical devices in enumeration order; the GPU group index selects one.
	PhysicalDevices []vk.PhysicalDevice

	// The logical device, nil until CreateDevice succeeds.
	Device *VulkanDevice
}

func (vc *VulkanContext) physicalDevice(gpu uint32) (vk.PhysicalDevice, error) {
	if int(gpu) >= len(vc.PhysicalDevices) {
		return nil, fmt.Errorf("%w: gpu %d, %d available", ErrInvalidGPU, gpu, len(vc.PhysicalDevices))
	}
	return vc.PhysicalDevices[gpu], nil
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every bit of propertyFlags, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	memory := &vc.Device.Memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memory.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// memoryProperties maps a memory usage to the property flags required and,
// when possible, preferred on top of them.
func memoryProperties(usage metadata.MemoryUsage) (required, preferred vk.MemoryPropertyFlagBits) {
	switch usage {
	case metadata.MemoryUsageCPUToGPU:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit, vk.MemoryPropertyDeviceLocalBit
	case metadata.MemoryUsageGPUToCPU:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit, vk.MemoryPropertyHostCachedBit
	case metadata.MemoryUsageCPUOnly:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit, 0
	}
	return vk.MemoryPropertyDeviceLocalBit, 0
}

// allocate picks a memory type for reqs and usage and allocates from it.
func (vc *VulkanContext) allocate(reqs vk.MemoryRequirements, usage metadata.MemoryUsage) (vk.DeviceMemory, error) {
	reqs.Deref()
	required, preferred := memoryProperties(usage)
	index := int32(-1)
	if preferred != 0 {
		index = vc.FindMemoryIndex(reqs.MemoryTypeBits, uint32(required|preferred))
	}
	if index < 0 {
		index = vc.FindMemoryIndex(reqs.MemoryTypeBits, uint32(required))
	}
	if index < 0 {
		return nil, ErrNoSuitableMemory
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(vc.Device.LogicalDevice, &allocateInfo, vc.Allocator, &memory)); err != nil {
		return nil, err
	}
	return memory, nil
}
