package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
	// Host address of the memory while it is mapped.
	mapped unsafe.Pointer
}

func (vd *VulkanDriver) CreateBuffer(info *metadata.BufferCreateInfo) (*metadata.Buffer, error) {
	device := vd.context.Device
	if device == nil {
		return nil, ErrNoDevice
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	vb := &VulkanBuffer{Size: vk.DeviceSize(info.Size)}
	if err := check("vkCreateBuffer", vk.CreateBuffer(device.LogicalDevice, &bufferCreateInfo, vd.context.Allocator, &vb.Handle)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device.LogicalDevice, vb.Handle, &reqs)
	memory, err := vd.context.allocate(reqs, info.MemoryUsage)
	if err != nil {
		vk.DestroyBuffer(device.LogicalDevice, vb.Handle, vd.context.Allocator)
		return nil, err
	}
	vb.Memory = memory
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(device.LogicalDevice, vb.Handle, vb.Memory, 0)); err != nil {
		vd.destroyBuffer(vb)
		return nil, err
	}

	buffer := &metadata.Buffer{
		Size:         info.Size,
		Usage:        info.Usage,
		MemoryUsage:  info.MemoryUsage,
		Label:        info.Label,
		InternalData: vb,
	}
	if len(info.InitialData) > 0 || info.MapPersistently {
		if err := check("vkMapMemory", vk.MapMemory(device.LogicalDevice, vb.Memory, 0, vb.Size, 0, &vb.mapped)); err != nil {
			vd.destroyBuffer(vb)
			return nil, err
		}
		if len(info.InitialData) > 0 {
			vk.Memcopy(vb.mapped, info.InitialData)
		}
		if info.MapPersistently {
			buffer.Mapped = unsafe.Slice((*byte)(vb.mapped), info.Size)
		} else {
			vk.UnmapMemory(device.LogicalDevice, vb.Memory)
			vb.mapped = nil
		}
	}
	core.LogDebug("Buffer '%s' created: %d bytes in %s memory.", info.Label, info.Size, info.MemoryUsage)
	return buffer, nil
}

func (vd *VulkanDriver) DestroyBuffer(buffer *metadata.Buffer) {
	vb, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok || vd.context.Device == nil {
		core.LogWarn("DestroyBuffer called with a buffer '%s' this driver does not own.", buffer.Label)
		return
	}
	buffer.Mapped = nil
	vd.destroyBuffer(vb)
}

func (vd *VulkanDriver) destroyBuffer(vb *VulkanBuffer) {
	logical := vd.context.Device.LogicalDevice
	if vb.mapped != nil {
		vk.UnmapMemory(logical, vb.Memory)
		vb.mapped = nil
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(logical, vb.Handle, vd.context.Allocator)
		vb.Handle = vk.NullBuffer
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(logical, vb.Memory, vd.context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
}
