package metadata

import (
	"fmt"

	"github.com/spaghettifunk/vkcore/engine/core"
)

/** @brief Buffer usage bits. Values follow VkBufferUsageFlagBits. */
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x001
	BufferUsageTransferDst BufferUsage = 0x002
	BufferUsageUniform     BufferUsage = 0x010
	BufferUsageStorage     BufferUsage = 0x020
	BufferUsageIndex       BufferUsage = 0x040
	BufferUsageVertex      BufferUsage = 0x080
	BufferUsageIndirect    BufferUsage = 0x100
)

/**
 * @brief Parameters for creating a device buffer.
 */
type BufferCreateInfo struct {
	/** @brief Size in bytes. */
	Size        uint64
	Usage       BufferUsage
	MemoryUsage MemoryUsage
	/** @brief Keep the buffer mapped for its whole lifetime. Requires host-visible memory. */
	MapPersistently bool
	/** @brief Copied into the buffer right after creation when not empty. */
	InitialData []byte
	/** @brief Debug name. */
	Label string
}

func (ci *BufferCreateInfo) Validate() error {
	if ci.Size == 0 {
		return fmt.Errorf("%w: buffer %q has zero size", core.ErrInvalidCreateInfo, ci.Label)
	}
	if ci.Usage == 0 {
		return fmt.Errorf("%w: buffer %q has no usage", core.ErrInvalidCreateInfo, ci.Label)
	}
	if uint64(len(ci.InitialData)) > ci.Size {
		return fmt.Errorf("%w: buffer %q initial data is %d bytes, buffer holds %d",
			core.ErrInvalidCreateInfo, ci.Label, len(ci.InitialData), ci.Size)
	}
	if ci.MapPersistently && !ci.MemoryUsage.HostVisible() {
		return fmt.Errorf("%w: buffer %q cannot stay mapped in %s memory",
			core.ErrInvalidCreateInfo, ci.Label, ci.MemoryUsage)
	}
	return nil
}

/**
 * @brief A device buffer owned by the resource pool.
 */
type Buffer struct {
	Size        uint64
	Usage       BufferUsage
	MemoryUsage MemoryUsage
	Label       string
	/** @brief Host view of the memory while persistently mapped, nil otherwise. */
	Mapped []byte
	/** @brief The backend-specific buffer and its memory. */
	InternalData interface{}
}
