package metadata

import (
	"fmt"

	"github.com/spaghettifunk/vkcore/engine/core"
)

/** @brief Image usage bits. Values follow VkImageUsageFlagBits. */
type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x01
	ImageUsageTransferDst            ImageUsage = 0x02
	ImageUsageSampled                ImageUsage = 0x04
	ImageUsageStorage                ImageUsage = 0x08
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

/**
 * @brief Parameters for creating a device image.
 */
type ImageCreateInfo struct {
	Width  uint32
	Height uint32
	/** @brief Zero means 1. */
	Depth uint32
	/** @brief Zero means 1. */
	MipLevels uint32
	/** @brief Zero means 1. */
	ArrayLayers uint32
	Format      Format
	Usage       ImageUsage
	MemoryUsage MemoryUsage
	/** @brief Debug name. */
	Label string
}

// Normalize replaces zero depth, mip and layer counts with 1.
func (ci *ImageCreateInfo) Normalize() {
	if ci.Depth == 0 {
		ci.Depth = 1
	}
	if ci.MipLevels == 0 {
		ci.MipLevels = 1
	}
	if ci.ArrayLayers == 0 {
		ci.ArrayLayers = 1
	}
}

func (ci *ImageCreateInfo) Validate() error {
	if ci.Width == 0 || ci.Height == 0 {
		return fmt.Errorf("%w: image %q has extent %dx%d", core.ErrInvalidCreateInfo, ci.Label, ci.Width, ci.Height)
	}
	if ci.Format == FormatUndefined {
		return fmt.Errorf("%w: image %q has no format", core.ErrInvalidCreateInfo, ci.Label)
	}
	if ci.Usage == 0 {
		return fmt.Errorf("%w: image %q has no usage", core.ErrInvalidCreateInfo, ci.Label)
	}
	if ci.Usage&ImageUsageDepthStencilAttachment != 0 && !ci.Format.IsDepth() {
		return fmt.Errorf("%w: image %q is a depth attachment with a color format", core.ErrInvalidCreateInfo, ci.Label)
	}
	return nil
}

/**
 * @brief A device image owned by the resource pool, with a default view.
 */
type Image struct {
	Width       uint32
	Height      uint32
	Depth       uint32
	MipLevels   uint32
	ArrayLayers uint32
	Format      Format
	Usage       ImageUsage
	MemoryUsage MemoryUsage
	Label       string
	/** @brief The backend-specific image, memory and view. */
	InternalData interface{}
}
