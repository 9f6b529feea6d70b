package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

func imageAspect(format metadata.Format) vk.ImageAspectFlags {
	switch format {
	case metadata.FormatD32Sfloat:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case metadata.FormatD24UnormS8Uint, metadata.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// CreateImage creates a 2D (or 3D when Depth > 1) optimally tiled image and
// a default view over all of its mips and layers.
func (vd *VulkanDriver) CreateImage(info *metadata.ImageCreateInfo) (*metadata.Image, error) {
	device := vd.context.Device
	if device == nil {
		return nil, ErrNoDevice
	}

	imageType, viewType := vk.ImageType2d, vk.ImageViewType2d
	switch {
	case info.Depth > 1:
		imageType, viewType = vk.ImageType3d, vk.ImageViewType3d
	case info.ArrayLayers > 1:
		viewType = vk.ImageViewType2dArray
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  info.Depth,
		},
		MipLevels:     info.MipLevels,
		ArrayLayers:   info.ArrayLayers,
		Format:        vk.Format(info.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(info.Usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	vi := &VulkanImage{Width: info.Width, Height: info.Height}
	if err := check("vkCreateImage", vk.CreateImage(device.LogicalDevice, &imageCreateInfo, vd.context.Allocator, &vi.Handle)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device.LogicalDevice, vi.Handle, &reqs)
	memory, err := vd.context.allocate(reqs, info.MemoryUsage)
	if err != nil {
		vd.destroyImage(vi)
		return nil, err
	}
	vi.Memory = memory
	if err := check("vkBindImageMemory", vk.BindImageMemory(device.LogicalDevice, vi.Handle, vi.Memory, 0)); err != nil {
		vd.destroyImage(vi)
		return nil, err
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    vi.Handle,
		ViewType: viewType,
		Format:   vk.Format(info.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     imageAspect(info.Format),
			BaseMipLevel:   0,
			LevelCount:     info.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     info.ArrayLayers,
		},
	}
	if err := check("vkCreateImageView", vk.CreateImageView(device.LogicalDevice, &viewCreateInfo, vd.context.Allocator, &vi.View)); err != nil {
		vd.destroyImage(vi)
		return nil, err
	}

	core.LogDebug("Image '%s' created: %dx%dx%d %s.", info.Label, info.Width, info.Height, info.Depth, info.Format)
	return &metadata.Image{
		Width:        info.Width,
		Height:       info.Height,
		Depth:        info.Depth,
		MipLevels:    info.MipLevels,
		ArrayLayers:  info.ArrayLayers,
		Format:       info.Format,
		Usage:        info.Usage,
		MemoryUsage:  info.MemoryUsage,
		Label:        info.Label,
		InternalData: vi,
	}, nil
}

func (vd *VulkanDriver) DestroyImage(image *metadata.Image) {
	vi, ok := image.InternalData.(*VulkanImage)
	if !ok || vd.context.Device == nil {
		core.LogWarn("DestroyImage called with an image '%s' this driver does not own.", image.Label)
		return
	}
	vd.destroyImage(vi)
}

func (vd *VulkanDriver) destroyImage(vi *VulkanImage) {
	logical := vd.context.Device.LogicalDevice
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(logical, vi.View, vd.context.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(logical, vi.Handle, vd.context.Allocator)
		vi.Handle = vk.NullImage
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(logical, vi.Memory, vd.context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
}
