package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	Images      []vk.Image
	Views       []vk.ImageView
}

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func (vd *VulkanDriver) querySwapchainSupport(pd vk.PhysicalDevice) (*swapchainSupport, error) {
	surface := vd.context.Surface
	support := &swapchainSupport{}
	if err := check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &support.capabilities)); err != nil {
		return nil, err
	}
	support.capabilities.Deref()
	support.capabilities.CurrentExtent.Deref()
	support.capabilities.MinImageExtent.Deref()
	support.capabilities.MaxImageExtent.Deref()

	var count uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, nil)); err != nil {
		return nil, err
	}
	support.formats = make([]vk.SurfaceFormat, count)
	if count > 0 {
		if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, support.formats)); err != nil {
			return nil, err
		}
		for i := range support.formats {
			support.formats[i].Deref()
		}
	}

	count = 0
	if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, nil)); err != nil {
		return nil, err
	}
	support.presentModes = make([]vk.PresentMode, count)
	if count > 0 {
		if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, support.presentModes)); err != nil {
			return nil, err
		}
	}
	if len(support.formats) == 0 || len(support.presentModes) == 0 {
		return nil, fmt.Errorf("%w: surface reports no formats or present modes", ErrUnsupportedProperty)
	}
	return support, nil
}

// CreateSwapchain builds a swapchain on the window surface. old, when set,
// is handed over as the retiring swapchain; the caller destroys it.
func (vd *VulkanDriver) CreateSwapchain(params *metadata.SwapchainParameters, old *metadata.Swapchain) (*metadata.Swapchain, error) {
	device := vd.context.Device
	if device == nil {
		return nil, ErrNoDevice
	}
	if vd.context.Surface == vk.NullSurface {
		return nil, fmt.Errorf("%w: no surface to present to", ErrUnsupportedProperty)
	}
	support, err := vd.querySwapchainSupport(device.PhysicalDevice)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	// Choose a swap surface format, falling back to the first one reported.
	imageFormat := support.formats[0]
	for _, f := range support.formats {
		if f.Format == vk.Format(params.Format) && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			imageFormat = f
			break
		}
	}

	// FIFO is the only mode every implementation has to support.
	mode := params.PresentMode()
	presentMode := vk.PresentModeFifo
	if slices.Contains(support.presentModes, vk.PresentMode(mode)) {
		presentMode = vk.PresentMode(mode)
	} else if mode != metadata.PresentModeFifo {
		core.LogWarn("Present mode %s is not supported by the surface, using fifo.", mode)
	}

	caps := support.capabilities
	extent := caps.CurrentExtent
	if extent.Width == math.MaxUint32 {
		extent = vk.Extent2D{
			Width:  MathClamp(params.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: MathClamp(params.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}
	if extent.Width == 0 || extent.Height == 0 {
		return nil, fmt.Errorf("%w: surface extent is %dx%d", ErrUnsupportedProperty, extent.Width, extent.Height)
	}

	imageCount := params.ImageCount
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	// A max of 0 means no limit.
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vd.context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      imageFormat.Format,
		ImageColorSpace:  imageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	// Setup the queue family indices
	graphics, hasGraphics := device.Queues.Get(metadata.QueueRoleGraphics)
	present, hasPresent := device.Queues.Get(metadata.QueueRolePresent)
	if hasGraphics && hasPresent && graphics.FamilyIndex != present.FamilyIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{graphics.FamilyIndex, present.FamilyIndex}
	}
	if old != nil {
		if vs, ok := old.InternalData.(*VulkanSwapchain); ok {
			swapchainCreateInfo.OldSwapchain = vs.Handle
		}
	}

	outSwapchain := &VulkanSwapchain{ImageFormat: imageFormat, Extent: extent}
	if err := check("vkCreateSwapchainKHR", vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, vd.context.Allocator, &outSwapchain.Handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	var count uint32
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.LogicalDevice, outSwapchain.Handle, &count, nil)); err != nil {
		vd.destroySwapchain(outSwapchain)
		return nil, err
	}
	outSwapchain.Images = make([]vk.Image, count)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.LogicalDevice, outSwapchain.Handle, &count, outSwapchain.Images)); err != nil {
		vd.destroySwapchain(outSwapchain)
		return nil, err
	}

	outSwapchain.Views = make([]vk.ImageView, 0, count)
	for _, img := range outSwapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   imageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var view vk.ImageView
		if err := check("vkCreateImageView", vk.CreateImageView(device.LogicalDevice, &viewInfo, vd.context.Allocator, &view)); err != nil {
			vd.destroySwapchain(outSwapchain)
			return nil, err
		}
		outSwapchain.Views = append(outSwapchain.Views, view)
	}

	return &metadata.Swapchain{
		Parameters:   *params,
		PresentMode:  metadata.PresentMode(presentMode),
		ImageCount:   count,
		InternalData: outSwapchain,
	}, nil
}

func (vd *VulkanDriver) DestroySwapchain(swapchain *metadata.Swapchain) {
	vs, ok := swapchain.InternalData.(*VulkanSwapchain)
	if !ok || vd.context.Device == nil {
		return
	}
	vd.destroySwapchain(vs)
	swapchain.InternalData = nil
}

// Only destroy the views, not the images, since those are owned by the swapchain.
func (vd *VulkanDriver) destroySwapchain(vs *VulkanSwapchain) {
	logical := vd.context.Device.LogicalDevice
	for _, view := range vs.Views {
		vk.DestroyImageView(logical, view, vd.context.Allocator)
	}
	vs.Views = nil
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(logical, vs.Handle, vd.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}
