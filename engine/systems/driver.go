package systems

import "github.com/spaghettifunk/vkcore/engine/renderer/metadata"

/**
 * @brief Hardware introspection needed before a logical device exists.
 */
type PhysicalDeviceQuery interface {
	/** @brief Capability ids the physical device group exposes. */
	AvailableExtensions(gpu uint32) ([]string, error)
	/** @brief Queue families in the order the hardware reports them. */
	QueueFamilies(gpu uint32) ([]metadata.QueueFamilyProperties, error)
}

/**
 * @brief Logical device lifetime.
 */
type DeviceFactory interface {
	CreateDevice(descriptor *metadata.DeviceDescriptor) error
	Queue(assignment metadata.QueueAssignment) (*metadata.Queue, error)
	WaitIdle() error
	DestroyDevice()
}

/**
 * @brief Native allocation of pooled resources.
 */
type ResourceAllocator interface {
	CreateBuffer(info *metadata.BufferCreateInfo) (*metadata.Buffer, error)
	DestroyBuffer(buffer *metadata.Buffer)
	CreateImage(info *metadata.ImageCreateInfo) (*metadata.Image, error)
	DestroyImage(image *metadata.Image)
}

type FramebufferFactory interface {
	/** @brief attachments are resolved in the order of info.AttachmentHandles(). */
	CreateFramebuffer(info *metadata.FramebufferCreateInfo, attachments []*metadata.Image) (*metadata.Framebuffer, error)
	DestroyFramebuffer(framebuffer *metadata.Framebuffer)
}

type SwapchainFactory interface {
	/** @brief old is the swapchain being replaced, nil on first creation. It stays alive until the call returns. */
	CreateSwapchain(params *metadata.SwapchainParameters, old *metadata.Swapchain) (*metadata.Swapchain, error)
	DestroySwapchain(swapchain *metadata.Swapchain)
}

// Driver is everything the device system needs from a backend.
type Driver interface {
	PhysicalDeviceQuery
	DeviceFactory
	ResourceAllocator
	FramebufferFactory
	SwapchainFactory
}
