package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

// CreateFramebuffer builds a framebuffer for the registered render pass the
// create info names. attachments are the resolved images, in order.
func (vd *VulkanDriver) CreateFramebuffer(info *metadata.FramebufferCreateInfo, attachments []*metadata.Image) (*metadata.Framebuffer, error) {
	device := vd.context.Device
	if device == nil {
		return nil, ErrNoDevice
	}
	renderpass, err := vd.renderpass(info.RenderPass)
	if err != nil {
		return nil, err
	}
	formats := renderpass.attachmentFormats()
	if len(formats) != len(attachments) {
		return nil, fmt.Errorf("%w: render pass %d takes %d attachments, got %d",
			core.ErrInvalidCreateInfo, info.RenderPass, len(formats), len(attachments))
	}

	outFramebuffer := &VulkanFramebuffer{
		Attachments: make([]vk.ImageView, len(attachments)),
		Renderpass:  renderpass,
	}
	for i, img := range attachments {
		vi, ok := img.InternalData.(*VulkanImage)
		if !ok {
			return nil, fmt.Errorf("func CreateFramebuffer - attachment %d (%q) is not a vulkan image", i, img.Label)
		}
		if img.Format != formats[i] {
			return nil, fmt.Errorf("%w: attachment %d is %s, render pass %d expects %s",
				core.ErrInvalidCreateInfo, i, img.Format, info.RenderPass, formats[i])
		}
		outFramebuffer.Attachments[i] = vi.View
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           info.Width,
		Height:          info.Height,
		Layers:          info.Layers,
	}
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(device.LogicalDevice, &framebufferCreateInfo, vd.context.Allocator, &outFramebuffer.Handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &metadata.Framebuffer{Info: *info, InternalData: outFramebuffer}, nil
}

func (vd *VulkanDriver) DestroyFramebuffer(framebuffer *metadata.Framebuffer) {
	vf, ok := framebuffer.InternalData.(*VulkanFramebuffer)
	if !ok || vd.context.Device == nil {
		return
	}
	if vf.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(vd.context.Device.LogicalDevice, vf.Handle, vd.context.Allocator)
		vf.Handle = vk.NullFramebuffer
	}
	vf.Attachments = nil
	framebuffer.InternalData = nil
}
