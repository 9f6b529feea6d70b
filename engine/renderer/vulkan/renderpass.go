package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

/**
 * @brief A single subpass render pass. Framebuffers name it by the id
 * RegisterRenderPass returned and must match its attachment formats.
 */
type VulkanRenderpass struct {
	ID           uint64
	Handle       vk.RenderPass
	ColorFormats []metadata.Format
	// FormatUndefined when the pass has no depth attachment.
	DepthFormat metadata.Format
	// The last color attachment is left ready for presentation.
	Present bool
}

// RegisterRenderPass creates a render pass with the given attachments and
// returns the id framebuffer create infos refer to it by.
func (vd *VulkanDriver) RegisterRenderPass(colorFormats []metadata.Format, depthFormat metadata.Format, present bool) (uint64, error) {
	if vd.context.Device == nil {
		return 0, ErrNoDevice
	}
	if len(colorFormats)+boolCount(depthFormat != metadata.FormatUndefined) == 0 {
		return 0, fmt.Errorf("%w: render pass without attachments", core.ErrInvalidCreateInfo)
	}
	if depthFormat != metadata.FormatUndefined && !depthFormat.IsDepth() {
		return 0, fmt.Errorf("%w: %s is not a depth format", core.ErrInvalidCreateInfo, depthFormat)
	}

	vd.mutex.Lock()
	defer vd.mutex.Unlock()

	vd.nextPass++
	rp, err := RenderpassCreate(vd.context, vd.nextPass, colorFormats, depthFormat, present)
	if err != nil {
		return 0, err
	}
	vd.renderpasses[rp.ID] = rp
	core.LogDebug("Render pass %d registered: %d color, depth %s.", rp.ID, len(colorFormats), depthFormat)
	return rp.ID, nil
}

// UnregisterRenderPass destroys the pass. Framebuffers built for it must be
// gone already.
func (vd *VulkanDriver) UnregisterRenderPass(id uint64) {
	vd.mutex.Lock()
	defer vd.mutex.Unlock()
	if rp, ok := vd.renderpasses[id]; ok {
		rp.RenderpassDestroy(vd.context)
		delete(vd.renderpasses, id)
	}
}

func (vd *VulkanDriver) renderpass(id uint64) (*VulkanRenderpass, error) {
	vd.mutex.Lock()
	defer vd.mutex.Unlock()
	rp, ok := vd.renderpasses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRenderPass, id)
	}
	return rp, nil
}

func RenderpassCreate(context *VulkanContext, id uint64, colorFormats []metadata.Format, depthFormat metadata.Format, present bool) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{
		ID:           id,
		ColorFormats: slices.Clone(colorFormats),
		DepthFormat:  depthFormat,
		Present:      present,
	}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, len(colorFormats)+1)
	colorReferences := make([]vk.AttachmentReference, 0, len(colorFormats))
	for i, f := range colorFormats {
		finalLayout := vk.ImageLayoutColorAttachmentOptimal
		if present && i == len(colorFormats)-1 {
			finalLayout = vk.ImageLayoutPresentSrc
		}
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vk.Format(f),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined, // Do not expect any particular layout before render pass starts.
			FinalLayout:    finalLayout,
		})
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	if depthFormat != metadata.FormatUndefined {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vk.Format(depthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(colorFormats)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	if err := check("vkCreateRenderPass", vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &outRenderpass.Handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) attachmentFormats() []metadata.Format {
	formats := slices.Clone(vr.ColorFormats)
	if vr.DepthFormat != metadata.FormatUndefined {
		formats = append(formats, vr.DepthFormat)
	}
	return formats
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
