package metadata

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/spaghettifunk/vkcore/engine/core"
)

const MaxFramebufferAttachments = 8

/**
 * @brief Everything that determines a framebuffer's identity. The struct is a
 * plain comparable value: used as a cache key, two infos are the same entry
 * only if every field, including every attachment slot, matches.
 * Build it with NewFramebufferCreateInfo so unused slots stay zero.
 */
type FramebufferCreateInfo struct {
	/** @brief Backend identifier of the render pass the framebuffer is compatible with. */
	RenderPass      uint64
	Attachments     [MaxFramebufferAttachments]ImageHandle
	AttachmentCount uint32
	Width           uint32
	Height          uint32
	Layers          uint32
}

func NewFramebufferCreateInfo(renderPass uint64, width, height, layers uint32, attachments ...ImageHandle) (FramebufferCreateInfo, error) {
	ci := FramebufferCreateInfo{
		RenderPass: renderPass,
		Width:      width,
		Height:     height,
		Layers:     layers,
	}
	if ci.Layers == 0 {
		ci.Layers = 1
	}
	if len(attachments) == 0 || len(attachments) > MaxFramebufferAttachments {
		return ci, fmt.Errorf("%w: framebuffer needs 1 to %d attachments, got %d",
			core.ErrInvalidCreateInfo, MaxFramebufferAttachments, len(attachments))
	}
	copy(ci.Attachments[:], attachments)
	ci.AttachmentCount = uint32(len(attachments))
	return ci, ci.Validate()
}

func (ci *FramebufferCreateInfo) Validate() error {
	if ci.AttachmentCount == 0 || ci.AttachmentCount > MaxFramebufferAttachments {
		return fmt.Errorf("%w: framebuffer needs 1 to %d attachments, got %d",
			core.ErrInvalidCreateInfo, MaxFramebufferAttachments, ci.AttachmentCount)
	}
	if ci.Width == 0 || ci.Height == 0 || ci.Layers == 0 {
		return fmt.Errorf("%w: framebuffer extent %dx%dx%d", core.ErrInvalidCreateInfo, ci.Width, ci.Height, ci.Layers)
	}
	for i, a := range ci.AttachmentHandles() {
		if a.IsZero() {
			return fmt.Errorf("%w: framebuffer attachment %d is a zero handle", core.ErrInvalidCreateInfo, i)
		}
	}
	// Unused slots take part in equality, so they must stay zero.
	for i := ci.AttachmentCount; i < MaxFramebufferAttachments; i++ {
		if !ci.Attachments[i].IsZero() {
			return fmt.Errorf("%w: framebuffer attachment slot %d is past the %d attachments in use",
				core.ErrInvalidCreateInfo, i, ci.AttachmentCount)
		}
	}
	return nil
}

func (ci FramebufferCreateInfo) AttachmentHandles() []ImageHandle {
	n := ci.AttachmentCount
	if n > MaxFramebufferAttachments {
		n = MaxFramebufferAttachments
	}
	return ci.Attachments[:n]
}

// References reports whether img is one of the attachments.
func (ci FramebufferCreateInfo) References(img ImageHandle) bool {
	for _, a := range ci.AttachmentHandles() {
		if a == img {
			return true
		}
	}
	return false
}

// Hash is a FNV-1a digest of every field, used to label framebuffers in logs.
func (ci FramebufferCreateInfo) Hash() uint64 {
	hasher := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], ci.RenderPass)
	hasher.Write(buf[:])
	for _, a := range ci.Attachments {
		binary.LittleEndian.PutUint32(buf[:4], a.Index())
		binary.LittleEndian.PutUint32(buf[4:], a.Generation())
		hasher.Write(buf[:])
	}
	for _, v := range []uint32{ci.AttachmentCount, ci.Width, ci.Height, ci.Layers} {
		binary.LittleEndian.PutUint32(buf[:4], v)
		hasher.Write(buf[:4])
	}
	return hasher.Sum64()
}

/**
 * @brief A framebuffer built from a FramebufferCreateInfo.
 */
type Framebuffer struct {
	Info FramebufferCreateInfo
	/** @brief The backend-specific framebuffer. */
	InternalData interface{}
}
