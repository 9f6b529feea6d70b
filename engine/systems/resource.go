package systems

import (
	"fmt"

	"github.com/spaghettifunk/vkcore/engine/containers"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

/** @brief The configuration for the resource system */
type ResourceSystemConfig struct {
	/** @brief Slots reserved up front for buffers. The pool grows past it. */
	BufferPoolCapacity uint32
	/** @brief Slots reserved up front for images. The pool grows past it. */
	ImagePoolCapacity uint32
}

type ResourceStats struct {
	LiveBuffers int
	LiveImages  int
	Buffers     containers.PoolStats
	Images      containers.PoolStats
}

/**
 * @brief Owns every buffer and image created on the device. Callers only ever
 * see handles; the native objects live in the pools.
 */
type ResourceSystem struct {
	Config    *ResourceSystemConfig
	allocator ResourceAllocator
	buffers   *containers.HandlePool[metadata.Buffer, *metadata.BufferCreateInfo]
	images    *containers.HandlePool[metadata.Image, *metadata.ImageCreateInfo]
}

func NewResourceSystem(config *ResourceSystemConfig, allocator ResourceAllocator) (*ResourceSystem, error) {
	if allocator == nil {
		err := fmt.Errorf("func NewResourceSystem - allocator must not be nil")
		core.LogError(err.Error())
		return nil, err
	}
	rs := &ResourceSystem{
		Config:    config,
		allocator: allocator,
	}
	rs.buffers = containers.NewHandlePool(rs.constructBuffer, rs.teardownBuffer, int(config.BufferPoolCapacity))
	rs.images = containers.NewHandlePool(rs.constructImage, rs.teardownImage, int(config.ImagePoolCapacity))
	return rs, nil
}

func (rs *ResourceSystem) CreateBuffer(info *metadata.BufferCreateInfo) (metadata.BufferHandle, error) {
	if info == nil {
		return metadata.BufferHandle{}, fmt.Errorf("%w: %w: nil buffer create info", core.ErrConstruction, core.ErrInvalidCreateInfo)
	}
	h, err := rs.buffers.Create(info)
	if err != nil {
		core.LogError("Failed to create buffer '%s': %s", info.Label, err)
		return h, err
	}
	core.LogDebug("Buffer '%s' created with handle %s (%d bytes).", info.Label, h, info.Size)
	return h, nil
}

func (rs *ResourceSystem) Buffer(h metadata.BufferHandle) (*metadata.Buffer, error) {
	return rs.buffers.Get(h)
}

func (rs *ResourceSystem) DestroyBuffer(h metadata.BufferHandle) error {
	return rs.buffers.Destroy(h)
}

func (rs *ResourceSystem) CreateImage(info *metadata.ImageCreateInfo) (metadata.ImageHandle, error) {
	if info == nil {
		return metadata.ImageHandle{}, fmt.Errorf("%w: %w: nil image create info", core.ErrConstruction, core.ErrInvalidCreateInfo)
	}
	h, err := rs.images.Create(info)
	if err != nil {
		core.LogError("Failed to create image '%s': %s", info.Label, err)
		return h, err
	}
	core.LogDebug("Image '%s' created with handle %s (%dx%d).", info.Label, h, info.Width, info.Height)
	return h, nil
}

func (rs *ResourceSystem) Image(h metadata.ImageHandle) (*metadata.Image, error) {
	return rs.images.Get(h)
}

func (rs *ResourceSystem) DestroyImage(h metadata.ImageHandle) error {
	return rs.images.Destroy(h)
}

// Images resolves every handle or fails on the first one that is not live.
func (rs *ResourceSystem) Images(handles []metadata.ImageHandle) ([]*metadata.Image, error) {
	out := make([]*metadata.Image, 0, len(handles))
	for i, h := range handles {
		img, err := rs.images.Get(h)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func (rs *ResourceSystem) Stats() ResourceStats {
	return ResourceStats{
		LiveBuffers: rs.buffers.Len(),
		LiveImages:  rs.images.Len(),
		Buffers:     rs.buffers.Stats(),
		Images:      rs.images.Stats(),
	}
}

// Shutdown releases every live resource. Images go first since views and
// framebuffers built on them are gone by now.
func (rs *ResourceSystem) Shutdown() error {
	images := rs.images.Clear()
	buffers := rs.buffers.Clear()
	if images+buffers > 0 {
		core.LogDebug("Resource system released %d images and %d buffers still alive at shutdown.", images, buffers)
	}
	return nil
}

func (rs *ResourceSystem) constructBuffer(info *metadata.BufferCreateInfo) (metadata.Buffer, error) {
	if err := info.Validate(); err != nil {
		return metadata.Buffer{}, err
	}
	b, err := rs.allocator.CreateBuffer(info)
	if err != nil {
		return metadata.Buffer{}, err
	}
	return *b, nil
}

func (rs *ResourceSystem) teardownBuffer(b *metadata.Buffer) {
	rs.allocator.DestroyBuffer(b)
}

func (rs *ResourceSystem) constructImage(info *metadata.ImageCreateInfo) (metadata.Image, error) {
	normalized := *info
	normalized.Normalize()
	if err := normalized.Validate(); err != nil {
		return metadata.Image{}, err
	}
	img, err := rs.allocator.CreateImage(&normalized)
	if err != nil {
		return metadata.Image{}, err
	}
	return *img, nil
}

func (rs *ResourceSystem) teardownImage(img *metadata.Image) {
	rs.allocator.DestroyImage(img)
}
