package systems

import (
	"fmt"

	"github.com/spaghettifunk/vkcore/engine/containers"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

type FramebufferSystemConfig struct {
	/** @brief Maximum number of framebuffers kept alive at once. */
	CacheCapacity uint32
}

/**
 * @brief Builds framebuffers on demand and keeps the most recently used ones.
 * Two requests share a framebuffer only when every creation parameter matches.
 */
type FramebufferSystem struct {
	Config    *FramebufferSystemConfig
	factory   FramebufferFactory
	resources *ResourceSystem
	cache     *containers.ContentAddressedCache[metadata.FramebufferCreateInfo, *metadata.Framebuffer]
}

func NewFramebufferSystem(config *FramebufferSystemConfig, factory FramebufferFactory, rs *ResourceSystem) (*FramebufferSystem, error) {
	fs := &FramebufferSystem{
		Config:    config,
		factory:   factory,
		resources: rs,
	}
	cache, err := containers.NewContentAddressedCache(int(config.CacheCapacity), fs.release)
	if err != nil {
		core.LogError("func NewFramebufferSystem - %s", err)
		return nil, err
	}
	fs.cache = cache
	return fs, nil
}

// Acquire returns the framebuffer for info, building it on first use.
func (fs *FramebufferSystem) Acquire(info metadata.FramebufferCreateInfo) (*metadata.Framebuffer, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return fs.cache.GetOrCreate(info, fs.build)
}

func (fs *FramebufferSystem) Invalidate(info metadata.FramebufferCreateInfo) bool {
	return fs.cache.Invalidate(info)
}

// InvalidateImage drops every framebuffer that uses img as an attachment.
func (fs *FramebufferSystem) InvalidateImage(img metadata.ImageHandle) int {
	n := fs.cache.InvalidateFunc(func(info metadata.FramebufferCreateInfo) bool {
		return info.References(img)
	})
	if n > 0 {
		core.LogDebug("Released %d framebuffers attached to image %s.", n, img)
	}
	return n
}

func (fs *FramebufferSystem) Resize(capacity uint32) (int, error) {
	evicted, err := fs.cache.Resize(int(capacity))
	if err != nil {
		return 0, err
	}
	fs.Config.CacheCapacity = capacity
	return evicted, nil
}

func (fs *FramebufferSystem) Len() int {
	return fs.cache.Len()
}

func (fs *FramebufferSystem) Stats() containers.CacheStats {
	return fs.cache.Stats()
}

func (fs *FramebufferSystem) Shutdown() error {
	fs.cache.Purge()
	return nil
}

func (fs *FramebufferSystem) build(info metadata.FramebufferCreateInfo) (*metadata.Framebuffer, error) {
	attachments, err := fs.resources.Images(info.AttachmentHandles())
	if err != nil {
		return nil, fmt.Errorf("framebuffer %016x: %w", info.Hash(), err)
	}
	fb, err := fs.factory.CreateFramebuffer(&info, attachments)
	if err != nil {
		return nil, fmt.Errorf("framebuffer %016x: %w", info.Hash(), err)
	}
	core.LogDebug("Framebuffer %016x created (%dx%d, %d attachments).", info.Hash(), info.Width, info.Height, info.AttachmentCount)
	return fb, nil
}

func (fs *FramebufferSystem) release(info metadata.FramebufferCreateInfo, fb *metadata.Framebuffer) {
	fs.factory.DestroyFramebuffer(fb)
	core.LogDebug("Framebuffer %016x released.", info.Hash())
}
