package systems

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/vkcore/engine/containers"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

/** @brief Everything the application decides about the device before it exists. */
type DeviceCreateInfo struct {
	/** @brief Physical device group to create the device on. */
	GPUGroupIndex uint32
	/** @brief Device creation fails unless all of these are available. */
	RequiredExtensions []string
	/** @brief Enabled when available. */
	OptionalExtensions []string
	/** @brief Device creation fails unless all of these get a queue. */
	RequiredQueues []metadata.QueueRole
	/** @brief Assigned when some family can serve them. */
	OptionalQueues []metadata.QueueRole
	/** @brief Order in which main queue roles claim families. Empty means the default. */
	QueuePriority []metadata.QueueRole
	/** @brief Maximum number of cached framebuffers. */
	FramebufferCacheCapacity uint32
	/** @brief Slots reserved up front in the buffer pool. */
	BufferPoolCapacity uint32
	/** @brief Slots reserved up front in the image pool. */
	ImagePoolCapacity uint32
	/** @brief Serialize resource, framebuffer and swapchain calls so several goroutines may share the device. */
	ThreadSafe bool
}

type DeviceStats struct {
	Resources    ResourceStats
	Framebuffers FramebufferStats
	Swapchain    SwapchainStats
}

type FramebufferStats struct {
	Live     int
	Capacity uint32
	Cache    containers.CacheStats
}

type SwapchainStats struct {
	Cache containers.CacheStats
}

/**
 * @brief The device orchestrator. Negotiates extensions and queues once, then
 * owns every resource, framebuffer and swapchain created on the device until
 * Shutdown.
 */
type DeviceSystem struct {
	Config *DeviceCreateInfo
	ID     string

	driver     Driver
	negotiator *CapabilityNegotiator
	selector   *QueueSelector
	locks      *LockPool

	extensions *metadata.ExtensionResolution
	queueRoles metadata.QueueRoleMap
	queues     map[metadata.QueueRole]*metadata.Queue

	resourceSystem    *ResourceSystem
	framebufferSystem *FramebufferSystem
	swapchainSystem   *SwapchainSystem

	// Cleared only while Shutdown holds every lock group.
	initialized atomic.Bool
}

// Extensions a device must enable whenever the hardware exposes them.
var implicitExtensions = []string{metadata.ExtensionPortabilitySubset}

// withImplicitExtensions adds the available implicit extensions to optional.
func withImplicitExtensions(optional, available []string) []string {
	out := slices.Clone(optional)
	for _, name := range implicitExtensions {
		if slices.Contains(available, name) && !slices.Contains(out, name) {
			core.LogDebug("Hardware exposes '%s', enabling it.", name)
			out = append(out, name)
		}
	}
	return out
}

func NewDeviceSystem(config *DeviceCreateInfo, driver Driver) (*DeviceSystem, error) {
	if config == nil || driver == nil {
		err := fmt.Errorf("func NewDeviceSystem - config and driver must not be nil")
		core.LogError(err.Error())
		return nil, err
	}
	if config.FramebufferCacheCapacity == 0 {
		err := fmt.Errorf("%w: func NewDeviceSystem - config.FramebufferCacheCapacity must be > 0", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	selector, err := NewQueueSelector(config.QueuePriority)
	if err != nil {
		core.LogError("func NewDeviceSystem - %s", err)
		return nil, err
	}
	return &DeviceSystem{
		Config:     config,
		ID:         core.NewInstanceID(),
		driver:     driver,
		negotiator: NewCapabilityNegotiator(),
		selector:   selector,
		locks:      NewLockPool(config.ThreadSafe),
	}, nil
}

// Initialize negotiates extensions and queues, creates the logical device and
// the systems living on it. Nothing is created when negotiation fails.
func (ds *DeviceSystem) Initialize() error {
	return ds.locks.SafeCall(DeviceManagement, ds.initialize)
}

func (ds *DeviceSystem) initialize() error {
	if ds.initialized.Load() {
		return core.ErrAlreadyInitialized
	}
	gpu := ds.Config.GPUGroupIndex
	core.LogInfo("Initializing device %s on GPU group %d...", core.ShortID(ds.ID), gpu)

	available, err := ds.driver.AvailableExtensions(gpu)
	if err != nil {
		core.LogError("Failed to enumerate device extensions: %s", err)
		return err
	}
	extensions, err := ds.negotiator.Resolve(metadata.ExtensionRequest{
		Required: ds.Config.RequiredExtensions,
		Optional: withImplicitExtensions(ds.Config.OptionalExtensions, available),
	}, available)
	if err != nil {
		core.LogError("Device %s cannot be created: %s", core.ShortID(ds.ID), err)
		return err
	}

	families, err := ds.driver.QueueFamilies(gpu)
	if err != nil {
		core.LogError("Failed to enumerate queue families: %s", err)
		return err
	}
	roles, err := ds.selector.Select(families, ds.Config.RequiredQueues, ds.Config.OptionalQueues)
	if err != nil {
		core.LogError("Device %s cannot be created: %s", core.ShortID(ds.ID), err)
		return err
	}

	core.LogInfo("Creating logical device...")
	if err := ds.driver.CreateDevice(&metadata.DeviceDescriptor{
		Name:          ds.ID,
		GPUGroupIndex: gpu,
		Extensions:    slices.Clone(extensions.Granted),
		Queues:        roles,
	}); err != nil {
		core.LogError("Logical device creation failed: %s", err)
		return err
	}

	if err := ds.createSubsystems(roles); err != nil {
		ds.driver.DestroyDevice()
		return err
	}
	ds.extensions = extensions
	ds.queueRoles = roles
	ds.initialized.Store(true)

	for _, name := range extensions.Granted {
		core.LogDebug("Extension enabled: %s", name)
	}
	core.LogInfo("Logical device %s created with %d queue roles.", core.ShortID(ds.ID), len(roles))
	return nil
}

func (ds *DeviceSystem) createSubsystems(roles metadata.QueueRoleMap) error {
	queues := make(map[metadata.QueueRole]*metadata.Queue, len(roles))
	for _, role := range roles.Roles() {
		q, err := ds.driver.Queue(roles[role])
		if err != nil {
			core.LogError("Failed to obtain %s queue (%s): %s", role, roles[role], err)
			return err
		}
		q.Role = role
		q.Assignment = roles[role]
		queues[role] = q
	}

	rs, err := NewResourceSystem(&ResourceSystemConfig{
		BufferPoolCapacity: ds.Config.BufferPoolCapacity,
		ImagePoolCapacity:  ds.Config.ImagePoolCapacity,
	}, ds.driver)
	if err != nil {
		return err
	}
	fs, err := NewFramebufferSystem(&FramebufferSystemConfig{
		CacheCapacity: ds.Config.FramebufferCacheCapacity,
	}, ds.driver, rs)
	if err != nil {
		return err
	}
	ss, err := NewSwapchainSystem(ds.driver)
	if err != nil {
		return err
	}

	ds.queues = queues
	ds.resourceSystem = rs
	ds.framebufferSystem = fs
	ds.swapchainSystem = ss
	return nil
}

// Shutdown waits for the device and releases everything in reverse order of
// creation. Calling it on an uninitialized device does nothing. It holds
// every lock group, so no other call observes a half destroyed device.
func (ds *DeviceSystem) Shutdown() error {
	return ds.locks.SafeCall(DeviceManagement, func() error {
		if !ds.initialized.Load() {
			return nil
		}
		var errs []error
		ds.withGroups(func() error {
			ds.initialized.Store(false)
			if err := ds.driver.WaitIdle(); err != nil {
				core.LogWarn("Device did not become idle before shutdown: %s", err)
				errs = append(errs, err)
			}
			errs = append(errs, ds.framebufferSystem.Shutdown())
			errs = append(errs, ds.swapchainSystem.Shutdown())
			errs = append(errs, ds.resourceSystem.Shutdown())
			ds.driver.DestroyDevice()

			ds.queues = nil
			ds.queueRoles = nil
			ds.extensions = nil
			return nil
		}, FramebufferManagement, SwapchainManagement, ImageManagement, BufferManagement)
		core.LogInfo("Logical device %s destroyed.", core.ShortID(ds.ID))
		return errors.Join(errs...)
	})
}

// withGroups runs fn holding groups, taken in the order given.
func (ds *DeviceSystem) withGroups(fn func() error, groups ...LockGroup) error {
	if len(groups) == 0 {
		return fn()
	}
	return ds.locks.SafeCall(groups[0], func() error {
		return ds.withGroups(fn, groups[1:]...)
	})
}

// live runs fn holding groups, provided the device is still initialized once
// they are held.
func (ds *DeviceSystem) live(fn func() error, groups ...LockGroup) error {
	return ds.withGroups(func() error {
		if !ds.initialized.Load() {
			return core.ErrNotInitialized
		}
		return fn()
	}, groups...)
}

func (ds *DeviceSystem) IsInitialized() bool {
	return ds.initialized.Load()
}

func (ds *DeviceSystem) WaitIdle() error {
	return ds.live(ds.driver.WaitIdle, DeviceManagement)
}

// Extensions lists the enabled extensions, sorted.
func (ds *DeviceSystem) Extensions() (out []string) {
	ds.locks.SafeCall(DeviceManagement, func() error {
		if ds.extensions != nil {
			out = slices.Clone(ds.extensions.Granted)
		}
		return nil
	})
	return out
}

func (ds *DeviceSystem) HasExtension(name string) (has bool) {
	ds.locks.SafeCall(DeviceManagement, func() error {
		has = ds.extensions != nil && ds.extensions.Has(name)
		return nil
	})
	return has
}

func (ds *DeviceSystem) SupportsValidationCache() bool {
	return ds.HasExtension(metadata.ExtensionValidationCache)
}

func (ds *DeviceSystem) QueueFamily(role metadata.QueueRole) (family uint32, ok bool) {
	ds.locks.SafeCall(DeviceManagement, func() error {
		var a metadata.QueueAssignment
		a, ok = ds.queueRoles.Get(role)
		family = a.FamilyIndex
		return nil
	})
	return family, ok
}

func (ds *DeviceSystem) Queue(role metadata.QueueRole) (q *metadata.Queue, err error) {
	err = ds.live(func() error {
		var ok bool
		if q, ok = ds.queues[role]; !ok {
			return fmt.Errorf("no queue assigned to role %s", role)
		}
		return nil
	}, DeviceManagement)
	return q, err
}

// QueueRoles returns a copy of the role assignments.
func (ds *DeviceSystem) QueueRoles() metadata.QueueRoleMap {
	var out metadata.QueueRoleMap
	ds.locks.SafeCall(DeviceManagement, func() error {
		out = make(metadata.QueueRoleMap, len(ds.queueRoles))
		for r, a := range ds.queueRoles {
			out[r] = a
		}
		return nil
	})
	return out
}

func (ds *DeviceSystem) CreateBuffer(info *metadata.BufferCreateInfo) (h metadata.BufferHandle, err error) {
	err = ds.live(func() error {
		h, err = ds.resourceSystem.CreateBuffer(info)
		return err
	}, BufferManagement)
	return h, err
}

func (ds *DeviceSystem) Buffer(h metadata.BufferHandle) (b *metadata.Buffer, err error) {
	err = ds.live(func() error {
		b, err = ds.resourceSystem.Buffer(h)
		return err
	}, BufferManagement)
	return b, err
}

func (ds *DeviceSystem) DestroyBuffer(h metadata.BufferHandle) error {
	return ds.live(func() error {
		return ds.resourceSystem.DestroyBuffer(h)
	}, BufferManagement)
}

func (ds *DeviceSystem) CreateImage(info *metadata.ImageCreateInfo) (h metadata.ImageHandle, err error) {
	err = ds.live(func() error {
		h, err = ds.resourceSystem.CreateImage(info)
		return err
	}, ImageManagement)
	return h, err
}

func (ds *DeviceSystem) Image(h metadata.ImageHandle) (img *metadata.Image, err error) {
	err = ds.live(func() error {
		img, err = ds.resourceSystem.Image(h)
		return err
	}, ImageManagement)
	return img, err
}

// DestroyImage releases the image together with every cached framebuffer
// attached to it.
func (ds *DeviceSystem) DestroyImage(h metadata.ImageHandle) error {
	return ds.live(func() error {
		if err := ds.resourceSystem.DestroyImage(h); err != nil {
			return err
		}
		ds.framebufferSystem.InvalidateImage(h)
		return nil
	}, FramebufferManagement, ImageManagement)
}

// Framebuffer returns the framebuffer described by info, building it the
// first time those exact parameters are seen.
func (ds *DeviceSystem) Framebuffer(info metadata.FramebufferCreateInfo) (fb *metadata.Framebuffer, err error) {
	err = ds.live(func() error {
		fb, err = ds.framebufferSystem.Acquire(info)
		return err
	}, FramebufferManagement, ImageManagement)
	return fb, err
}

func (ds *DeviceSystem) InvalidateFramebuffer(info metadata.FramebufferCreateInfo) bool {
	removed := false
	ds.live(func() error {
		removed = ds.framebufferSystem.Invalidate(info)
		return nil
	}, FramebufferManagement)
	return removed
}

// ResizeFramebufferCache changes how many framebuffers stay cached and
// returns how many were evicted to fit. Before Initialize it only records
// the capacity.
func (ds *DeviceSystem) ResizeFramebufferCache(capacity uint32) (evicted int, err error) {
	if capacity == 0 {
		return 0, fmt.Errorf("%w: framebuffer cache capacity must be > 0", core.ErrInvalidConfig)
	}
	err = ds.locks.SafeCall(FramebufferManagement, func() error {
		if ds.initialized.Load() {
			if evicted, err = ds.framebufferSystem.Resize(capacity); err != nil {
				return err
			}
		}
		ds.Config.FramebufferCacheCapacity = capacity
		return nil
	})
	return evicted, err
}

// ConfigureSwapchain makes sure the swapchain matches params, rebuilding it
// only when they differ from the current ones.
func (ds *DeviceSystem) ConfigureSwapchain(params metadata.SwapchainParameters) (sc *metadata.Swapchain, recreated bool, err error) {
	err = ds.live(func() error {
		if _, ok := ds.queueRoles.Get(metadata.QueueRolePresent); !ok {
			return &core.NoSuitableQueueFamilyError{Role: metadata.QueueRolePresent}
		}
		sc, recreated, err = ds.swapchainSystem.Configure(params)
		return err
	}, SwapchainManagement)
	return sc, recreated, err
}

func (ds *DeviceSystem) Swapchain() (sc *metadata.Swapchain) {
	ds.live(func() error {
		sc = ds.swapchainSystem.Current()
		return nil
	}, SwapchainManagement)
	return sc
}

func (ds *DeviceSystem) Stats() DeviceStats {
	var stats DeviceStats
	ds.live(func() error {
		stats.Resources = ds.resourceSystem.Stats()
		stats.Framebuffers = FramebufferStats{
			Live:     ds.framebufferSystem.Len(),
			Capacity: ds.framebufferSystem.Config.CacheCapacity,
			Cache:    ds.framebufferSystem.Stats(),
		}
		return nil
	}, FramebufferManagement, ImageManagement, BufferManagement)
	ds.live(func() error {
		stats.Swapchain = SwapchainStats{Cache: ds.swapchainSystem.Stats()}
		return nil
	}, SwapchainManagement)
	return stats
}
