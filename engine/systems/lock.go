package systems

import "sync"

type LockGroup string

const (
	BufferManagement      LockGroup = "buffer_management"
	ImageManagement       LockGroup = "image_management"
	FramebufferManagement LockGroup = "framebuffer_management"
	SwapchainManagement   LockGroup = "swapchain_management"
	DeviceManagement      LockGroup = "device_management"
)

// LockPool serializes calls per lock group. A disabled pool runs every call
// directly. Nested calls must take framebuffer_management before
// image_management.
type LockPool struct {
	enabled bool
	locks   map[LockGroup]*sync.Mutex
	mu      sync.Mutex // Protects access to the locks map
}

func NewLockPool(enabled bool) *LockPool {
	return &LockPool{
		enabled: enabled,
		locks:   make(map[LockGroup]*sync.Mutex),
	}
}

// Get or create the mutex for a specific group
func (lp *LockPool) lock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	l, exists := lp.locks[group]
	if !exists {
		l = &sync.Mutex{}
		lp.locks[group] = l
	}
	return l
}

func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	if !lp.enabled {
		return fn()
	}
	l := lp.lock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}

func (lp *LockPool) Enabled() bool {
	return lp.enabled
}
