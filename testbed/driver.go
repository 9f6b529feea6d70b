package testbed

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

var (
	ErrNoDevice           = errors.New("no logical device")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrObjectNotLive      = errors.New("native object is not live")
	ErrInvalidGPU         = errors.New("gpu index out of range")
	ErrInvalidDescriptor  = errors.New("invalid device descriptor")
	ErrAttachmentTooSmall = errors.New("attachment smaller than framebuffer")
)

// Operation names a driver entry point that can be made to fail.
type Operation string

const (
	OpCreateDevice      Operation = "create_device"
	OpQueue             Operation = "queue"
	OpWaitIdle          Operation = "wait_idle"
	OpCreateBuffer      Operation = "create_buffer"
	OpCreateImage       Operation = "create_image"
	OpCreateFramebuffer Operation = "create_framebuffer"
	OpCreateSwapchain   Operation = "create_swapchain"
)

type ObjectKind string

const (
	KindBuffer      ObjectKind = "buffer"
	KindImage       ObjectKind = "image"
	KindFramebuffer ObjectKind = "framebuffer"
	KindSwapchain   ObjectKind = "swapchain"
)

/**
 * @brief What the headless driver stores in InternalData.
 */
type NativeObject struct {
	ID     string
	Kind   ObjectKind
	Label  string
	Memory metadata.MemoryRange
	/** @brief Contents of host-visible buffers. */
	Data []byte
	/** @brief For swapchains, the swapchain it replaced. */
	Replaced string
}

/**
 * @brief A Driver without a GPU. It answers hardware queries from a Profile
 * and tracks every object it hands out, so tests can check that nothing leaks
 * and that objects are released in a valid order.
 */
type HeadlessDriver struct {
	profile *Profile

	mu       sync.Mutex
	device   *metadata.DeviceDescriptor
	live     map[string]*NativeObject
	created  map[ObjectKind]int
	failures map[Operation][]error
	nextAddr uint64
	used     uint64
}

func NewHeadlessDriver(profile *Profile) (*HeadlessDriver, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: nil hardware profile", core.ErrInvalidConfig)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &HeadlessDriver{
		profile:  profile,
		live:     map[string]*NativeObject{},
		created:  map[ObjectKind]int{},
		failures: map[Operation][]error{},
	}, nil
}

func (hd *HeadlessDriver) Profile() *Profile {
	return hd.profile
}

// FailNext makes the next call to op return err. Calls queue up.
func (hd *HeadlessDriver) FailNext(op Operation, err error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	hd.failures[op] = append(hd.failures[op], err)
}

// Live counts objects of kind that were created and not yet destroyed.
func (hd *HeadlessDriver) Live(kind ObjectKind) int {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	n := 0
	for _, o := range hd.live {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Created counts every successful creation of kind.
func (hd *HeadlessDriver) Created(kind ObjectKind) int {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return hd.created[kind]
}

// Device is the descriptor of the current logical device, nil when none exists.
func (hd *HeadlessDriver) Device() *metadata.DeviceDescriptor {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return hd.device
}

// MemoryUsed is the device memory held by live buffers and images.
func (hd *HeadlessDriver) MemoryUsed() uint64 {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return hd.used
}

func (hd *HeadlessDriver) AvailableExtensions(gpu uint32) ([]string, error) {
	g, err := hd.gpu(gpu)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.Extensions), nil
}

func (hd *HeadlessDriver) QueueFamilies(gpu uint32) ([]metadata.QueueFamilyProperties, error) {
	g, err := hd.gpu(gpu)
	if err != nil {
		return nil, err
	}
	return g.QueueFamilyProperties(), nil
}

func (hd *HeadlessDriver) CreateDevice(descriptor *metadata.DeviceDescriptor) error {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.injected(OpCreateDevice); err != nil {
		return err
	}
	if hd.device != nil {
		return fmt.Errorf("%w: logical device %s already exists", ErrInvalidDescriptor, hd.device.Name)
	}
	g, err := hd.gpu(descriptor.GPUGroupIndex)
	if err != nil {
		return err
	}
	for _, ext := range descriptor.Extensions {
		if !slices.Contains(g.Extensions, ext) {
			return fmt.Errorf("%w: extension %s is not available", ErrInvalidDescriptor, ext)
		}
	}
	families := g.QueueFamilyProperties()
	for _, req := range descriptor.Queues.Families() {
		if int(req.FamilyIndex) >= len(families) {
			return fmt.Errorf("%w: queue family %d does not exist", ErrInvalidDescriptor, req.FamilyIndex)
		}
		if req.QueueCount > families[req.FamilyIndex].QueueCount {
			return fmt.Errorf("%w: %d queues requested from family %d which has %d",
				ErrInvalidDescriptor, req.QueueCount, req.FamilyIndex, families[req.FamilyIndex].QueueCount)
		}
	}
	hd.device = descriptor
	hd.nextAddr = 0
	core.LogDebug("Headless device '%s' created on '%s'.", core.ShortID(descriptor.Name), g.Name)
	return nil
}

func (hd *HeadlessDriver) Queue(assignment metadata.QueueAssignment) (*metadata.Queue, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.injected(OpQueue); err != nil {
		return nil, err
	}
	if hd.device == nil {
		return nil, ErrNoDevice
	}
	for _, req := range hd.device.Queues.Families() {
		if req.FamilyIndex == assignment.FamilyIndex && assignment.QueueIndex < req.QueueCount {
			return &metadata.Queue{Assignment: assignment, InternalData: assignment}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s was not requested at device creation", ErrInvalidDescriptor, assignment)
}

func (hd *HeadlessDriver) WaitIdle() error {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.injected(OpWaitIdle); err != nil {
		return err
	}
	if hd.device == nil {
		return ErrNoDevice
	}
	return nil
}

func (hd *HeadlessDriver) DestroyDevice() {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if hd.device == nil {
		return
	}
	if n := len(hd.live); n > 0 {
		core.LogWarn("Headless device destroyed with %d live objects.", n)
	}
	hd.device = nil
}

func (hd *HeadlessDriver) CreateBuffer(info *metadata.BufferCreateInfo) (*metadata.Buffer, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.injected(OpCreateBuffer); err != nil {
		return nil, err
	}
	obj, err := hd.allocate(KindBuffer, info.Label, info.Size)
	if err != nil {
		return nil, err
	}
	b := &metadata.Buffer{
		Size:         info.Size,
		Usage:        info.Usage,
		MemoryUsage:  info.MemoryUsage,
		Label:        info.Label,
		InternalData: obj,
	}
	if info.MemoryUsage.HostVisible() {
		obj.Data = make([]byte, info.Size)
		copy(obj.Data, info.InitialData)
		if info.MapPersistently {
			b.Mapped = obj.Data
		}
	}
	return b, nil
}

func (hd *HeadlessDriver) DestroyBuffer(buffer *metadata.Buffer) {
	hd.release(buffer.InternalData, KindBuffer)
}

func (hd *HeadlessDriver) CreateImage(info *metadata.ImageCreateInfo) (*metadata.Image, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.injected(OpCreateImage); err != nil {
		return nil, err
	}
	size := uint64(info.Width) * uint64(info.Height) * uint64(info.Depth) * uint64(info.ArrayLayers) * bytesPerPixel(info.Format)
	obj, err := hd.allocate(KindImage, info.Label, size)
	if err != nil {
		return nil, err
	}
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
		InternalData: obj,
	}, nil
}

func (hd *HeadlessDriver) DestroyImage(image *metadata.Image) {
	hd.release(image.InternalData, KindImage)
}

func (hd *HeadlessDriver) CreateFramebuffer(info *metadata.FramebufferCreateInfo, attachments []*metadata.Image) (*metadata.Framebuffer, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.injected(OpCreateFramebuffer); err != nil {
		return nil, err
	}
	if hd.device == nil {
		return nil, ErrNoDevice
	}
	for i, img := range attachments {
		obj, ok := img.InternalData.(*NativeObject)
		if !ok || hd.live[obj.ID] == nil {
			return nil, fmt.Errorf("%w: attachment %d", ErrObjectNotLive, i)
		}
		if img.Width < info.Width || img.Height < info.Height || img.ArrayLayers < info.Layers {
			return nil, fmt.Errorf("%w: attachment %d is %dx%dx%d, framebuffer is %dx%dx%d", ErrAttachmentTooSmall,
				i, img.Width, img.Height, img.ArrayLayers, info.Width, info.Height, info.Layers)
		}
	}
	obj := hd.track(KindFramebuffer, fmt.Sprintf("%016x", info.Hash()))
	return &metadata.Framebuffer{Info: *info, InternalData: obj}, nil
}

func (hd *HeadlessDriver) DestroyFramebuffer(framebuffer *metadata.Framebuffer) {
	hd.release(framebuffer.InternalData, KindFramebuffer)
}

func (hd *HeadlessDriver) CreateSwapchain(params *metadata.SwapchainParameters, old *metadata.Swapchain) (*metadata.Swapchain, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.injected(OpCreateSwapchain); err != nil {
		return nil, err
	}
	if hd.device == nil {
		return nil, ErrNoDevice
	}
	g, err := hd.gpu(hd.device.GPUGroupIndex)
	if err != nil {
		return nil, err
	}
	if len(g.Surface.PresentModes) == 0 {
		return nil, fmt.Errorf("%w: gpu '%s' cannot present", ErrInvalidDescriptor, g.Name)
	}

	var replaced string
	if old != nil {
		obj, ok := old.InternalData.(*NativeObject)
		if !ok || hd.live[obj.ID] == nil {
			return nil, fmt.Errorf("%w: old swapchain", ErrObjectNotLive)
		}
		replaced = obj.ID
	}

	// FIFO is always supported.
	mode := params.PresentMode()
	if !slices.Contains(g.Surface.PresentModes, mode) {
		mode = metadata.PresentModeFifo
	}
	count := params.ImageCount
	if count < g.Surface.MinImageCount {
		count = g.Surface.MinImageCount
	}
	if g.Surface.MaxImageCount > 0 && count > g.Surface.MaxImageCount {
		count = g.Surface.MaxImageCount
	}

	obj := hd.track(KindSwapchain, fmt.Sprintf("%dx%d", params.Width, params.Height))
	obj.Replaced = replaced
	return &metadata.Swapchain{
		Parameters:   *params,
		PresentMode:  mode,
		ImageCount:   count,
		InternalData: obj,
	}, nil
}

func (hd *HeadlessDriver) DestroySwapchain(swapchain *metadata.Swapchain) {
	hd.release(swapchain.InternalData, KindSwapchain)
}

func (hd *HeadlessDriver) gpu(index uint32) (*GPUProfile, error) {
	if int(index) >= len(hd.profile.GPUs) {
		return nil, fmt.Errorf("%w: %d, profile '%s' has %d", ErrInvalidGPU, index, hd.profile.Name, len(hd.profile.GPUs))
	}
	return &hd.profile.GPUs[index], nil
}

func (hd *HeadlessDriver) injected(op Operation) error {
	queue := hd.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	hd.failures[op] = queue[1:]
	return err
}

func (hd *HeadlessDriver) track(kind ObjectKind, label string) *NativeObject {
	obj := &NativeObject{
		ID:    uuid.NewString(),
		Kind:  kind,
		Label: label,
	}
	hd.live[obj.ID] = obj
	hd.created[kind]++
	return obj
}

func (hd *HeadlessDriver) allocate(kind ObjectKind, label string, size uint64) (*NativeObject, error) {
	if hd.device == nil {
		return nil, ErrNoDevice
	}
	g, err := hd.gpu(hd.device.GPUGroupIndex)
	if err != nil {
		return nil, err
	}
	r := metadata.GetAlignedRange(hd.nextAddr, size, g.MemoryAlignment)
	if g.DeviceMemory > 0 && hd.used+r.Size > g.DeviceMemory {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfDeviceMemory, r.Size, hd.used, g.DeviceMemory)
	}
	obj := hd.track(kind, label)
	obj.Memory = *r
	hd.nextAddr = r.End()
	hd.used += r.Size
	return obj, nil
}

func (hd *HeadlessDriver) release(internal interface{}, kind ObjectKind) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	obj, ok := internal.(*NativeObject)
	if !ok || hd.live[obj.ID] == nil {
		core.LogError("Headless driver asked to destroy a %s it does not own.", kind)
		return
	}
	if obj.Kind != kind {
		core.LogError("Headless driver asked to destroy %s '%s' as a %s.", obj.Kind, obj.ID, kind)
		return
	}
	delete(hd.live, obj.ID)
	hd.used -= obj.Memory.Size
}

func bytesPerPixel(f metadata.Format) uint64 {
	if f == metadata.FormatD32SfloatS8Uint {
		return 8
	}
	return 4
}
