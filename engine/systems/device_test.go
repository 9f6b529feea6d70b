package systems

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/vkcore/engine/containers"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"github.com/spaghettifunk/vkcore/testbed"
	"golang.org/x/exp/slices"
)

func defaultCreateInfo() *DeviceCreateInfo {
	return &DeviceCreateInfo{
		RequiredExtensions:       []string{metadata.ExtensionSwapchain},
		OptionalExtensions:       []string{metadata.ExtensionValidationCache},
		RequiredQueues:           []metadata.QueueRole{metadata.QueueRoleGraphics, metadata.QueueRolePresent},
		OptionalQueues:           []metadata.QueueRole{metadata.QueueRoleAsyncTransfer, metadata.QueueRoleAsyncCompute},
		FramebufferCacheCapacity: 2,
		BufferPoolCapacity:       4,
		ImagePoolCapacity:        4,
	}
}

func newTestDevice(t *testing.T, profile string, ci *DeviceCreateInfo) (*DeviceSystem, *testbed.HeadlessDriver) {
	t.Helper()
	p, err := testbed.BuiltinProfile(profile)
	if err != nil {
		t.Fatalf("BuiltinProfile(%q) error = %v", profile, err)
	}
	driver, err := testbed.NewHeadlessDriver(p)
	if err != nil {
		t.Fatalf("NewHeadlessDriver() error = %v", err)
	}
	ds, err := NewDeviceSystem(ci, driver)
	if err != nil {
		t.Fatalf("NewDeviceSystem() error = %v", err)
	}
	return ds, driver
}

func initializedDevice(t *testing.T, ci *DeviceCreateInfo) (*DeviceSystem, *testbed.HeadlessDriver) {
	t.Helper()
	ds, driver := newTestDevice(t, "discrete", ci)
	if err := ds.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { ds.Shutdown() })
	return ds, driver
}

func colorTarget(label string) *metadata.ImageCreateInfo {
	return &metadata.ImageCreateInfo{
		Width:  640,
		Height: 480,
		Format: metadata.FormatB8G8R8A8Srgb,
		Usage:  metadata.ImageUsageColorAttachment | metadata.ImageUsageSampled,
		Label:  label,
	}
}

func TestDeviceInitialize(t *testing.T) {
	ds, driver := initializedDevice(t, defaultCreateInfo())

	want := []string{metadata.ExtensionValidationCache, metadata.ExtensionSwapchain}
	got := ds.Extensions()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Extensions() = %v, want %v", got, want)
	}
	if !ds.SupportsValidationCache() || ds.HasExtension(metadata.ExtensionPortabilitySubset) {
		t.Errorf("extension queries disagree with %v", got)
	}

	for role, family := range map[metadata.QueueRole]uint32{
		metadata.QueueRoleGraphics:      0,
		metadata.QueueRolePresent:       0,
		metadata.QueueRoleAsyncTransfer: 2,
		metadata.QueueRoleAsyncCompute:  1,
	} {
		f, ok := ds.QueueFamily(role)
		if !ok || f != family {
			t.Errorf("QueueFamily(%s) = %d, %t; want %d", role, f, ok, family)
		}
		q, err := ds.Queue(role)
		if err != nil {
			t.Fatalf("Queue(%s) error = %v", role, err)
		}
		if q.Role != role || q.Assignment.FamilyIndex != family {
			t.Errorf("Queue(%s) = %+v", role, q)
		}
	}
	if _, ok := ds.QueueFamily(metadata.QueueRoleTransfer); ok {
		t.Error("an unrequested role got a family")
	}

	desc := driver.Device()
	if desc == nil || desc.Name != ds.ID {
		t.Fatalf("driver device = %+v", desc)
	}
	if err := ds.Initialize(); !errors.Is(err, core.ErrAlreadyInitialized) {
		t.Errorf("second Initialize() error = %v", err)
	}
}

func TestDeviceInitializeFailures(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		mutate  func(*DeviceCreateInfo)
		inject  testbed.Operation
		want    error
	}{
		{
			name:    "missing required extension",
			profile: "discrete",
			mutate: func(ci *DeviceCreateInfo) {
				ci.RequiredExtensions = append(ci.RequiredExtensions, "VK_KHR_ray_tracing_pipeline")
			},
			want: core.ErrUnsupportedRequiredCapability,
		},
		{
			name:    "no graphics family",
			profile: "compute_only",
			mutate: func(ci *DeviceCreateInfo) {
				ci.RequiredExtensions = nil
			},
			want: core.ErrNoSuitableQueueFamily,
		},
		{
			name:    "bad gpu index",
			profile: "discrete",
			mutate:  func(ci *DeviceCreateInfo) { ci.GPUGroupIndex = 5 },
			want:    testbed.ErrInvalidGPU,
		},
		{
			name:    "native device creation fails",
			profile: "discrete",
			mutate:  func(*DeviceCreateInfo) {},
			inject:  testbed.OpCreateDevice,
			want:    errInjected,
		},
		{
			name:    "queue retrieval fails",
			profile: "discrete",
			mutate:  func(*DeviceCreateInfo) {},
			inject:  testbed.OpQueue,
			want:    errInjected,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ci := defaultCreateInfo()
			tc.mutate(ci)
			ds, driver := newTestDevice(t, tc.profile, ci)
			if tc.inject != "" {
				driver.FailNext(tc.inject, errInjected)
			}
			err := ds.Initialize()
			if !errors.Is(err, tc.want) {
				t.Fatalf("Initialize() error = %v, want %v", err, tc.want)
			}
			if driver.Device() != nil {
				t.Error("a failed initialization left a native device behind")
			}
			if ds.IsInitialized() {
				t.Error("device reports initialized after failure")
			}
			if _, err := ds.CreateBuffer(&metadata.BufferCreateInfo{Size: 4, Usage: metadata.BufferUsageVertex}); !errors.Is(err, core.ErrNotInitialized) {
				t.Errorf("CreateBuffer() on a failed device error = %v", err)
			}
		})
	}
}

var errInjected = errors.New("injected failure")

func TestDeviceBufferLifecycle(t *testing.T) {
	ds, driver := initializedDevice(t, defaultCreateInfo())

	h, err := ds.CreateBuffer(&metadata.BufferCreateInfo{
		Size:            64,
		Usage:           metadata.BufferUsageUniform,
		MemoryUsage:     metadata.MemoryUsageCPUToGPU,
		MapPersistently: true,
		InitialData:     []byte("uniforms"),
		Label:           "globals",
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	b, err := ds.Buffer(h)
	if err != nil {
		t.Fatalf("Buffer() error = %v", err)
	}
	if b.Label != "globals" || string(b.Mapped[:8]) != "uniforms" {
		t.Errorf("Buffer() = %+v", b)
	}

	if err := ds.DestroyBuffer(h); err != nil {
		t.Fatalf("DestroyBuffer() error = %v", err)
	}
	if driver.Live(testbed.KindBuffer) != 0 {
		t.Error("native buffer survived DestroyBuffer")
	}
	if _, err := ds.Buffer(h); !errors.Is(err, core.ErrStaleHandle) {
		t.Errorf("Buffer() after destroy error = %v", err)
	}
	if err := ds.DestroyBuffer(h); !errors.Is(err, core.ErrStaleHandle) {
		t.Errorf("second DestroyBuffer() error = %v", err)
	}

	// The slot is reused, the old handle stays stale.
	h2, err := ds.CreateBuffer(&metadata.BufferCreateInfo{Size: 16, Usage: metadata.BufferUsageVertex})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if h2.Index() != h.Index() || h2 == h {
		t.Errorf("reused handle %s, old %s", h2, h)
	}
	if _, err := ds.Buffer(h); !errors.Is(err, core.ErrStaleHandle) {
		t.Errorf("old handle after reuse error = %v", err)
	}
}

func TestDeviceResourceCreateFailures(t *testing.T) {
	ds, driver := initializedDevice(t, defaultCreateInfo())

	tests := []struct {
		name   string
		create func() error
		want   error
	}{
		{"zero size buffer", func() error {
			_, err := ds.CreateBuffer(&metadata.BufferCreateInfo{Usage: metadata.BufferUsageVertex})
			return err
		}, core.ErrInvalidCreateInfo},
		{"nil buffer info", func() error {
			_, err := ds.CreateBuffer(nil)
			return err
		}, core.ErrInvalidCreateInfo},
		{"zero extent image", func() error {
			_, err := ds.CreateImage(&metadata.ImageCreateInfo{Width: 4, Format: metadata.FormatR8G8B8A8Unorm, Usage: metadata.ImageUsageSampled})
			return err
		}, core.ErrInvalidCreateInfo},
		{"out of device memory", func() error {
			_, err := ds.CreateBuffer(&metadata.BufferCreateInfo{Size: 1 << 40, Usage: metadata.BufferUsageStorage})
			return err
		}, testbed.ErrOutOfDeviceMemory},
		{"native image failure", func() error {
			driver.FailNext(testbed.OpCreateImage, errInjected)
			_, err := ds.CreateImage(colorTarget("broken"))
			return err
		}, errInjected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.create()
			if !errors.Is(err, core.ErrConstruction) || !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want ErrConstruction wrapping %v", err, tc.want)
			}
		})
	}

	stats := ds.Stats().Resources
	if stats.LiveBuffers != 0 || stats.LiveImages != 0 {
		t.Errorf("failed creations left live resources: %+v", stats)
	}
	if stats.Buffers.Failures != 2 || stats.Images.Failures != 2 {
		t.Errorf("failure counts = %d buffers, %d images", stats.Buffers.Failures, stats.Images.Failures)
	}
}

func TestDeviceFramebufferCache(t *testing.T) {
	ds, driver := initializedDevice(t, defaultCreateInfo())

	color, err := ds.CreateImage(colorTarget("color"))
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	depth, err := ds.CreateImage(&metadata.ImageCreateInfo{
		Width: 640, Height: 480, Format: metadata.FormatD32Sfloat,
		Usage: metadata.ImageUsageDepthStencilAttachment, Label: "depth",
	})
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}

	info := func(renderPass uint64, attachments ...metadata.ImageHandle) metadata.FramebufferCreateInfo {
		ci, err := metadata.NewFramebufferCreateInfo(renderPass, 640, 480, 1, attachments...)
		if err != nil {
			t.Fatalf("NewFramebufferCreateInfo() error = %v", err)
		}
		return ci
	}

	a := info(1, color, depth)
	fb1, err := ds.Framebuffer(a)
	if err != nil {
		t.Fatalf("Framebuffer() error = %v", err)
	}
	fb2, err := ds.Framebuffer(a)
	if err != nil {
		t.Fatalf("Framebuffer() error = %v", err)
	}
	if fb1 != fb2 || driver.Created(testbed.KindFramebuffer) != 1 {
		t.Fatalf("same parameters built %d framebuffers", driver.Created(testbed.KindFramebuffer))
	}

	// Differing only in render pass or attachment order is a different framebuffer.
	b := info(2, color, depth)
	c := info(1, depth, color)
	if _, err := ds.Framebuffer(b); err != nil {
		t.Fatalf("Framebuffer(b) error = %v", err)
	}
	if _, err := ds.Framebuffer(c); err != nil {
		t.Fatalf("Framebuffer(c) error = %v", err)
	}
	if got := driver.Created(testbed.KindFramebuffer); got != 3 {
		t.Errorf("Created(framebuffer) = %d, want 3", got)
	}
	// Capacity 2: a was least recently used and got evicted.
	if got := driver.Live(testbed.KindFramebuffer); got != 2 {
		t.Errorf("Live(framebuffer) = %d, want 2", got)
	}
	stats := ds.Stats().Framebuffers
	if stats.Live != 2 || stats.Cache.Evictions != 1 || stats.Cache.Hits != 1 {
		t.Errorf("framebuffer stats = %+v", stats)
	}

	if !ds.InvalidateFramebuffer(b) || ds.InvalidateFramebuffer(b) {
		t.Error("InvalidateFramebuffer() should remove b exactly once")
	}

	// Destroying an attachment releases every framebuffer using it.
	if err := ds.DestroyImage(depth); err != nil {
		t.Fatalf("DestroyImage() error = %v", err)
	}
	if got := driver.Live(testbed.KindFramebuffer); got != 0 {
		t.Errorf("Live(framebuffer) = %d after destroying an attachment", got)
	}
	if _, err := ds.Framebuffer(a); !errors.Is(err, core.ErrStaleHandle) {
		t.Errorf("Framebuffer() with a destroyed attachment error = %v", err)
	}
	if ds.Stats().Framebuffers.Live != 0 {
		t.Error("failed build was cached")
	}
}

func TestDeviceFramebufferRejectsStraySlots(t *testing.T) {
	ds, driver := initializedDevice(t, defaultCreateInfo())

	a, err := ds.CreateImage(colorTarget("a"))
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	b, err := ds.CreateImage(colorTarget("b"))
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	clean, err := metadata.NewFramebufferCreateInfo(1, 640, 480, 1, a)
	if err != nil {
		t.Fatalf("NewFramebufferCreateInfo() error = %v", err)
	}
	dirty := clean
	dirty.Attachments[5] = b

	if _, err := ds.Framebuffer(clean); err != nil {
		t.Fatalf("Framebuffer() error = %v", err)
	}
	if _, err := ds.Framebuffer(dirty); !errors.Is(err, core.ErrInvalidCreateInfo) {
		t.Errorf("Framebuffer() with a stray attachment slot error = %v, want ErrInvalidCreateInfo", err)
	}
	if got := driver.Live(testbed.KindFramebuffer); got != 1 {
		t.Errorf("Live(framebuffer) = %d, want 1", got)
	}
}

func TestDeviceFramebufferBuildFailure(t *testing.T) {
	ds, driver := initializedDevice(t, defaultCreateInfo())
	color, err := ds.CreateImage(colorTarget("color"))
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	info, _ := metadata.NewFramebufferCreateInfo(9, 640, 480, 1, color)

	driver.FailNext(testbed.OpCreateFramebuffer, errInjected)
	if _, err := ds.Framebuffer(info); !errors.Is(err, errInjected) {
		t.Fatalf("Framebuffer() error = %v, want injected", err)
	}
	if _, err := ds.Framebuffer(info); err != nil {
		t.Fatalf("Framebuffer() retry error = %v", err)
	}
	if _, err := ds.Framebuffer(metadata.FramebufferCreateInfo{}); !errors.Is(err, core.ErrInvalidCreateInfo) {
		t.Errorf("Framebuffer() with empty info error = %v", err)
	}
	big, _ := metadata.NewFramebufferCreateInfo(9, 4096, 4096, 1, color)
	if _, err := ds.Framebuffer(big); !errors.Is(err, testbed.ErrAttachmentTooSmall) {
		t.Errorf("Framebuffer() larger than its attachment error = %v", err)
	}
}

func TestDeviceResizeFramebufferCache(t *testing.T) {
	ci := defaultCreateInfo()
	ci.FramebufferCacheCapacity = 4
	ds, driver := initializedDevice(t, ci)

	for i := 0; i < 4; i++ {
		img, err := ds.CreateImage(colorTarget("target"))
		if err != nil {
			t.Fatalf("CreateImage() error = %v", err)
		}
		info, _ := metadata.NewFramebufferCreateInfo(1, 640, 480, 1, img)
		if _, err := ds.Framebuffer(info); err != nil {
			t.Fatalf("Framebuffer() error = %v", err)
		}
	}
	evicted, err := ds.ResizeFramebufferCache(1)
	if err != nil || evicted != 3 {
		t.Fatalf("ResizeFramebufferCache(1) = %d, %v", evicted, err)
	}
	if driver.Live(testbed.KindFramebuffer) != 1 || ci.FramebufferCacheCapacity != 1 {
		t.Errorf("after resize: %d live, capacity %d", driver.Live(testbed.KindFramebuffer), ci.FramebufferCacheCapacity)
	}
	if _, err := ds.ResizeFramebufferCache(0); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("ResizeFramebufferCache(0) error = %v", err)
	}
}

func TestDeviceSwapchain(t *testing.T) {
	ds, driver := initializedDevice(t, defaultCreateInfo())

	params := metadata.SwapchainParameters{Width: 1280, Height: 720, ImageCount: 3, Format: metadata.FormatB8G8R8A8Srgb, EnableVSync: true}
	first, recreated, err := ds.ConfigureSwapchain(params)
	if err != nil || !recreated {
		t.Fatalf("ConfigureSwapchain() = %v, %t, %v", first, recreated, err)
	}
	if first.PresentMode != metadata.PresentModeFifo {
		t.Errorf("PresentMode = %s, want fifo", first.PresentMode)
	}

	same, recreated, err := ds.ConfigureSwapchain(params)
	if err != nil || recreated || same != first {
		t.Fatalf("identical parameters rebuilt the swapchain")
	}

	params.Width = 1920
	params.AllowFrameDrops = true
	second, recreated, err := ds.ConfigureSwapchain(params)
	if err != nil || !recreated {
		t.Fatalf("ConfigureSwapchain() after resize = %v, %t, %v", second, recreated, err)
	}
	if second.PresentMode != metadata.PresentModeMailbox {
		t.Errorf("PresentMode = %s, want mailbox", second.PresentMode)
	}
	if second.InternalData.(*testbed.NativeObject).Replaced != first.InternalData.(*testbed.NativeObject).ID {
		t.Error("the old swapchain was not handed to the backend")
	}
	if driver.Live(testbed.KindSwapchain) != 1 || ds.Swapchain() != second {
		t.Errorf("%d swapchains live after recreation", driver.Live(testbed.KindSwapchain))
	}

	// A failed rebuild keeps the working swapchain.
	driver.FailNext(testbed.OpCreateSwapchain, errInjected)
	params.Height = 1080
	if _, _, err := ds.ConfigureSwapchain(params); !errors.Is(err, errInjected) {
		t.Fatalf("ConfigureSwapchain() error = %v, want injected", err)
	}
	if ds.Swapchain() != second || driver.Live(testbed.KindSwapchain) != 1 {
		t.Error("a failed rebuild dropped the current swapchain")
	}

	if _, _, err := ds.ConfigureSwapchain(metadata.SwapchainParameters{}); !errors.Is(err, core.ErrInvalidCreateInfo) {
		t.Errorf("zero extent error = %v", err)
	}
}

func TestDeviceSwapchainWithoutPresent(t *testing.T) {
	ci := defaultCreateInfo()
	ci.RequiredExtensions = nil
	ci.RequiredQueues = []metadata.QueueRole{metadata.QueueRoleCompute}
	ci.OptionalQueues = []metadata.QueueRole{metadata.QueueRolePresent}
	ds, _ := newTestDevice(t, "compute_only", ci)
	if err := ds.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer ds.Shutdown()

	if _, ok := ds.QueueFamily(metadata.QueueRolePresent); ok {
		t.Fatal("compute-only hardware got a present queue")
	}
	_, _, err := ds.ConfigureSwapchain(metadata.SwapchainParameters{Width: 8, Height: 8})
	if !errors.Is(err, core.ErrNoSuitableQueueFamily) {
		t.Errorf("ConfigureSwapchain() error = %v", err)
	}
}

func TestDeviceShutdownReleasesEverything(t *testing.T) {
	ds, driver := newTestDevice(t, "discrete", defaultCreateInfo())
	if err := ds.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	img, _ := ds.CreateImage(colorTarget("color"))
	buf, _ := ds.CreateBuffer(&metadata.BufferCreateInfo{Size: 32, Usage: metadata.BufferUsageIndex})
	info, _ := metadata.NewFramebufferCreateInfo(1, 640, 480, 1, img)
	if _, err := ds.Framebuffer(info); err != nil {
		t.Fatalf("Framebuffer() error = %v", err)
	}
	if _, _, err := ds.ConfigureSwapchain(metadata.SwapchainParameters{Width: 640, Height: 480}); err != nil {
		t.Fatalf("ConfigureSwapchain() error = %v", err)
	}

	if err := ds.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	for _, kind := range []testbed.ObjectKind{testbed.KindBuffer, testbed.KindImage, testbed.KindFramebuffer, testbed.KindSwapchain} {
		if n := driver.Live(kind); n != 0 {
			t.Errorf("%d %s objects alive after shutdown", n, kind)
		}
	}
	if driver.Device() != nil || driver.MemoryUsed() != 0 {
		t.Error("device or memory outlived shutdown")
	}
	if _, err := ds.Buffer(buf); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("Buffer() after shutdown error = %v", err)
	}
	if err := ds.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}

	// The device can be brought up again.
	if err := ds.Initialize(); err != nil {
		t.Fatalf("Initialize() after shutdown error = %v", err)
	}
	if err := ds.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestDeviceThreadSafe(t *testing.T) {
	ci := defaultCreateInfo()
	ci.ThreadSafe = true
	ci.FramebufferCacheCapacity = 8
	ds, driver := initializedDevice(t, ci)

	target, err := ds.CreateImage(colorTarget("shared"))
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	info, _ := metadata.NewFramebufferCreateInfo(3, 640, 480, 1, target)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 8; i++ {
				h, err := ds.CreateBuffer(&metadata.BufferCreateInfo{Size: 128, Usage: metadata.BufferUsageStorage})
				if err != nil {
					errs <- err
					return
				}
				if _, err := ds.Framebuffer(info); err != nil {
					errs <- err
					return
				}
				if err := ds.DestroyBuffer(h); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent use: %v", err)
	}
	if got := driver.Created(testbed.KindFramebuffer); got != 1 {
		t.Errorf("concurrent requests built %d framebuffers, want 1", got)
	}
	if got := ds.Stats().Resources.LiveBuffers; got != 0 {
		t.Errorf("LiveBuffers = %d", got)
	}
}

func TestDeviceCreateRacingShutdown(t *testing.T) {
	ci := defaultCreateInfo()
	ci.ThreadSafe = true
	ds, driver := newTestDevice(t, "discrete", ci)
	if err := ds.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	start := make(chan struct{})
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ds.CreateBuffer(&metadata.BufferCreateInfo{Size: 64, Usage: metadata.BufferUsageStorage})
			if err != nil && !errors.Is(err, core.ErrNotInitialized) {
				errs <- err
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		if err := ds.Shutdown(); err != nil {
			errs <- err
		}
	}()
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("CreateBuffer() racing Shutdown(): %v", err)
	}

	if ds.IsInitialized() || driver.Device() != nil {
		t.Error("device still alive after Shutdown()")
	}
	if got := driver.Live(testbed.KindBuffer); got != 0 {
		t.Errorf("Live(buffer) = %d after Shutdown(), want 0", got)
	}
	if _, err := ds.CreateBuffer(&metadata.BufferCreateInfo{Size: 64, Usage: metadata.BufferUsageStorage}); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("CreateBuffer() after Shutdown() error = %v", err)
	}
}

func TestDeviceEnablesImplicitExtensions(t *testing.T) {
	ci := defaultCreateInfo()
	ci.OptionalExtensions = nil
	ds, driver := newTestDevice(t, "integrated", ci)
	if err := ds.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer ds.Shutdown()

	if !ds.HasExtension(metadata.ExtensionPortabilitySubset) {
		t.Errorf("Extensions() = %v, want the portability subset the hardware exposes", ds.Extensions())
	}
	if !slices.Contains(driver.Device().Extensions, metadata.ExtensionPortabilitySubset) {
		t.Errorf("device created with %v", driver.Device().Extensions)
	}
	if len(ci.OptionalExtensions) != 0 {
		t.Errorf("OptionalExtensions was modified to %v", ci.OptionalExtensions)
	}
}

func TestSystemManagerApplyConfig(t *testing.T) {
	p, _ := testbed.BuiltinProfile("integrated")
	driver, _ := testbed.NewHeadlessDriver(p)
	ci := defaultCreateInfo()
	ci.OptionalExtensions = nil
	sm, err := NewSystemManager(ci, driver)
	if err != nil {
		t.Fatalf("NewSystemManager() error = %v", err)
	}
	if err := sm.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer sm.Shutdown()

	if !sm.DeviceSystem().HasExtension(metadata.ExtensionPortabilitySubset) {
		t.Error("portability subset exposed by the hardware was not enabled")
	}
	if err := sm.ApplyConfig(RuntimeConfig{LogLevel: core.WarnLevel, FramebufferCacheCapacity: 16}); err != nil {
		t.Fatalf("ApplyConfig() error = %v", err)
	}
	if got := sm.DeviceSystem().Stats().Framebuffers.Capacity; got != 16 {
		t.Errorf("framebuffer capacity = %d, want 16", got)
	}
	if got := core.GetLogLevel(); got != core.WarnLevel {
		t.Errorf("log level = %s, want warn", got)
	}
	if err := sm.ApplyConfig(RuntimeConfig{LogLevel: core.DebugLevel}); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("ApplyConfig() with zero capacity error = %v", err)
	}
	if got := core.GetLogLevel(); got != core.WarnLevel {
		t.Errorf("rejected ApplyConfig() changed the log level to %s", got)
	}
	if got := sm.DeviceSystem().Stats().Framebuffers.Capacity; got != 16 {
		t.Errorf("rejected ApplyConfig() changed the capacity to %d", got)
	}
}

var _ Driver = (*testbed.HeadlessDriver)(nil)

func TestPoolStatsVisible(t *testing.T) {
	ds, _ := initializedDevice(t, defaultCreateInfo())
	h, _ := ds.CreateImage(colorTarget("a"))
	ds.DestroyImage(h)
	ds.CreateImage(colorTarget("b"))
	var want containers.PoolStats
	want.Creates, want.Destroys, want.Reuses = 2, 1, 1
	if got := ds.Stats().Resources.Images; got != want {
		t.Errorf("image pool stats = %+v, want %+v", got, want)
	}
}
