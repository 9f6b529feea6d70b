package testbed

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestBuiltinProfiles(t *testing.T) {
	tests := []struct {
		name     string
		families int
		present  bool
	}{
		{"discrete", 3, true},
		{"integrated", 1, true},
		{"compute_only", 2, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := BuiltinProfile(tc.name)
			if err != nil {
				t.Fatalf("BuiltinProfile() error = %v", err)
			}
			if p.Name != tc.name {
				t.Errorf("Name = %q", p.Name)
			}
			families := p.GPUs[0].QueueFamilyProperties()
			if len(families) != tc.families {
				t.Fatalf("got %d queue families, want %d", len(families), tc.families)
			}
			present := false
			for _, f := range families {
				present = present || f.Flags.Has(metadata.QueueFlagPresent)
			}
			if present != tc.present {
				t.Errorf("present support = %t, want %t", present, tc.present)
			}
		})
	}

	if _, err := BuiltinProfile("mainframe"); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("unknown builtin profile error = %v", err)
	}
}

func TestParseProfileRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", `
name = "x"
[[gpu]]
name = "g"
clock_speed = 3
[[gpu.queue_family]]
flags = ["graphics"]
count = 1
`},
		{"no gpu", `name = "x"`},
		{"no family", `
[[gpu]]
name = "g"
`},
		{"bad flag", `
[[gpu]]
name = "g"
[[gpu.queue_family]]
flags = ["raytracing"]
count = 1
`},
		{"bad alignment", `
[[gpu]]
name = "g"
memory_alignment = 100
[[gpu.queue_family]]
flags = ["transfer"]
count = 1
`},
		{"bad present mode", `
[[gpu]]
name = "g"
[gpu.surface]
present_modes = ["vsync"]
[[gpu.queue_family]]
flags = ["graphics"]
count = 1
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseProfile([]byte(tc.data)); !errors.Is(err, core.ErrInvalidConfig) {
				t.Errorf("ParseProfile() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func newTestDriver(t *testing.T, profile string) *HeadlessDriver {
	t.Helper()
	p, err := BuiltinProfile(profile)
	if err != nil {
		t.Fatalf("BuiltinProfile(%q) error = %v", profile, err)
	}
	d, err := NewHeadlessDriver(p)
	if err != nil {
		t.Fatalf("NewHeadlessDriver() error = %v", err)
	}
	return d
}

func graphicsDevice() *metadata.DeviceDescriptor {
	return &metadata.DeviceDescriptor{
		Name:       "test-device",
		Extensions: []string{metadata.ExtensionSwapchain},
		Queues: metadata.QueueRoleMap{
			metadata.QueueRoleGraphics: {FamilyIndex: 0, QueueIndex: 0},
			metadata.QueueRolePresent:  {FamilyIndex: 0, QueueIndex: 1},
		},
	}
}

func TestHeadlessDeviceDescriptorChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*metadata.DeviceDescriptor)
		want   error
	}{
		{"valid", func(*metadata.DeviceDescriptor) {}, nil},
		{"unknown extension", func(d *metadata.DeviceDescriptor) {
			d.Extensions = append(d.Extensions, "VK_NV_ray_tracing")
		}, ErrInvalidDescriptor},
		{"missing family", func(d *metadata.DeviceDescriptor) {
			d.Queues[metadata.QueueRoleCompute] = metadata.QueueAssignment{FamilyIndex: 7}
		}, ErrInvalidDescriptor},
		{"too many queues", func(d *metadata.DeviceDescriptor) {
			d.Queues[metadata.QueueRoleAsyncTransfer] = metadata.QueueAssignment{FamilyIndex: 2, QueueIndex: 1}
		}, ErrInvalidDescriptor},
		{"bad gpu", func(d *metadata.DeviceDescriptor) {
			d.GPUGroupIndex = 3
		}, ErrInvalidGPU},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDriver(t, "discrete")
			desc := graphicsDevice()
			tc.mutate(desc)
			err := d.CreateDevice(desc)
			if !errors.Is(err, tc.want) {
				t.Fatalf("CreateDevice() error = %v, want %v", err, tc.want)
			}
			if tc.want == nil {
				if _, err := d.Queue(metadata.QueueAssignment{FamilyIndex: 0, QueueIndex: 1}); err != nil {
					t.Errorf("Queue() error = %v", err)
				}
				if _, err := d.Queue(metadata.QueueAssignment{FamilyIndex: 1}); !errors.Is(err, ErrInvalidDescriptor) {
					t.Errorf("Queue() for an unrequested family error = %v", err)
				}
			}
		})
	}
}

func TestHeadlessObjectTracking(t *testing.T) {
	d := newTestDriver(t, "discrete")
	if _, err := d.CreateBuffer(&metadata.BufferCreateInfo{Size: 16, Usage: metadata.BufferUsageVertex}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("CreateBuffer() without device error = %v", err)
	}
	if err := d.CreateDevice(graphicsDevice()); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	b, err := d.CreateBuffer(&metadata.BufferCreateInfo{
		Size:            100,
		Usage:           metadata.BufferUsageUniform,
		MemoryUsage:     metadata.MemoryUsageCPUToGPU,
		MapPersistently: true,
		InitialData:     []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if len(b.Mapped) != 100 || b.Mapped[2] != 3 {
		t.Errorf("mapped buffer = %v", b.Mapped[:4])
	}
	if got := d.MemoryUsed(); got != 256 {
		t.Errorf("MemoryUsed() = %d, want 256 after alignment", got)
	}

	img, err := d.CreateImage(&metadata.ImageCreateInfo{
		Width: 64, Height: 64, Depth: 1, MipLevels: 1, ArrayLayers: 1,
		Format: metadata.FormatR8G8B8A8Unorm, Usage: metadata.ImageUsageColorAttachment,
	})
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}

	info := metadata.FramebufferCreateInfo{Width: 128, Height: 64, Layers: 1, AttachmentCount: 1}
	if _, err := d.CreateFramebuffer(&info, []*metadata.Image{img}); !errors.Is(err, ErrAttachmentTooSmall) {
		t.Errorf("oversized framebuffer error = %v", err)
	}
	info.Width = 64
	fb, err := d.CreateFramebuffer(&info, []*metadata.Image{img})
	if err != nil {
		t.Fatalf("CreateFramebuffer() error = %v", err)
	}

	d.DestroyFramebuffer(fb)
	d.DestroyImage(img)
	d.DestroyBuffer(b)
	for _, kind := range []ObjectKind{KindBuffer, KindImage, KindFramebuffer} {
		if n := d.Live(kind); n != 0 {
			t.Errorf("Live(%s) = %d after destroy", kind, n)
		}
		if n := d.Created(kind); n != 1 {
			t.Errorf("Created(%s) = %d, want 1", kind, n)
		}
	}
	if got := d.MemoryUsed(); got != 0 {
		t.Errorf("MemoryUsed() = %d after destroy", got)
	}

	// A second destroy of the same object is reported, not counted.
	d.DestroyBuffer(b)
	if n := d.Live(KindBuffer); n != 0 {
		t.Errorf("Live(buffer) = %d after double destroy", n)
	}
}

func TestHeadlessMemoryBudget(t *testing.T) {
	d := newTestDriver(t, "integrated")
	desc := graphicsDevice()
	desc.Queues[metadata.QueueRolePresent] = metadata.QueueAssignment{}
	desc.Extensions = nil
	if err := d.CreateDevice(desc); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	budget := d.Profile().GPUs[0].DeviceMemory
	if _, err := d.CreateBuffer(&metadata.BufferCreateInfo{Size: budget, Usage: metadata.BufferUsageStorage}); err != nil {
		t.Fatalf("CreateBuffer() of the whole budget error = %v", err)
	}
	if _, err := d.CreateBuffer(&metadata.BufferCreateInfo{Size: 1, Usage: metadata.BufferUsageStorage}); !errors.Is(err, ErrOutOfDeviceMemory) {
		t.Errorf("CreateBuffer() past the budget error = %v", err)
	}
}

func TestHeadlessFailureInjection(t *testing.T) {
	d := newTestDriver(t, "discrete")
	boom := errors.New("boom")
	d.FailNext(OpCreateDevice, boom)
	if err := d.CreateDevice(graphicsDevice()); !errors.Is(err, boom) {
		t.Fatalf("CreateDevice() error = %v, want injected", err)
	}
	if err := d.CreateDevice(graphicsDevice()); err != nil {
		t.Fatalf("CreateDevice() after the injected failure error = %v", err)
	}
	d.FailNext(OpWaitIdle, boom)
	if err := d.WaitIdle(); !errors.Is(err, boom) {
		t.Errorf("WaitIdle() error = %v", err)
	}
	if err := d.WaitIdle(); err != nil {
		t.Errorf("WaitIdle() error = %v", err)
	}
}

func TestHeadlessSwapchain(t *testing.T) {
	tests := []struct {
		name      string
		profile   string
		params    metadata.SwapchainParameters
		wantMode  metadata.PresentMode
		wantCount uint32
	}{
		{"mailbox", "discrete", metadata.SwapchainParameters{Width: 800, Height: 600, ImageCount: 3, EnableVSync: true, AllowFrameDrops: true}, metadata.PresentModeMailbox, 3},
		{"clamp high", "discrete", metadata.SwapchainParameters{Width: 800, Height: 600, ImageCount: 12, EnableVSync: true}, metadata.PresentModeFifo, 8},
		{"fallback to fifo", "integrated", metadata.SwapchainParameters{Width: 800, Height: 600, ImageCount: 1}, metadata.PresentModeFifo, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDriver(t, tc.profile)
			desc := graphicsDevice()
			desc.Queues[metadata.QueueRolePresent] = metadata.QueueAssignment{}
			desc.Extensions = nil
			if err := d.CreateDevice(desc); err != nil {
				t.Fatalf("CreateDevice() error = %v", err)
			}
			sc, err := d.CreateSwapchain(&tc.params, nil)
			if err != nil {
				t.Fatalf("CreateSwapchain() error = %v", err)
			}
			if sc.PresentMode != tc.wantMode || sc.ImageCount != tc.wantCount {
				t.Errorf("swapchain mode %s count %d, want %s count %d", sc.PresentMode, sc.ImageCount, tc.wantMode, tc.wantCount)
			}

			next, err := d.CreateSwapchain(&tc.params, sc)
			if err != nil {
				t.Fatalf("CreateSwapchain() with old error = %v", err)
			}
			if next.InternalData.(*NativeObject).Replaced != sc.InternalData.(*NativeObject).ID {
				t.Error("replacement does not record the old swapchain")
			}
			d.DestroySwapchain(sc)
			if _, err := d.CreateSwapchain(&tc.params, sc); !errors.Is(err, ErrObjectNotLive) {
				t.Errorf("CreateSwapchain() with a destroyed old swapchain error = %v", err)
			}
		})
	}
}
