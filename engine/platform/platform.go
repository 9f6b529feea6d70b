package platform

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/vkcore/engine/core"
)

var ErrVulkanUnsupported = errors.New("glfw reports no Vulkan loader")

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

/**
 * @brief The window system: loads the Vulkan entry point and owns the window
 * the swapchain presents to. The window stays hidden unless asked otherwise.
 */
type Platform struct {
	Window *glfw.Window

	mutex  sync.Mutex
	width  uint32
	height uint32
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, width uint32, height uint32, visible bool) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return ErrVulkanUnsupported
	}

	glfw.WindowHint(glfw.Visible, boolHint(visible))
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window
	p.width, p.height = width, height
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events and reports whether the
// window is still open.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return p.Window != nil && !p.Window.ShouldClose()
}

// ProcAddress is vkGetInstanceProcAddr as loaded by glfw.
func (p *Platform) ProcAddress() (unsafe.Pointer, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("func ProcAddress - %w", ErrVulkanUnsupported)
	}
	return procAddr, nil
}

// GetRequiredExtensionNames lists the instance extensions needed to present to the window.
func (p *Platform) GetRequiredExtensionNames() []string {
	if p.Window == nil {
		return nil
	}
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface returns the raw VkSurfaceKHR for instance.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	if p.Window == nil {
		return 0, fmt.Errorf("func CreateSurface - no window")
	}
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, fmt.Errorf("func CreateSurface - %w", err)
	}
	return surface, nil
}

// FramebufferSize is the last size reported by the window system.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.width, p.height
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.width, p.height = uint32(width), uint32(height)
}

func boolHint(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}
