package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"golang.org/x/exp/constraints"
)

var (
	ErrOutOfMemory         = errors.New("vulkan: out of memory")
	ErrDeviceLost          = errors.New("vulkan: device lost")
	ErrSurfaceLost         = errors.New("vulkan: surface lost")
	ErrFeatureNotPresent   = errors.New("vulkan: extension, layer or feature not present")
	ErrNoDevice            = errors.New("vulkan: no logical device")
	ErrInvalidGPU          = errors.New("vulkan: no such physical device")
	ErrUnknownRenderPass   = errors.New("vulkan: unknown render pass")
	ErrNoSuitableMemory    = errors.New("vulkan: no memory type satisfies the request")
	ErrUnsupportedProperty = errors.New("vulkan: unsupported surface property")
)

var resultNames = map[vk.Result]string{
	vk.Success:                   "VK_SUCCESS",
	vk.NotReady:                  "VK_NOT_READY",
	vk.Timeout:                   "VK_TIMEOUT",
	vk.EventSet:                  "VK_EVENT_SET",
	vk.EventReset:                "VK_EVENT_RESET",
	vk.Incomplete:                "VK_INCOMPLETE",
	vk.Suboptimal:                "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:       "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:            "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:  "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorOutOfPoolMemory:      "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorUnknown:              "VK_ERROR_UNKNOWN",
}

func VulkanResultString(result vk.Result) string {
	if name, ok := resultNames[result]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// VulkanResultIsSuccess reports whether result is one of the success codes,
// which are all non-negative.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

/** @brief A failed Vulkan call. */
type ResultError struct {
	Op     string
	Result vk.Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s failed with %s", e.Op, VulkanResultString(e.Result))
}

func (e *ResultError) Is(target error) bool {
	switch target {
	case ErrOutOfMemory:
		return e.Result == vk.ErrorOutOfHostMemory || e.Result == vk.ErrorOutOfDeviceMemory || e.Result == vk.ErrorOutOfPoolMemory
	case ErrDeviceLost:
		return e.Result == vk.ErrorDeviceLost
	case ErrSurfaceLost:
		return e.Result == vk.ErrorSurfaceLost
	case ErrFeatureNotPresent:
		return e.Result == vk.ErrorExtensionNotPresent || e.Result == vk.ErrorLayerNotPresent || e.Result == vk.ErrorFeatureNotPresent
	}
	return false
}

// check turns a VkResult into an error, nil for success codes.
func check(op string, result vk.Result) error {
	if VulkanResultIsSuccess(result) {
		return nil
	}
	return &ResultError{Op: op, Result: result}
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

// VulkanSafeStrings returns a NUL terminated copy of list.
func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// cString decodes a fixed size, NUL terminated name field.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func MathClamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
