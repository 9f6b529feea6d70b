package metadata

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/vkcore/engine/containers"
)

/** @brief Where a resource's memory lives and who accesses it. */
type MemoryUsage int

const (
	/** @brief Device-local memory, not visible to the host. */
	MemoryUsageGPUOnly MemoryUsage = iota
	/** @brief Host-visible memory the device reads from (uploads, uniforms). */
	MemoryUsageCPUToGPU
	/** @brief Host-visible memory the device writes to (readbacks). */
	MemoryUsageGPUToCPU
	/** @brief Host memory used for staging only. */
	MemoryUsageCPUOnly
)

func (m MemoryUsage) String() string {
	switch m {
	case MemoryUsageGPUOnly:
		return "gpu_only"
	case MemoryUsageCPUToGPU:
		return "cpu_to_gpu"
	case MemoryUsageGPUToCPU:
		return "gpu_to_cpu"
	case MemoryUsageCPUOnly:
		return "cpu_only"
	}
	return fmt.Sprintf("MemoryUsage(%d)", int(m))
}

// HostVisible reports whether memory of this usage can be mapped.
func (m MemoryUsage) HostVisible() bool {
	return m != MemoryUsageGPUOnly
}

// Handles are the only long-lived identity callers get for device resources.
type (
	BufferHandle = containers.Handle[Buffer]
	ImageHandle  = containers.Handle[Image]
)

/**
 * @brief Pixel formats. Values follow VkFormat so backends can convert directly.
 */
type Format uint32

const (
	FormatUndefined       Format = 0
	FormatR8G8B8A8Unorm   Format = 37
	FormatR8G8B8A8Srgb    Format = 43
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatD32Sfloat       Format = 126
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

// IsDepth reports whether the format carries a depth aspect.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

var formatNames = map[Format]string{
	FormatUndefined:       "undefined",
	FormatR8G8B8A8Unorm:   "r8g8b8a8_unorm",
	FormatR8G8B8A8Srgb:    "r8g8b8a8_srgb",
	FormatB8G8R8A8Unorm:   "b8g8r8a8_unorm",
	FormatB8G8R8A8Srgb:    "b8g8r8a8_srgb",
	FormatD32Sfloat:       "d32_sfloat",
	FormatD24UnormS8Uint:  "d24_unorm_s8_uint",
	FormatD32SfloatS8Uint: "d32_sfloat_s8_uint",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("unknown format %q", s)
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	format, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = format
	return nil
}
