package testbed

import (
	"bytes"
	"embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

//go:embed profiles/*.toml
var builtinProfiles embed.FS

/**
 * @brief A synthetic machine: one or more GPUs with the extensions, queue
 * families and surface limits the headless driver reports.
 */
type Profile struct {
	Name string       `toml:"name"`
	GPUs []GPUProfile `toml:"gpu"`
}

type GPUProfile struct {
	Name       string   `toml:"name"`
	Extensions []string `toml:"extensions"`
	/** @brief Offsets of device allocations are rounded up to this. */
	MemoryAlignment uint64 `toml:"memory_alignment"`
	/** @brief Bytes of device memory. Zero means unlimited. */
	DeviceMemory  uint64               `toml:"device_memory"`
	Surface       SurfaceProfile       `toml:"surface"`
	QueueFamilies []QueueFamilyProfile `toml:"queue_family"`
}

type SurfaceProfile struct {
	MinImageCount uint32                 `toml:"min_image_count"`
	MaxImageCount uint32                 `toml:"max_image_count"`
	PresentModes  []metadata.PresentMode `toml:"present_modes"`
}

type QueueFamilyProfile struct {
	Flags []string `toml:"flags"`
	Count uint32   `toml:"count"`
}

// BuiltinProfile loads one of the profiles shipped with the testbed, by name
// without extension: "discrete", "integrated" or "compute_only".
func BuiltinProfile(name string) (*Profile, error) {
	data, err := builtinProfiles.ReadFile("profiles/" + name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("%w: no builtin hardware profile %q", core.ErrInvalidConfig, name)
	}
	return ParseProfile(data)
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("hardware profile %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes a TOML profile. Unknown keys are rejected.
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if len(p.GPUs) == 0 {
		return fmt.Errorf("%w: profile %q has no gpu", core.ErrInvalidConfig, p.Name)
	}
	for i, gpu := range p.GPUs {
		if len(gpu.QueueFamilies) == 0 {
			return fmt.Errorf("%w: gpu %d has no queue family", core.ErrInvalidConfig, i)
		}
		if a := gpu.MemoryAlignment; a&(a-1) != 0 {
			return fmt.Errorf("%w: gpu %d memory alignment %d is not a power of two", core.ErrInvalidConfig, i, a)
		}
		for j, qf := range gpu.QueueFamilies {
			if _, err := metadata.ParseQueueFlags(qf.Flags); err != nil {
				return fmt.Errorf("%w: gpu %d queue family %d: %w", core.ErrInvalidConfig, i, j, err)
			}
		}
		if s := gpu.Surface; s.MaxImageCount != 0 && s.MaxImageCount < s.MinImageCount {
			return fmt.Errorf("%w: gpu %d surface image count range %d..%d", core.ErrInvalidConfig, i, s.MinImageCount, s.MaxImageCount)
		}
	}
	return nil
}

// QueueFamilyProperties converts the profile's families to what a driver reports.
func (g *GPUProfile) QueueFamilyProperties() []metadata.QueueFamilyProperties {
	out := make([]metadata.QueueFamilyProperties, 0, len(g.QueueFamilies))
	for _, qf := range g.QueueFamilies {
		// Validate already rejected unknown flags.
		flags, _ := metadata.ParseQueueFlags(qf.Flags)
		out = append(out, metadata.QueueFamilyProperties{Flags: flags, QueueCount: qf.Count})
	}
	return out
}
