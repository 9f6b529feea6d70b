package metadata

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/spaghettifunk/vkcore/engine/core"
)

/** @brief Presentation modes. Values follow VkPresentModeKHR. */
type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", uint32(m))
}

func ParsePresentMode(s string) (PresentMode, error) {
	for _, m := range []PresentMode{PresentModeImmediate, PresentModeMailbox, PresentModeFifo, PresentModeFifoRelaxed} {
		if strings.EqualFold(strings.TrimSpace(s), m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown present mode %q", s)
}

func (m PresentMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *PresentMode) UnmarshalText(text []byte) error {
	mode, err := ParsePresentMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

/**
 * @brief Everything that decides whether a swapchain has to be recreated.
 */
type SwapchainParameters struct {
	Width  uint32
	Height uint32
	/** @brief Requested image count; the backend clamps it to the surface limits. */
	ImageCount uint32
	Format     Format
	/** @brief Wait for vertical blank before presenting. */
	EnableVSync bool
	/** @brief With vsync on, let newer frames replace queued ones instead of blocking. */
	AllowFrameDrops bool
}

// Validate rejects a zero extent, which is what a minimized window reports.
func (p *SwapchainParameters) Validate() error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("%w: swapchain extent %dx%d", core.ErrInvalidCreateInfo, p.Width, p.Height)
	}
	return nil
}

// PresentMode derives the presentation mode from the vsync settings.
func (p SwapchainParameters) PresentMode() PresentMode {
	switch {
	case !p.EnableVSync:
		return PresentModeImmediate
	case p.AllowFrameDrops:
		return PresentModeMailbox
	default:
		return PresentModeFifo
	}
}

// Hash is a FNV-1a digest of every parameter, used to label swapchains in logs.
func (p SwapchainParameters) Hash() uint64 {
	hasher := fnv.New64a()
	var buf [4]byte
	for _, v := range []uint32{p.Width, p.Height, p.ImageCount, uint32(p.Format), boolBit(p.EnableVSync), boolBit(p.AllowFrameDrops)} {
		binary.LittleEndian.PutUint32(buf[:], v)
		hasher.Write(buf[:])
	}
	return hasher.Sum64()
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

/**
 * @brief A swapchain built for a set of parameters.
 */
type Swapchain struct {
	Parameters  SwapchainParameters
	PresentMode PresentMode
	ImageCount  uint32
	/** @brief The backend-specific swapchain, its images and views. */
	InternalData interface{}
}
