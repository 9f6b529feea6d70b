package metadata

import "golang.org/x/exp/slices"

const (
	ExtensionSwapchain         = "VK_KHR_swapchain"
	ExtensionPortabilitySubset = "VK_KHR_portability_subset"
	ExtensionValidationCache   = "VK_EXT_validation_cache"
)

/**
 * @brief Device capabilities asked for at device creation.
 */
type ExtensionRequest struct {
	/** @brief Device creation fails unless all of these are available. */
	Required []string
	/** @brief Enabled when available, skipped otherwise. */
	Optional []string
}

/**
 * @brief The outcome of capability negotiation. Both lists are sorted and
 * free of duplicates.
 */
type ExtensionResolution struct {
	Granted         []string
	MissingRequired []string
}

// OK reports whether every required capability was granted.
func (r *ExtensionResolution) OK() bool {
	return len(r.MissingRequired) == 0
}

func (r *ExtensionResolution) Has(name string) bool {
	_, found := slices.BinarySearch(r.Granted, name)
	return found
}
