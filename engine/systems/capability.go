package systems

import (
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

/**
 * @brief Resolves an extension request against what the hardware exposes.
 * It holds no state between calls.
 */
type CapabilityNegotiator struct{}

func NewCapabilityNegotiator() *CapabilityNegotiator {
	return &CapabilityNegotiator{}
}

// Resolve computes granted = (required ∪ optional) ∩ available and
// missing = required \ available. Nothing outside the request is granted.
// When anything required is missing the resolution is still returned,
// together with a *core.UnsupportedCapabilityError.
func (cn *CapabilityNegotiator) Resolve(request metadata.ExtensionRequest, available []string) (*metadata.ExtensionResolution, error) {
	have := sortedSet(available)
	contains := func(name string) bool {
		_, found := slices.BinarySearch(have, name)
		return found
	}

	granted := []string{}
	missing := []string{}
	for _, name := range sortedSet(request.Required) {
		if contains(name) {
			granted = append(granted, name)
		} else {
			missing = append(missing, name)
		}
	}
	for _, name := range sortedSet(request.Optional) {
		if contains(name) {
			granted = append(granted, name)
		} else {
			core.LogDebug("Optional extension '%s' is not available, skipping.", name)
		}
	}

	resolution := &metadata.ExtensionResolution{
		Granted:         sortedSet(granted),
		MissingRequired: missing,
	}
	if !resolution.OK() {
		return resolution, &core.UnsupportedCapabilityError{Missing: slices.Clone(missing)}
	}
	return resolution, nil
}

// sortedSet returns a sorted copy of names without duplicates or empty entries.
func sortedSet(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
