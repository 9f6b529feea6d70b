package systems

import (
	"github.com/spaghettifunk/vkcore/engine/containers"
	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
)

/**
 * @brief Keeps exactly one swapchain alive and rebuilds it whenever the
 * parameters change. The previous swapchain is handed to the backend for
 * reuse and released once its replacement exists.
 */
type SwapchainSystem struct {
	factory SwapchainFactory
	cache   *containers.ContentAddressedCache[metadata.SwapchainParameters, *metadata.Swapchain]
	current *metadata.Swapchain
}

func NewSwapchainSystem(factory SwapchainFactory) (*SwapchainSystem, error) {
	ss := &SwapchainSystem{factory: factory}
	cache, err := containers.NewContentAddressedCache(1, ss.release)
	if err != nil {
		return nil, err
	}
	ss.cache = cache
	return ss, nil
}

// Configure returns the swapchain for params and whether it had to be built.
func (ss *SwapchainSystem) Configure(params metadata.SwapchainParameters) (*metadata.Swapchain, bool, error) {
	if err := params.Validate(); err != nil {
		return nil, false, err
	}
	recreated := !ss.cache.Contains(params)
	sc, err := ss.cache.GetOrCreate(params, ss.build)
	if err != nil {
		core.LogError("Failed to configure swapchain %dx%d: %s", params.Width, params.Height, err)
		return nil, false, err
	}
	ss.current = sc
	return sc, recreated, nil
}

// Current is the live swapchain, nil before the first Configure.
func (ss *SwapchainSystem) Current() *metadata.Swapchain {
	return ss.current
}

func (ss *SwapchainSystem) Stats() containers.CacheStats {
	return ss.cache.Stats()
}

func (ss *SwapchainSystem) Shutdown() error {
	ss.cache.Purge()
	return nil
}

func (ss *SwapchainSystem) build(params metadata.SwapchainParameters) (*metadata.Swapchain, error) {
	sc, err := ss.factory.CreateSwapchain(&params, ss.current)
	if err != nil {
		return nil, err
	}
	core.LogInfo("Swapchain %016x created: %dx%d, %d images, %s.",
		params.Hash(), params.Width, params.Height, sc.ImageCount, sc.PresentMode)
	return sc, nil
}

func (ss *SwapchainSystem) release(params metadata.SwapchainParameters, sc *metadata.Swapchain) {
	if ss.current == sc {
		ss.current = nil
	}
	ss.factory.DestroySwapchain(sc)
	core.LogDebug("Swapchain %016x released.", params.Hash())
}
