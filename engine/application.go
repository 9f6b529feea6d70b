package engine

/** @brief Identity of the process and the surface it presents to. */
type ApplicationConfig struct {
	// The application name used in logs and, if applicable, the window title.
	Name string `toml:"name"`
	// Swapchain starting width.
	StartWidth uint32 `toml:"width"`
	// Swapchain starting height.
	StartHeight uint32 `toml:"height"`
	// Reload the runtime settings whenever the configuration file is written.
	WatchConfig bool `toml:"watch_config"`
}
