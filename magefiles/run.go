//go:build mage

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs vkcore on a simulated GPU until interrupted. PROFILE selects the
// hardware profile.
func (Run) Headless(ctx context.Context) error {
	mg.CtxDeps(ctx, Build.Binary)
	config, err := writeRunConfig("headless", envOr("PROFILE", "discrete"))
	if err != nil {
		return err
	}
	fmt.Println("Run vkcore headless...")
	_, err = executeCmdContext(ctx, "./bin/vkcore", withArgs("-config", config), withStream())
	return err
}

// Runs vkcore on the Vulkan driver with validation enabled.
func (Run) Vulkan(ctx context.Context) error {
	mg.CtxDeps(ctx, Build.Binary)
	config, err := writeRunConfig("vulkan", "")
	if err != nil {
		return err
	}
	fmt.Println("Run vkcore on vulkan...")
	_, err = executeCmdContext(ctx, "./bin/vkcore", withArgs("-config", config), withStream())
	return err
}

func writeRunConfig(kind, profile string) (string, error) {
	if err := os.MkdirAll("bin", 0o755); err != nil {
		return "", err
	}
	path := "bin/run-" + kind + ".toml"
	data := fmt.Sprintf("[application]\nname = \"vkcore-%s\"\n\n[log]\nlevel = \"debug\"\nstats_interval = 5\n\n[driver]\nkind = %q\nvalidation = true\n", kind, kind)
	if profile != "" {
		data += fmt.Sprintf("profile = %q\n", profile)
	}
	return path, os.WriteFile(path, []byte(data), 0o644)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
