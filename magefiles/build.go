//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Downloads the modules and builds the vkcore binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	// glfw and the vulkan loader are cgo packages.
	_, err := executeCmd("go", withArgs("build", "-o", "bin/vkcore", "."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Runs vet over every package.
func (Build) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// Runs the tests with the race detector. The vulkan and platform packages
// need cgo and a loader, so the default set leaves them out.
func (Build) Test() error {
	mg.Deps(Build.Vet)
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1",
		"./engine/core/...",
		"./engine/containers/...",
		"./engine/renderer/metadata/...",
		"./engine/systems/...",
		"./engine/assets/...",
		"./engine",
		"./testbed/...",
	), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
