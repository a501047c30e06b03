// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of Loom binaries.
package version

import "runtime/debug"

// Version is the release version, set at build time via
// -ldflags "-X github.com/loomchat/loom/lib/version.Version=v0.3.0".
// Empty for plain `go build` invocations.
var Version string

// String returns the best available version description: the ldflags
// release version, or the VCS revision recorded in the build info, or
// "devel".
func String() string {
	if Version != "" {
		return Version
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}

	revision := ""
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if revision == "" {
		return "devel"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if dirty {
		return revision + "-dirty"
	}
	return revision
}
