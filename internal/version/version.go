// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package version formats the build metadata of the binary.
package version

import (
	"runtime"

	"github.com/mia-platform/ledgersync/internal/info"
)

// String formats version metadata for display.
func String(version, buildDate, runtimeVersion string) string {
	outputString := version
	if buildDate != "" {
		outputString += " (" + buildDate + ")"
	}

	return outputString + ", Go Version: " + runtimeVersion
}

// ServiceVersionInformation returns the version metadata of the running binary.
func ServiceVersionInformation() string {
	return String(info.Version, info.BuildDate, runtime.Version())
}
