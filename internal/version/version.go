// Package version provides the build version.
package version

import "fmt"

// Version is the release version, bumped per release.
var Version = "0.3.1"

// DevVersion is reported in non-prod modes.
var DevVersion = "0.0.0"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

func GetVersionWithMode(mode string) string {
	return fmt.Sprintf("%s-%s", GetCurrentVersion(mode), mode)
}
