package app

import "strings"

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

func BuildVersion() string {
	version := strings.TrimSpace(Version)
	if version == "" {
		return "dev"
	}
	if date := strings.TrimSpace(BuildDate); date != "" {
		return version + " (" + date + ")"
	}

	return version
}
