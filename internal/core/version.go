package core

import (
	"regexp"
	"runtime/debug"
	"strings"
)

// Version of the running binary: the module version for tagged builds,
// devel-<sha>[-dirty] for local builds from a checkout, devel otherwise.
var Version = versionFromBuildInfo(debug.ReadBuildInfo())

// A pseudo-version ends in a 14 digit UTC timestamp and a 12 digit commit
// hash, optionally followed by +build metadata.
var pseudoVersion = regexp.MustCompile(`[-.]\d{14}-[0-9a-f]{12}(\+.*)?$`)

func versionFromBuildInfo(info *debug.BuildInfo, ok bool) string {
	if !ok || info == nil {
		return "devel"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" && !pseudoVersion.MatchString(v) {
		return v
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	revision := settings["vcs.revision"]
	if revision == "" {
		return "devel"
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	v := "devel-" + revision
	if settings["vcs.modified"] == "true" {
		v += "-dirty"
	}
	return v
}

// FormatVersion drops the "v" of tagged releases for display
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}
