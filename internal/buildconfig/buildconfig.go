package buildconfig

import "runtime"

// Build-time variables injected via ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Version returns the build version
func Version() string {
	return version
}

// Commit returns the git commit hash
func Commit() string {
	return commit
}

// VersionInfo returns full version information, including the data set
// versions the binary was built with.
func VersionInfo(vocabularyVersion, unitsVersion, seedVersion int) map[string]any {
	return map[string]any{
		"version":    version,
		"commit":     commit,
		"build_date": buildDate,
		"go_version": runtime.Version(),
		"data": map[string]int{
			"vocabulary": vocabularyVersion,
			"units":      unitsVersion,
			"constants":  seedVersion,
		},
	}
}
