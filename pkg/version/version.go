package version

// These are set at build time using -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)
