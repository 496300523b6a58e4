package version

var (
	// Version is the semantic version of the pulpwatcher binary. Set via ldflags.
	Version = "dev"
	// Commit is the git revision the binary was built from. Set via ldflags.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp. Set via ldflags.
	BuildDate = "unknown"
)
