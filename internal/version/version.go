package version

// Build information set by ldflags
var (
	Version = "dev"     // -X github.com/arthur-debert/modman/internal/version.Version={{.Version}}
	Commit  = "unknown" // -X github.com/arthur-debert/modman/internal/version.Commit={{.Commit}}
	Date    = "unknown" // -X github.com/arthur-debert/modman/internal/version.Date={{.Date}}
)
