package env

// Set at build time via -ldflags "-X github.com/ostafen/fido/internal/env.Version=...".
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

const AppName = "fido"
