// Package constants defines the constants used across the registry service.
package constants

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// ServiceCmdName is the name of the registry service command.
	ServiceCmdName = "cogs-registry-service"

	// ManifestName is the file name of repository and cog manifests.
	ManifestName = "info.json"

	// DefaultBranch is the branch assumed when a request does not name one.
	DefaultBranch = "master"

	// DefaultListenPort is the port the web service listens on.
	DefaultListenPort = 8080

	// DefaultMetricsPort is the port the metrics endpoint listens on.
	DefaultMetricsPort = 2113

	// GitHubAPIRoot is the base URL of the GitHub REST and GraphQL APIs.
	GitHubAPIRoot = "https://api.github.com"
)

// Approval states for repositories. Operators may set other values; the
// pipeline only ever writes Unapproved, and only on first insert.
const (
	Unapproved = "unapproved"
	Approved   = "approved"
)
