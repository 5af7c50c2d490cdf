// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// Commit is the short Git revision
	Commit string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// NewContext creates a build context. Empty values report as UnknownValue.
func NewContext(version, commit, buildDate string) *Context {
	return &Context{Version: version, Commit: commit, BuildDate: buildDate}
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// GetVersion returns the build version string
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

// GetCommit returns the Git revision
func (c *Context) GetCommit() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Commit)
}

// GetBuildDate returns the build date string
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

// String renders the version line printed by "radiotracker --version".
func (c *Context) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", c.GetVersion(), c.GetCommit(), c.GetBuildDate())
}

// UserAgent is the default User-Agent for upstream requests.
func (c *Context) UserAgent() string {
	return "radiotracker/" + c.GetVersion()
}

// Release is the Sentry release name.
func (c *Context) Release() string {
	return "radiotracker@" + c.GetVersion()
}
