package version

import "fmt"

const (
	// Version is the current version of the relay
	Version = "1.0.0"
)

// GetVersion returns the current version string
func GetVersion() string {
	return fmt.Sprintf("Discord Status %s", Version)
}
