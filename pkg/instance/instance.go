package instance

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// ID returns the configured instance id, then the platform's dyno name, then
// the hostname with a random suffix so two processes on one host differ.
func ID(configured string) string {
	if id := strings.TrimSpace(configured); id != "" {
		return id
	}
	if id := strings.TrimSpace(os.Getenv("DYNO")); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return host + "-" + uuid.NewString()[:8]
}
