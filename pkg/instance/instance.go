package instance

import (
	"os"

	"github.com/angelmondragon/circulation-backend/pkg/env"
)

const (
	envInstanceID = "CIRCULATION_INSTANCE_ID"
	envDyno       = "DYNO"
)

// GetID identifies this process for lock ownership and log fields. It prefers
// an explicit id, then the platform dyno name, then the hostname.
func GetID() string {
	if id := env.First(envInstanceID, envDyno); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
