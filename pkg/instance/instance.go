package instance

import "os"

// GetID returns the process instance identifier used to tag log lines.
// Heroku-style DYNO wins over HOSTNAME; local runs report "local".
func GetID() string {
	for _, key := range []string{"DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
