// Package guard is blank-imported by tests that touch process configuration. It
// flags test mode and clears connection settings exported by a developer shell so
// config defaults and the memory backend are what the tests see.
package guard

import "os"

const testModeEnv = "ODYSSEY_TEST_MODE"

var scrubbed = []string{"PG_DSN", "REDIS_ADDR", "STORE_BACKEND", "REPLENISH_MODE", "ALERT_MODE"}

func init() {
	if os.Getenv(testModeEnv) == "" {
		_ = os.Setenv(testModeEnv, "1")
	}
	for _, key := range scrubbed {
		_ = os.Unsetenv(key)
	}
}
