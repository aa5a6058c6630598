package app

import (
	"os"
	"strconv"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether binaries should exit before touching Postgres,
// Redis or the order-management system. Any value strconv.ParseBool accepts
// as true enables it.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}
