package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv makes the binaries exit before dialing Postgres or Redis.
const TestModeEnv = "PROCURE_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
})

// InTestMode reports whether runtime startup should be skipped. The
// environment is read once per process.
func InTestMode() bool {
	return testMode()
}
