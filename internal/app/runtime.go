package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "TAXPILOT_TEST_MODE"

// InTestMode reports whether TAXPILOT_TEST_MODE is set to a true value
// ("1", "true", ...). Binaries return before touching Postgres or Redis.
var InTestMode = sync.OnceValue(func() bool {
	enabled, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && enabled
})
