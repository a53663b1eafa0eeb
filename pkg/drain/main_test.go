package drain

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// This catches drain loops or pool workers that outlive their owners.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
