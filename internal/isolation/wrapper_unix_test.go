//go:build unix

package isolation

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertProcessGone(t *testing.T, pid int) {
	t.Helper()
	err := syscall.Kill(pid, 0)
	assert.True(t, errors.Is(err, syscall.ESRCH), "process %d still exists: %v", pid, err)
}
