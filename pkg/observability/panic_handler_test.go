package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "price table watcher")
		panic("bad reload")
	})

	assert.Contains(t, buf.String(), "bad reload")
	assert.Contains(t, buf.String(), "price table watcher")
}
