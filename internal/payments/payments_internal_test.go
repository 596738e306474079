package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountConversion(t *testing.T) {
	assert.Equal(t, 19.78, toMajor(1978))
	assert.Equal(t, int64(1978), toMinor(19.78))
	assert.Equal(t, int64(10), toMinor(0.1))
	assert.Equal(t, int64(0), toMinor(0))
}

func TestSucceeded(t *testing.T) {
	assert.True(t, Succeeded("approved"))
	assert.True(t, Succeeded("authorized"))
	for _, s := range []string{"pending", "in_process", "rejected", "cancelled", ""} {
		assert.False(t, Succeeded(s), s)
	}
}
