package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomSuffixIsShortHex(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		s := RandomSuffix()
		assert.Regexp(t, "^[0-9a-f]{8}$", s)
		seen[s] = true
	}
	// 32次全部相同的概率可以忽略不计
	assert.Greater(t, len(seen), 1)
}
