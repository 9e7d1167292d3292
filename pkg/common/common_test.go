package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDint64Unique(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 1000; i++ {
		id := UUIDint64()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestFenToDollar(t *testing.T) {
	assert.Equal(t, "$24", FenToDollar(2400))
	assert.Equal(t, "$0", FenToDollar(0))
	assert.Equal(t, "$10.50", FenToDollar(1050))
	assert.Equal(t, "$0.99", FenToDollar(99))
	assert.Equal(t, "$123", FenToDollar(12300))
}

func TestRandomCouponCode(t *testing.T) {
	codes := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := RandomCouponCode()
		assert.Len(t, code, 15)
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "I")
		assert.NotContains(t, code, "1")
		codes[code] = true
	}
	assert.Greater(t, len(codes), 95)
}

func TestRandomHexLength(t *testing.T) {
	assert.Len(t, RandomHex(16), 32)
	assert.NotEqual(t, RandomHex(16), RandomHex(16))
}

func TestSha256HashWithSalt(t *testing.T) {
	h1 := Sha256HashWithSalt("secret", "salt-a")
	h2 := Sha256HashWithSalt("secret", "salt-a")
	h3 := Sha256HashWithSalt("secret", "salt-b")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestIsEmptyOrNA(t *testing.T) {
	assert.True(t, IsEmptyOrNA(""))
	assert.True(t, IsEmptyOrNA("  "))
	assert.True(t, IsEmptyOrNA("N/A"))
	assert.True(t, IsEmptyOrNA("n/a"))
	assert.False(t, IsEmptyOrNA("value"))
}
