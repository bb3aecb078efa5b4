package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSHA256KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got := HMACSHA256Hex([]byte("what do ya want for nothing?"), "Jefe")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestVerifyHMACSHA256DetectsEverySingleByteMutation(t *testing.T) {
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`)
	secret := "whsec_test"
	sig := HMACSHA256Hex(body, secret)

	assert.True(t, VerifyHMACSHA256(body, secret, sig))
	assert.True(t, VerifyHMACSHA256(body, secret, strings.ToUpper(sig)))

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.False(t, VerifyHMACSHA256(mutated, secret, sig), "mutation at byte %d verified", i)
	}
}

func TestVerifyHMACSHA256RejectsEmptyInputs(t *testing.T) {
	body := []byte("x")
	assert.False(t, VerifyHMACSHA256(body, "", HMACSHA256Hex(body, "")))
	assert.False(t, VerifyHMACSHA256(body, "secret", ""))
}

func TestSHA512Pipe(t *testing.T) {
	assert.Equal(t, SHA512Hex("a|b||c"), SHA512Pipe("a", "b", "", "c"))
	assert.Len(t, SHA512Pipe("x"), 128)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("ABCDEF", "abcdef"))
	assert.True(t, Equal(" abc ", "abc"))
	assert.False(t, Equal("abc", "abd"))
	assert.False(t, Equal("abc", "abcd"))
	assert.False(t, Equal("", ""))
}
