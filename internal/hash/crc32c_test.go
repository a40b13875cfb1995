package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))

	h := NewCRC32C()
	_, _ = h.Write([]byte("1234"))
	_, _ = h.Write([]byte("56789"))
	assert.Equal(t, uint32(0xE3069283), h.Sum32())

	assert.Equal(t, uint32(0xE3069283), Update(Update(0, []byte("12345")), []byte("6789")))
}
