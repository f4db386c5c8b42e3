package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuffer_IsEmpty(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("<aside>")
	PutBuffer(buf)

	again := GetBuffer()
	assert.Equal(t, 0, again.Len())
	PutBuffer(again)
}

func TestPutBuffer_DropsOversized(t *testing.T) {
	big := bytes.NewBuffer(make([]byte, 0, MaxPooledBuffer+1))
	assert.NotPanics(t, func() { PutBuffer(big) })
	assert.NotPanics(t, func() { PutBuffer(nil) })
}
