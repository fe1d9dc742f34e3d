package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPanic(t *testing.T) {
	defer func() {
		r := recover()
		kp, ok := r.(*KernelPanic)
		assert.True(t, ok)
		assert.Equal(t, "kfree", kp.Msg)
		assert.Equal(t, "panic: kfree", kp.Error())
	}()
	Panic("kfree")
	t.Fatal("Panic returned")
}

func TestPanicFormat(t *testing.T) {
	assert.PanicsWithError(t, "panic: bget: no buffers for block 7", func() {
		Panic("bget: no buffers for block %d", 7)
	})
}
