package blocksync

import (
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func TestIdOrder(t *testing.T) {
	// ulids are ordered by create time
	// request ids from the same dispatcher can be ordered

	a := NewId()
	for j := 0; j < 64*1024; j++ {
		b := NewId()
		assert.Equal(t, a.LessThan(b), true)
		assert.Equal(t, b.LessThan(a), false)
		assert.Equal(t, b.LessThan(b), false)
		assert.Equal(t, b == a, false)
		a = b
	}
}

func TestIdParse(t *testing.T) {
	a := NewId()

	b, err := ParseId(a.String())
	assert.Equal(t, err, nil)
	assert.Equal(t, a, b)

	c, err := IdFromBytes(a.Bytes())
	assert.Equal(t, err, nil)
	assert.Equal(t, a, c)

	_, err = ParseId("not an id")
	assert.NotEqual(t, err, nil)

	_, err = IdFromBytes([]byte{1, 2, 3})
	assert.NotEqual(t, err, nil)
}

func TestCallbackList(t *testing.T) {
	callbacks := NewCallbackList[func() int]()
	assert.Equal(t, callbacks.Len(), 0)

	aId := callbacks.Add(func() int { return 1 })
	bId := callbacks.Add(func() int { return 2 })
	assert.NotEqual(t, aId, bId)
	assert.Equal(t, callbacks.Len(), 2)

	// a snapshot is unaffected by later changes
	snapshot := callbacks.Get()
	callbacks.Remove(aId)
	assert.Equal(t, len(snapshot), 2)
	assert.Equal(t, callbacks.Len(), 1)
	assert.Equal(t, callbacks.Get()[0](), 2)

	// removing twice is a no-op
	callbacks.Remove(aId)
	assert.Equal(t, callbacks.Len(), 1)

	callbacks.Remove(bId)
	assert.Equal(t, callbacks.Len(), 0)
}

func TestHandleError(t *testing.T) {
	var handled error
	r := HandleError(func() {
		panic(&RemoteError{Command: "blockOpen", Code: "2"})
	}, func(err error) {
		handled = err
	})
	assert.NotEqual(t, r, nil)
	assert.NotEqual(t, handled, nil)

	r = HandleError(func() {})
	assert.Equal(t, r, nil)
}
