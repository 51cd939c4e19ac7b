package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
}

func TestWrapKeepsSentinel(t *testing.T) {
	sentinel := New("sentinel")
	cause := fmt.Errorf("io failure")

	w1 := sentinel.Wrap(cause)
	w2 := sentinel.Wrapf("key %q", "k")

	assert.True(t, Is(w1, sentinel))
	assert.True(t, Is(w2, sentinel))
	assert.True(t, Is(w1, cause))
	assert.False(t, Is(w2, cause))
	assert.Equal(t, "sentinel", sentinel.Error(), "wrapping must not alter the sentinel")
	assert.Equal(t, "sentinel: io failure", w1.Error())

	rewrapped := w1.Wrap(fmt.Errorf("other"))
	assert.True(t, Is(rewrapped, sentinel))

	var target *Error
	require.True(t, As(w2, &target))
	assert.Equal(t, `sentinel: key "k"`, target.Error())
}

func TestMessages(t *testing.T) {
	assert.Nil(t, Messages(nil))

	var err error
	err = Append(err, New("first"))
	err = Append(err, New("second"))
	assert.Equal(t, []string{"first", "second"}, Messages(err))
}
