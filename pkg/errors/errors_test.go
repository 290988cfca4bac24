package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
	assert.Equal(t, "dummy: cause2: cause1", e.Error())
}

func TestWrapKeepsSentinel(t *testing.T) {
	sentinel := New("sentinel")
	w1 := sentinel.Wrap(fmt.Errorf("first"))
	w2 := sentinel.Wrap(fmt.Errorf("second"))

	assert.True(t, Is(w1, sentinel))
	assert.True(t, Is(w2, sentinel))
	assert.False(t, Is(w1, w2))
	assert.Nil(t, sentinel.Unwrap(), "sentinel must not be mutated by Wrap")

	wrapped := fmt.Errorf("context: %w", w1.WrapMessage("commit %s", "abc"))
	assert.True(t, Is(wrapped, sentinel))
	assert.Contains(t, wrapped.Error(), "sentinel: commit abc: first")

	var target *Error
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "sentinel: commit abc", target.Message())
}

func TestWrapWithLog(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sentinel := New("failed")

	err := sentinel.WrapWithLog(zap.New(core), fmt.Errorf("boom"), zap.String("commit", "abc"))
	assert.True(t, Is(err, sentinel))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "failed", entry.Message)
	assert.Equal(t, "abc", entry.ContextMap()["commit"])
}
