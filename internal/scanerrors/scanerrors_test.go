package scanerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageFormatting(t *testing.T) {
	e := New(KindTimeout, "waited %dms for %s", 500, "10.0.0.1")
	assert.Equal(t, "timeout: waited 500ms for 10.0.0.1", e.Error())

	bare := &Error{Kind: KindCancelled}
	assert.Equal(t, "cancelled", bare.Error())
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(KindNetworkUnreachable, cause, "dial failed")

	assert.Same(t, cause, errors.Unwrap(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
}

func TestWithContextCopiesRatherThanMutates(t *testing.T) {
	base := New(KindInvalidTarget, "bad host")
	withHost := base.WithContext("host", "example.com")

	assert.Nil(t, base.Context)
	assert.Equal(t, "example.com", withHost.Context["host"])

	withBoth := withHost.WithContext("port", "22")
	assert.Len(t, withBoth.Context, 2)
	assert.Len(t, withHost.Context, 1, "earlier copy must stay unmodified")
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	inner := New(KindResourceExhausted, "too many open sockets")
	wrapped := fmt.Errorf("scan aborted: %w", inner)

	assert.True(t, Is(wrapped, KindResourceExhausted))
	assert.False(t, Is(wrapped, KindTimeout))
	assert.False(t, Is(errors.New("plain"), KindTimeout))
}
