package geoerr

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestError_Message(t *testing.T) {
	err := Fetch(ReasonTooSmall, eris.New("resource is 12 bytes"))
	assert.Contains(t, err.Error(), "fetch error (too_small)")
	assert.Contains(t, err.Error(), "resource is 12 bytes")

	bare := Parse(ReasonNoLinkFound, nil)
	assert.Equal(t, "parse error (no_link_found)", bare.Error())
}

func TestError_UnwrapKeepsChain(t *testing.T) {
	err := IO(ReasonNotFound, eris.Wrap(fs.ErrNotExist, "table: stat"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	wrapped := eris.Wrap(err, "lookup")
	assert.Equal(t, KindIO, KindOf(wrapped))
	assert.Equal(t, ReasonNotFound, ReasonOf(wrapped))
	assert.True(t, Is(wrapped, KindIO))
	assert.False(t, Is(wrapped, KindFetch))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "", ReasonOf(nil))
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestFetchFromTransport(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"deadline", eris.Wrap(context.DeadlineExceeded, "get"), ReasonTimeout},
		{"net timeout", timeoutErr{}, ReasonTimeout},
		{"refused", eris.New("connection refused"), ReasonTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FetchFromTransport(tt.err)
			assert.Equal(t, KindFetch, e.Kind)
			assert.Equal(t, tt.reason, e.Reason)
		})
	}
}

func TestFetchStatus(t *testing.T) {
	e := FetchStatus(http.StatusNotFound, eris.New("unexpected status 404"))
	assert.Equal(t, ReasonTransport, e.Reason)
	assert.Equal(t, http.StatusNotFound, e.StatusCode)
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(context.Canceled))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitIO, ExitCode(IO(ReasonWriteFailed, nil)))
	assert.Equal(t, ExitFetch, ExitCode(Fetch(ReasonTimeout, nil)))
	assert.Equal(t, ExitParse, ExitCode(Parse(ReasonNoLinkFound, nil)))
	assert.Equal(t, ExitArchive, ExitCode(Archive(ReasonNoTableFound, nil)))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("other")))

	// Codes must be distinct per class.
	seen := map[int]bool{}
	for _, c := range []int{ExitFailure, ExitUsage, ExitIO, ExitFetch, ExitParse, ExitArchive} {
		require.False(t, seen[c], "duplicate exit code %d", c)
		seen[c] = true
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(Fetch(ReasonTimeout, nil)))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(Fetch(ReasonTooSmall, nil)))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(Parse(ReasonNoLinkFound, nil)))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(Archive(ReasonOpenFailed, nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(IO(ReasonNotFound, nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
}
