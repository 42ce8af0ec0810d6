//go:build integration

package browser_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lynxbot/internal/browser"

	"github.com/stretchr/testify/require"
)

func TestManager_Integration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><h1>hello fox</h1></body></html>")
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m := browser.NewManager(browser.DefaultConfig())
	defer m.Shutdown(ctx)

	png, err := m.Screenshot(ctx, server.URL, true)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	out, err := m.ExecuteJS(ctx, "console.log('a', 1); console.error({b: 2}); 40 + 2")
	require.NoError(t, err)
	require.Equal(t, []string{"a 1", `{"b":2}`, "=> 42"}, out)

	out, err = m.ExecuteJS(ctx, "throw new Error('nope')")
	require.NoError(t, err)
	require.Equal(t, []string{"Uncaught Error: nope"}, out)
}
