package mbuf_test

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/memkit/memorykit/mbuf"
	"github.com/memkit/memorykit/memutils"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readyPool(t *testing.T, options mbuf.CreateOptions) *mbuf.Pool {
	pool, err := mbuf.New(discardLogger(), options)
	require.NoError(t, err)

	return pool
}

func requireCorruption(t *testing.T, f func()) {
	t.Helper()

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered, "expected corruption to be detected")

		err, ok := recovered.(error)
		require.True(t, ok, "expected an error, but the panic carried %v", recovered)
		require.True(t, errors.Is(err, memutils.ErrCorruptionDetected), "%+v", err)
	}()

	f()
}
