package workspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCleanupRemovesDirectory(t *testing.T) {
	ws, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	_, err = ws.WriteFile("input.gif", []byte("GIF89a"))
	require.NoError(t, err)

	ws.Cleanup(0)
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupRetainsOnErrors(t *testing.T) {
	ws, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ws.RecordError()
	ws.RecordError()

	ws.Cleanup(2)
	_, err = os.Stat(ws.Dir())
	assert.NoError(t, err)

	ws.Destroy()
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestDestroyAlwaysRemoves(t *testing.T) {
	ws, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ws.RecordError()

	ws.Destroy()
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))
}
