package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchCmd_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag, "batch should have --concurrency flag")
	assert.Equal(t, "3", flag.DefValue)

	require.NotNil(t, batchCmd.Flags().Lookup("ids-file"))
	require.NotNil(t, batchCmd.Flags().Lookup("continue-on-error"))
}

func TestReadIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("doc-1\n\n  doc-2  \ndoc-3\n"), 0o600))

	ids, err := readIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, ids)

	_, err = readIDs(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestBatchCmd_RunE_RequiresIDs(t *testing.T) {
	cfg = sqliteTestConfig(t)

	batchCmd.SetContext(context.Background())
	defer batchCmd.SetContext(context.TODO())

	batchIDsFile = ""

	err := batchCmd.RunE(batchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no document version IDs")
}
