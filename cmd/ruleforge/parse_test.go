package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCmd_Flags_Exist(t *testing.T) {
	for _, flagName := range []string{"doc", "file", "jurisdiction", "source", "show-audit"} {
		flag := parseCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "parse should have --%s flag", flagName)
	}
}

func TestParseCmd_RunE_RequiresDocOrFile(t *testing.T) {
	cfg = sqliteTestConfig(t)

	parseCmd.SetContext(context.Background())
	defer parseCmd.SetContext(context.TODO())

	parseDocID = ""
	parseFile = ""

	err := parseCmd.RunE(parseCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --doc or --file")
}

func TestParseCmd_RunE_MissingDocument(t *testing.T) {
	cfg = sqliteTestConfig(t)

	migrateCmd.SetContext(context.Background())
	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))

	parseCmd.SetContext(context.Background())
	defer parseCmd.SetContext(context.TODO())

	parseDocID = "no-such-version"
	defer func() { parseDocID = "" }()

	err := parseCmd.RunE(parseCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
