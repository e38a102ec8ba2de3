package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"import", "serve", "migrate", "registry", "deadletter"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadsync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "url", "bearer-token", "user"} {
		require.NotNil(t, importCmd.Flags().Lookup(name), name)
	}

	keep := importCmd.Flags().Lookup("keep-file")
	require.NotNil(t, keep)
	assert.Equal(t, "true", keep.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestRegistryCommand_HasLoad(t *testing.T) {
	var found bool
	for _, c := range registryCmd.Commands() {
		if c.Name() == "load" {
			found = true
		}
	}
	assert.True(t, found)
	require.NotNil(t, registryLoadCmd.Flags().Lookup("file"))
}

func TestDeadletterListCommand_Flags(t *testing.T) {
	limit := deadletterListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
	require.NotNil(t, deadletterListCmd.Flags().Lookup("import"))
	require.NotNil(t, deadletterListCmd.Flags().Lookup("type"))
}
