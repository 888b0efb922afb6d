package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "seed", "footprint", "recommend", "promote"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "greenshop", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSeedCommand_Flags(t *testing.T) {
	flag := seedCmd.Flags().Lookup("file")
	require.NotNil(t, flag, "seed command should have --file flag")
	assert.Equal(t, "catalog.yaml", flag.DefValue)
}

func TestFootprintCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "credit", "json"} {
		assert.NotNil(t, footprintCmd.Flags().Lookup(name), "footprint should have --%s flag", name)
	}
	assert.Equal(t, "false", footprintCmd.Flags().Lookup("credit").DefValue)
}

func TestRecommendCommand_Flags(t *testing.T) {
	require.NotNil(t, recommendCmd.Flags().Lookup("user"))
}

func TestPromoteCommand_Flags(t *testing.T) {
	require.NotNil(t, promoteCmd.Flags().Lookup("email"))
}
