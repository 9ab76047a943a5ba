package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVerbosity(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"regular", "enhanced", "debug"} {
		v, err := ParseVerbosity(s)
		require.NoError(t, err)
		require.Equal(t, Verbosity(s), v)
	}

	v, err := ParseVerbosity("")
	require.NoError(t, err)
	require.Equal(t, VerbosityRegular, v)

	_, err = ParseVerbosity("silent")
	require.Error(t, err)
}

func TestNewBuildsLoggerForEachVerbosity(t *testing.T) {
	t.Parallel()

	for _, v := range []Verbosity{VerbosityRegular, VerbosityEnhanced, VerbosityDebug} {
		logger, err := New(v)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}
