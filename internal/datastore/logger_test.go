package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerSelfInitializes(t *testing.T) {
	logger := getLogger()
	require.NotNil(t, logger)
	logger.Info("logger self-initialization check")

	assert.Same(t, logger, getLogger(), "repeated calls share one logger")
}
