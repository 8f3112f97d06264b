package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ENV", "test")

		conf, err := core.NewConfig()
		require.NoError(t, err)

		assert.Equal(t, "TEST", conf.Env)
		assert.True(t, conf.TestMode)
		assert.Equal(t, "postgres", conf.Database.Engine)
		assert.Equal(t, "localhost:5432", conf.Database.Address())
		assert.Equal(t, 2, conf.Completion.VerifyFailureThreshold)
		assert.Equal(t, 2*time.Second, conf.Completion.DebounceDelay)
		assert.Equal(t, 3*time.Second, conf.Completion.RetryDelay)
		assert.Equal(t, 5, conf.Completion.MaxAutoRetries)
		assert.Equal(t, 90, conf.Completion.VideoCompleteThreshold)
		assert.Equal(t, 5*time.Minute, conf.Progress.StructureTTL)
		assert.Empty(t, conf.Redis.Address)
		assert.Empty(t, conf.AMQP.URI)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("ENV", "test")
		t.Setenv("TEST_DATABASE_ENGINE", "memory")
		t.Setenv("TEST_COMPLETION_VERIFYFAILURETHRESHOLD", "3")
		t.Setenv("TEST_PROGRESS_STRUCTURETTL", "1m")

		conf, err := core.NewConfig()
		require.NoError(t, err)

		assert.Equal(t, "memory", conf.Database.Engine)
		assert.Equal(t, 3, conf.Completion.VerifyFailureThreshold)
		assert.Equal(t, time.Minute, conf.Progress.StructureTTL)
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := []struct {
			name, key, value string
		}{
			{"engine", "TEST_DATABASE_ENGINE", "mongo"},
			{"failure threshold", "TEST_COMPLETION_VERIFYFAILURETHRESHOLD", "0"},
			{"video threshold", "TEST_COMPLETION_VIDEOCOMPLETETHRESHOLD", "101"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv("ENV", "test")
				t.Setenv(tc.key, tc.value)

				_, err := core.NewConfig()
				assert.Error(t, err)
			})
		}
	})
}
