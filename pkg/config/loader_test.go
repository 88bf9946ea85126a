package config_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/config"
)

type defaultsConfig struct {
	Name    string `env:"PF_TEST_NAME" envDefault:"forge"`
	Workers int    `env:"PF_TEST_WORKERS" envDefault:"4"`
}

type envConfig struct {
	Name string `env:"PF_TEST_ENV_NAME"`
	Flag bool   `env:"PF_TEST_ENV_FLAG"`
}

type requiredConfig struct {
	Secret string `env:"PF_TEST_REQUIRED_SECRET,required"`
}

type prefixedConfig struct {
	URL string `env:"URL" envDefault:"none"`
}

type cachedConfig struct {
	Value string `env:"PF_TEST_CACHED"`
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load[defaultsConfig]()
	require.NoError(t, err)
	assert.Equal(t, "forge", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PF_TEST_ENV_NAME", "printer")
	t.Setenv("PF_TEST_ENV_FLAG", "true")

	cfg, err := config.Load[envConfig]()
	require.NoError(t, err)
	assert.Equal(t, "printer", cfg.Name)
	assert.True(t, cfg.Flag)
}

func TestLoad_RequiredMissing(t *testing.T) {
	_, err := config.Load[requiredConfig]()
	require.ErrorIs(t, err, config.ErrParsingConfig)

	assert.Panics(t, func() {
		config.MustLoad[requiredConfig]()
	})
}

func TestLoad_Prefix(t *testing.T) {
	t.Setenv("JOBS_URL", "redis://jobs")
	t.Setenv("CACHE_URL", "redis://cache")

	jobs, err := config.Load[prefixedConfig](config.WithPrefix("JOBS_"))
	require.NoError(t, err)
	cache, err := config.Load[prefixedConfig](config.WithPrefix("CACHE_"))
	require.NoError(t, err)

	assert.Equal(t, "redis://jobs", jobs.URL)
	assert.Equal(t, "redis://cache", cache.URL)
}

func TestLoad_CachedPerType(t *testing.T) {
	t.Setenv("PF_TEST_CACHED", "first")

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := config.Load[cachedConfig]()
			if err == nil {
				results[i] = cfg.Value
			}
		}(i)
	}
	wg.Wait()

	t.Setenv("PF_TEST_CACHED", "second")
	cfg, err := config.Load[cachedConfig]()
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Value)
	for _, r := range results {
		assert.Equal(t, "first", r)
	}
}
