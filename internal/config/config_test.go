package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-kbqa/internal/apperr"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults apply without a config file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("CONFIG_FILE", "missing.toml")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "gpt-4", cfg.LLM.Model)
		assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
		assert.Equal(t, 1536, cfg.Embedding.Dimension)
		assert.Equal(t, 5, cfg.Retrieval.TopK)
		assert.InDelta(t, 0.75, cfg.Retrieval.SimilarityThreshold, 1e-9)
		assert.InDelta(t, 0.80, cfg.Retrieval.EdgeCaseMinScore, 1e-9)
		assert.Equal(t, 5000, cfg.Generation.MaxContextLength)
		assert.Equal(t, 2000, cfg.Generation.MaxTokens)
	})

	t.Run("File values override defaults and env overrides file", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		path := filepath.Join(dir, "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[retrieval]
top_k = 3
similarity_threshold = 0.6

[llm]
model = "gpt-4o"
`), 0o644))
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("LLM_MODEL", "gpt-4o-mini")
		t.Setenv("RERANK", "true")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Retrieval.TopK)
		assert.InDelta(t, 0.6, cfg.Retrieval.SimilarityThreshold, 1e-9)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
		assert.True(t, cfg.Retrieval.Rerank)
	})

	t.Run(".env file feeds the environment", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		t.Setenv("CONFIG_FILE", "missing.toml")
		for _, key := range []string{"OPENAI_API_KEY", "LLM_API_KEY", "EMBEDDING_API_KEY"} {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-test\n"), 0o644))

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.LLM.APIKey)
		assert.Equal(t, "sk-test", cfg.Embedding.APIKey, "Expected embedding key to default to the llm key")
	})

	t.Run("Malformed file is a configuration error", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		path := filepath.Join(dir, "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("[retrieval\n"), 0o644))
		t.Setenv("CONFIG_FILE", path)

		_, err := Load()

		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})
}

func TestValidate(t *testing.T) {
	t.Run("Out of range values are reported together", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Retrieval.TopK = 0
		cfg.Retrieval.SimilarityThreshold = 1.5
		cfg.Embedding.Dimension = 0

		err := cfg.Validate()

		require.ErrorIs(t, err, apperr.ErrConfiguration)
		assert.Contains(t, err.Error(), "top_k")
		assert.Contains(t, err.Error(), "similarity_threshold")
		assert.Contains(t, err.Error(), "dimension")
	})

	t.Run("Defaults are valid", func(t *testing.T) {
		assert.NoError(t, defaultConfig().Validate())
	})
}

func TestEnvHelpers(t *testing.T) {
	t.Run("Unparsable values fall back", func(t *testing.T) {
		t.Setenv("X_INT", "five")
		t.Setenv("X_FLOAT", "high")
		t.Setenv("X_BOOL", "maybe")

		assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
		assert.InDelta(t, 0.5, getEnvAsFloat("X_FLOAT", 0.5), 1e-9)
		assert.True(t, getEnvAsBool("X_BOOL", true))
	})
}
