package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_BACKEND", "")
	t.Setenv("RAG_TOP_K", "")
	t.Setenv("GATEWAY_LABELS", "")
	t.Setenv("INDEX_BACKEND", "")
	t.Setenv("CORPUS_PATH", "")

	cfg := Load()
	if cfg.LLMBackend != "hosted" {
		t.Fatalf("expected default llm backend hosted, got %q", cfg.LLMBackend)
	}
	if cfg.RAGTopK != 3 {
		t.Fatalf("expected default top k 3, got %d", cfg.RAGTopK)
	}
	if len(cfg.GatewayLabels) != 3 || cfg.GatewayLabels[0] != "car query" {
		t.Fatalf("unexpected default labels %v", cfg.GatewayLabels)
	}
	if cfg.IndexBackend != "local" {
		t.Fatalf("expected local index backend, got %q", cfg.IndexBackend)
	}
	if cfg.CorpusPath != "./processed/car_data.csv" {
		t.Fatalf("unexpected corpus path %q", cfg.CorpusPath)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("LLM_BACKEND", "local")
	t.Setenv("GATEWAY_LABELS", "car query, off-topic ,")
	t.Setenv("GATEWAY_MIN_CONFIDENCE", "0.35")
	t.Setenv("RAG_TOP_K", "not-a-number")
	t.Setenv("CORPUS_WATCH", "true")

	cfg := Load()
	if cfg.LLMBackend != "local" {
		t.Fatalf("expected llm backend override, got %q", cfg.LLMBackend)
	}
	if len(cfg.GatewayLabels) != 2 || cfg.GatewayLabels[1] != "off-topic" {
		t.Fatalf("unexpected labels %v", cfg.GatewayLabels)
	}
	if cfg.GatewayMinConfidence != 0.35 {
		t.Fatalf("expected min confidence 0.35, got %v", cfg.GatewayMinConfidence)
	}
	if cfg.RAGTopK != 3 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.RAGTopK)
	}
	if !cfg.CorpusWatch {
		t.Fatalf("expected corpus watch enabled")
	}
}

func TestHostedKeyFallsBackToAnthropicVariable(t *testing.T) {
	t.Setenv("HOSTED_LLM_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	if cfg := Load(); cfg.HostedLLMAPIKey != "sk-test" {
		t.Fatalf("expected key from ANTHROPIC_API_KEY, got %q", cfg.HostedLLMAPIKey)
	}
}

func TestApplyFileOverridesGatewayAndPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.yaml")
	content := `
gateway:
  labels: ["car question", "irrelevant"]
  min_confidence: 0.6
prompt:
  template: "Q: {{.Question}}"
retrieval:
  top_k: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := ApplyFile(Config{RAGTopK: 3, GatewayBlockLabels: []string{"irrelevant"}}, path)
	if err != nil {
		t.Fatalf("ApplyFile() error = %v", err)
	}
	if len(cfg.GatewayLabels) != 2 || cfg.GatewayLabels[0] != "car question" {
		t.Fatalf("unexpected labels %v", cfg.GatewayLabels)
	}
	if cfg.GatewayBlockLabels[0] != "irrelevant" {
		t.Fatalf("block labels should be kept, got %v", cfg.GatewayBlockLabels)
	}
	if cfg.GatewayMinConfidence != 0.6 || cfg.PromptTemplate != "Q: {{.Question}}" || cfg.RAGTopK != 5 {
		t.Fatalf("unexpected overlay result %+v", cfg)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OLLAMA_GEN_MODEL=from-file\nEMBED_MODEL=file-embed\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("OLLAMA_GEN_MODEL", "from-env")
	t.Setenv("EMBED_MODEL", "")
	os.Unsetenv("EMBED_MODEL")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("EMBED_MODEL") })

	cfg := Load()
	if cfg.OllamaGenModel != "from-env" {
		t.Fatalf("environment must win over .env, got %q", cfg.OllamaGenModel)
	}
	if cfg.EmbedModel != "file-embed" {
		t.Fatalf("expected model from .env, got %q", cfg.EmbedModel)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}
