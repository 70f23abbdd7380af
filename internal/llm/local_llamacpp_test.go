//go:build llamacpp

package llm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLocalClient_Available_BothExist(t *testing.T) {
	tmpDir := t.TempDir()
	libDir := filepath.Join(tmpDir, "lib")
	if err := os.Mkdir(libDir, 0755); err != nil {
		t.Fatal(err)
	}
	modelFile := filepath.Join(tmpDir, "model.gguf")
	if err := os.WriteFile(modelFile, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	client := NewLocalClient(LocalConfig{
		LibPath:   libDir,
		ModelPath: modelFile,
	})
	if !client.Available() {
		t.Error("Available() should return true when both lib dir and model file exist")
	}
}

func TestLocalClient_Available_FallbackToYZMALIB(t *testing.T) {
	tmpDir := t.TempDir()
	libDir := filepath.Join(tmpDir, "lib")
	if err := os.Mkdir(libDir, 0755); err != nil {
		t.Fatal(err)
	}
	modelFile := filepath.Join(tmpDir, "model.gguf")
	if err := os.WriteFile(modelFile, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("YZMA_LIB", libDir)
	client := NewLocalClient(LocalConfig{
		ModelPath: modelFile,
		// LibPath empty, should fall back to YZMA_LIB
	})
	if !client.Available() {
		t.Error("Available() should return true when YZMA_LIB is set and model exists")
	}
}

func TestLocalConfig_Defaults(t *testing.T) {
	client := NewLocalClient(LocalConfig{})
	if client.contextSize != 4096 {
		t.Errorf("contextSize = %d, want 4096 (default)", client.contextSize)
	}
	if client.maxTokens != 1024 {
		t.Errorf("maxTokens = %d, want 1024 (default)", client.maxTokens)
	}
}
