// Package localmodel selects and drives the model Anna runs on once she no
// longer needs a mentor: an Ollama model, or a model file served by an
// OpenAI-compatible local server.
package localmodel

import (
	"errors"
	"fmt"
	"strings"
)

// ModelType identifies the family and runtime of the local model.
type ModelType string

const (
	TypeNone          ModelType = "none"
	TypeOllamaMistral ModelType = "ollama_mistral"
	TypeOllamaLlama   ModelType = "ollama_llama"
	TypeOllamaGemma   ModelType = "ollama_gemma"
	TypeGGUF          ModelType = "gguf"
	TypeGPT4All       ModelType = "gpt4all"
)

var allTypes = []ModelType{TypeNone, TypeOllamaMistral, TypeOllamaLlama, TypeOllamaGemma, TypeGGUF, TypeGPT4All}

var (
	ErrNotFileModel     = errors.New("model type is not file based")
	ErrModelFileMissing = errors.New("model file not found")
	ErrUnsupportedModel = errors.New("unsupported model family")
	ErrNotConfigured    = errors.New("no local model configured")
)

// ParseModelType converts a stored or user supplied name to a ModelType.
func ParseModelType(s string) (ModelType, error) {
	t := ModelType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allTypes {
		if t == known {
			return t, nil
		}
	}
	return TypeNone, fmt.Errorf("unknown model type %q", s)
}

// IsOllama reports whether the model is served by Ollama.
func (t ModelType) IsOllama() bool {
	return t == TypeOllamaMistral || t == TypeOllamaLlama || t == TypeOllamaGemma
}

// IsFile reports whether the model is a file on disk.
func (t ModelType) IsFile() bool {
	return t == TypeGGUF || t == TypeGPT4All
}

// ollamaTypeFor infers the model type from an Ollama model name.
func ollamaTypeFor(name string) (ModelType, error) {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "mistral"):
		return TypeOllamaMistral, nil
	case strings.Contains(n, "llama"):
		return TypeOllamaLlama, nil
	case strings.Contains(n, "gemma"):
		return TypeOllamaGemma, nil
	}
	return TypeNone, fmt.Errorf("%w: %q (expected a mistral, llama or gemma model)", ErrUnsupportedModel, name)
}

// Recommendation describes a model known to work well with Anna.
type Recommendation struct {
	Name        string
	Type        ModelType
	Description string
}

// Recommended lists the models suggested by `anna model options`.
func Recommended() []Recommendation {
	return []Recommendation{
		{"mistral", TypeOllamaMistral, "Mistral 7B via Ollama, good French and English (recommended)"},
		{"llama3.2", TypeOllamaLlama, "Llama 3.2 via Ollama, small and fast"},
		{"gemma2", TypeOllamaGemma, "Gemma 2 via Ollama"},
		{"mistral-7b-instruct.Q4_K_M.gguf", TypeGGUF, "GGUF file served by llama.cpp llama-server"},
		{"Meta-Llama-3-8B-Instruct.Q4_0.gguf", TypeGPT4All, "GPT4All model file served by the GPT4All API server"},
	}
}
