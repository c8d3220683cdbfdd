package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// strictSections are the top-level YAML keys that are taken verbatim and win
// over anything derived from the free-text prompt.
var strictSections = map[string]bool{
	"filters":       true,
	"arv_config":    true,
	"profit_config": true,
	"deal_screen":   true,
	"cache_config":  true,
	"rate_limit":    true,
	"llm_config":    true,
	"api_mapping":   true,
}

// PromptParser turns a free-text prompt into a partial configuration map.
type PromptParser interface {
	Parse(ctx context.Context, prompt string) (map[string]any, error)
}

// RunFile is a parsed run configuration file before the prompt is resolved.
type RunFile struct {
	Path   string
	Strict map[string]any
	Prompt string

	// Initial is the strict sections applied over the defaults. Cache settings
	// are read from here before the prompt is parsed.
	Initial *AppConfig
}

// ReadRunConfig reads a YAML run configuration from path.
func ReadRunConfig(path string) (*RunFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseRunConfig(data, absPath)
}

// ParseRunConfig parses YAML run configuration bytes.
func ParseRunConfig(data []byte, path string) (*RunFile, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	rf := &RunFile{Path: path, Strict: map[string]any{}}
	for k, v := range raw {
		if strictSections[k] {
			rf.Strict[k] = v
		}
	}
	if p, ok := raw["prompt"].(string); ok {
		rf.Prompt = p
	}

	initial, err := decode(rf.Strict)
	if err != nil {
		return nil, err
	}
	rf.Initial = initial
	return rf, nil
}

// Resolve parses the free-text prompt with parser (when both are present),
// merges the result under the strict sections and validates the outcome.
func (rf *RunFile) Resolve(ctx context.Context, parser PromptParser) (*AppConfig, error) {
	merged := rf.Strict
	if rf.Prompt != "" && parser != nil {
		parsed, err := parser.Parse(ctx, rf.Prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt: %w", err)
		}
		merged = Merge(rf.Strict, pruneNulls(parsed))
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	cfg.Prompt = rf.Prompt

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Merge deep-merges parsed under strict: on conflicts strict wins, nested maps merge.
func Merge(strict, parsed map[string]any) map[string]any {
	result := make(map[string]any, len(parsed)+len(strict))
	for k, v := range parsed {
		result[k] = v
	}
	for k, v := range strict {
		sv, sok := v.(map[string]any)
		pv, pok := result[k].(map[string]any)
		if sok && pok {
			result[k] = Merge(sv, pv)
			continue
		}
		result[k] = v
	}
	return result
}

func pruneNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case nil:
			continue
		case map[string]any:
			out[k] = pruneNulls(x)
		default:
			out[k] = v
		}
	}
	return out
}

// decode applies sections over DefaultAppConfig by round-tripping through YAML.
func decode(sections map[string]any) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if len(sections) == 0 {
		return cfg, nil
	}
	data, err := yaml.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// SaveAppConfig writes a resolved configuration to path as YAML.
func SaveAppConfig(cfg *AppConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(absPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
