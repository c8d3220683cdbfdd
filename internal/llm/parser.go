// Package llm turns a free-text investment brief into a partial run
// configuration using a JSON-mode chat model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"arvscout/config"
	"arvscout/internal/cache"
	"arvscout/internal/listing"
)

const cacheEndpoint = "parse_prompt"

// allowedSections are the only top-level keys kept from a model response.
var allowedSections = map[string]bool{
	"filters":       true,
	"arv_config":    true,
	"profit_config": true,
	"deal_screen":   true,
}

const systemPrompt = "You are a helpful real estate config parser. " +
	"Return ONLY valid JSON matching this schema keys: filters, arv_config, profit_config, deal_screen. " +
	"Do not include extra keys. Use null for unknowns."

const userTemplate = `
Free-text user intent:
---
%s
---
Map to these keys (omit if no data):
filters.geos[], filters.status[], filters.home_types[], filters.price_min, filters.price_max,
filters.beds_min, filters.baths_min, filters.min_sqft, filters.min_lot_sqft,
filters.year_built_min, filters.max_dom, filters.include_pending, filters.hoa_max,
filters.price_reduction_only, filters.page_cap,
arv_config.comp_radius_mi, arv_config.comp_window_months, arv_config.extend_window_if_insufficient,
arv_config.min_comps, arv_config.ppsf_method, arv_config.adjustments.bed_step_pct,
arv_config.adjustments.bath_step_pct, arv_config.adjustments.lot_size_cap_ratio,
arv_config.adjustments.age_condition_proxy, arv_config.confidence_method,
profit_config.rehab_budget, profit_config.closing_costs_pct, profit_config.selling_costs_pct,
profit_config.misc_buffer_pct, profit_config.moe_pct_conservative, profit_config.moe_pct_optimistic,
deal_screen.max_list_to_arv_pct.
`

// Parser implements config.PromptParser. With a nil Completer every prompt
// parses to an empty map, so runs work without model credentials.
type Parser struct {
	completer Completer
	cfg       config.LLMConfig
	responses *cache.ResponseCache
	logger    *logrus.Logger
}

var _ config.PromptParser = (*Parser)(nil)

func NewParser(completer Completer, cfg config.LLMConfig, responses *cache.ResponseCache, logger *logrus.Logger) *Parser {
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{completer: completer, cfg: cfg, responses: responses, logger: logger}
}

func (p *Parser) Parse(ctx context.Context, prompt string) (map[string]any, error) {
	if p.completer == nil {
		p.logger.Debug("No language model configured, skipping prompt parse")
		return map[string]any{}, nil
	}

	key := map[string]any{
		"prompt":      prompt,
		"model":       p.cfg.Model,
		"temperature": p.cfg.Temperature,
	}

	var cached map[string]any
	hit, err := p.responses.GetInto(ctx, cacheEndpoint, key, &cached)
	if err != nil {
		p.logger.WithError(err).Warn("LLM cache read failed")
	} else if hit {
		p.logger.Debug("Using cached prompt parse")
		return cached, nil
	}

	content, err := p.completer.Complete(ctx, CompletionRequest{
		Model:       p.cfg.Model,
		System:      systemPrompt,
		User:        fmt.Sprintf(userTemplate, prompt),
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt completion failed: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, &listing.DataValidationError{
			Op:  "prompt parse",
			Err: fmt.Errorf("%w; raw=%s", err, content),
		}
	}

	out := make(map[string]any, len(allowedSections))
	for k, v := range data {
		if allowedSections[k] {
			out[k] = v
		}
	}

	if err := p.responses.Put(ctx, cacheEndpoint, key, out); err != nil {
		p.logger.WithError(err).Warn("LLM cache write failed")
	}
	p.logger.WithField("sections", len(out)).Info("Parsed free-text prompt")
	return out, nil
}
