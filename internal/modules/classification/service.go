// Package classification assigns securities a canonical name and sector
// category. Resolution order: user override, cached result, LLM lookup,
// static fallback. Concurrent lookups for one symbol share a single LLM
// call.
package classification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/asturkmani/superfinance-mcp/internal/clients/perplexity"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Categories is the fixed label set classifications are constrained to.
var Categories = []string{
	"Technology",
	"Memory",
	"Commodities",
	"Energy",
	"Crypto/Blockchain",
	"Healthcare",
	"Finance",
	"Private Equity",
	"Real Estate",
	"Consumer",
	"Industrial",
	"Utilities",
	"Telecom",
	"Other",
}

// privateSuffix marks user-invented tickers for private investments.
const privateSuffix = ".PVT"

// Classifier is the LLM the service delegates to on cache misses.
type Classifier interface {
	Classify(ctx context.Context, symbol, description string, categories []string) (*perplexity.Classification, error)
	Configured() bool
}

// Result is a resolved classification with its provenance.
type Result struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Source   string `json:"source"` // override | cache | llm | fallback
}

// Service resolves symbol classifications.
type Service struct {
	classifier Classifier
	cacheRepo  *cachedata.Repository
	log        zerolog.Logger
	group      singleflight.Group
}

// NewService creates a classification service.
func NewService(classifier Classifier, cacheRepo *cachedata.Repository, log zerolog.Logger) *Service {
	return &Service{
		classifier: classifier,
		cacheRepo:  cacheRepo,
		log:        log.With().Str("component", "classification").Logger(),
	}
}

// validCategories is a set for quick membership checks.
var validCategories = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// cachedClassification is the structure stored in the classifications table.
type cachedClassification struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Classify resolves the name and category for a symbol.
// Classification never fails a caller: when the LLM is unconfigured,
// errors, or returns an unknown category, the static fallback applies.
func (s *Service) Classify(ctx context.Context, symbol, description string) (*Result, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	// 1. User override wins unconditionally
	if cached := s.lookup(overrideKey(symbol)); cached != nil {
		return &Result{Symbol: symbol, Name: cached.Name, Category: cached.Category, Source: "override"}, nil
	}

	// 2. Cached LLM result
	if cached := s.lookup(symbol); cached != nil {
		return &Result{Symbol: symbol, Name: cached.Name, Category: cached.Category, Source: "cache"}, nil
	}

	// 3. LLM, one in-flight call per symbol
	if s.classifier != nil && s.classifier.Configured() {
		result, err, _ := s.group.Do(symbol, func() (interface{}, error) {
			return s.classifyUpstream(ctx, symbol, description)
		})
		if err == nil {
			return result.(*Result), nil
		}
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("LLM classification failed, using fallback")
	}

	// 4. Static fallback, never cached so a later LLM attempt can improve it
	name, category := fallback(symbol, description)
	return &Result{Symbol: symbol, Name: name, Category: category, Source: "fallback"}, nil
}

func (s *Service) classifyUpstream(ctx context.Context, symbol, description string) (*Result, error) {
	answer, err := s.classifier.Classify(ctx, symbol, description, Categories)
	if err != nil {
		return nil, err
	}
	if !validCategories[answer.Category] {
		return nil, fmt.Errorf("model returned unknown category %q", answer.Category)
	}

	cached := cachedClassification{Name: answer.Name, Category: answer.Category}
	if err := s.cacheRepo.Store("classifications", symbol, cached, cachedata.TTLClassification); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache classification")
	}

	return &Result{Symbol: symbol, Name: answer.Name, Category: answer.Category, Source: "llm"}, nil
}

// SetOverride pins a user-supplied classification for a symbol.
func (s *Service) SetOverride(symbol, name, category string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !validCategories[category] {
		return fmt.Errorf("unknown category %q", category)
	}

	cached := cachedClassification{Name: name, Category: category}
	return s.cacheRepo.Store("classifications", overrideKey(symbol), cached, cachedata.TTLOverride)
}

// ClearOverride removes a user override, reverting to automatic labels.
func (s *Service) ClearOverride(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return s.cacheRepo.Delete("classifications", overrideKey(symbol))
}

func (s *Service) lookup(key string) *cachedClassification {
	data, err := s.cacheRepo.GetIfFresh("classifications", key)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedClassification
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	return &cached
}

func overrideKey(symbol string) string {
	return "override:" + symbol
}

// fallback labels a symbol without any upstream help.
func fallback(symbol, description string) (name, category string) {
	name = description
	if name == "" {
		name = symbol
	}
	if strings.HasSuffix(symbol, privateSuffix) {
		return name, "Private Equity"
	}
	return name, "Other"
}
