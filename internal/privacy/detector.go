package privacy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/logger"
	"go.uber.org/zap"
)

// Detector classifies recognized words against the ordered rule list
type Detector struct {
	rules         []DetectionRule
	minWordLength int
	logger        *logger.Logger

	mu      sync.RWMutex
	enabled map[Category]bool
	active  bool
}

// New creates a new detector instance
func New(cfg config.PrivacyConfig, minWordLength int, log *logger.Logger) (*Detector, error) {
	if minWordLength < 1 {
		minWordLength = 1
	}

	detector := &Detector{
		rules:         GetDefaultRules(),
		minWordLength: minWordLength,
		logger:        log,
		enabled:       make(map[Category]bool),
	}

	if err := detector.Configure(cfg); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Privacy detector initialized",
		zap.Int("total_rules", len(detector.rules)),
		zap.Strings("enabled_rules", detector.GetEnabledRules()),
	)

	return detector, nil
}

// Configure enables the detectors named in cfg. It is safe to call while
// other goroutines classify words.
func (d *Detector) Configure(cfg config.PrivacyConfig) error {
	enabled := make(map[Category]bool, len(d.rules))
	for _, rule := range d.rules {
		enabled[rule.Category] = false
	}

	for _, name := range cfg.Detectors {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "all" {
			for _, rule := range d.rules {
				enabled[rule.Category] = true
			}
			continue
		}

		if _, ok := enabled[Category(name)]; !ok {
			return fmt.Errorf("unknown detector: %s", name)
		}
		enabled[Category(name)] = true
	}

	d.mu.Lock()
	d.enabled = enabled
	d.active = cfg.Enabled
	d.mu.Unlock()

	return nil
}

// Classify returns the category of the first enabled rule matching word.
// Words shorter than the minimum length are never classified.
func (d *Detector) Classify(word string) (Category, bool) {
	text := strings.TrimSpace(word)
	if len([]rune(text)) < d.minWordLength {
		return "", false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.active {
		return "", false
	}

	for _, rule := range d.rules {
		if !d.enabled[rule.Category] {
			continue
		}
		if rule.Pattern.MatchString(text) {
			return rule.Category, true
		}
	}
	return "", false
}

// Summarize counts categories for reporting.
func Summarize(categories []Category) []Finding {
	counts := make(map[Category]int)
	for _, c := range categories {
		counts[c]++
	}

	findings := make([]Finding, 0, len(counts))
	for c, n := range counts {
		findings = append(findings, Finding{Category: c, Count: n})
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Category < findings[j].Category })
	return findings
}

// GetEnabledRules returns the enabled rule names in priority order
func (d *Detector) GetEnabledRules() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var enabled []string
	for _, rule := range d.rules {
		if d.enabled[rule.Category] {
			enabled = append(enabled, string(rule.Category))
		}
	}
	return enabled
}

// EnableRule enables a specific detection rule
func (d *Detector) EnableRule(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.enabled[Category(name)]; !exists {
		return fmt.Errorf("unknown rule: %s", name)
	}
	d.enabled[Category(name)] = true
	d.logger.Info("Detection rule enabled", zap.String("rule", name))
	return nil
}

// DisableRule disables a specific detection rule
func (d *Detector) DisableRule(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.enabled[Category(name)]; !exists {
		return fmt.Errorf("unknown rule: %s", name)
	}
	d.enabled[Category(name)] = false
	d.logger.Info("Detection rule disabled", zap.String("rule", name))
	return nil
}
