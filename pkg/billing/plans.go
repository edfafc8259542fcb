package billing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// PriceTable maps processor price ids to plan tiers
type PriceTable struct {
	mu     sync.RWMutex
	prices map[string]orgs.PlanTier

	// checkout uses the configured price for a tier when there is one
	preferred map[orgs.PlanTier]string
}

// priceFile is the YAML layout of a price table file:
//
//	prices:
//	  price_1Pro: pro
//	  price_1Ent: enterprise
type priceFile struct {
	Prices map[string]string `yaml:"prices"`
}

// NewPriceTable builds a table from the configured pro and enterprise price ids
func NewPriceTable(proPriceID, enterprisePriceID string) *PriceTable {
	t := &PriceTable{prices: map[string]orgs.PlanTier{}, preferred: map[orgs.PlanTier]string{}}
	if proPriceID != "" {
		t.prices[proPriceID] = orgs.PlanPro
		t.preferred[orgs.PlanPro] = proPriceID
	}
	if enterprisePriceID != "" {
		t.prices[enterprisePriceID] = orgs.PlanEnterprise
		t.preferred[orgs.PlanEnterprise] = enterprisePriceID
	}
	return t
}

// PlanFor returns the tier for priceID
func (t *PriceTable) PlanFor(priceID string) (orgs.PlanTier, bool) {
	if priceID == "" {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	plan, ok := t.prices[priceID]
	return plan, ok
}

// PriceFor returns a price id for plan
func (t *PriceTable) PriceFor(plan orgs.PlanTier) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if price, ok := t.preferred[plan]; ok && t.prices[price] == plan {
		return price, true
	}
	var candidates []string
	for price, p := range t.prices {
		if p == plan {
			candidates = append(candidates, price)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// LoadFile merges the entries of a YAML price table file over the table.
// Entries from the environment are kept unless the file overrides them.
func (t *PriceTable) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read price table: %w", err)
	}
	var f priceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse price table: %w", err)
	}

	loaded := make(map[string]orgs.PlanTier, len(f.Prices))
	for price, plan := range f.Prices {
		tier := orgs.PlanTier(plan)
		if !tier.IsValid() {
			return fmt.Errorf("price %s maps to unknown plan %q", price, plan)
		}
		loaded[price] = tier
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for price, tier := range loaded {
		t.prices[price] = tier
	}
	return nil
}

// Len returns the number of known prices
func (t *PriceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.prices)
}

// Watch reloads the table whenever path changes, until ctx is done. A file
// that fails to parse leaves the previous table in place.
func (t *PriceTable) Watch(ctx context.Context, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer observability.RecoverPanic(logger, "price table watcher")
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := t.LoadFile(path); err != nil {
					logger.WithError(err).Warn("price table reload failed")
					continue
				}
				logger.WithField("prices", t.Len()).Info("price table reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("price table watcher error")
			}
		}
	}()
	return nil
}
