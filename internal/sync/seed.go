package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xelth-com/salonsync/internal/models"
	"github.com/xelth-com/salonsync/internal/store"
	"gopkg.in/yaml.v3"
)

// RepSeed is the on-disk description of the canonical rep roster
type RepSeed struct {
	Reps []RepSeedEntry `yaml:"reps"`
}

// RepSeedEntry is one rep with the spellings and tags that map to it
type RepSeedEntry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Tags    []string `yaml:"tags"`
}

// RepSeedStore is the write surface the seeder needs
type RepSeedStore interface {
	FindSalesRepByName(ctx context.Context, name string) (*models.SalesRep, error)
	MatchTagRules(ctx context.Context, tags []string) ([]models.SalesRepTagRule, error)
	CreateSalesRep(ctx context.Context, rep *models.SalesRep) error
	CreateSalesRepAlias(ctx context.Context, alias *models.SalesRepAlias) error
	CreateTagRule(ctx context.Context, rule *models.SalesRepTagRule) error
}

// SeedStats counts rows created by one seeding run
type SeedStats struct {
	Reps     int
	Aliases  int
	TagRules int
}

// LoadRepSeed reads a YAML roster file
func LoadRepSeed(path string) (*RepSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed RepSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &seed, nil
}

// SeedReps creates missing reps, aliases and tag rules. Existing rows are
// left alone, so it can be re-run after editing the roster. Aliases are
// stored normalized and tags lowercased; an alias already owned by another
// rep is skipped.
func SeedReps(ctx context.Context, st RepSeedStore, seed *RepSeed) (SeedStats, error) {
	var stats SeedStats
	for _, entry := range seed.Reps {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}

		rep, err := st.FindSalesRepByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			rep = &models.SalesRep{Name: name, Active: true}
			if err := st.CreateSalesRep(ctx, rep); err != nil {
				return stats, fmt.Errorf("create rep %q: %w", name, err)
			}
			stats.Reps++
		} else if err != nil {
			return stats, fmt.Errorf("lookup rep %q: %w", name, err)
		}

		// The canonical name is always reachable through the alias table
		for _, raw := range append([]string{name}, entry.Aliases...) {
			alias := NormalizeRepName(raw)
			if alias == "" {
				continue
			}
			err := st.CreateSalesRepAlias(ctx, &models.SalesRepAlias{Alias: alias, SalesRepID: rep.ID})
			switch {
			case err == nil:
				stats.Aliases++
			case errors.Is(err, store.ErrConflict):
			default:
				return stats, fmt.Errorf("create alias %q: %w", alias, err)
			}
		}

		for _, raw := range entry.Tags {
			tag := strings.ToLower(strings.TrimSpace(raw))
			if tag == "" {
				continue
			}
			exists, err := hasTagRule(ctx, st, tag, rep.ID)
			if err != nil {
				return stats, err
			}
			if exists {
				continue
			}
			if err := st.CreateTagRule(ctx, &models.SalesRepTagRule{Tag: tag, SalesRepID: rep.ID}); err != nil {
				return stats, fmt.Errorf("create tag rule %q: %w", tag, err)
			}
			stats.TagRules++
		}
	}
	return stats, nil
}

func hasTagRule(ctx context.Context, st RepSeedStore, tag string, repID uint) (bool, error) {
	rules, err := st.MatchTagRules(ctx, []string{tag})
	if err != nil {
		return false, fmt.Errorf("lookup tag rule %q: %w", tag, err)
	}
	for _, r := range rules {
		if r.SalesRepID == repID {
			return true, nil
		}
	}
	return false, nil
}
