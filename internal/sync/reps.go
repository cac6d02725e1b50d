package sync

import (
	"context"
	"log"
	"strings"
	"unicode"

	"github.com/xelth-com/salonsync/internal/models"
)

// RepStore is the lookup surface the rep resolver needs
type RepStore interface {
	GetSalesRep(ctx context.Context, id uint) (*models.SalesRep, error)
	FindSalesRepByAlias(ctx context.Context, alias string) (*models.SalesRep, error)
	FindSalesRepByName(ctx context.Context, name string) (*models.SalesRep, error)
	ListSalesReps(ctx context.Context) ([]models.SalesRep, error)
	MatchTagRules(ctx context.Context, tags []string) ([]models.SalesRepTagRule, error)
}

// RepRef identifies a canonical sales rep
type RepRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// RepQuery is a free-text rep reference from an external source
type RepQuery struct {
	ID   *uint  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// RepResolver maps tags and free-text names onto canonical reps.
// Lookup failures are logged and treated as "no match".
type RepResolver struct {
	store RepStore
}

// NewRepResolver creates a resolver over store
func NewRepResolver(store RepStore) *RepResolver {
	return &RepResolver{store: store}
}

// NormalizeRepName lowercases, strips punctuation and symbols, and
// collapses whitespace
func NormalizeRepName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// RepForTags returns the rep of the oldest tag rule matching any of tags
func (r *RepResolver) RepForTags(ctx context.Context, tags []string) *RepRef {
	keys := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		k := strings.ToLower(strings.TrimSpace(t))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}

	rules, err := r.store.MatchTagRules(ctx, keys)
	if err != nil {
		log.Printf("⚠️ Rep mapping: tag rule lookup failed: %v", err)
		return nil
	}
	// Rules arrive oldest first
	for _, rule := range rules {
		if rule.SalesRep != nil {
			return &RepRef{ID: rule.SalesRep.ID, Name: rule.SalesRep.Name}
		}
	}
	return nil
}

// ResolveRep tries, in order: id, alias on the normalized name,
// case-insensitive exact name, normalized scan over canonical names
func (r *RepResolver) ResolveRep(ctx context.Context, q RepQuery) *RepRef {
	if q.ID != nil {
		if rep, err := r.store.GetSalesRep(ctx, *q.ID); err == nil {
			return toRef(rep)
		}
	}

	name := strings.TrimSpace(q.Name)
	if name == "" {
		return nil
	}
	norm := NormalizeRepName(name)

	if norm != "" {
		if rep, err := r.store.FindSalesRepByAlias(ctx, norm); err == nil {
			return toRef(rep)
		}
	}

	if rep, err := r.store.FindSalesRepByName(ctx, name); err == nil {
		return toRef(rep)
	}

	if norm == "" {
		return nil
	}
	reps, err := r.store.ListSalesReps(ctx)
	if err != nil {
		log.Printf("⚠️ Rep mapping: listing reps failed: %v", err)
		return nil
	}
	for i := range reps {
		if NormalizeRepName(reps[i].Name) == norm {
			return toRef(&reps[i])
		}
	}
	return nil
}

func toRef(rep *models.SalesRep) *RepRef {
	return &RepRef{ID: rep.ID, Name: rep.Name}
}
