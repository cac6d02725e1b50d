package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/salonsync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on PostgreSQL through GORM
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm handle
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

// translate maps gorm errors onto the package sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *GormStore) first(ctx context.Context, out interface{}, query string, args ...interface{}) error {
	return translate(s.db.WithContext(ctx).Where(query, args...).Order("id ASC").First(out).Error)
}

// ---- customers ----

func (s *GormStore) FindCustomerByExternalID(ctx context.Context, externalID string) (*models.Customer, error) {
	var c models.Customer
	if err := s.first(ctx, &c, "external_id = ?", externalID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *GormStore) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	if err := s.first(ctx, &c, "email = ?", email); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *GormStore) GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	var c models.Customer
	if err := translate(s.db.WithContext(ctx).First(&c, id).Error); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *GormStore) SaveCustomer(ctx context.Context, c *models.Customer) error {
	db := s.db.WithContext(ctx)
	if c.ID != 0 {
		return translate(db.Save(c).Error)
	}
	if c.ExternalID == nil {
		return translate(db.Create(c).Error)
	}
	// Concurrent first sightings of the same external id collapse onto one
	// row. The loser keeps the winner's creation time and rep assignment.
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: customerUpsertSet,
	}).Create(c).Error
	if err != nil {
		return translate(err)
	}
	return translate(db.First(c, c.ID).Error)
}

var customerUpsertSet = append(clause.AssignmentColumns([]string{
	"email", "display_name", "first_name", "last_name", "company", "phone",
	"address1", "address2", "city", "province", "zip", "country",
	"tags", "last_synced_at", "updated_at",
}),
	clause.Assignment{Column: clause.Column{Name: "sales_rep"}, Value: gorm.Expr("COALESCE(EXCLUDED.sales_rep, customers.sales_rep)")},
	clause.Assignment{Column: clause.Column{Name: "sales_rep_id"}, Value: gorm.Expr("COALESCE(EXCLUDED.sales_rep_id, customers.sales_rep_id)")},
)

// ---- orders ----

func (s *GormStore) FindOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	var o models.Order
	if err := s.first(ctx, &o, "external_id = ?", externalID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *GormStore) ReplaceOrder(ctx context.Context, o *models.Order, items []models.OrderLineItem) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if o.ID != 0 {
			if err := tx.Omit(clause.Associations).Save(o).Error; err != nil {
				return fmt.Errorf("update order %s: %w", o.ExternalID, err)
			}
		} else {
			if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "external_id"}},
				UpdateAll: true,
			}).Create(o).Error; err != nil {
				return fmt.Errorf("create order %s: %w", o.ExternalID, err)
			}
		}

		if err := tx.Where("order_id = ?", o.ID).Delete(&models.OrderLineItem{}).Error; err != nil {
			return fmt.Errorf("clear line items for order %d: %w", o.ID, err)
		}

		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].ID = 0
			items[i].OrderID = o.ID
		}
		if err := tx.CreateInBatches(items, 100).Error; err != nil {
			return fmt.Errorf("insert line items for order %d: %w", o.ID, err)
		}
		return nil
	})
	return translate(err)
}

func (s *GormStore) ListLineItems(ctx context.Context, orderID uint) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&items).Error
	return items, translate(err)
}

// ---- sales reps ----

func (s *GormStore) GetSalesRep(ctx context.Context, id uint) (*models.SalesRep, error) {
	var rep models.SalesRep
	if err := translate(s.db.WithContext(ctx).First(&rep, id).Error); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (s *GormStore) FindSalesRepByAlias(ctx context.Context, alias string) (*models.SalesRep, error) {
	var a models.SalesRepAlias
	err := s.db.WithContext(ctx).Preload("SalesRep").Where("alias = ?", alias).First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	if a.SalesRep == nil {
		return nil, ErrNotFound
	}
	return a.SalesRep, nil
}

func (s *GormStore) FindSalesRepByName(ctx context.Context, name string) (*models.SalesRep, error) {
	var rep models.SalesRep
	if err := s.first(ctx, &rep, "LOWER(name) = LOWER(?)", name); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (s *GormStore) ListSalesReps(ctx context.Context) ([]models.SalesRep, error) {
	var reps []models.SalesRep
	err := s.db.WithContext(ctx).Order("id ASC").Find(&reps).Error
	return reps, translate(err)
}

func (s *GormStore) MatchTagRules(ctx context.Context, tags []string) ([]models.SalesRepTagRule, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	var rules []models.SalesRepTagRule
	err := s.db.WithContext(ctx).
		Preload("SalesRep").
		Where("LOWER(tag) IN ?", tags).
		Order("created_at ASC, id ASC").
		Find(&rules).Error
	return rules, translate(err)
}

func (s *GormStore) CreateSalesRep(ctx context.Context, rep *models.SalesRep) error {
	return translate(s.db.WithContext(ctx).Create(rep).Error)
}

func (s *GormStore) CreateSalesRepAlias(ctx context.Context, alias *models.SalesRepAlias) error {
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(alias).Error)
}

func (s *GormStore) CreateTagRule(ctx context.Context, rule *models.SalesRepTagRule) error {
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(rule).Error)
}

// ---- sync bookkeeping ----

func (s *GormStore) GetSyncState(ctx context.Context, resource string) (*models.SyncState, error) {
	var st models.SyncState
	if err := s.first(ctx, &st, "resource = ?", resource); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *GormStore) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource"}},
		UpdateAll: true,
	}).Create(state).Error)
}

func (s *GormStore) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	var states []models.SyncState
	err := s.db.WithContext(ctx).Order("resource ASC").Find(&states).Error
	return states, translate(err)
}

func (s *GormStore) RecordWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	return translate(s.db.WithContext(ctx).Create(d).Error)
}

// ---- enrichment ----

func (s *GormStore) ListProductsMissingVendor(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("vendor IS NULL AND product_id IS NOT NULL").
		Distinct("product_id").
		Order("product_id ASC").
		Limit(limit).
		Pluck("product_id", &ids).Error
	return ids, translate(err)
}

func (s *GormStore) SetVendorForProduct(ctx context.Context, productID, vendor string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("product_id = ? AND vendor IS NULL", productID).
		Update("vendor", vendor)
	return res.RowsAffected, translate(res.Error)
}

func (s *GormStore) ListVariantsMissingCost(ctx context.Context, limit int) ([]CostCandidate, error) {
	var out []CostCandidate
	err := s.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Select("variant_id, COALESCE(MAX(sku), '') AS sku").
		Where("unit_cost IS NULL AND variant_id IS NOT NULL").
		Group("variant_id").
		Order("variant_id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, translate(err)
}

func (s *GormStore) SetCostForVariant(ctx context.Context, variantID string, cost float64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("variant_id = ? AND unit_cost IS NULL", variantID).
		Update("unit_cost", cost)
	return res.RowsAffected, translate(res.Error)
}
