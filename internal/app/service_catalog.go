package app

import (
	"context"
	"net/http"

	"mybeatfi/api/internal/catalog"
	"mybeatfi/api/internal/rbac"
	"mybeatfi/api/internal/store"
	"mybeatfi/api/internal/util"
)

func (s *Service) CatalogEntities() []catalog.Entity {
	return s.schema.List()
}

// entity resolves a taxonomy key; admin-only operations pass requireAdmin.
func (s *Service) entity(session Session, key string, requireAdmin bool) (catalog.Entity, error) {
	if requireAdmin && !s.Can(session, rbac.ActionManageCatalog) {
		return catalog.Entity{}, forbidden()
	}
	entity, ok := s.schema.Lookup(key)
	if !ok {
		return catalog.Entity{}, validationError("Unknown catalog entity", map[string]string{"entity": key + " is not a catalog entity"})
	}
	return entity, nil
}

func (s *Service) childOf(session Session, key string) (catalog.Entity, error) {
	entity, err := s.entity(session, key, true)
	if err != nil {
		return catalog.Entity{}, err
	}
	if entity.Child == nil {
		return catalog.Entity{}, validationError("Entity has no children", map[string]string{"entity": key + " has no child items"})
	}
	return entity, nil
}

func tableOf(entity catalog.Entity) store.TaxonomyTable {
	table := store.TaxonomyTable{Parent: entity.Table}
	if entity.Child != nil {
		table.Child = entity.Child.Table
		table.ForeignKey = entity.Child.ForeignKey
	}
	return table
}

func taxonomyPayload(item store.TaxonomyItem) map[string]any {
	payload := map[string]any{
		"id":           item.ID,
		"name":         item.Name,
		"display_name": item.DisplayName,
		"created_at":   item.CreatedAt,
	}
	if item.ParentID != nil {
		payload["parent_id"] = *item.ParentID
	}
	if item.Children != nil {
		children := make([]map[string]any, 0, len(item.Children))
		for _, child := range item.Children {
			children = append(children, taxonomyPayload(child))
		}
		payload["children"] = children
	}
	return payload
}

func (s *Service) ListTaxonomy(ctx context.Context, session Session, key string) (map[string]any, error) {
	entity, err := s.entity(session, key, false)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListTaxonomy(ctx, tableOf(entity))
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if entity.Child != nil && item.Children == nil {
			item.Children = []store.TaxonomyItem{}
		}
		payload = append(payload, taxonomyPayload(item))
	}
	return map[string]any{"entity": entity, "items": payload}, nil
}

func (s *Service) CreateTaxonomy(ctx context.Context, session Session, key string, input catalog.TaxonomyInput) (map[string]any, error) {
	entity, err := s.entity(session, key, true)
	if err != nil {
		return nil, err
	}
	slug, display, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	created, err := s.store.InsertTaxonomyItem(ctx, entity.Table, store.TaxonomyItem{ID: util.NewID(), Name: slug, DisplayName: display})
	if err != nil {
		return nil, err
	}
	return taxonomyPayload(created), nil
}

func (s *Service) UpdateTaxonomy(ctx context.Context, session Session, key, id string, input catalog.TaxonomyInput) (map[string]any, error) {
	entity, err := s.entity(session, key, true)
	if err != nil {
		return nil, err
	}
	slug, display, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTaxonomyItem(ctx, entity.Table, id, slug, display); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "name": slug, "display_name": display}, nil
}

// DeleteTaxonomy removes a parent row; its children cascade.
func (s *Service) DeleteTaxonomy(ctx context.Context, session Session, key, id string) error {
	entity, err := s.entity(session, key, true)
	if err != nil {
		return err
	}
	return s.store.DeleteTaxonomyItem(ctx, entity.Table, id)
}

func (s *Service) CreateTaxonomyChild(ctx context.Context, session Session, key, parentID string, input catalog.TaxonomyInput) (map[string]any, error) {
	entity, err := s.childOf(session, key)
	if err != nil {
		return nil, err
	}
	slug, display, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	parent := parentID
	created, err := s.store.InsertTaxonomyChild(ctx, entity.Child.Table, entity.Child.ForeignKey, store.TaxonomyItem{
		ID:          util.NewID(),
		ParentID:    &parent,
		Name:        slug,
		DisplayName: display,
	})
	if err != nil {
		return nil, err
	}
	return taxonomyPayload(created), nil
}

func (s *Service) UpdateTaxonomyChild(ctx context.Context, session Session, key, parentID, id string, input catalog.TaxonomyInput) (map[string]any, error) {
	entity, err := s.childOf(session, key)
	if err != nil {
		return nil, err
	}
	slug, display, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTaxonomyChild(ctx, entity.Child.Table, entity.Child.ForeignKey, parentID, id, slug, display); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "parent_id": parentID, "name": slug, "display_name": display}, nil
}

func (s *Service) DeleteTaxonomyChild(ctx context.Context, session Session, key, parentID, id string) error {
	entity, err := s.childOf(session, key)
	if err != nil {
		return err
	}
	return s.store.DeleteTaxonomyChild(ctx, entity.Child.Table, entity.Child.ForeignKey, parentID, id)
}

func discountPayload(d store.Discount) map[string]any {
	return map[string]any{
		"id":               d.ID,
		"name":             d.Name,
		"description":      d.Description,
		"code":             d.Code,
		"discount_percent": d.DiscountPercent,
		"applies_to":       d.AppliesTo,
		"start_date":       d.StartDate.Format("2006-01-02"),
		"end_date":         d.EndDate.Format("2006-01-02"),
		"is_active":        d.IsActive,
		"created_at":       d.CreatedAt,
		"updated_at":       d.UpdatedAt,
	}
}

func (s *Service) requireDiscountAdmin(session Session) error {
	if !s.Can(session, rbac.ActionManageDiscounts) {
		return forbidden()
	}
	return nil
}

func (s *Service) ListDiscounts(ctx context.Context, session Session) ([]map[string]any, error) {
	if err := s.requireDiscountAdmin(session); err != nil {
		return nil, err
	}
	discounts, err := s.store.ListDiscounts(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(discounts))
	for _, d := range discounts {
		items = append(items, discountPayload(d))
	}
	return items, nil
}

func toStoreDiscount(id string, d catalog.Discount) store.Discount {
	return store.Discount{
		ID:              id,
		Name:            d.Name,
		Description:     d.Description,
		Code:            d.Code,
		DiscountPercent: d.DiscountPercent,
		AppliesTo:       d.AppliesTo,
		StartDate:       d.StartDate,
		EndDate:         d.EndDate,
		IsActive:        d.IsActive,
	}
}

func (s *Service) CreateDiscount(ctx context.Context, session Session, input catalog.DiscountInput) (map[string]any, error) {
	if err := s.requireDiscountAdmin(session); err != nil {
		return nil, err
	}
	discount, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	created, err := s.store.InsertDiscount(ctx, toStoreDiscount(util.NewID(), discount))
	if err != nil {
		return nil, err
	}
	return discountPayload(created), nil
}

func (s *Service) UpdateDiscount(ctx context.Context, session Session, id string, input catalog.DiscountInput) (map[string]any, error) {
	if err := s.requireDiscountAdmin(session); err != nil {
		return nil, err
	}
	if input.IsActive == nil {
		existing, err := s.store.GetDiscount(ctx, id)
		if err != nil {
			return nil, err
		}
		active := existing.IsActive
		input.IsActive = &active
	}
	discount, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateDiscount(ctx, toStoreDiscount(id, discount))
	if err != nil {
		return nil, err
	}
	return discountPayload(updated), nil
}

func (s *Service) DeleteDiscount(ctx context.Context, session Session, id string) error {
	if err := s.requireDiscountAdmin(session); err != nil {
		return err
	}
	if id == "" {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return s.store.DeleteDiscount(ctx, id)
}
