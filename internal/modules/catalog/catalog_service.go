package catalog

import (
	"context"
	"fmt"

	"ordering-and-delivery/internal/models"
)

// ServiceInterface defines the catalog operations used by the order module
// and exposed over HTTP.
type ServiceInterface interface {
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
	ListServices(ctx context.Context) ([]*models.Service, error)
	ListMenuItems(ctx context.Context, serviceID string) ([]*models.MenuItem, error)
	ResolveLine(ctx context.Context, serviceID, menuItemID string, quantity int) (*models.ResolvedLine, error)
}

// Service implements catalog lookups. Read-only; no side effects.
type Service struct {
	repo RepositoryInterface
}

func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	svc, err := s.repo.FindService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) ListServices(ctx context.Context) ([]*models.Service, error) {
	return s.repo.ListServices(ctx)
}

func (s *Service) ListMenuItems(ctx context.Context, serviceID string) ([]*models.MenuItem, error) {
	if _, err := s.repo.FindService(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.repo.ListMenuItems(ctx, serviceID)
}

// ResolveLine validates a cart line against the catalog and prices it. The
// item must exist, belong to the stated service, and be currently available.
// The unit price is the discounted price when present, else the base price.
func (s *Service) ResolveLine(ctx context.Context, serviceID, menuItemID string, quantity int) (*models.ResolvedLine, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", models.ErrValidation)
	}
	item, err := s.repo.FindMenuItem(ctx, serviceID, menuItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsAvailable {
		return nil, fmt.Errorf("%w: %s", models.ErrItemUnavailable, item.Name)
	}
	return &models.ResolvedLine{
		MenuItemID: item.ID,
		Name:       item.Name,
		Quantity:   quantity,
		UnitPrice:  item.UnitPrice(),
	}, nil
}
