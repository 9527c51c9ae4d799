package products

import (
	"context"
	"errors"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Product, error) {
	if err := validateCost(req.CostPrice); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, Product{
		Name:        req.Name,
		SKU:         req.SKU,
		Category:    req.Category,
		Description: req.Description,
		SellPrice:   req.SellPrice,
		CostPrice:   req.CostPrice,
		IsActive:    true,
	})
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Product, error) {
	if id <= 0 {
		return Product{}, ErrNotFound
	}
	if err := validateCost(req.CostPrice); err != nil {
		return Product{}, err
	}
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.SKU != nil {
		product.SKU = req.SKU
	}
	if req.Category != nil {
		product.Category = req.Category
	}
	if req.Description != nil {
		product.Description = req.Description
	}
	if req.SellPrice != nil {
		if *req.SellPrice < 0 {
			return Product{}, errors.New("sell price must be zero or greater")
		}
		product.SellPrice = *req.SellPrice
	}
	if req.CostPrice != nil {
		product.CostPrice = req.CostPrice
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// Delete deactivates the product. Rows are kept because invoice items
// reference them.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	return s.repo.Deactivate(ctx, id)
}
