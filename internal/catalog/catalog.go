// Package catalog builds the product listing and product detail views.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/notify"
)

const (
	DefaultPerPage = 12
	categoryLimit  = 50

	// BikesCategory is the category slug behind the bikes page.
	BikesCategory = "bikes"
)

var ErrProductNotFound = errors.New("product not found")

type Log interface {
	Error(string, ...zap.Field)
}

// API is the part of a commerce session the catalog reads from.
type API interface {
	Products(ctx context.Context, q commerce.ProductsQuery) (commerce.ProductPage, error)
	Categories(ctx context.Context, first int) ([]models.Category, error)
	Product(ctx context.Context, slug string) (*models.ProductDetail, error)
}

// Request describes one listing page.
type Request struct {
	Category string
	After    string
	Before   string

	// WithCategories also loads the category filter list.
	WithCategories bool
}

type Listing struct {
	Products   []models.Product
	Categories []models.Category
	PageInfo   models.PageInfo
	Category   string
}

func (l Listing) Empty() bool {
	return len(l.Products) == 0
}

type Service struct {
	perPage int
	log     Log
}

func NewService(perPage int, log Log) *Service {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Service{perPage: perPage, log: log}
}

func (s *Service) PerPage() int {
	return s.perPage
}

// Query picks the pagination variables: a before cursor pages backwards with
// last/before, anything else pages forward with first/after.
func (s *Service) Query(req Request) commerce.ProductsQuery {
	q := commerce.ProductsQuery{Category: req.Category}
	if req.Before != "" {
		q.Last = s.perPage
		q.Before = req.Before
		return q
	}
	q.First = s.perPage
	q.After = req.After
	return q
}

// List loads a listing page. On failure it tells the visitor and returns an
// empty listing that still renders.
func (s *Service) List(ctx context.Context, api API, n notify.Notifier, req Request) Listing {
	listing := Listing{Category: req.Category}

	var (
		page       commerce.ProductPage
		categories []models.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = api.Products(gctx, s.Query(req))
		if err != nil {
			return fmt.Errorf("products: %w", err)
		}
		return nil
	})
	if req.WithCategories {
		g.Go(func() error {
			var err error
			categories, err = api.Categories(gctx, categoryLimit)
			if err != nil {
				return fmt.Errorf("categories: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("cannot load catalog", zap.String("category", req.Category), zap.Error(err))
		n.Notify(notify.LevelError, "Could not load products.")
		return listing
	}

	listing.Products = page.Products
	listing.PageInfo = page.PageInfo
	listing.Categories = categories
	return listing
}

// Bikes lists the bikes category without the category filter.
func (s *Service) Bikes(ctx context.Context, api API, n notify.Notifier, after, before string) Listing {
	return s.List(ctx, api, n, Request{Category: BikesCategory, After: after, Before: before})
}

// Product loads a product by slug. Both a missing product and a failed
// lookup end in ErrProductNotFound; the cause is logged.
func (s *Service) Product(ctx context.Context, api API, slug string) (*models.ProductDetail, error) {
	if slug == "" {
		return nil, ErrProductNotFound
	}
	p, err := api.Product(ctx, slug)
	if err != nil {
		s.log.Error("cannot load product", zap.String("slug", slug), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, slug)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, slug)
	}
	return p, nil
}
