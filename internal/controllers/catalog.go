package controllers

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/drstein77/storefront/internal/catalog"
	"github.com/drstein77/storefront/internal/middleware"
	"github.com/drstein77/storefront/internal/views"
)

func (h *BaseController) products(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	q := r.URL.Query()
	listing := h.catalog.List(r.Context(), v.API, v.Notices, catalog.Request{
		Category:       q.Get("category"),
		After:          q.Get("after"),
		Before:         q.Get("before"),
		WithCategories: true,
	})
	h.render(w, r, http.StatusOK, views.PageProducts, "Shop", views.ListingBody{
		Heading:     "Our Exclusive Collection",
		Intro:       "Explore our curated selection of high-quality products. Find exactly what you are looking for.",
		BasePath:    "/products",
		ShowFilters: true,
		Listing:     listing,
	})
}

func (h *BaseController) bikes(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	q := r.URL.Query()
	listing := h.catalog.Bikes(r.Context(), v.API, v.Notices, q.Get("after"), q.Get("before"))
	h.render(w, r, http.StatusOK, views.PageProducts, "Bikes", views.ListingBody{
		Heading:  "Our Bikes",
		Intro:    "Find the perfect ride for every adventure.",
		BasePath: "/bikes",
		Listing:  listing,
	})
}

func (h *BaseController) product(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	p, err := h.catalog.Product(r.Context(), v.API, chi.URLParam(r, "slug"))
	if err != nil {
		h.notFound(w, r)
		return
	}
	h.render(w, r, http.StatusOK, views.PageProduct, p.Name, views.ProductBody{Product: p})
}
