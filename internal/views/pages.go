package views

import (
	"github.com/drstein77/storefront/internal/catalog"
	"github.com/drstein77/storefront/internal/checkout"
	"github.com/drstein77/storefront/internal/models"
)

type ListingBody struct {
	Heading     string
	Intro       string
	BasePath    string
	ShowFilters bool
	Listing     catalog.Listing
}

type ProductBody struct {
	Product *models.ProductDetail
}

type CheckoutBody struct {
	checkout.View
}

type OrderBody struct {
	Number string
}

type ContactBody struct {
	Form   models.ContactMessage
	Errors map[string]string
	Sent   bool
}
