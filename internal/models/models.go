package models

import "time"

// CartItem is one line of the visitor's cart. Price keeps the markup the
// commerce API renders, e.g. `<span class="amount"><bdi>$10.00</bdi></span>`.
type CartItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Image    string `json:"image,omitempty"`
	Quantity int    `json:"quantity"`
}

type Product struct {
	ID    string
	Name  string
	Slug  string
	Image string
	Price string
}

type Category struct {
	ID   string
	Name string
	Slug string
}

type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     string
	EndCursor       string
}

type Attribute struct {
	Name    string
	Options []string
}

type Review struct {
	ID      string
	Author  string
	Content string
	Date    time.Time
}

type ProductDetail struct {
	Product
	DatabaseID       int
	Description      string
	ShortDescription string
	Gallery          []string
	Attributes       []Attribute
	Reviews          []Review
	Related          []Product
}

// Images returns the main image followed by the gallery, skipping blanks.
func (p ProductDetail) Images() []string {
	images := make([]string, 0, len(p.Gallery)+1)
	if p.Image != "" {
		images = append(images, p.Image)
	}
	for _, img := range p.Gallery {
		if img != "" {
			images = append(images, img)
		}
	}
	return images
}

type ShippingRate struct {
	ID    string
	Label string
	Cost  string
}

type PaymentGateway struct {
	ID    string
	Title string
}

type SummaryLine struct {
	Name     string
	Quantity int
	Total    string
}

// CartSummary is the server-side view of the cart used during checkout.
type CartSummary struct {
	Lines         []SummaryLine
	Subtotal      string
	ShippingTotal string
	DiscountTotal string
	Total         string
}

// HasDiscount reports whether a non-zero discount is applied.
func (s CartSummary) HasDiscount() bool {
	switch s.DiscountTotal {
	case "", "0", "0.00", "$0.00":
		return false
	}
	return true
}

type CheckoutData struct {
	Summary  CartSummary
	Rates    []ShippingRate
	Gateways []PaymentGateway
}

// Address holds billing and shipping fields; the storefront uses one address for both.
type Address struct {
	FirstName string
	LastName  string
	Address1  string
	City      string
	Postcode  string
	Email     string
	Phone     string
	Country   string
	State     string
}

type LineItem struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

type OrderResult struct {
	Result      string
	OrderNumber string
}

// Succeeded reports whether the API declared the order placed.
func (r OrderResult) Succeeded() bool {
	return r.Result == "success" && r.OrderNumber != ""
}

type ContactMessage struct {
	Name       string
	Email      string
	Subject    string
	Message    string
	ReceivedAt time.Time
}
