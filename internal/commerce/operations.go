package commerce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drstein77/storefront/internal/models"
)

var ErrEmptyCoupon = errors.New("coupon code is empty")

// Session issues operations on behalf of one visitor.
type Session struct {
	client *Client
	tokens TokenStore
}

func (s *Session) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	return s.client.do(ctx, s.tokens, op, query, vars, out)
}

// ProductsQuery selects one page of products. Zero First/Last and empty
// strings are sent as null.
type ProductsQuery struct {
	Category string
	First    int
	After    string
	Last     int
	Before   string
}

func (q ProductsQuery) variables() map[string]any {
	return map[string]any{
		"category": nullString(q.Category),
		"first":    nullInt(q.First),
		"after":    nullString(q.After),
		"last":     nullInt(q.Last),
		"before":   nullString(q.Before),
	}
}

type ProductPage struct {
	Products []models.Product
	PageInfo models.PageInfo
}

type imageNode struct {
	SourceURL string `json:"sourceUrl"`
}

type productNode struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Slug  string     `json:"slug"`
	Image *imageNode `json:"image"`
	Price *string    `json:"price"`
}

func (n productNode) model() models.Product {
	p := models.Product{ID: n.ID, Name: n.Name, Slug: n.Slug}
	if n.Image != nil {
		p.Image = n.Image.SourceURL
	}
	if n.Price != nil {
		p.Price = *n.Price
	}
	return p
}

func productModels(nodes []productNode) []models.Product {
	out := make([]models.Product, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" || n.Slug == "" {
			continue
		}
		out = append(out, n.model())
	}
	return out
}

type pageInfoNode struct {
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

func pageInfoModel(n *pageInfoNode) models.PageInfo {
	if n == nil {
		return models.PageInfo{}
	}
	pi := models.PageInfo{HasNextPage: n.HasNextPage, HasPreviousPage: n.HasPreviousPage}
	if n.StartCursor != nil {
		pi.StartCursor = *n.StartCursor
	}
	if n.EndCursor != nil {
		pi.EndCursor = *n.EndCursor
	}
	return pi
}

// Products returns one page. A missing products field is an empty page.
func (s *Session) Products(ctx context.Context, q ProductsQuery) (ProductPage, error) {
	var data struct {
		Products *struct {
			Nodes    []productNode `json:"nodes"`
			PageInfo *pageInfoNode `json:"pageInfo"`
		} `json:"products"`
	}
	if err := s.do(ctx, "products", productsQuery, q.variables(), &data); err != nil {
		return ProductPage{}, err
	}
	if data.Products == nil {
		return ProductPage{}, nil
	}
	return ProductPage{
		Products: productModels(data.Products.Nodes),
		PageInfo: pageInfoModel(data.Products.PageInfo),
	}, nil
}

func (s *Session) Categories(ctx context.Context, first int) ([]models.Category, error) {
	var data struct {
		ProductCategories *struct {
			Nodes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				Slug string `json:"slug"`
			} `json:"nodes"`
		} `json:"productCategories"`
	}
	if err := s.do(ctx, "categories", categoriesQuery, map[string]any{"first": nullInt(first)}, &data); err != nil {
		return nil, err
	}
	if data.ProductCategories == nil {
		return nil, nil
	}
	out := make([]models.Category, 0, len(data.ProductCategories.Nodes))
	for _, n := range data.ProductCategories.Nodes {
		if n.Slug == "" {
			continue
		}
		out = append(out, models.Category{ID: n.ID, Name: n.Name, Slug: n.Slug})
	}
	return out, nil
}

// Product looks a product up by slug. It returns nil without error when there is no such product.
func (s *Session) Product(ctx context.Context, slug string) (*models.ProductDetail, error) {
	var data struct {
		Product *struct {
			productNode
			DatabaseID       int     `json:"databaseId"`
			Description      *string `json:"description"`
			ShortDescription *string `json:"shortDescription"`
			GalleryImages    *struct {
				Nodes []imageNode `json:"nodes"`
			} `json:"galleryImages"`
			Attributes *struct {
				Nodes []struct {
					Name    string   `json:"name"`
					Options []string `json:"options"`
				} `json:"nodes"`
			} `json:"attributes"`
			Reviews *struct {
				Nodes []struct {
					ID     string `json:"id"`
					Author *struct {
						Node *struct {
							Name string `json:"name"`
						} `json:"node"`
					} `json:"author"`
					Content string `json:"content"`
					Date    string `json:"date"`
				} `json:"nodes"`
			} `json:"reviews"`
			Related *struct {
				Nodes []productNode `json:"nodes"`
			} `json:"related"`
		} `json:"product"`
	}
	if err := s.do(ctx, "product", productQuery, map[string]any{"slug": slug}, &data); err != nil {
		return nil, err
	}
	p := data.Product
	if p == nil || p.ID == "" {
		return nil, nil
	}

	detail := &models.ProductDetail{Product: p.model(), DatabaseID: p.DatabaseID}
	if detail.Slug == "" {
		detail.Slug = slug
	}
	if p.Description != nil {
		detail.Description = *p.Description
	}
	if p.ShortDescription != nil {
		detail.ShortDescription = *p.ShortDescription
	}
	if p.GalleryImages != nil {
		for _, img := range p.GalleryImages.Nodes {
			if img.SourceURL != "" {
				detail.Gallery = append(detail.Gallery, img.SourceURL)
			}
		}
	}
	if p.Attributes != nil {
		for _, a := range p.Attributes.Nodes {
			detail.Attributes = append(detail.Attributes, models.Attribute{Name: a.Name, Options: a.Options})
		}
	}
	if p.Reviews != nil {
		for _, r := range p.Reviews.Nodes {
			review := models.Review{ID: r.ID, Content: r.Content, Date: parseDate(r.Date)}
			if r.Author != nil && r.Author.Node != nil {
				review.Author = r.Author.Node.Name
			}
			detail.Reviews = append(detail.Reviews, review)
		}
	}
	if p.Related != nil {
		detail.Related = productModels(p.Related.Nodes)
	}
	return detail, nil
}

// CheckoutData fetches the recalculated remote cart, shipping rates and payment gateways.
func (s *Session) CheckoutData(ctx context.Context) (models.CheckoutData, error) {
	var data struct {
		Cart *struct {
			Contents *struct {
				Nodes []struct {
					Product *struct {
						Node *struct {
							Name string `json:"name"`
						} `json:"node"`
					} `json:"product"`
					Quantity int    `json:"quantity"`
					Total    string `json:"total"`
				} `json:"nodes"`
			} `json:"contents"`
			Subtotal                 string `json:"subtotal"`
			Total                    string `json:"total"`
			ShippingTotal            string `json:"shippingTotal"`
			DiscountTotal            string `json:"discountTotal"`
			AvailableShippingMethods []struct {
				Rates []struct {
					ID    string `json:"id"`
					Label string `json:"label"`
					Cost  string `json:"cost"`
				} `json:"rates"`
			} `json:"availableShippingMethods"`
		} `json:"cart"`
		PaymentGateways *struct {
			Nodes []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"nodes"`
		} `json:"paymentGateways"`
	}
	if err := s.do(ctx, "checkoutData", checkoutDataQuery, nil, &data); err != nil {
		return models.CheckoutData{}, err
	}

	var out models.CheckoutData
	if c := data.Cart; c != nil {
		out.Summary = models.CartSummary{
			Subtotal:      c.Subtotal,
			ShippingTotal: c.ShippingTotal,
			DiscountTotal: c.DiscountTotal,
			Total:         c.Total,
		}
		if c.Contents != nil {
			for _, n := range c.Contents.Nodes {
				line := models.SummaryLine{Quantity: n.Quantity, Total: n.Total}
				if n.Product != nil && n.Product.Node != nil {
					line.Name = n.Product.Node.Name
				}
				out.Summary.Lines = append(out.Summary.Lines, line)
			}
		}
		// only the first package's rates are offered
		if len(c.AvailableShippingMethods) > 0 {
			for _, r := range c.AvailableShippingMethods[0].Rates {
				if r.ID == "" {
					continue
				}
				out.Rates = append(out.Rates, models.ShippingRate{ID: r.ID, Label: r.Label, Cost: r.Cost})
			}
		}
	}
	if data.PaymentGateways != nil {
		for _, g := range data.PaymentGateways.Nodes {
			if g.ID == "" {
				continue
			}
			out.Gateways = append(out.Gateways, models.PaymentGateway{ID: g.ID, Title: g.Title})
		}
	}
	return out, nil
}

type ShippingInput struct {
	Country  string `json:"country"`
	Postcode string `json:"postcode"`
}

func (s *Session) UpdateCustomer(ctx context.Context, shipping ShippingInput) error {
	var data struct {
		UpdateCustomer *struct {
			Customer *struct {
				ID string `json:"id"`
			} `json:"customer"`
		} `json:"updateCustomer"`
	}
	vars := map[string]any{"input": map[string]any{"shipping": shipping}}
	if err := s.do(ctx, "updateCustomer", updateCustomerMutation, vars, &data); err != nil {
		return err
	}
	return nil
}

type CouponResult struct {
	Total         string
	DiscountTotal string
}

func (s *Session) ApplyCoupon(ctx context.Context, code string) (CouponResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return CouponResult{}, ErrEmptyCoupon
	}
	var data struct {
		ApplyCoupon *struct {
			Cart *struct {
				Total         string `json:"total"`
				DiscountTotal string `json:"discountTotal"`
			} `json:"cart"`
		} `json:"applyCoupon"`
	}
	if err := s.do(ctx, "applyCoupon", applyCouponMutation, map[string]any{"code": code}, &data); err != nil {
		return CouponResult{}, err
	}
	if data.ApplyCoupon == nil || data.ApplyCoupon.Cart == nil {
		return CouponResult{}, nil
	}
	return CouponResult{Total: data.ApplyCoupon.Cart.Total, DiscountTotal: data.ApplyCoupon.Cart.DiscountTotal}, nil
}

// CheckoutInput is everything the order placement sends in one request.
type CheckoutInput struct {
	Billing        models.Address
	Shipping       models.Address
	ShippingMethod string
	PaymentMethod  string
	LineItems      []models.LineItem
}

func (in CheckoutInput) variables() map[string]any {
	return map[string]any{
		"input": map[string]any{
			"billing":        addressInput(in.Billing, true),
			"shipping":       addressInput(in.Shipping, false),
			"shippingMethod": []string{in.ShippingMethod},
			"paymentMethod":  in.PaymentMethod,
			"lineItems":      in.LineItems,
		},
	}
}

func addressInput(a models.Address, contact bool) map[string]any {
	m := map[string]any{
		"firstName": a.FirstName,
		"lastName":  a.LastName,
		"address1":  a.Address1,
		"city":      a.City,
		"postcode":  a.Postcode,
		"country":   a.Country,
		"state":     a.State,
	}
	if contact {
		m["email"] = a.Email
		m["phone"] = a.Phone
	}
	return m
}

func (s *Session) Checkout(ctx context.Context, in CheckoutInput) (models.OrderResult, error) {
	var data struct {
		Checkout *struct {
			Result string `json:"result"`
			Order  *struct {
				OrderNumber string `json:"orderNumber"`
			} `json:"order"`
		} `json:"checkout"`
	}
	if err := s.do(ctx, "checkout", checkoutMutation, in.variables(), &data); err != nil {
		return models.OrderResult{}, err
	}
	if data.Checkout == nil {
		return models.OrderResult{}, nil
	}
	res := models.OrderResult{Result: data.Checkout.Result}
	if data.Checkout.Order != nil {
		res.OrderNumber = data.Checkout.Order.OrderNumber
	}
	return res, nil
}

type CartItemResult struct {
	Key      string
	Quantity int
}

// AddToCart adds productID to the remote cart of this session.
func (s *Session) AddToCart(ctx context.Context, productID, quantity int) (CartItemResult, error) {
	if productID <= 0 {
		return CartItemResult{}, fmt.Errorf("%w: %d", ErrInvalidProductID, productID)
	}
	if quantity < 1 {
		quantity = 1
	}
	var data struct {
		AddToCart *struct {
			CartItem *struct {
				Key      string `json:"key"`
				Quantity int    `json:"quantity"`
			} `json:"cartItem"`
		} `json:"addToCart"`
	}
	vars := map[string]any{"productId": productID, "quantity": quantity}
	if err := s.do(ctx, "addToCart", addToCartMutation, vars, &data); err != nil {
		return CartItemResult{}, err
	}
	if data.AddToCart == nil || data.AddToCart.CartItem == nil {
		return CartItemResult{}, nil
	}
	return CartItemResult{Key: data.AddToCart.CartItem.Key, Quantity: data.AddToCart.CartItem.Quantity}, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

// parseDate accepts the site's local "2006-01-02T15:04:05" form as well as RFC 3339.
func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
