// Package views renders the storefront pages from embedded templates.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/drstein77/storefront/internal/cart"
	"github.com/drstein77/storefront/internal/config"
	"github.com/drstein77/storefront/internal/notify"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

const (
	PageProducts = "products"
	PageProduct  = "product"
	PageCart     = "cart"
	PageCheckout = "checkout"
	PageOrder    = "order"
	PageContact  = "contact"
	PageNotFound = "notfound"
)

var pageNames = []string{PageProducts, PageProduct, PageCart, PageCheckout, PageOrder, PageContact, PageNotFound}

// Page is what every template receives; Body holds the page specific data.
type Page struct {
	Title   string
	Path    string
	Store   config.Profile
	Cart    cart.Snapshot
	Notices []notify.Notice
	Year    int
	Body    any
}

// Renderer holds one parsed template set per page, each sharing the layout.
type Renderer struct {
	pages   map[string]*template.Template
	policy  *bluemonday.Policy
	profile config.Profile
}

func New(profile config.Profile) (*Renderer, error) {
	r := &Renderer{
		pages:   make(map[string]*template.Template, len(pageNames)),
		policy:  bluemonday.UGCPolicy(),
		profile: profile,
	}
	funcs := r.funcs()
	for _, name := range pageNames {
		tmpl, err := template.New("layout.gohtml").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.gohtml", "templates/partials.gohtml", "templates/"+name+".gohtml")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s page: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render executes page into w. Output is buffered so a template error never
// leaves a half-written page behind.
func (r *Renderer) Render(w io.Writer, name string, p Page) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	p.Store = r.profile
	if p.Year == 0 {
		p.Year = time.Now().Year()
	}
	if p.Title == "" {
		p.Title = r.profile.Name
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("failed to render %s page: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Sanitize strips everything from remote markup that is not safe to embed.
func (r *Renderer) Sanitize(markup string) template.HTML {
	return template.HTML(r.policy.Sanitize(markup))
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"safe":     r.Sanitize,
		"money":    cart.FormatMoney,
		"lineCost": lineCost,
		"cost":     shippingCost,
		"date":     func(t time.Time) string { return t.Format("2 Jan 2006") },
		"join":     strings.Join,
		"add":      func(a, b int) int { return a + b },
		"query":    pageQuery,
	}
}

func lineCost(price string, qty int) string {
	return cart.FormatMoney(cart.ParsePrice(price).Mul(decimal.NewFromInt(int64(qty))))
}

// shippingCost shows "Free" for a zero or unreadable cost.
func shippingCost(cost string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(cost))
	if err != nil || !d.IsPositive() {
		return "Free"
	}
	return "$" + cost
}

// pageQuery builds a listing link keeping the category filter.
func pageQuery(base, category, key, cursor string) string {
	v := url.Values{}
	if category != "" {
		v.Set("category", category)
	}
	if cursor != "" {
		v.Set(key, cursor)
	}
	if len(v) == 0 {
		return base
	}
	return base + "?" + v.Encode()
}
