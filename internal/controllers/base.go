package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	chimw "github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drstein77/storefront/internal/cart"
	"github.com/drstein77/storefront/internal/catalog"
	"github.com/drstein77/storefront/internal/middleware"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/session"
	"github.com/drstein77/storefront/internal/views"
)

// maxQuantity caps what a single add-to-cart form may ask for.
const maxQuantity = 99

// Renderer renders a named page.
type Renderer interface {
	Render(w io.Writer, name string, p views.Page) error
}

// Contacts stores contact form submissions. It may be nil.
type Contacts interface {
	SaveContactMessage(ctx context.Context, msg models.ContactMessage) error
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Log interface for logging
type Log interface {
	Info(string, ...zapcore.Field)
	Error(string, ...zapcore.Field)
}

// BaseController serves every storefront page and form.
type BaseController struct {
	ctx      context.Context
	visitors *session.Registry
	catalog  *catalog.Service
	views    Renderer
	contacts Contacts
	storage  Pinger
	log      Log
}

// NewBaseController creates a new BaseController instance
func NewBaseController(ctx context.Context, visitors *session.Registry, catalog *catalog.Service,
	views Renderer, contacts Contacts, storage Pinger, log Log) *BaseController {
	return &BaseController{
		ctx:      ctx,
		visitors: visitors,
		catalog:  catalog,
		views:    views,
		contacts: contacts,
		storage:  storage,
		log:      log,
	}
}

// Route sets up the routes for the BaseController
func (h *BaseController) Route() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(h.log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5, "text/html", "application/json"))

	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Visitor(h.visitors))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/products", http.StatusFound)
		})
		r.Get("/products", h.products)
		r.Get("/bikes", h.bikes)
		r.Get("/product/{slug}", h.product)

		r.Get("/cart", h.cartPage)
		r.Get("/api/cart", h.cartJSON)
		r.Post("/cart/add", h.addToCart)
		r.Post("/cart/update", h.updateCart)
		r.Post("/cart/remove", h.removeFromCart)
		r.Post("/cart/clear", h.clearCart)
		r.Post("/minicart/open", h.openMiniCart)
		r.Post("/minicart/close", h.closeMiniCart)

		r.Get("/checkout", h.checkoutPage)
		r.Post("/checkout/address", h.checkoutAddress)
		r.Post("/checkout/select", h.checkoutSelect)
		r.Post("/checkout/coupon", h.checkoutCoupon)
		r.Post("/checkout/place", h.placeOrder)
		r.Get("/order-confirmation/{number}", h.orderConfirmation)

		r.Get("/contact", h.contactPage)
		r.Post("/contact", h.submitContact)
	})
	r.NotFound(middleware.Visitor(h.visitors)(http.HandlerFunc(h.notFound)).ServeHTTP)

	return r
}

// render writes a full page. Navigating to another page discards the checkout
// session; a not-found render (stray asset requests included) keeps it.
func (h *BaseController) render(w http.ResponseWriter, r *http.Request, status int, name, title string, body any) {
	v := middleware.VisitorFrom(r.Context())
	if name != views.PageCheckout && name != views.PageNotFound {
		v.EndCheckout()
	}
	page := views.Page{
		Title:   title,
		Path:    r.URL.RequestURI(),
		Cart:    v.Cart.Snapshot(),
		Notices: v.Notices.Drain(),
		Body:    body,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.views.Render(w, name, page); err != nil {
		h.log.Error("cannot render page", zap.String("page", name), zap.Error(err))
	}
}

func (h *BaseController) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, views.PageNotFound, "Page not found", nil)
}

func (h *BaseController) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.storage != nil && !h.storage.Ping(ctx) {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// redirectBack sends the browser to the form's return path, then the
// referring page on this site, then fallback.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	target := fallback
	if ret := r.PostFormValue("return"); localPath(ret) {
		target = ret
	} else if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host && localPath(ref.RequestURI()) {
		target = ref.RequestURI()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func localPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

func formInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.PostFormValue(key))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// cartResponse is the JSON shape of GET /api/cart.
type cartResponse struct {
	Items        []models.CartItem `json:"items"`
	Count        int               `json:"count"`
	Subtotal     string            `json:"subtotal"`
	MiniCartOpen bool              `json:"miniCartOpen"`
}

func newCartResponse(s cart.Snapshot) cartResponse {
	items := s.Items
	if items == nil {
		items = []models.CartItem{}
	}
	return cartResponse{
		Items:        items,
		Count:        s.Count(),
		Subtotal:     cart.FormatMoney(s.Subtotal()),
		MiniCartOpen: s.MiniCartOpen,
	}
}
