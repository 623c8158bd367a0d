package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/middleware"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/notify"
	"github.com/drstein77/storefront/internal/views"
)

func (h *BaseController) cartPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.PageCart, "Cart", nil)
}

func (h *BaseController) cartJSON(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	writeJSON(w, newCartResponse(v.Cart.Snapshot()))
}

// addToCart serves both add forms. remote=1 (product cards) first adds the
// product to the remote cart; the detail page adds quantity units locally.
func (h *BaseController) addToCart(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	item := models.CartItem{
		ID:    strings.TrimSpace(r.PostFormValue("id")),
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Price: r.PostFormValue("price"),
		Image: strings.TrimSpace(r.PostFormValue("image")),
	}
	if item.Price == "" {
		item.Price = "0"
	}
	quantity, err := formInt(r, "quantity", 1)
	if err != nil || quantity < 1 {
		quantity = 1
	}
	if quantity > maxQuantity {
		quantity = maxQuantity
	}

	if r.PostFormValue("remote") == "1" {
		id, err := commerce.DecodeID(item.ID)
		if err != nil {
			v.Notices.Error("Invalid product.")
			redirectBack(w, r, "/products")
			return
		}
		if _, err := v.API.AddToCart(r.Context(), id, 1); err != nil {
			h.log.Error("remote add to cart failed", zap.Int("product", id), zap.Error(err))
			v.Notices.Error(commerce.UserMessage(err, "Could not add item to cart."))
			redirectBack(w, r, "/products")
			return
		}
		quantity = 1
	}

	for i := 0; i < quantity; i++ {
		if err := v.Cart.Add(item); err != nil {
			v.Notices.Error("Invalid product.")
			redirectBack(w, r, "/products")
			return
		}
	}
	if quantity == 1 {
		v.Notices.Success(fmt.Sprintf("\"%s\" added to cart!", item.Name))
	} else {
		v.Notices.Success(fmt.Sprintf("%d x \"%s\" added to cart!", quantity, item.Name))
	}
	redirectBack(w, r, "/cart")
}

func (h *BaseController) updateCart(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	quantity, err := formInt(r, "quantity", 1)
	if err != nil {
		http.Error(w, "invalid quantity", http.StatusBadRequest)
		return
	}
	v.Cart.UpdateQuantity(r.PostFormValue("id"), quantity)
	redirectBack(w, r, "/cart")
}

func (h *BaseController) removeFromCart(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	v.Cart.Remove(r.PostFormValue("id"))
	redirectBack(w, r, "/cart")
}

func (h *BaseController) clearCart(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	v.Cart.Clear()
	v.Notices.Notify(notify.LevelInfo, "Your cart has been cleared.")
	redirectBack(w, r, "/cart")
}

func (h *BaseController) openMiniCart(w http.ResponseWriter, r *http.Request) {
	middleware.VisitorFrom(r.Context()).Cart.OpenMiniCart()
	redirectBack(w, r, "/products")
}

func (h *BaseController) closeMiniCart(w http.ResponseWriter, r *http.Request) {
	middleware.VisitorFrom(r.Context()).Cart.CloseMiniCart()
	redirectBack(w, r, "/products")
}
