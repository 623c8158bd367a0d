package controllers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/checkout"
	"github.com/drstein77/storefront/internal/middleware"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/session"
	"github.com/drstein77/storefront/internal/views"
)

func (h *BaseController) checkoutPage(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	view := v.Checkout().Enter(r.Context())
	h.render(w, r, http.StatusOK, views.PageCheckout, "Checkout", views.CheckoutBody{View: view})
}

func (h *BaseController) checkoutAddress(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	v.Checkout().UpdateAddress(addressForm(r))
	http.Redirect(w, r, "/checkout", http.StatusSeeOther)
}

func (h *BaseController) checkoutSelect(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	if !applySelections(v, r) {
		v.Notices.Error("Please choose an available shipping and payment method.")
	}
	http.Redirect(w, r, "/checkout", http.StatusSeeOther)
}

func (h *BaseController) checkoutCoupon(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	_ = v.Checkout().ApplyCoupon(r.Context(), r.PostFormValue("code"))
	http.Redirect(w, r, "/checkout", http.StatusSeeOther)
}

// placeOrder takes the whole checkout form: address, selections, then submits.
func (h *BaseController) placeOrder(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	o := v.Checkout()
	o.UpdateAddress(addressForm(r))
	if !applySelections(v, r) {
		v.Notices.Error("Please choose an available shipping and payment method.")
		http.Redirect(w, r, "/checkout", http.StatusSeeOther)
		return
	}

	res, err := o.PlaceOrder(r.Context())
	if err != nil {
		if !errors.Is(err, checkout.ErrBusy) {
			h.log.Info("order not placed", zap.Error(err))
		}
		http.Redirect(w, r, "/checkout", http.StatusSeeOther)
		return
	}
	v.EndCheckout()
	http.Redirect(w, r, checkout.ConfirmationPath(res.OrderNumber), http.StatusSeeOther)
}

func (h *BaseController) orderConfirmation(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	h.render(w, r, http.StatusOK, views.PageOrder, "Order received", views.OrderBody{Number: number})
}

func addressForm(r *http.Request) models.Address {
	return models.Address{
		FirstName: r.PostFormValue("firstName"),
		LastName:  r.PostFormValue("lastName"),
		Address1:  r.PostFormValue("address1"),
		City:      r.PostFormValue("city"),
		Postcode:  r.PostFormValue("postcode"),
		Email:     r.PostFormValue("email"),
		Phone:     r.PostFormValue("phone"),
		Country:   r.PostFormValue("country"),
		State:     r.PostFormValue("state"),
	}
}

// applySelections applies the shipping and payment fields present in the form.
func applySelections(v *session.Visitor, r *http.Request) bool {
	o := v.Checkout()
	if id := r.PostFormValue("shipping"); id != "" {
		if err := o.SelectShipping(id); err != nil {
			return false
		}
	}
	if id := r.PostFormValue("payment"); id != "" {
		if err := o.SelectPayment(id); err != nil {
			return false
		}
	}
	return true
}
