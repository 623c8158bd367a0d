package controllers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/middleware"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/views"
)

func (h *BaseController) contactPage(w http.ResponseWriter, r *http.Request) {
	body := views.ContactBody{Sent: r.URL.Query().Get("sent") == "1"}
	h.render(w, r, http.StatusOK, views.PageContact, "Contact", body)
}

func (h *BaseController) submitContact(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFrom(r.Context())
	msg := models.ContactMessage{
		Name:       strings.TrimSpace(r.PostFormValue("name")),
		Email:      strings.TrimSpace(r.PostFormValue("email")),
		Subject:    strings.TrimSpace(r.PostFormValue("subject")),
		Message:    strings.TrimSpace(r.PostFormValue("message")),
		ReceivedAt: time.Now().UTC(),
	}

	if errs := validateContact(msg); len(errs) > 0 {
		h.render(w, r, http.StatusUnprocessableEntity, views.PageContact, "Contact", views.ContactBody{Form: msg, Errors: errs})
		return
	}

	if h.contacts == nil {
		h.log.Info("contact message",
			zap.String("name", msg.Name),
			zap.String("email", msg.Email),
			zap.String("subject", msg.Subject),
			zap.String("message", msg.Message),
		)
	} else if err := h.contacts.SaveContactMessage(r.Context(), msg); err != nil {
		h.log.Error("cannot save contact message", zap.Error(err))
		v.Notices.Error("Could not send your message. Please try again.")
		h.render(w, r, http.StatusInternalServerError, views.PageContact, "Contact", views.ContactBody{Form: msg})
		return
	}

	v.Notices.Success("Thank you for your message!")
	http.Redirect(w, r, "/contact?sent=1", http.StatusSeeOther)
}

func validateContact(msg models.ContactMessage) map[string]string {
	errs := make(map[string]string)
	if msg.Name == "" {
		errs["name"] = "Please enter your name."
	}
	if msg.Email == "" || !strings.Contains(msg.Email, "@") {
		errs["email"] = "Please enter a valid email."
	}
	if msg.Message == "" {
		errs["message"] = "Please enter a message."
	}
	return errs
}
