// Package checkout sequences the remote calls behind the checkout page:
// summary refresh, debounced address updates, coupons and order placement.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/notify"
)

type State string

const (
	Loading    State = "loading"
	Ready      State = "ready"
	Submitting State = "submitting"
	Error      State = "error"
)

const (
	DefaultDebounce = time.Second
	DefaultCountry  = "AU"
	DefaultState    = "NSW"

	// minPostcode is the postcode length that triggers a shipping refresh.
	minPostcode = 4
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidProductID  = commerce.ErrInvalidProductID
	ErrSelectionMissing  = errors.New("shipping or payment method not selected")
	ErrUnknownSelection  = errors.New("unknown shipping or payment method")
	ErrAddressIncomplete = errors.New("billing details incomplete")
	ErrBusy              = errors.New("order is already being placed")
	ErrOrderNotPlaced    = errors.New("order was not placed")
	ErrClosed            = errors.New("checkout closed")
)

type Log interface {
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// API is the part of a commerce session checkout needs.
type API interface {
	CheckoutData(ctx context.Context) (models.CheckoutData, error)
	UpdateCustomer(ctx context.Context, shipping commerce.ShippingInput) error
	ApplyCoupon(ctx context.Context, code string) (commerce.CouponResult, error)
	Checkout(ctx context.Context, in commerce.CheckoutInput) (models.OrderResult, error)
}

// Cart is the local cart the order is built from.
type Cart interface {
	Items() []models.CartItem
	Clear()
}

type Options struct {
	Debounce       time.Duration
	DefaultCountry string
	DefaultState   string
}

// View is a consistent copy of the session for rendering.
type View struct {
	State      State
	Address    models.Address
	ShippingID string
	PaymentID  string
	Coupon     string
	Data       models.CheckoutData
	Loaded     bool
	CartEmpty  bool

	// Pending is set while a debounced address refresh is armed or running.
	Pending bool
}

// CanPlaceOrder mirrors the place-order button: it needs loaded data and both selections.
func (v View) CanPlaceOrder() bool {
	return v.State == Ready && v.Loaded && !v.CartEmpty && v.ShippingID != "" && v.PaymentID != ""
}

// Orchestrator owns one visitor's checkout session.
type Orchestrator struct {
	api      API
	cart     Cart
	notifier notify.Notifier
	log      Log
	debounce time.Duration

	// base bounds the debounced calls; Close cancels it
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	addr      models.Address
	shipping  string
	payment   string
	coupon    string
	data      models.CheckoutData
	loaded    bool
	cartEmpty bool
	issued    uint64
	accepted  uint64
	timer     *time.Timer
	armed     uint64
	closed    bool

	issuedTimers uint64
}

func New(api API, cart Cart, notifier notify.Notifier, log Log, opts Options) *Orchestrator {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = DefaultCountry
	}
	if opts.DefaultState == "" {
		opts.DefaultState = DefaultState
	}
	base, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		api:      api,
		cart:     cart,
		notifier: notifier,
		log:      log,
		debounce: opts.Debounce,
		base:     base,
		cancel:   cancel,
		state:    Loading,
		addr:     models.Address{Country: opts.DefaultCountry, State: opts.DefaultState},
	}
}

// Enter runs when the checkout view mounts. An empty cart needs no remote data.
func (o *Orchestrator) Enter(ctx context.Context) View {
	if len(o.cart.Items()) == 0 {
		o.mu.Lock()
		o.cartEmpty = true
		o.state = Ready
		o.mu.Unlock()
		return o.Snapshot()
	}
	o.mu.Lock()
	o.cartEmpty = false
	o.mu.Unlock()

	_ = o.Refresh(ctx)
	return o.Snapshot()
}

// Refresh fetches the summary, rates and gateways again.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	seq, err := o.begin()
	if err != nil {
		return err
	}
	return o.refresh(ctx, seq)
}

func (o *Orchestrator) begin() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, ErrClosed
	}
	o.issued++
	if o.state != Submitting {
		o.state = Loading
	}
	return o.issued, nil
}

// refresh applies the response of request seq unless a newer one was already accepted.
func (o *Orchestrator) refresh(ctx context.Context, seq uint64) error {
	data, err := o.api.CheckoutData(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if seq <= o.accepted {
		o.log.Warn("discarding stale checkout data", zap.Uint64("seq", seq), zap.Uint64("accepted", o.accepted))
		return nil
	}
	latest := seq == o.issued

	if err != nil {
		o.log.Error("cannot load checkout data", zap.Error(err))
		o.notifier.Notify(notify.LevelError, "Could not load checkout data.")
		if latest && o.state == Loading {
			o.state = Ready
			if !o.loaded {
				o.state = Error
			}
		}
		return fmt.Errorf("checkout data: %w", err)
	}

	o.accepted = seq
	o.data = data
	o.loaded = true
	o.shipping = pickRate(o.shipping, data.Rates)
	o.payment = pickGateway(o.payment, data.Gateways)
	if latest && o.state == Loading {
		o.state = Ready
	}
	return nil
}

// pickRate keeps a still-offered selection, else falls back to the first rate.
func pickRate(current string, rates []models.ShippingRate) string {
	for _, r := range rates {
		if r.ID == current {
			return current
		}
	}
	if len(rates) > 0 {
		return rates[0].ID
	}
	return ""
}

func pickGateway(current string, gateways []models.PaymentGateway) string {
	for _, g := range gateways {
		if g.ID == current {
			return current
		}
	}
	if len(gateways) > 0 {
		return gateways[0].ID
	}
	return ""
}

// UpdateAddress stores the form fields. A changed postcode of at least four
// characters (re)arms the debounce timer; the shipping refresh runs when it fires.
func (o *Orchestrator) UpdateAddress(addr models.Address) {
	addr = normalize(addr)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if addr.Country == "" {
		addr.Country = o.addr.Country
	}
	if addr.State == "" {
		addr.State = o.addr.State
	}
	changed := addr.Postcode != o.addr.Postcode
	o.addr = addr
	if !changed {
		return
	}
	o.stopTimerLocked()
	if len(addr.Postcode) >= minPostcode {
		o.armLocked(addr.Country, addr.Postcode)
	}
}

func (o *Orchestrator) armLocked(country, postcode string) {
	o.issuedTimers++
	gen := o.issuedTimers
	o.armed = gen
	o.wg.Add(1)
	o.timer = time.AfterFunc(o.debounce, func() {
		defer o.wg.Done()
		defer o.disarm(gen)
		o.updateShipping(country, postcode)
	})
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil && o.timer.Stop() {
		o.wg.Done()
	}
	o.timer = nil
	o.armed = 0
}

// disarm clears Pending unless a newer timer was armed meanwhile.
func (o *Orchestrator) disarm(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.armed == gen {
		o.armed = 0
	}
}

// updateShipping pushes the postcode, then refetches. The refetch takes its
// sequence only after the update lands, so refreshes issued meanwhile cannot
// outrank the post-update data.
func (o *Orchestrator) updateShipping(country, postcode string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.state != Submitting {
		o.state = Loading
	}
	before := o.issued
	o.mu.Unlock()

	shipping := commerce.ShippingInput{Country: country, Postcode: postcode}
	if err := o.api.UpdateCustomer(o.base, shipping); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.log.Error("cannot update shipping address", zap.String("postcode", postcode), zap.Error(err))
		o.notifier.Notify(notify.LevelError, "Could not update shipping address.")
		o.mu.Lock()
		if o.issued == before && o.state == Loading {
			o.state = Ready
			if !o.loaded {
				o.state = Error
			}
		}
		o.mu.Unlock()
		return
	}

	seq, err := o.begin()
	if err != nil {
		return
	}
	_ = o.refresh(o.base, seq)
}

func (o *Orchestrator) SelectShipping(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.data.Rates {
		if r.ID == id {
			o.shipping = id
			return nil
		}
	}
	return fmt.Errorf("%w: shipping %q", ErrUnknownSelection, id)
}

func (o *Orchestrator) SelectPayment(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, g := range o.data.Gateways {
		if g.ID == id {
			o.payment = id
			return nil
		}
	}
	return fmt.Errorf("%w: payment %q", ErrUnknownSelection, id)
}

// ApplyCoupon submits code. Failures surface the server message and leave the cart alone.
func (o *Orchestrator) ApplyCoupon(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	o.mu.Lock()
	o.coupon = code
	o.mu.Unlock()

	if code == "" {
		o.notifier.Notify(notify.LevelError, "Please enter a coupon code.")
		return commerce.ErrEmptyCoupon
	}
	if _, err := o.api.ApplyCoupon(ctx, code); err != nil {
		o.log.Warn("coupon rejected", zap.String("code", code), zap.Error(err))
		o.notifier.Notify(notify.LevelError, commerce.UserMessage(err, "Could not apply coupon."))
		return fmt.Errorf("apply coupon: %w", err)
	}
	o.notifier.Notify(notify.LevelSuccess, "Coupon applied.")
	return o.Refresh(ctx)
}

// PlaceOrder submits the order in one request. Any undecodable cart id aborts
// before the API is called. On success the local cart is cleared.
func (o *Orchestrator) PlaceOrder(ctx context.Context) (models.OrderResult, error) {
	items := o.cart.Items()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.OrderResult{}, ErrClosed
	}
	if o.state == Submitting {
		o.mu.Unlock()
		return models.OrderResult{}, ErrBusy
	}
	input, err := o.buildInputLocked(items)
	if err != nil {
		o.mu.Unlock()
		return models.OrderResult{}, err
	}
	o.state = Submitting
	o.mu.Unlock()

	res, err := o.api.Checkout(ctx, input)

	o.mu.Lock()
	o.state = Ready
	o.mu.Unlock()

	if err != nil {
		o.log.Error("order placement failed", zap.Error(err))
		o.notifier.Notify(notify.LevelError, commerce.UserMessage(err, "Could not place order."))
		return models.OrderResult{}, fmt.Errorf("place order: %w", err)
	}
	if !res.Succeeded() {
		o.log.Warn("order declined", zap.String("result", res.Result))
		o.notifier.Notify(notify.LevelError, "Order could not be placed. Please try again.")
		return res, fmt.Errorf("%w: result %q", ErrOrderNotPlaced, res.Result)
	}

	o.cart.Clear()
	o.notifier.Notify(notify.LevelSuccess, "Order placed successfully!")
	return res, nil
}

func (o *Orchestrator) buildInputLocked(items []models.CartItem) (commerce.CheckoutInput, error) {
	if len(items) == 0 {
		o.notifier.Notify(notify.LevelError, "Your cart is empty.")
		return commerce.CheckoutInput{}, ErrEmptyCart
	}
	if o.shipping == "" || o.payment == "" {
		o.notifier.Notify(notify.LevelError, "Please select a shipping and payment method.")
		return commerce.CheckoutInput{}, ErrSelectionMissing
	}
	if !complete(o.addr) {
		o.notifier.Notify(notify.LevelError, "Please fill in all billing details.")
		return commerce.CheckoutInput{}, ErrAddressIncomplete
	}

	lines := make([]models.LineItem, 0, len(items))
	for _, it := range items {
		id, err := commerce.DecodeID(it.ID)
		if err != nil {
			o.notifier.Notify(notify.LevelError, fmt.Sprintf("Invalid product ID for %s.", it.Name))
			return commerce.CheckoutInput{}, fmt.Errorf("cart item %q: %w", it.Name, err)
		}
		lines = append(lines, models.LineItem{ProductID: id, Quantity: it.Quantity})
	}
	return commerce.CheckoutInput{
		Billing:        o.addr,
		Shipping:       o.addr,
		ShippingMethod: o.shipping,
		PaymentMethod:  o.payment,
		LineItems:      lines,
	}, nil
}

func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	data := o.data
	data.Rates = append([]models.ShippingRate(nil), o.data.Rates...)
	data.Gateways = append([]models.PaymentGateway(nil), o.data.Gateways...)
	data.Summary.Lines = append([]models.SummaryLine(nil), o.data.Summary.Lines...)
	return View{
		State:      o.state,
		Address:    o.addr,
		ShippingID: o.shipping,
		PaymentID:  o.payment,
		Coupon:     o.coupon,
		Data:       data,
		Loaded:     o.loaded,
		CartEmpty:  o.cartEmpty,
		Pending:    o.armed != 0,
	}
}

// Close stops a pending address refresh, cancels one in flight and waits for it.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.stopTimerLocked()
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// ConfirmationPath is where a placed order redirects to.
func ConfirmationPath(orderNumber string) string {
	return "/order-confirmation/" + url.PathEscape(orderNumber)
}

func normalize(a models.Address) models.Address {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Address1 = strings.TrimSpace(a.Address1)
	a.City = strings.TrimSpace(a.City)
	a.Postcode = strings.TrimSpace(a.Postcode)
	a.Email = strings.TrimSpace(a.Email)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.State = strings.TrimSpace(a.State)
	return a
}

func complete(a models.Address) bool {
	for _, v := range []string{a.FirstName, a.LastName, a.Address1, a.City, a.Postcode, a.Email, a.Phone} {
		if v == "" {
			return false
		}
	}
	return strings.Contains(a.Email, "@")
}
