package checkout

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drstein77/storefront/internal/cart"
	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/logger"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	mu        sync.Mutex
	customers []commerce.ShippingInput
	orders    []commerce.CheckoutInput
	dataCalls atomic.Int32

	checkoutDataFn   func(ctx context.Context) (models.CheckoutData, error)
	updateCustomerFn func(ctx context.Context, in commerce.ShippingInput) error
	applyCouponFn    func(ctx context.Context, code string) (commerce.CouponResult, error)
	checkoutFn       func(ctx context.Context, in commerce.CheckoutInput) (models.OrderResult, error)
}

func (f *fakeAPI) CheckoutData(ctx context.Context) (models.CheckoutData, error) {
	f.dataCalls.Add(1)
	if f.checkoutDataFn == nil {
		return sampleData(), nil
	}
	return f.checkoutDataFn(ctx)
}

func (f *fakeAPI) UpdateCustomer(ctx context.Context, in commerce.ShippingInput) error {
	f.mu.Lock()
	f.customers = append(f.customers, in)
	f.mu.Unlock()
	if f.updateCustomerFn == nil {
		return nil
	}
	return f.updateCustomerFn(ctx, in)
}

func (f *fakeAPI) ApplyCoupon(ctx context.Context, code string) (commerce.CouponResult, error) {
	if f.applyCouponFn == nil {
		return commerce.CouponResult{}, nil
	}
	return f.applyCouponFn(ctx, code)
}

func (f *fakeAPI) Checkout(ctx context.Context, in commerce.CheckoutInput) (models.OrderResult, error) {
	f.mu.Lock()
	f.orders = append(f.orders, in)
	f.mu.Unlock()
	if f.checkoutFn == nil {
		return models.OrderResult{Result: "success", OrderNumber: "1001"}, nil
	}
	return f.checkoutFn(ctx, in)
}

func (f *fakeAPI) customerCalls() []commerce.ShippingInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]commerce.ShippingInput(nil), f.customers...)
}

func sampleData() models.CheckoutData {
	return models.CheckoutData{
		Summary:  models.CartSummary{Subtotal: "$20.00", ShippingTotal: "$10.00", DiscountTotal: "$0.00", Total: "$30.00"},
		Rates:    []models.ShippingRate{{ID: "flat_rate:1", Label: "Flat rate", Cost: "10.00"}, {ID: "free_shipping:2", Label: "Free", Cost: "0"}},
		Gateways: []models.PaymentGateway{{ID: "cod", Title: "Cash on delivery"}, {ID: "bacs", Title: "Bank transfer"}},
	}
}

type memStorage map[string]string

func (m memStorage) GetItem(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m memStorage) SetItem(key, value string) error {
	m[key] = value
	return nil
}

func globalID(n string) string {
	return base64.StdEncoding.EncodeToString([]byte("product:" + n))
}

func newCart(t *testing.T, items ...models.CartItem) *cart.Store {
	t.Helper()
	c := cart.NewStore(memStorage{}, nil, logger.NewNop())
	c.Load()
	for _, it := range items {
		require.NoError(t, c.Add(it))
	}
	return c
}

func newOrchestrator(t *testing.T, api API, c Cart, q notify.Notifier) *Orchestrator {
	t.Helper()
	return newOrchestratorWithDebounce(t, api, c, q, 40*time.Millisecond)
}

// newOrderOrchestrator never fires the address refresh, so order tests see no background calls.
func newOrderOrchestrator(t *testing.T, api API, c Cart, q notify.Notifier) *Orchestrator {
	t.Helper()
	return newOrchestratorWithDebounce(t, api, c, q, time.Hour)
}

func newOrchestratorWithDebounce(t *testing.T, api API, c Cart, q notify.Notifier, d time.Duration) *Orchestrator {
	t.Helper()
	o := New(api, c, q, logger.NewNop(), Options{Debounce: d})
	t.Cleanup(o.Close)
	return o
}

var fullAddress = models.Address{
	FirstName: "Ada", LastName: "Lovelace", Address1: "1 George St", City: "Sydney",
	Postcode: "2000", Email: "ada@example.com", Phone: "0400000000",
}

func TestEnterWithEmptyCartSkipsRemote(t *testing.T) {
	api := &fakeAPI{}
	o := newOrchestrator(t, api, newCart(t), nil)

	v := o.Enter(context.Background())

	assert.True(t, v.CartEmpty)
	assert.Equal(t, Ready, v.State)
	assert.False(t, v.CanPlaceOrder())
	assert.Zero(t, api.dataCalls.Load())
}

func TestEnterSelectsFirstOptions(t *testing.T) {
	o := newOrchestrator(t, &fakeAPI{}, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike", Price: "$20.00"}), nil)

	v := o.Enter(context.Background())

	assert.Equal(t, Ready, v.State)
	assert.Equal(t, "flat_rate:1", v.ShippingID)
	assert.Equal(t, "cod", v.PaymentID)
	assert.Equal(t, "AU", v.Address.Country)
	assert.Equal(t, "NSW", v.Address.State)
	assert.True(t, v.CanPlaceOrder())
}

func TestEnterKeepsExistingSelection(t *testing.T) {
	o := newOrchestrator(t, &fakeAPI{}, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil)
	o.Enter(context.Background())
	require.NoError(t, o.SelectShipping("free_shipping:2"))
	require.NoError(t, o.SelectPayment("bacs"))

	v := o.Enter(context.Background())

	assert.Equal(t, "free_shipping:2", v.ShippingID)
	assert.Equal(t, "bacs", v.PaymentID)
	assert.ErrorIs(t, o.SelectShipping("pigeon"), ErrUnknownSelection)
}

func TestLoadFailureNotifies(t *testing.T) {
	api := &fakeAPI{checkoutDataFn: func(context.Context) (models.CheckoutData, error) {
		return models.CheckoutData{}, errors.New("502")
	}}
	q := notify.NewQueue()
	o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), q)

	v := o.Enter(context.Background())

	assert.Equal(t, Error, v.State)
	assert.False(t, v.CanPlaceOrder())
	assert.Equal(t, []notify.Notice{{Level: notify.LevelError, Message: "Could not load checkout data."}}, q.Drain())
}

func TestDebounceCollapsesRapidEdits(t *testing.T) {
	api := &fakeAPI{}
	o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil)
	o.Enter(context.Background())
	before := api.dataCalls.Load()

	for _, pc := range []string{"2", "20", "200", "2000", "2001", "2010"} {
		a := fullAddress
		a.Postcode = pc
		o.UpdateAddress(a)
	}

	require.Eventually(t, func() bool { return len(api.customerCalls()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return api.dataCalls.Load() == before+1 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, []commerce.ShippingInput{{Country: "AU", Postcode: "2010"}}, api.customerCalls())
}

func TestShortPostcodeDoesNotFire(t *testing.T) {
	api := &fakeAPI{}
	o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil)

	a := fullAddress
	a.Postcode = "2000"
	o.UpdateAddress(a)
	a.Postcode = "200"
	o.UpdateAddress(a)

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, api.customerCalls())
}

func TestUnchangedPostcodeDoesNotRearm(t *testing.T) {
	api := &fakeAPI{}
	o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil)

	o.UpdateAddress(fullAddress)
	require.Eventually(t, func() bool { return len(api.customerCalls()) == 1 }, time.Second, 5*time.Millisecond)

	a := fullAddress
	a.City = "Newtown"
	o.UpdateAddress(a)
	time.Sleep(120 * time.Millisecond)

	assert.Len(t, api.customerCalls(), 1)
	assert.Equal(t, "Newtown", o.Snapshot().Address.City)
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	var calls atomic.Int32

	api := &fakeAPI{checkoutDataFn: func(context.Context) (models.CheckoutData, error) {
		if calls.Add(1) == 1 {
			close(slowStarted)
			<-releaseSlow
			return models.CheckoutData{Summary: models.CartSummary{Total: "old"}}, nil
		}
		return models.CheckoutData{Summary: models.CartSummary{Total: "new"}}, nil
	}}
	o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil)

	done := make(chan error, 1)
	go func() { done <- o.Refresh(context.Background()) }()
	<-slowStarted

	require.NoError(t, o.Refresh(context.Background()))
	assert.Equal(t, "new", o.Snapshot().Data.Summary.Total)

	close(releaseSlow)
	require.NoError(t, <-done)

	v := o.Snapshot()
	assert.Equal(t, "new", v.Data.Summary.Total)
	assert.Equal(t, Ready, v.State)
}

func TestRefreshDuringAddressUpdateKeepsPostUpdateRates(t *testing.T) {
	updateStarted := make(chan struct{})
	releaseUpdate := make(chan struct{})
	var updated atomic.Bool

	api := &fakeAPI{
		updateCustomerFn: func(ctx context.Context, _ commerce.ShippingInput) error {
			close(updateStarted)
			select {
			case <-releaseUpdate:
			case <-ctx.Done():
				return ctx.Err()
			}
			updated.Store(true)
			return nil
		},
		checkoutDataFn: func(context.Context) (models.CheckoutData, error) {
			id := "old_rate"
			if updated.Load() {
				id = "new_rate"
			}
			return models.CheckoutData{
				Rates:    []models.ShippingRate{{ID: id, Label: id, Cost: "5.00"}},
				Gateways: []models.PaymentGateway{{ID: "cod", Title: "Cash on delivery"}},
			}, nil
		},
	}
	o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil)
	o.Enter(context.Background())

	a := fullAddress
	a.Postcode = "2010"
	o.UpdateAddress(a)
	<-updateStarted

	require.NoError(t, o.Refresh(context.Background()))
	assert.Equal(t, "old_rate", o.Snapshot().ShippingID)

	close(releaseUpdate)
	require.Eventually(t, func() bool {
		v := o.Snapshot()
		return !v.Pending && v.ShippingID == "new_rate"
	}, time.Second, 5*time.Millisecond)

	v := o.Snapshot()
	require.Len(t, v.Data.Rates, 1)
	assert.Equal(t, "new_rate", v.Data.Rates[0].ID)
	assert.Equal(t, Ready, v.State)
}

func TestApplyCoupon(t *testing.T) {
	t.Run("empty code", func(t *testing.T) {
		q := notify.NewQueue()
		o := newOrchestrator(t, &fakeAPI{}, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), q)
		assert.ErrorIs(t, o.ApplyCoupon(context.Background(), " "), commerce.ErrEmptyCoupon)
		assert.Len(t, q.Drain(), 1)
	})

	t.Run("rejected keeps cart", func(t *testing.T) {
		q := notify.NewQueue()
		c := newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"})
		api := &fakeAPI{applyCouponFn: func(context.Context, string) (commerce.CouponResult, error) {
			return commerce.CouponResult{}, &commerce.Error{Status: 200, Messages: []string{`Coupon "SAVE" does not exist!`}}
		}}
		o := newOrchestrator(t, api, c, q)

		require.Error(t, o.ApplyCoupon(context.Background(), "SAVE"))
		assert.Equal(t, []notify.Notice{{Level: notify.LevelError, Message: `Coupon "SAVE" does not exist!`}}, q.Drain())
		assert.Equal(t, 1, c.Len())
		assert.Zero(t, api.dataCalls.Load())
	})

	t.Run("accepted refreshes", func(t *testing.T) {
		q := notify.NewQueue()
		api := &fakeAPI{}
		o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), q)

		require.NoError(t, o.ApplyCoupon(context.Background(), "SAVE10"))
		assert.Equal(t, int32(1), api.dataCalls.Load())
		assert.Equal(t, "SAVE10", o.Snapshot().Coupon)
		assert.Equal(t, notify.LevelSuccess, q.Drain()[0].Level)
	})
}

func TestPlaceOrderSuccessClearsCart(t *testing.T) {
	api := &fakeAPI{}
	c := newCart(t,
		models.CartItem{ID: globalID("7"), Name: "Bike", Price: "$20.00"},
		models.CartItem{ID: globalID("9"), Name: "Helmet", Price: "$5.00"},
	)
	require.NoError(t, c.Add(models.CartItem{ID: globalID("7")}))
	o := newOrderOrchestrator(t, api, c, nil)
	o.Enter(context.Background())
	o.UpdateAddress(fullAddress)

	res, err := o.PlaceOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1001", res.OrderNumber)
	assert.Equal(t, "/order-confirmation/1001", ConfirmationPath(res.OrderNumber))
	assert.True(t, c.Snapshot().Empty())

	require.Len(t, api.orders, 1)
	in := api.orders[0]
	assert.Equal(t, []models.LineItem{{ProductID: 7, Quantity: 2}, {ProductID: 9, Quantity: 1}}, in.LineItems)
	assert.Equal(t, "flat_rate:1", in.ShippingMethod)
	assert.Equal(t, "cod", in.PaymentMethod)
	assert.Equal(t, "AU", in.Billing.Country)
	assert.Equal(t, in.Billing, in.Shipping)
}

func TestPlaceOrderWithUndecodableIDNeverCallsAPI(t *testing.T) {
	api := &fakeAPI{}
	q := notify.NewQueue()
	c := newCart(t,
		models.CartItem{ID: globalID("7"), Name: "Bike"},
		models.CartItem{ID: "not-a-global-id", Name: "Mystery"},
	)
	o := newOrderOrchestrator(t, api, c, q)
	o.Enter(context.Background())
	o.UpdateAddress(fullAddress)
	q.Drain()

	_, err := o.PlaceOrder(context.Background())

	assert.ErrorIs(t, err, ErrInvalidProductID)
	assert.Empty(t, api.orders)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []notify.Notice{{Level: notify.LevelError, Message: "Invalid product ID for Mystery."}}, q.Drain())
}

func TestPlaceOrderRequiresSelectionsAndAddress(t *testing.T) {
	api := &fakeAPI{checkoutDataFn: func(context.Context) (models.CheckoutData, error) {
		return models.CheckoutData{Gateways: []models.PaymentGateway{{ID: "cod"}}}, nil
	}}
	o := newOrderOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("7"), Name: "Bike"}), nil)
	o.Enter(context.Background())
	o.UpdateAddress(fullAddress)

	_, err := o.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrSelectionMissing)

	o2 := newOrderOrchestrator(t, &fakeAPI{}, newCart(t, models.CartItem{ID: globalID("7"), Name: "Bike"}), nil)
	o2.Enter(context.Background())
	_, err = o2.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrAddressIncomplete)

	o3 := newOrderOrchestrator(t, &fakeAPI{}, newCart(t), nil)
	_, err = o3.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderDeclinedKeepsCart(t *testing.T) {
	for name, fn := range map[string]func(context.Context, commerce.CheckoutInput) (models.OrderResult, error){
		"declared failure": func(context.Context, commerce.CheckoutInput) (models.OrderResult, error) {
			return models.OrderResult{Result: "failure"}, nil
		},
		"transport error": func(context.Context, commerce.CheckoutInput) (models.OrderResult, error) {
			return models.OrderResult{}, errors.New("connection reset")
		},
	} {
		t.Run(name, func(t *testing.T) {
			q := notify.NewQueue()
			c := newCart(t, models.CartItem{ID: globalID("7"), Name: "Bike"})
			o := newOrderOrchestrator(t, &fakeAPI{checkoutFn: fn}, c, q)
			o.Enter(context.Background())
			o.UpdateAddress(fullAddress)
			q.Drain()

			_, err := o.PlaceOrder(context.Background())

			require.Error(t, err)
			assert.Equal(t, 1, c.Len())
			assert.Len(t, q.Drain(), 1)
			v := o.Snapshot()
			assert.Equal(t, Ready, v.State)
			assert.Equal(t, "flat_rate:1", v.ShippingID)
		})
	}
}

func TestConcurrentPlaceOrderIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{checkoutFn: func(context.Context, commerce.CheckoutInput) (models.OrderResult, error) {
		close(started)
		<-release
		return models.OrderResult{Result: "success", OrderNumber: "7"}, nil
	}}
	o := newOrderOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("7"), Name: "Bike"}), nil)
	o.Enter(context.Background())
	o.UpdateAddress(fullAddress)

	done := make(chan error, 1)
	go func() {
		_, err := o.PlaceOrder(context.Background())
		done <- err
	}()
	<-started
	assert.Equal(t, Submitting, o.Snapshot().State)

	_, err := o.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestCloseCancelsPendingRefresh(t *testing.T) {
	api := &fakeAPI{}
	o := New(api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil, logger.NewNop(), Options{Debounce: time.Hour})
	o.UpdateAddress(fullAddress)

	o.Close()
	o.Close()

	assert.Empty(t, api.customerCalls())
	assert.ErrorIs(t, o.Refresh(context.Background()), ErrClosed)
}

func TestCloseWaitsForInflightUpdate(t *testing.T) {
	started := make(chan struct{})
	api := &fakeAPI{updateCustomerFn: func(ctx context.Context, _ commerce.ShippingInput) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	o := New(api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil, logger.NewNop(), Options{Debounce: time.Millisecond})
	o.UpdateAddress(fullAddress)
	<-started

	o.Close()
	assert.Zero(t, api.dataCalls.Load())
}

func TestPendingWhileDebounceArmed(t *testing.T) {
	api := &fakeAPI{}
	o := newOrchestrator(t, api, newCart(t, models.CartItem{ID: globalID("1"), Name: "Bike"}), nil)
	assert.False(t, o.Snapshot().Pending)

	o.UpdateAddress(fullAddress)
	assert.True(t, o.Snapshot().Pending)

	require.Eventually(t, func() bool { return !o.Snapshot().Pending }, time.Second, 5*time.Millisecond)
	assert.Len(t, api.customerCalls(), 1)

	a := fullAddress
	a.Postcode = "3000"
	o.UpdateAddress(a)
	a.Postcode = "30"
	o.UpdateAddress(a)
	assert.False(t, o.Snapshot().Pending)
}
