package order

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"ordering-and-delivery/internal/models"
	"ordering-and-delivery/internal/modules/pricing"
	"ordering-and-delivery/pkg/clock"
	"ordering-and-delivery/pkg/otp"
)

// fakeRepo is an in-memory RepositoryInterface that honors the same
// status-guarded write semantics as the SQL implementation. completeHook,
// when set, runs at the top of CompleteDelivery so tests can interleave a
// concurrent write between the service's read and its guarded write.
type fakeRepo struct {
	orders       map[string]*models.Order
	users        map[string]*models.User
	seq          int
	completeHook func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: make(map[string]*models.Order),
		users:  make(map[string]*models.User),
	}
}

func copyOrder(o *models.Order) *models.Order {
	dup := *o
	dup.LineItems = append([]models.LineItem(nil), o.LineItems...)
	dup.StatusHistory = append([]models.StatusEntry(nil), o.StatusHistory...)
	if o.AssignedTo != nil {
		v := *o.AssignedTo
		dup.AssignedTo = &v
	}
	if o.DeliveredAt != nil {
		v := *o.DeliveredAt
		dup.DeliveredAt = &v
	}
	return &dup
}

func (f *fakeRepo) Create(_ context.Context, o *models.Order) (*models.Order, error) {
	for _, existing := range f.orders {
		if existing.OrderNumber == o.OrderNumber {
			return nil, ErrDuplicateOrderNumber
		}
	}
	f.seq++
	o.ID = fmt.Sprintf("order-%d", f.seq)
	if len(o.StatusHistory) > 0 {
		o.CreatedAt = o.StatusHistory[0].Timestamp
		o.UpdatedAt = o.CreatedAt
	}
	f.orders[o.ID] = copyOrder(o)
	return copyOrder(o), nil
}

func (f *fakeRepo) FindByID(_ context.Context, orderID string) (*models.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyOrder(o), nil
}

func (f *fakeRepo) ListByCustomer(_ context.Context, customerID string, status models.OrderStatus, _, _ int) ([]*models.Order, int, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID && (status == "" || o.Status == status) {
			out = append(out, copyOrder(o))
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) ListByAssignee(_ context.Context, teamMemberID string, status models.OrderStatus, _, _ int) ([]*models.Order, int, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if o.AssignedTo == nil || *o.AssignedTo != teamMemberID {
			continue
		}
		if status == "" && o.Status.IsTerminal() {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	return out, len(out), nil
}

func (f *fakeRepo) ListAll(_ context.Context, status models.OrderStatus, _, _ int) ([]*models.Order, int, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			out = append(out, copyOrder(o))
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, orderID string, from, to models.OrderStatus, entry models.StatusEntry) (*models.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.Status != from {
		return nil, models.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = entry.Timestamp
	o.StatusHistory = append(o.StatusHistory, entry)
	return copyOrder(o), nil
}

func (f *fakeRepo) Cancel(_ context.Context, orderID string, from models.OrderStatus, entry models.StatusEntry) (*models.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.Status != from {
		return nil, models.ErrStatusConflict
	}
	o.Status = models.StatusCancelled
	if o.PaymentStatus == models.PaymentCompleted {
		o.PaymentStatus = models.PaymentRefunded
	} else {
		o.PaymentStatus = models.PaymentCancelled
	}
	o.UpdatedAt = entry.Timestamp
	o.StatusHistory = append(o.StatusHistory, entry)
	return copyOrder(o), nil
}

func (f *fakeRepo) CompleteDelivery(_ context.Context, orderID, code string, maxAttempts int, entry models.StatusEntry) (*models.Order, error) {
	if f.completeHook != nil {
		f.completeHook()
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.Status != models.StatusOutForDelivery || !o.OTP.Issued() || o.OTP.Code != code ||
		o.OTP.Attempts >= maxAttempts || entry.Timestamp.After(o.OTP.Expiry) {
		return nil, models.ErrStatusConflict
	}
	o.Status = models.StatusDelivered
	o.PaymentStatus = models.PaymentCompleted
	deliveredAt := entry.Timestamp
	o.DeliveredAt = &deliveredAt
	o.OTP = models.OTPState{}
	o.UpdatedAt = entry.Timestamp
	o.StatusHistory = append(o.StatusHistory, entry)
	return copyOrder(o), nil
}

func (f *fakeRepo) RecordOTPMismatch(_ context.Context, orderID string, maxAttempts int) (int, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return 0, models.ErrNotFound
	}
	if !o.OTP.Issued() {
		return 0, models.ErrOTPNotIssued
	}
	if o.OTP.Attempts >= maxAttempts {
		return 0, models.ErrOTPAttemptsExceeded
	}
	o.OTP.Attempts++
	return o.OTP.Attempts, nil
}

func (f *fakeRepo) SetOTP(_ context.Context, orderID string, state models.OTPState) error {
	o, ok := f.orders[orderID]
	if !ok {
		return models.ErrNotFound
	}
	if o.Status.IsTerminal() {
		return models.ErrNotFound
	}
	o.OTP = state
	return nil
}

func (f *fakeRepo) UpdatePaymentStatus(_ context.Context, orderID string, from, to models.PaymentStatus) error {
	o, ok := f.orders[orderID]
	if !ok {
		return models.ErrStatusConflict
	}
	if o.PaymentStatus != from {
		return models.ErrStatusConflict
	}
	o.PaymentStatus = to
	return nil
}

func (f *fakeRepo) FindUser(_ context.Context, userID string) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	dup := *u
	return &dup, nil
}

func (f *fakeRepo) GetStatistics(_ context.Context) (*models.OrderStatistics, error) {
	stats := &models.OrderStatistics{StatusDistribution: make(map[models.OrderStatus]int)}
	for _, o := range f.orders {
		stats.TotalOrders++
		stats.TotalRevenue += o.TotalAmount
		stats.StatusDistribution[o.Status]++
	}
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = stats.TotalRevenue / float64(stats.TotalOrders)
	}
	return stats, nil
}

// fakeCatalog serves a small fixed menu.
type fakeCatalog struct {
	services map[string]*models.Service
	items    map[string]*models.MenuItem
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		services: map[string]*models.Service{
			"svc-1": {ID: "svc-1", Name: "Spice Villa", DeliveryFee: 20, MinOrderAmount: 100, IsActive: true},
		},
		items: map[string]*models.MenuItem{
			"item-curry": {ID: "item-curry", ServiceID: "svc-1", Name: "Paneer Curry", Price: 100, IsAvailable: true},
			"item-naan":  {ID: "item-naan", ServiceID: "svc-1", Name: "Butter Naan", Price: 50, IsAvailable: true},
		},
	}
}

func (f *fakeCatalog) GetService(_ context.Context, serviceID string) (*models.Service, error) {
	svc, ok := f.services[serviceID]
	if !ok {
		return nil, models.ErrNotFound
	}
	dup := *svc
	return &dup, nil
}

func (f *fakeCatalog) ListServices(_ context.Context) ([]*models.Service, error) {
	var out []*models.Service
	for _, svc := range f.services {
		dup := *svc
		out = append(out, &dup)
	}
	return out, nil
}

func (f *fakeCatalog) ListMenuItems(_ context.Context, serviceID string) ([]*models.MenuItem, error) {
	var out []*models.MenuItem
	for _, item := range f.items {
		if item.ServiceID == serviceID {
			dup := *item
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ResolveLine(_ context.Context, serviceID, menuItemID string, quantity int) (*models.ResolvedLine, error) {
	if quantity < 1 {
		return nil, models.ErrValidation
	}
	item, ok := f.items[menuItemID]
	if !ok || item.ServiceID != serviceID {
		return nil, models.ErrNotFound
	}
	if !item.IsAvailable {
		return nil, models.ErrItemUnavailable
	}
	return &models.ResolvedLine{
		MenuItemID: item.ID,
		Name:       item.Name,
		Quantity:   quantity,
		UnitPrice:  item.UnitPrice(),
	}, nil
}

// fakePayment approves or declines every charge.
type fakePayment struct {
	decline bool
	charges int
}

func (p *fakePayment) ProcessPayment(_ context.Context, _ string, _ float64, _ string) (string, error) {
	p.charges++
	if p.decline {
		return "", fmt.Errorf("card declined")
	}
	return fmt.Sprintf("pi_%d", p.charges), nil
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	catalog  *fakeCatalog
	payments *fakePayment
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newFakeRepo(),
		catalog:  newFakeCatalog(),
		payments: &fakePayment{},
		now:      time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	engine := pricing.NewEngine(pricing.Config{TaxRate: 0.18, FreeDeliveryThreshold: 500})
	issuer := otp.NewIssuer(otp.Config{Length: 4, TTL: 10 * time.Minute, MaxAttempts: 3})
	f.svc = NewService(f.repo, f.catalog, engine, issuer, f.payments, nil, clock.Func(func() time.Time { return f.now }), 10*time.Minute)
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

var customer = models.Actor{ID: "cust-1", Role: models.RoleCustomer}
var admin = models.Actor{ID: "admin-1", Role: models.RoleAdmin}

func (f *fixture) placeOrder(t *testing.T) *models.OrderView {
	t.Helper()
	view, err := f.svc.CreateOrder(context.Background(), customer, &models.CreateOrderRequest{
		ServiceID: "svc-1",
		Items: []models.CartLine{
			{MenuItemID: "item-curry", Quantity: 2},
			{MenuItemID: "item-naan", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return view
}

// advanceTo walks the order from pending to the target status as admin.
func (f *fixture) advanceTo(t *testing.T, orderID string, target models.OrderStatus) {
	t.Helper()
	path := []models.OrderStatus{models.StatusConfirmed, models.StatusPreparing, models.StatusOutForDelivery}
	for _, next := range path {
		if _, err := f.svc.UpdateStatus(context.Background(), admin, orderID, &models.UpdateStatusRequest{Status: next}); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
		if next == target {
			return
		}
	}
}

func TestCreateOrderTotalsAndNumber(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)

	if view.Subtotal != 250 {
		t.Errorf("subtotal = %.2f, want 250", view.Subtotal)
	}
	if view.TaxAmount != 45 {
		t.Errorf("tax = %.2f, want 45", view.TaxAmount)
	}
	if view.DeliveryCharge != 20 {
		t.Errorf("delivery = %.2f, want 20", view.DeliveryCharge)
	}
	if view.TotalAmount != 315 {
		t.Errorf("total = %.2f, want 315", view.TotalAmount)
	}
	if view.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", view.Status)
	}
	if view.PaymentStatus != models.PaymentPending {
		t.Errorf("payment status = %s, want pending", view.PaymentStatus)
	}

	pattern := regexp.MustCompile(`^ORD-20250615-[0-9A-F]{8}$`)
	if !pattern.MatchString(view.OrderNumber) {
		t.Errorf("order number %q does not match expected format", view.OrderNumber)
	}
	if len(view.StatusHistory) != 1 || view.StatusHistory[0].Status != models.StatusPending {
		t.Errorf("unexpected initial history: %+v", view.StatusHistory)
	}
}

func TestCalculateMatchesCreate(t *testing.T) {
	f := newFixture()
	req := &models.CalculateOrderRequest{
		ServiceID: "svc-1",
		Items: []models.CartLine{
			{MenuItemID: "item-curry", Quantity: 2},
			{MenuItemID: "item-naan", Quantity: 1},
		},
	}
	totals, err := f.svc.CalculateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("CalculateOrder: %v", err)
	}
	view := f.placeOrder(t)
	if totals.TotalAmount != view.TotalAmount || totals.Subtotal != view.Subtotal {
		t.Errorf("preview %+v disagrees with created order (subtotal %.2f total %.2f)",
			totals, view.Subtotal, view.TotalAmount)
	}
}

func TestCapturedPricesSurviveCatalogChanges(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)

	f.catalog.items["item-curry"].Price = 999
	f.catalog.items["item-naan"].IsAvailable = false

	got, err := f.svc.GetOrder(context.Background(), customer, view.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.TotalAmount != 315 {
		t.Errorf("total changed after catalog edit: %.2f", got.TotalAmount)
	}
	for _, li := range got.LineItems {
		if li.MenuItemID == "item-curry" && li.UnitPriceAtOrder != 100 {
			t.Errorf("captured unit price changed: %.2f", li.UnitPriceAtOrder)
		}
	}
}

func TestTransitionClosure(t *testing.T) {
	statuses := []models.OrderStatus{
		models.StatusPending, models.StatusConfirmed, models.StatusPreparing,
		models.StatusOutForDelivery, models.StatusDelivered, models.StatusCancelled,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				f := newFixture()
				view := f.placeOrder(t)
				f.repo.orders[view.ID].Status = from

				_, err := f.svc.UpdateStatus(context.Background(), admin, view.ID, &models.UpdateStatusRequest{Status: to})

				switch to {
				case models.StatusCancelled, models.StatusDelivered:
					// Only reachable through their dedicated operations.
					if !errors.Is(err, models.ErrValidation) {
						t.Errorf("expected validation rejection, got %v", err)
					}
					return
				}
				if allowed(lifecycle, from, to) {
					if err != nil {
						t.Errorf("legal transition rejected: %v", err)
					}
					return
				}
				if from.IsTerminal() {
					if !errors.Is(err, models.ErrTerminalState) {
						t.Errorf("expected terminal state error, got %v", err)
					}
				} else if !errors.Is(err, models.ErrInvalidTransition) {
					t.Errorf("expected invalid transition error, got %v", err)
				}
			})
		}
	}
}

func TestTerminalOrdersAreImmutable(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)

	stored := f.repo.orders[view.ID]
	deliverReq := &models.DeliverOrderRequest{OTP: stored.OTP.Code}
	if _, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, deliverReq); err != nil {
		t.Fatalf("DeliverOrder: %v", err)
	}

	historyLen := len(f.repo.orders[view.ID].StatusHistory)

	if _, err := f.svc.UpdateStatus(context.Background(), admin, view.ID, &models.UpdateStatusRequest{Status: models.StatusPreparing}); !errors.Is(err, models.ErrTerminalState) {
		t.Errorf("UpdateStatus on delivered order: got %v, want terminal state error", err)
	}
	if _, err := f.svc.CancelOrder(context.Background(), admin, view.ID, nil); !errors.Is(err, models.ErrTerminalState) {
		t.Errorf("CancelOrder on delivered order: got %v, want terminal state error", err)
	}
	if got := len(f.repo.orders[view.ID].StatusHistory); got != historyLen {
		t.Errorf("history grew on rejected transitions: %d -> %d", historyLen, got)
	}
}

func TestHistoryTracksStatus(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusPreparing)

	o := f.repo.orders[view.ID]
	if len(o.StatusHistory) != 3 {
		t.Fatalf("history length = %d, want 3", len(o.StatusHistory))
	}
	if last := o.StatusHistory[len(o.StatusHistory)-1]; last.Status != o.Status {
		t.Errorf("last history entry %s does not match current status %s", last.Status, o.Status)
	}
	if note := o.StatusHistory[1].Note; note != "Status changed from pending to confirmed" {
		t.Errorf("unexpected default note: %q", note)
	}
}

func TestCancellationWindow(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)

	f.advance(9*time.Minute + 59*time.Second)
	if _, err := f.svc.CancelOrder(context.Background(), customer, view.ID, &models.CancelOrderRequest{Reason: "changed my mind"}); err != nil {
		t.Fatalf("cancel inside window: %v", err)
	}
	if got := f.repo.orders[view.ID].PaymentStatus; got != models.PaymentCancelled {
		t.Errorf("payment status = %s, want cancelled", got)
	}
	if note := f.repo.orders[view.ID].StatusHistory[1].Note; note != "Order cancelled: changed my mind" {
		t.Errorf("unexpected cancel note: %q", note)
	}

	late := f.placeOrder(t)
	f.advance(10*time.Minute + 1*time.Second)
	_, err := f.svc.CancelOrder(context.Background(), customer, late.ID, nil)
	if !errors.Is(err, models.ErrCancellationWindowExpired) {
		t.Fatalf("cancel outside window: got %v, want window expired", err)
	}
	var winErr *models.CancellationWindowError
	if !errors.As(err, &winErr) {
		t.Fatalf("expected CancellationWindowError, got %T", err)
	}
	if winErr.Window != 10*time.Minute {
		t.Errorf("window = %s, want 10m", winErr.Window)
	}
}

func TestCancellationWindowBindsAdminsToo(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advance(2 * time.Hour)

	_, err := f.svc.CancelOrder(context.Background(), admin, view.ID, nil)
	if !errors.Is(err, models.ErrCancellationWindowExpired) {
		t.Fatalf("admin cancel after window: got %v, want window expired", err)
	}
}

func TestCancelRejectedFromPreparing(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusPreparing)

	_, err := f.svc.CancelOrder(context.Background(), admin, view.ID, nil)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("got %v, want invalid transition", err)
	}
}

func TestCancelRejectedBeforeWindowCheck(t *testing.T) {
	// An order already out for delivery gets the transition error even
	// when the window has also lapsed.
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	f.advance(time.Hour)

	_, err := f.svc.CancelOrder(context.Background(), customer, view.ID, nil)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("got %v, want invalid transition", err)
	}
}

func TestDeliverySucceedsWithCorrectOTP(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)

	code := f.repo.orders[view.ID].OTP.Code
	agent := models.Actor{ID: "agent-1", Role: models.RoleTeamMember}
	agentID := agent.ID
	f.repo.orders[view.ID].AssignedTo = &agentID

	got, err := f.svc.DeliverOrder(context.Background(), agent, view.ID, &models.DeliverOrderRequest{OTP: code})
	if err != nil {
		t.Fatalf("DeliverOrder: %v", err)
	}
	if got.Status != models.StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(f.now) {
		t.Errorf("delivered_at = %v, want %v", got.DeliveredAt, f.now)
	}
	if got.PaymentStatus != models.PaymentCompleted {
		t.Errorf("payment status = %s, want completed", got.PaymentStatus)
	}
	if f.repo.orders[view.ID].OTP.Issued() {
		t.Error("OTP not cleared after delivery")
	}
}

func TestDeliveryAttemptCap(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	code := f.repo.orders[view.ID].OTP.Code

	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}
	for i := 0; i < 3; i++ {
		_, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: wrong})
		if !errors.Is(err, models.ErrOTPMismatch) {
			t.Fatalf("attempt %d: got %v, want mismatch", i+1, err)
		}
		if got := f.repo.orders[view.ID].OTP.Attempts; got != i+1 {
			t.Fatalf("attempts after guess %d = %d, want %d", i+1, got, i+1)
		}
	}

	// The cap blocks even the correct code.
	_, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: code})
	if !errors.Is(err, models.ErrOTPAttemptsExceeded) {
		t.Fatalf("after cap: got %v, want attempts exceeded", err)
	}
	if got := f.repo.orders[view.ID].Status; got != models.StatusOutForDelivery {
		t.Errorf("status = %s, want out_for_delivery", got)
	}
}

func TestDeliveryRejectedWhenCapExhaustedConcurrently(t *testing.T) {
	// Three wrong guesses land between this caller's read and its guarded
	// write. The write-time guard must hold the cap even though the
	// in-memory check ran against a counter of zero.
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	code := f.repo.orders[view.ID].OTP.Code

	f.repo.completeHook = func() {
		f.repo.completeHook = nil
		for i := 0; i < 3; i++ {
			if _, err := f.repo.RecordOTPMismatch(context.Background(), view.ID, 3); err != nil {
				t.Fatalf("concurrent mismatch %d: %v", i+1, err)
			}
		}
	}

	_, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: code})
	if !errors.Is(err, models.ErrOTPAttemptsExceeded) {
		t.Fatalf("got %v, want attempts exceeded", err)
	}
	if got := f.repo.orders[view.ID].Status; got != models.StatusOutForDelivery {
		t.Errorf("status = %s, want out_for_delivery", got)
	}
}

func TestDeliveryRejectedWhenReissuedConcurrently(t *testing.T) {
	// A reissue lands between the read and the guarded write; the stale
	// code must not complete the delivery, and the wrong guess burns an
	// attempt against the fresh code.
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	staleCode := f.repo.orders[view.ID].OTP.Code

	f.repo.completeHook = func() {
		f.repo.completeHook = nil
		fresh := "0000"
		if fresh == staleCode {
			fresh = "0001"
		}
		f.repo.orders[view.ID].OTP = models.OTPState{Code: fresh, Expiry: f.now.Add(10 * time.Minute)}
	}

	_, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: staleCode})
	if !errors.Is(err, models.ErrOTPMismatch) {
		t.Fatalf("got %v, want mismatch", err)
	}
	if got := f.repo.orders[view.ID].Status; got != models.StatusOutForDelivery {
		t.Errorf("status = %s, want out_for_delivery", got)
	}
	if got := f.repo.orders[view.ID].OTP.Attempts; got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestReissueInvalidatesOldCode(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	oldCode := f.repo.orders[view.ID].OTP.Code

	wrong := "0000"
	if wrong == oldCode {
		wrong = "0001"
	}
	for i := 0; i < 3; i++ {
		f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: wrong})
	}

	if _, err := f.svc.ReissueOTP(context.Background(), admin, view.ID); err != nil {
		t.Fatalf("ReissueOTP: %v", err)
	}
	newCode := f.repo.orders[view.ID].OTP.Code
	if f.repo.orders[view.ID].OTP.Attempts != 0 {
		t.Error("attempt counter not reset on reissue")
	}

	if oldCode != newCode {
		_, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: oldCode})
		if !errors.Is(err, models.ErrOTPMismatch) {
			t.Fatalf("old code after reissue: got %v, want mismatch", err)
		}
	}

	got, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: f.repo.orders[view.ID].OTP.Code})
	if err != nil {
		t.Fatalf("deliver with reissued code: %v", err)
	}
	if got.Status != models.StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
}

func TestExpiredOTPRejectedWithoutBurningAttempts(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	code := f.repo.orders[view.ID].OTP.Code

	f.advance(11 * time.Minute)
	_, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: code})
	if !errors.Is(err, models.ErrOTPExpired) {
		t.Fatalf("got %v, want expired", err)
	}
	if f.repo.orders[view.ID].OTP.Attempts != 0 {
		t.Error("expiry check consumed an attempt")
	}
}

func TestOTPRedactedOutsideDeliveryWindow(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	if view.DeliveryOTP != "" {
		t.Error("OTP exposed on pending order")
	}

	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	got, err := f.svc.GetOrder(context.Background(), customer, view.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.DeliveryOTP == "" {
		t.Error("OTP hidden while out for delivery")
	}

	stored := f.repo.orders[view.ID]
	if _, err := f.svc.DeliverOrder(context.Background(), admin, view.ID, &models.DeliverOrderRequest{OTP: stored.OTP.Code}); err != nil {
		t.Fatalf("DeliverOrder: %v", err)
	}
	got, err = f.svc.GetOrder(context.Background(), customer, view.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.DeliveryOTP != "" {
		t.Error("OTP exposed after delivery")
	}
}

func TestCustomerMaySelfConfirmDelivery(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusOutForDelivery)
	code := f.repo.orders[view.ID].OTP.Code

	got, err := f.svc.DeliverOrder(context.Background(), customer, view.ID, &models.DeliverOrderRequest{OTP: code})
	if err != nil {
		t.Fatalf("customer self-confirm: %v", err)
	}
	if got.Status != models.StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
}

func TestAccessControl(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)

	stranger := models.Actor{ID: "cust-2", Role: models.RoleCustomer}
	if _, err := f.svc.GetOrder(context.Background(), stranger, view.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger read: got %v, want forbidden", err)
	}
	if _, err := f.svc.CancelOrder(context.Background(), stranger, view.ID, nil); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger cancel: got %v, want forbidden", err)
	}

	// A team member not assigned to the order cannot drive it.
	f.advanceTo(t, view.ID, models.StatusConfirmed)
	other := models.Actor{ID: "agent-9", Role: models.RoleTeamMember}
	if _, err := f.svc.UpdateStatus(context.Background(), other, view.ID, &models.UpdateStatusRequest{Status: models.StatusPreparing}); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("unassigned agent: got %v, want forbidden", err)
	}

	// Customers cannot drive lifecycle transitions at all.
	if _, err := f.svc.UpdateStatus(context.Background(), customer, view.ID, &models.UpdateStatusRequest{Status: models.StatusPreparing}); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("customer transition: got %v, want forbidden", err)
	}
}

func TestListOrdersAppliesStatusFilterForTeamMembers(t *testing.T) {
	f := newFixture()
	first := f.placeOrder(t)
	second := f.placeOrder(t)
	agentID := "agent-1"
	f.repo.orders[first.ID].AssignedTo = &agentID
	f.repo.orders[second.ID].AssignedTo = &agentID
	f.advanceTo(t, first.ID, models.StatusPreparing)
	f.advanceTo(t, second.ID, models.StatusConfirmed)

	agent := models.Actor{ID: agentID, Role: models.RoleTeamMember}
	views, total, err := f.svc.ListOrders(context.Background(), agent, models.StatusPreparing, 1, 20)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if total != 1 || len(views) != 1 {
		t.Fatalf("got %d orders (total %d), want 1", len(views), total)
	}
	if views[0].ID != first.ID {
		t.Errorf("filtered listing returned %s, want %s", views[0].ID, first.ID)
	}

	// Without a filter, all in-flight assignments come back.
	views, total, err = f.svc.ListOrders(context.Background(), agent, "", 1, 20)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if total != 2 || len(views) != 2 {
		t.Errorf("got %d orders (total %d), want 2", len(views), total)
	}
}

func TestConcurrentTransitionLosesGuard(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)

	// Simulate a racing writer flipping the status between the service's
	// read and its guarded write.
	f.repo.orders[view.ID].Status = models.StatusConfirmed
	if _, err := f.svc.CancelOrder(context.Background(), admin, view.ID, nil); err != nil {
		t.Fatalf("cancel confirmed order: %v", err)
	}
	_, err := f.svc.UpdateStatus(context.Background(), admin, view.ID, &models.UpdateStatusRequest{Status: models.StatusPreparing})
	if !errors.Is(err, models.ErrTerminalState) {
		t.Errorf("got %v, want terminal state error after racing cancel", err)
	}
}

func TestBelowMinimumOrderRejected(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateOrder(context.Background(), customer, &models.CreateOrderRequest{
		ServiceID: "svc-1",
		Items:     []models.CartLine{{MenuItemID: "item-naan", Quantity: 1}},
	})
	if !errors.Is(err, models.ErrBelowMinimumOrder) {
		t.Fatalf("got %v, want below minimum", err)
	}
}

func TestInactiveServiceRejected(t *testing.T) {
	f := newFixture()
	f.catalog.services["svc-1"].IsActive = false
	_, err := f.svc.CreateOrder(context.Background(), customer, &models.CreateOrderRequest{
		ServiceID: "svc-1",
		Items:     []models.CartLine{{MenuItemID: "item-curry", Quantity: 2}},
	})
	if !errors.Is(err, models.ErrServiceClosed) {
		t.Fatalf("got %v, want service closed", err)
	}
}

func TestTrackOrderProjection(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.advanceTo(t, view.ID, models.StatusPreparing)

	track, err := f.svc.TrackOrder(context.Background(), customer, view.ID)
	if err != nil {
		t.Fatalf("TrackOrder: %v", err)
	}
	if len(track.Stages) != 5 {
		t.Fatalf("stages = %d, want 5", len(track.Stages))
	}
	wantReached := map[models.OrderStatus]bool{
		models.StatusPending:        true,
		models.StatusConfirmed:      true,
		models.StatusPreparing:      true,
		models.StatusOutForDelivery: false,
		models.StatusDelivered:      false,
	}
	for _, stage := range track.Stages {
		if stage.Reached != wantReached[stage.Status] {
			t.Errorf("stage %s reached = %v, want %v", stage.Status, stage.Reached, wantReached[stage.Status])
		}
		if stage.Reached && stage.Timestamp == nil {
			t.Errorf("stage %s reached without timestamp", stage.Status)
		}
	}
}

func TestTrackCancelledOrder(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	if _, err := f.svc.CancelOrder(context.Background(), customer, view.ID, nil); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	track, err := f.svc.TrackOrder(context.Background(), customer, view.ID)
	if err != nil {
		t.Fatalf("TrackOrder: %v", err)
	}
	last := track.Stages[len(track.Stages)-1]
	if last.Status != models.StatusCancelled || !last.Reached {
		t.Errorf("last stage = %+v, want reached cancelled", last)
	}
}

func TestPayOrder(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)

	got, err := f.svc.PayOrder(context.Background(), customer, view.ID, &models.PayOrderRequest{PaymentMethodID: "pm_card"})
	if err != nil {
		t.Fatalf("PayOrder: %v", err)
	}
	if got.PaymentStatus != models.PaymentCompleted {
		t.Errorf("payment status = %s, want completed", got.PaymentStatus)
	}
	if f.payments.charges != 1 {
		t.Errorf("charges = %d, want 1", f.payments.charges)
	}

	// Paying twice is rejected without another charge.
	_, err = f.svc.PayOrder(context.Background(), customer, view.ID, &models.PayOrderRequest{PaymentMethodID: "pm_card"})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("double pay: got %v, want validation error", err)
	}
	if f.payments.charges != 1 {
		t.Errorf("charges after double pay = %d, want 1", f.payments.charges)
	}
}

func TestDeclinedPaymentMarksFailed(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	f.payments.decline = true

	if _, err := f.svc.PayOrder(context.Background(), customer, view.ID, &models.PayOrderRequest{PaymentMethodID: "pm_card"}); err == nil {
		t.Fatal("expected error from declined payment")
	}
	if got := f.repo.orders[view.ID].PaymentStatus; got != models.PaymentFailed {
		t.Errorf("payment status = %s, want failed", got)
	}

	// A failed payment can be retried.
	f.payments.decline = false
	if _, err := f.svc.PayOrder(context.Background(), customer, view.ID, &models.PayOrderRequest{PaymentMethodID: "pm_card"}); err != nil {
		t.Fatalf("retry after decline: %v", err)
	}
}

func TestCancellingPaidOrderRefunds(t *testing.T) {
	f := newFixture()
	view := f.placeOrder(t)
	if _, err := f.svc.PayOrder(context.Background(), customer, view.ID, &models.PayOrderRequest{PaymentMethodID: "pm_card"}); err != nil {
		t.Fatalf("PayOrder: %v", err)
	}

	got, err := f.svc.CancelOrder(context.Background(), customer, view.ID, nil)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if got.PaymentStatus != models.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", got.PaymentStatus)
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture()
	first := f.placeOrder(t)
	f.placeOrder(t)
	if _, err := f.svc.CancelOrder(context.Background(), customer, first.ID, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := f.svc.GetStatistics(context.Background())
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.TotalOrders != 2 {
		t.Errorf("total orders = %d, want 2", stats.TotalOrders)
	}
	if stats.StatusDistribution[models.StatusCancelled] != 1 {
		t.Errorf("cancelled count = %d, want 1", stats.StatusDistribution[models.StatusCancelled])
	}
}
