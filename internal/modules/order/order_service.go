package order

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"ordering-and-delivery/internal/models"
	"ordering-and-delivery/internal/modules/catalog"
	"ordering-and-delivery/internal/modules/pricing"
	"ordering-and-delivery/pkg/clock"
	"ordering-and-delivery/pkg/notifier"
	"ordering-and-delivery/pkg/otp"
	"ordering-and-delivery/pkg/payment"
)

// ServiceInterface defines the order lifecycle operations.
type ServiceInterface interface {
	CreateOrder(ctx context.Context, actor models.Actor, req *models.CreateOrderRequest) (*models.OrderView, error)
	CalculateOrder(ctx context.Context, req *models.CalculateOrderRequest) (*models.Totals, error)
	GetOrder(ctx context.Context, actor models.Actor, orderID string) (*models.OrderView, error)
	ListOrders(ctx context.Context, actor models.Actor, status models.OrderStatus, page, limit int) ([]*models.OrderView, int, error)
	UpdateStatus(ctx context.Context, actor models.Actor, orderID string, req *models.UpdateStatusRequest) (*models.OrderView, error)
	CancelOrder(ctx context.Context, actor models.Actor, orderID string, req *models.CancelOrderRequest) (*models.OrderView, error)
	PayOrder(ctx context.Context, actor models.Actor, orderID string, req *models.PayOrderRequest) (*models.OrderView, error)
	DeliverOrder(ctx context.Context, actor models.Actor, orderID string, req *models.DeliverOrderRequest) (*models.OrderView, error)
	ReissueOTP(ctx context.Context, actor models.Actor, orderID string) (*models.OrderView, error)
	TrackOrder(ctx context.Context, actor models.Actor, orderID string) (*models.TrackingView, error)
	GetStatistics(ctx context.Context) (*models.OrderStatistics, error)
}

// lifecycle is the full set of permitted status transitions. Delivery is
// deliberately absent as an UpdateStatus target: the only path to delivered
// is DeliverOrder, which verifies the OTP in the same atomic write.
var lifecycle = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:        {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:      {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:      {models.StatusOutForDelivery},
	models.StatusOutForDelivery: {models.StatusDelivered},
	models.StatusDelivered:      {},
	models.StatusCancelled:      {},
}

// transitionsByRole restricts which lifecycle edges each role may drive
// through UpdateStatus. Cancellation and delivery have dedicated operations
// with their own rules and are not listed here. Team members hold only the
// fulfilment edges on their own assignments; admins and the system actor may
// additionally confirm pending orders and drive any order regardless of
// assignment.
var transitionsByRole = map[models.Role]map[models.OrderStatus][]models.OrderStatus{
	models.RoleTeamMember: {
		models.StatusConfirmed: {models.StatusPreparing},
		models.StatusPreparing: {models.StatusOutForDelivery},
	},
	models.RoleAdmin: {
		models.StatusPending:   {models.StatusConfirmed},
		models.StatusConfirmed: {models.StatusPreparing},
		models.StatusPreparing: {models.StatusOutForDelivery},
	},
	models.RoleSystem: {
		models.StatusPending:   {models.StatusConfirmed},
		models.StatusConfirmed: {models.StatusPreparing},
		models.StatusPreparing: {models.StatusOutForDelivery},
	},
}

func allowed(table map[models.OrderStatus][]models.OrderStatus, from, to models.OrderStatus) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Service implements the order state machine. All tunables are fixed at
// construction.
type Service struct {
	repo      RepositoryInterface
	catalog   catalog.ServiceInterface
	pricing   *pricing.Engine
	issuer    *otp.Issuer
	payments  payment.ServiceInterface
	notify    *notifier.Dispatcher
	clock     clock.Clock
	cancelWin time.Duration
}

func NewService(
	repo RepositoryInterface,
	catalogSvc catalog.ServiceInterface,
	engine *pricing.Engine,
	issuer *otp.Issuer,
	payments payment.ServiceInterface,
	dispatcher *notifier.Dispatcher,
	clk clock.Clock,
	cancellationWindow time.Duration,
) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalogSvc,
		pricing:   engine,
		issuer:    issuer,
		payments:  payments,
		notify:    dispatcher,
		clock:     clk,
		cancelWin: cancellationWindow,
	}
}

// resolveCart validates every cart line against the catalog and prices it at
// current catalog prices. Duplicate menu item references are merged.
func (s *Service) resolveCart(ctx context.Context, serviceID string, items []models.CartLine) ([]models.ResolvedLine, error) {
	merged := make(map[string]int, len(items))
	var ordered []string
	for _, line := range items {
		if _, seen := merged[line.MenuItemID]; !seen {
			ordered = append(ordered, line.MenuItemID)
		}
		merged[line.MenuItemID] += line.Quantity
	}

	lines := make([]models.ResolvedLine, 0, len(ordered))
	for _, menuItemID := range ordered {
		resolved, err := s.catalog.ResolveLine(ctx, serviceID, menuItemID, merged[menuItemID])
		if err != nil {
			return nil, err
		}
		lines = append(lines, *resolved)
	}
	return lines, nil
}

func (s *Service) priceCart(ctx context.Context, serviceID string, items []models.CartLine) ([]models.ResolvedLine, *models.Service, models.Totals, error) {
	service, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return nil, nil, models.Totals{}, err
	}
	if !service.IsActive {
		return nil, nil, models.Totals{}, fmt.Errorf("%w: %s", models.ErrServiceClosed, service.Name)
	}
	if !service.OpenAt(s.clock.Now()) {
		return nil, nil, models.Totals{}, fmt.Errorf("%w: %s is outside opening hours", models.ErrServiceClosed, service.Name)
	}

	lines, err := s.resolveCart(ctx, serviceID, items)
	if err != nil {
		return nil, nil, models.Totals{}, err
	}
	totals, err := s.pricing.Quote(lines, service, 0)
	if err != nil {
		return nil, nil, models.Totals{}, err
	}
	return lines, service, totals, nil
}

// CreateOrder validates the cart, prices it, mints the delivery OTP, and
// persists the order in pending status with its first history entry. The
// captured unit prices are final; later catalog changes do not touch them.
func (s *Service) CreateOrder(ctx context.Context, actor models.Actor, req *models.CreateOrderRequest) (*models.OrderView, error) {
	lines, _, totals, err := s.priceCart(ctx, req.ServiceID, req.Items)
	if err != nil {
		return nil, fmt.Errorf("service.CreateOrder: %w", err)
	}

	now := s.clock.Now()
	state, err := s.issuer.Issue(now)
	if err != nil {
		return nil, fmt.Errorf("service.CreateOrder: %w", err)
	}

	o := &models.Order{
		CustomerID:           actor.ID,
		ServiceID:            req.ServiceID,
		Subtotal:             totals.Subtotal,
		TaxAmount:            totals.TaxAmount,
		DeliveryCharge:       totals.DeliveryCharge,
		DiscountAmount:       totals.DiscountAmount,
		TotalAmount:          totals.TotalAmount,
		Status:               models.StatusPending,
		PaymentStatus:        models.PaymentPending,
		OTP:                  state,
		DeliveryInstructions: req.DeliveryInstructions,
		StatusHistory: []models.StatusEntry{{
			Status:    models.StatusPending,
			Timestamp: now,
			Actor:     actor.ID,
			Note:      "Order placed",
		}},
	}
	for _, line := range lines {
		o.LineItems = append(o.LineItems, models.LineItem{
			MenuItemID:       line.MenuItemID,
			Name:             line.Name,
			Quantity:         line.Quantity,
			UnitPriceAtOrder: line.UnitPrice,
		})
	}

	// Order numbers are random; on the rare collision, regenerate.
	var created *models.Order
	for attempt := 0; attempt < 5; attempt++ {
		o.OrderNumber, err = generateOrderNumber(now)
		if err != nil {
			return nil, fmt.Errorf("service.CreateOrder: %w", err)
		}
		created, err = s.repo.Create(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			return nil, fmt.Errorf("service.CreateOrder: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("service.CreateOrder: %w", err)
	}

	s.notifyCustomer(ctx, created, notifier.EventOrderCreated, "")
	s.notifyCustomer(ctx, created, notifier.EventOTPIssued, created.OTP.Code)
	return models.NewOrderView(created), nil
}

// CalculateOrder previews the totals an identical CreateOrder call would
// produce, without persisting anything.
func (s *Service) CalculateOrder(ctx context.Context, req *models.CalculateOrderRequest) (*models.Totals, error) {
	_, _, totals, err := s.priceCart(ctx, req.ServiceID, req.Items)
	if err != nil {
		return nil, fmt.Errorf("service.CalculateOrder: %w", err)
	}
	return &totals, nil
}

// GetOrder returns the order if the actor may see it: the owning customer,
// the assigned team member, or an admin.
func (s *Service) GetOrder(ctx context.Context, actor models.Actor, orderID string) (*models.OrderView, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.GetOrder: %w", err)
	}
	if err := s.authorizeRead(actor, o); err != nil {
		return nil, fmt.Errorf("service.GetOrder: %w", err)
	}
	return models.NewOrderView(o), nil
}

func (s *Service) authorizeRead(actor models.Actor, o *models.Order) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
		return nil
	case models.RoleCustomer:
		if o.CustomerID == actor.ID {
			return nil
		}
	case models.RoleTeamMember:
		if o.AssignedTo != nil && *o.AssignedTo == actor.ID {
			return nil
		}
	}
	return models.ErrForbidden
}

// ListOrders scopes the listing by role: customers see their own orders,
// team members their active assignments, admins everything.
func (s *Service) ListOrders(ctx context.Context, actor models.Actor, status models.OrderStatus, page, limit int) ([]*models.OrderView, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("service.ListOrders: %w: unknown status %q", models.ErrValidation, status)
	}

	var orders []*models.Order
	var total int
	var err error
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
		orders, total, err = s.repo.ListAll(ctx, status, page, limit)
	case models.RoleTeamMember:
		orders, total, err = s.repo.ListByAssignee(ctx, actor.ID, status, page, limit)
	default:
		orders, total, err = s.repo.ListByCustomer(ctx, actor.ID, status, page, limit)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("service.ListOrders: %w", err)
	}

	views := make([]*models.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, models.NewOrderView(o))
	}
	return views, total, nil
}

// UpdateStatus advances the order one lifecycle step. The write is guarded
// by the status the actor was validated against, so a concurrent transition
// on the same order invalidates this one instead of being overwritten.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, orderID string, req *models.UpdateStatusRequest) (*models.OrderView, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("service.UpdateStatus: %w: unknown status %q", models.ErrValidation, req.Status)
	}
	if req.Status == models.StatusCancelled {
		return nil, fmt.Errorf("service.UpdateStatus: %w: use the cancel operation", models.ErrValidation)
	}
	if req.Status == models.StatusDelivered {
		return nil, fmt.Errorf("service.UpdateStatus: %w: delivery requires OTP verification", models.ErrValidation)
	}

	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateStatus: %w", err)
	}
	if !allowed(lifecycle, o.Status, req.Status) {
		return nil, fmt.Errorf("service.UpdateStatus: %w", &models.InvalidTransitionError{From: o.Status, To: req.Status})
	}
	if !allowed(transitionsByRole[actor.Role], o.Status, req.Status) {
		return nil, fmt.Errorf("service.UpdateStatus: %w", models.ErrForbidden)
	}
	if actor.Role == models.RoleTeamMember && (o.AssignedTo == nil || *o.AssignedTo != actor.ID) {
		return nil, fmt.Errorf("service.UpdateStatus: %w", models.ErrForbidden)
	}

	note := req.Note
	if note == "" {
		note = fmt.Sprintf("Status changed from %s to %s", o.Status, req.Status)
	}
	entry := models.StatusEntry{
		Status:    req.Status,
		Timestamp: s.clock.Now(),
		Actor:     actor.ID,
		Note:      note,
	}
	updated, err := s.repo.UpdateStatus(ctx, orderID, o.Status, req.Status, entry)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateStatus: %w", err)
	}

	s.notifyCustomer(ctx, updated, notifier.EventStatusChanged, "")
	return models.NewOrderView(updated), nil
}

// CancelOrder moves the order to cancelled. Customers may cancel only their
// own orders; the cancellation window applies to every actor. Payment status
// follows: completed payments become refunded, everything else cancelled.
func (s *Service) CancelOrder(ctx context.Context, actor models.Actor, orderID string, req *models.CancelOrderRequest) (*models.OrderView, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.CancelOrder: %w", err)
	}

	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
	case models.RoleCustomer:
		if o.CustomerID != actor.ID {
			return nil, fmt.Errorf("service.CancelOrder: %w", models.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("service.CancelOrder: %w", models.ErrForbidden)
	}

	// Status eligibility is checked before the time window: an order that
	// has moved past confirmed gets the transition error even when the
	// window has also lapsed.
	if !allowed(lifecycle, o.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("service.CancelOrder: %w", &models.InvalidTransitionError{From: o.Status, To: models.StatusCancelled})
	}
	if elapsed := s.clock.Now().Sub(o.CreatedAt); elapsed > s.cancelWin {
		return nil, fmt.Errorf("service.CancelOrder: %w", &models.CancellationWindowError{Elapsed: elapsed, Window: s.cancelWin})
	}

	note := "Order cancelled"
	if req != nil && req.Reason != "" {
		note = "Order cancelled: " + req.Reason
	}
	entry := models.StatusEntry{
		Status:    models.StatusCancelled,
		Timestamp: s.clock.Now(),
		Actor:     actor.ID,
		Note:      note,
	}
	updated, err := s.repo.Cancel(ctx, orderID, o.Status, entry)
	if err != nil {
		return nil, fmt.Errorf("service.CancelOrder: %w", err)
	}

	s.notifyCustomer(ctx, updated, notifier.EventStatusChanged, "")
	return models.NewOrderView(updated), nil
}

// PayOrder settles a pending payment through the payment provider. Delivery
// itself does not require prepayment; unpaid orders are settled as cash on
// delivery when the OTP verifies.
func (s *Service) PayOrder(ctx context.Context, actor models.Actor, orderID string, req *models.PayOrderRequest) (*models.OrderView, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.PayOrder: %w", err)
	}
	if actor.Role == models.RoleCustomer && o.CustomerID != actor.ID {
		return nil, fmt.Errorf("service.PayOrder: %w", models.ErrForbidden)
	}
	if o.Status == models.StatusCancelled {
		return nil, fmt.Errorf("service.PayOrder: %w", models.ErrTerminalState)
	}
	if o.PaymentStatus != models.PaymentPending && o.PaymentStatus != models.PaymentFailed {
		return nil, fmt.Errorf("service.PayOrder: %w: payment is already %s", models.ErrValidation, o.PaymentStatus)
	}

	if _, err := s.payments.ProcessPayment(ctx, o.CustomerID, o.TotalAmount, req.PaymentMethodID); err != nil {
		if markErr := s.repo.UpdatePaymentStatus(ctx, orderID, o.PaymentStatus, models.PaymentFailed); markErr != nil && !errors.Is(markErr, models.ErrStatusConflict) {
			return nil, fmt.Errorf("service.PayOrder: %w", markErr)
		}
		return nil, fmt.Errorf("service.PayOrder: %w", err)
	}
	if err := s.repo.UpdatePaymentStatus(ctx, orderID, o.PaymentStatus, models.PaymentCompleted); err != nil {
		return nil, fmt.Errorf("service.PayOrder: %w", err)
	}

	o.PaymentStatus = models.PaymentCompleted
	return models.NewOrderView(o), nil
}

// DeliverOrder verifies the handoff OTP and completes the delivery. Only the
// assigned team member, the order's own customer, or an admin may attempt
// it. Verification and the status change happen in one guarded write; a
// wrong code burns an attempt, and after the attempt cap even the correct
// code is rejected until a fresh OTP is issued.
func (s *Service) DeliverOrder(ctx context.Context, actor models.Actor, orderID string, req *models.DeliverOrderRequest) (*models.OrderView, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.DeliverOrder: %w", err)
	}

	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
	case models.RoleTeamMember:
		if o.AssignedTo == nil || *o.AssignedTo != actor.ID {
			return nil, fmt.Errorf("service.DeliverOrder: %w", models.ErrForbidden)
		}
	case models.RoleCustomer:
		if o.CustomerID != actor.ID {
			return nil, fmt.Errorf("service.DeliverOrder: %w", models.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("service.DeliverOrder: %w", models.ErrForbidden)
	}

	if o.Status != models.StatusOutForDelivery {
		return nil, fmt.Errorf("service.DeliverOrder: %w", &models.InvalidTransitionError{From: o.Status, To: models.StatusDelivered})
	}

	now := s.clock.Now()
	if err := s.issuer.Verify(o.OTP, req.OTP, now); err != nil {
		return nil, fmt.Errorf("service.DeliverOrder: %w", s.verifyFailure(ctx, orderID, err))
	}

	entry := models.StatusEntry{
		Status:    models.StatusDelivered,
		Timestamp: now,
		Actor:     actor.ID,
		Note:      fmt.Sprintf("Status changed from %s to %s", models.StatusOutForDelivery, models.StatusDelivered),
	}
	updated, err := s.repo.CompleteDelivery(ctx, orderID, req.OTP, s.issuer.MaxAttempts(), entry)
	if err != nil {
		// The guarded write lost: the read this caller verified against was
		// stale. Re-read and report the current truth, so an exhausted cap
		// or a lapsed expiry is surfaced even when the in-memory check
		// passed.
		if errors.Is(err, models.ErrStatusConflict) {
			fresh, readErr := s.repo.FindByID(ctx, orderID)
			if readErr != nil {
				return nil, fmt.Errorf("service.DeliverOrder: %w", readErr)
			}
			if fresh.Status != models.StatusOutForDelivery {
				return nil, fmt.Errorf("service.DeliverOrder: %w", &models.InvalidTransitionError{From: fresh.Status, To: models.StatusDelivered})
			}
			if verr := s.issuer.Verify(fresh.OTP, req.OTP, now); verr != nil {
				return nil, fmt.Errorf("service.DeliverOrder: %w", s.verifyFailure(ctx, orderID, verr))
			}
			return nil, fmt.Errorf("service.DeliverOrder: %w", err)
		}
		return nil, fmt.Errorf("service.DeliverOrder: %w", err)
	}

	s.notifyCustomer(ctx, updated, notifier.EventStatusChanged, "")
	return models.NewOrderView(updated), nil
}

// verifyFailure burns an attempt for a wrong guess and picks the error the
// caller should surface. The increment is unconditional on the repository
// side, so every concurrent wrong guess consumes its own slot; when the
// counter is already at the cap the stronger error wins over the mismatch.
func (s *Service) verifyFailure(ctx context.Context, orderID string, verr error) error {
	if !errors.Is(verr, models.ErrOTPMismatch) {
		return verr
	}
	if _, recErr := s.repo.RecordOTPMismatch(ctx, orderID, s.issuer.MaxAttempts()); recErr != nil && !errors.Is(recErr, models.ErrOTPNotIssued) {
		return recErr
	}
	return verr
}

// ReissueOTP replaces the delivery OTP with a fresh code and resets the
// attempt counter. Available to admins and the assigned team member while
// the order is still in flight.
func (s *Service) ReissueOTP(ctx context.Context, actor models.Actor, orderID string) (*models.OrderView, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.ReissueOTP: %w", err)
	}

	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
	case models.RoleTeamMember:
		if o.AssignedTo == nil || *o.AssignedTo != actor.ID {
			return nil, fmt.Errorf("service.ReissueOTP: %w", models.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("service.ReissueOTP: %w", models.ErrForbidden)
	}

	if o.Status.IsTerminal() {
		return nil, fmt.Errorf("service.ReissueOTP: %w", models.ErrTerminalState)
	}

	state, err := s.issuer.Issue(s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("service.ReissueOTP: %w", err)
	}
	if err := s.repo.SetOTP(ctx, orderID, state); err != nil {
		return nil, fmt.Errorf("service.ReissueOTP: %w", err)
	}

	o.OTP = state
	s.notifyCustomer(ctx, o, notifier.EventOTPIssued, state.Code)
	return models.NewOrderView(o), nil
}

// deliveryStages is the happy-path progression shown on the tracking view.
var deliveryStages = []models.OrderStatus{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusPreparing,
	models.StatusOutForDelivery,
	models.StatusDelivered,
}

// TrackOrder projects the status history onto the delivery stages. A
// cancelled order shows the stages it reached plus a final cancelled stage.
func (s *Service) TrackOrder(ctx context.Context, actor models.Actor, orderID string) (*models.TrackingView, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.TrackOrder: %w", err)
	}
	if err := s.authorizeRead(actor, o); err != nil {
		return nil, fmt.Errorf("service.TrackOrder: %w", err)
	}

	reachedAt := make(map[models.OrderStatus]time.Time, len(o.StatusHistory))
	for _, entry := range o.StatusHistory {
		if _, seen := reachedAt[entry.Status]; !seen {
			reachedAt[entry.Status] = entry.Timestamp
		}
	}

	view := &models.TrackingView{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		DeliveredAt: o.DeliveredAt,
	}
	for _, stage := range deliveryStages {
		ts, reached := reachedAt[stage]
		st := models.TrackingStage{Status: stage, Reached: reached}
		if reached {
			t := ts
			st.Timestamp = &t
		}
		view.Stages = append(view.Stages, st)
	}
	if o.Status == models.StatusCancelled {
		ts := reachedAt[models.StatusCancelled]
		view.Stages = append(view.Stages, models.TrackingStage{
			Status:    models.StatusCancelled,
			Reached:   true,
			Timestamp: &ts,
		})
	}
	return view, nil
}

func (s *Service) GetStatistics(ctx context.Context) (*models.OrderStatistics, error) {
	stats, err := s.repo.GetStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.GetStatistics: %w", err)
	}
	return stats, nil
}

// notifyCustomer fires a best-effort notification to the order's customer.
// Lookups and delivery failures never fail the triggering operation.
func (s *Service) notifyCustomer(ctx context.Context, o *models.Order, eventType notifier.EventType, code string) {
	if s.notify == nil {
		return
	}
	recipient := models.User{ID: o.CustomerID}
	if u, err := s.repo.FindUser(ctx, o.CustomerID); err == nil {
		recipient = *u
	}
	s.notify.Dispatch(notifier.Event{
		Type:        eventType,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Recipient:   recipient,
		OTP:         code,
		OccurredAt:  s.clock.Now(),
	})
}

const orderNumberAlphabet = "0123456789ABCDEF"

// generateOrderNumber mints a human-readable reference of the form
// ORD-YYYYMMDD-XXXXXXXX where the suffix is random hex.
func generateOrderNumber(now time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString("ORD-")
	sb.WriteString(now.Format("20060102"))
	sb.WriteByte('-')
	for i := 0; i < 8; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(orderNumberAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		sb.WriteByte(orderNumberAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
