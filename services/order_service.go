package services

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/myseetara-source/seetara-website-sub001/capi"
	"github.com/myseetara-source/seetara-website-sub001/conversion"
	"github.com/myseetara-source/seetara-website-sub001/metrics"
	"github.com/myseetara-source/seetara-website-sub001/models"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
	"github.com/myseetara-source/seetara-website-sub001/publisher"
	"github.com/myseetara-source/seetara-website-sub001/relay"
	"github.com/myseetara-source/seetara-website-sub001/repository"
	"github.com/myseetara-source/seetara-website-sub001/sender"
)

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

// ConfirmationPath is where buyers land after submitting.
const ConfirmationPath = "/order-success"

var bdPhonePattern = regexp.MustCompile(`^(?:\+?880|0)?1[3-9][0-9]{8}$`)

// ValidBDPhone reports whether phone is a Bangladeshi mobile number, with or
// without the +880 / 880 prefix. Spaces and dashes are ignored.
func ValidBDPhone(phone string) bool {
	return bdPhonePattern.MatchString(compactPhone(phone))
}

// NormalizeBDPhone returns the local 01XXXXXXXXX form.
func NormalizeBDPhone(phone string) string {
	p := compactPhone(phone)
	p = strings.TrimPrefix(p, "+")
	p = strings.TrimPrefix(p, "880")
	if !strings.HasPrefix(p, "0") {
		p = "0" + p
	}
	return p
}

func compactPhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
}

type CheckoutRequest struct {
	CustomerName string `json:"customer_name" binding:"required,min=2,max=100"`
	Phone        string `json:"phone" binding:"required,bdphone"`
	Email        string `json:"email" binding:"omitempty,email"`
	Address      string `json:"address" binding:"required,min=5,max=300"`
	City         string `json:"city" binding:"max=60"`
	Zone         string `json:"zone" binding:"omitempty,oneof=inside_dhaka outside_dhaka"`
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name" binding:"required,max=200"`
	Variant      string `json:"variant" binding:"max=100"`
	Quantity     int    `json:"quantity" binding:"required,min=1,max=20"`
	UnitPrice    int    `json:"unit_price" binding:"required,gt=0"`
	Note         string `json:"note" binding:"max=500"`
}

type InquiryRequest struct {
	CustomerName string `json:"customer_name" binding:"required,min=2,max=100"`
	Phone        string `json:"phone" binding:"required,bdphone"`
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name" binding:"required,max=200"`
	Variant      string `json:"variant" binding:"max=100"`
	Message      string `json:"message" binding:"max=500"`
}

// SubmissionResponse is returned for both orders and inquiries.
type SubmissionResponse struct {
	OrderID     string        `json:"order_id"`
	Total       int           `json:"total,omitempty"`
	RedirectURL string        `json:"redirect_url"`
	Order       *models.Order `json:"order"`
}

type OrderResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

// IDIssuer issues order ids.
type IDIssuer interface {
	Issue() orderid.OrderID
}

// ConversionRelay is the server-side conversion channel.
type ConversionRelay interface {
	Dispatch(t relay.Transition)
	Handle(ctx context.Context, t relay.Transition) relay.Outcome
}

// DeliveryCharges are flat per-zone charges in taka.
type DeliveryCharges struct {
	InsideDhaka  int
	OutsideDhaka int
}

// Integrations are optional side channels. Nil fields are skipped.
type Integrations struct {
	Events  publisher.EventPublisher
	SMS     sender.SMSSender
	Sheet   sender.SheetLogger
	Metrics aws_pkg.MetricsRecorder
}

type OrderServiceConfig struct {
	Currency string
	Delivery DeliveryCharges
}

// OrderService defines the order business logic.
type OrderService interface {
	CreateOrder(ctx context.Context, req *CheckoutRequest) (*SubmissionResponse, *ServiceError)
	CreateInquiry(ctx context.Context, req *InquiryRequest) (*SubmissionResponse, *ServiceError)
	UpdateStatus(ctx context.Context, orderNumber, status, actor string) (*models.Order, *ServiceError)
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, *ServiceError)
	ListOrders(ctx context.Context, status string, page, limit int) (*OrderResponse, *ServiceError)
	ConfirmationPayload(ctx context.Context, orderNumber string) (*conversion.PixelPayload, *ServiceError)
	ReplayConversion(ctx context.Context, orderNumber, status string) (relay.Outcome, *ServiceError)
	Wait()
}

type orderServiceImpl struct {
	repo   repository.OrderRepository
	issuer IDIssuer
	relay  ConversionRelay
	extra  Integrations
	cfg    OrderServiceConfig
	logger *zap.Logger
	notify sync.WaitGroup
}

// NewOrderService creates a new OrderService. conv may be nil.
func NewOrderService(
	repo repository.OrderRepository,
	issuer IDIssuer,
	conv ConversionRelay,
	extra Integrations,
	cfg OrderServiceConfig,
	logger *zap.Logger,
) OrderService {
	if cfg.Currency == "" {
		cfg.Currency = "BDT"
	}
	if cfg.Delivery.InsideDhaka == 0 {
		cfg.Delivery.InsideDhaka = 60
	}
	if cfg.Delivery.OutsideDhaka == 0 {
		cfg.Delivery.OutsideDhaka = 120
	}
	return &orderServiceImpl{
		repo:   repo,
		issuer: issuer,
		relay:  conv,
		extra:  extra,
		cfg:    cfg,
		logger: logger,
	}
}

var errInvalidTransition = errors.New("invalid status transition")

// CreateOrder stores a cash-on-delivery order and returns the confirmation
// redirect carrying its order id.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, req *CheckoutRequest) (*SubmissionResponse, *ServiceError) {
	if !ValidBDPhone(req.Phone) {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid phone number"}
	}
	if req.Quantity < 1 {
		return nil, &ServiceError{StatusCode: 400, Message: "Quantity must be at least 1"}
	}
	if req.UnitPrice <= 0 {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid product price"}
	}
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.ProductName) == "" {
		return nil, &ServiceError{StatusCode: 400, Message: "Name, address and product are required"}
	}

	zone := s.zoneFor(req.Zone, req.City)
	delivery := s.cfg.Delivery.OutsideDhaka
	if zone == models.ZoneInsideDhaka {
		delivery = s.cfg.Delivery.InsideDhaka
	}

	order := &models.Order{
		OrderNumber:    s.issuer.Issue().String(),
		Kind:           models.KindOrder,
		Status:         models.StatusIntake,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		Phone:          NormalizeBDPhone(req.Phone),
		Email:          strings.TrimSpace(req.Email),
		Address:        strings.TrimSpace(req.Address),
		City:           strings.TrimSpace(req.City),
		Zone:           zone,
		ProductID:      req.ProductID,
		ProductName:    strings.TrimSpace(req.ProductName),
		Variant:        strings.TrimSpace(req.Variant),
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		DeliveryCharge: delivery,
		Total:          req.UnitPrice*req.Quantity + delivery,
		Note:           req.Note,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		s.logger.Error("failed to create order", zap.String("order_id", order.OrderNumber), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to place order"}
	}
	s.logger.Info("order created", zap.String("order_id", order.OrderNumber), zap.Int("total", order.Total))

	s.afterSubmit(ctx, order, aws_pkg.MetricOrdersCreated)

	return &SubmissionResponse{
		OrderID:     order.OrderNumber,
		Total:       order.Total,
		RedirectURL: confirmationURL(order),
		Order:       order,
	}, nil
}

// CreateInquiry stores a product inquiry. It gets an order id like an order
// so the Lead event is deduplicated the same way.
func (s *orderServiceImpl) CreateInquiry(ctx context.Context, req *InquiryRequest) (*SubmissionResponse, *ServiceError) {
	if !ValidBDPhone(req.Phone) {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid phone number"}
	}
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.ProductName) == "" {
		return nil, &ServiceError{StatusCode: 400, Message: "Name and product are required"}
	}

	order := &models.Order{
		OrderNumber:  s.issuer.Issue().String(),
		Kind:         models.KindInquiry,
		Status:       models.StatusIntake,
		CustomerName: strings.TrimSpace(req.CustomerName),
		Phone:        NormalizeBDPhone(req.Phone),
		ProductID:    req.ProductID,
		ProductName:  strings.TrimSpace(req.ProductName),
		Variant:      strings.TrimSpace(req.Variant),
		Quantity:     1,
		Note:         req.Message,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		s.logger.Error("failed to create inquiry", zap.String("order_id", order.OrderNumber), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to submit inquiry"}
	}
	s.logger.Info("inquiry created", zap.String("order_id", order.OrderNumber))

	s.afterSubmit(ctx, order, aws_pkg.MetricInquiriesCreated)

	return &SubmissionResponse{
		OrderID:     order.OrderNumber,
		RedirectURL: confirmationURL(order),
		Order:       order,
	}, nil
}

// UpdateStatus persists a status change, then publishes it and hands it to the
// conversion relay. Repeating the current status is a no-op.
func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderNumber, status, actor string) (*models.Order, *ServiceError) {
	if !models.ValidStatus(status) {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid status"}
	}
	if _, err := orderid.Parse(orderNumber); err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid order ID"}
	}

	now := time.Now().UTC()
	var from string
	order, err := s.repo.UpdateStatus(ctx, orderNumber, func(o *models.Order) (bool, error) {
		from = o.Status
		if o.Status == status {
			return false, nil
		}
		if !models.CanTransition(o.Status, status) {
			return false, errInvalidTransition
		}
		o.Status = status
		switch status {
		case models.StatusConfirmed:
			o.ConfirmedAt = &now
		case models.StatusCancelled:
			o.CancelledAt = &now
		case models.StatusDelivered:
			o.DeliveredAt = &now
		}
		return true, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return nil, &ServiceError{StatusCode: 404, Message: "Order not found"}
		case errors.Is(err, errInvalidTransition):
			return nil, &ServiceError{StatusCode: 409, Message: "Cannot change status from " + from + " to " + status}
		default:
			s.logger.Error("failed to update order status", zap.String("order_id", orderNumber), zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Message: "Failed to update order"}
		}
	}
	if from == status {
		return order, nil
	}

	s.logger.Info("order status changed",
		zap.String("order_id", orderNumber),
		zap.String("from", from),
		zap.String("to", status),
		zap.String("actor", actor))
	metrics.OrderStatusTransitions.WithLabelValues(status).Inc()
	if status == models.StatusCancelled {
		s.recordMetric(ctx, aws_pkg.MetricOrdersCancelled)
	}

	if s.extra.Events != nil {
		evt := models.OrderStatusEvent{
			Event:     models.EventOrderStatusChanged,
			OrderID:   orderNumber,
			From:      from,
			To:        status,
			Actor:     actor,
			Timestamp: now,
		}
		if err := s.extra.Events.Publish(ctx, orderNumber, evt); err != nil {
			s.logger.Warn("status event publish failed", zap.String("order_id", orderNumber), zap.Error(err))
		}
	}

	if s.relay != nil {
		s.relay.Dispatch(s.transitionFor(order, from, status, now))
	}
	return order, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderNumber string) (*models.Order, *ServiceError) {
	if _, err := orderid.Parse(orderNumber); err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid order ID"}
	}
	order, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Order not found"}
		}
		s.logger.Error("failed to fetch order", zap.String("order_id", orderNumber), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch order"}
	}
	return order, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, status string, page, limit int) (*OrderResponse, *ServiceError) {
	if status != "" && !models.ValidStatus(status) {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid status"}
	}
	orders, total, err := s.repo.FindAll(ctx, status, page, limit)
	if err != nil {
		s.logger.Error("failed to list orders", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch orders"}
	}
	return &OrderResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}, nil
}

// ConfirmationPayload returns the pixel call the confirmation page should make
// for a stored order. It is built by the same constructors the relay uses.
func (s *orderServiceImpl) ConfirmationPayload(ctx context.Context, orderNumber string) (*conversion.PixelPayload, *ServiceError) {
	order, serr := s.GetOrder(ctx, orderNumber)
	if serr != nil {
		return nil, serr
	}
	id := orderid.OrderID(order.OrderNumber)
	content := contentOf(order)

	var ev conversion.Event
	var err error
	if order.IsInquiry() {
		ev, err = conversion.NewLead(id, content, order.CreatedAt)
	} else {
		ev, err = conversion.NewPurchase(id, float64(order.Total), s.cfg.Currency, content, order.CreatedAt)
	}
	if err != nil {
		s.logger.Warn("order has no trackable conversion", zap.String("order_id", orderNumber), zap.Error(err))
		return nil, &ServiceError{StatusCode: 422, Message: "Order has no trackable conversion"}
	}
	payload := conversion.ToPixel(ev)
	return &payload, nil
}

// ReplayConversion re-drives the relay for a stored order as if it had just
// moved to status. The relay's ledger still drops repeats.
func (s *orderServiceImpl) ReplayConversion(ctx context.Context, orderNumber, status string) (relay.Outcome, *ServiceError) {
	if s.relay == nil {
		return relay.OutcomeDisabled, nil
	}
	if status != models.StatusConfirmed && status != models.StatusCancelled {
		return "", &ServiceError{StatusCode: 400, Message: "Only confirmed and cancelled have conversions"}
	}
	order, serr := s.GetOrder(ctx, orderNumber)
	if serr != nil {
		return "", serr
	}
	t := s.transitionFor(order, "replay", status, time.Now().UTC())
	return s.relay.Handle(ctx, t), nil
}

// Wait blocks until background notifications have finished.
func (s *orderServiceImpl) Wait() {
	s.notify.Wait()
}

func (s *orderServiceImpl) transitionFor(o *models.Order, from, to string, at time.Time) relay.Transition {
	return relay.Transition{
		OrderID:  orderid.OrderID(o.OrderNumber),
		Inquiry:  o.IsInquiry(),
		From:     from,
		To:       to,
		Total:    float64(o.Total),
		Currency: s.cfg.Currency,
		Content:  contentOf(o),
		Customer: userDataOf(o),
		At:       at,
	}
}

// afterSubmit runs the best-effort side channels of a new submission. The
// event is published inline; SMS and sheet calls run in the background.
func (s *orderServiceImpl) afterSubmit(ctx context.Context, o *models.Order, metric string) {
	s.recordMetric(ctx, metric)

	if s.extra.Events != nil {
		evt := models.OrderCreatedEvent{
			Event:       models.EventOrderCreated,
			OrderID:     o.OrderNumber,
			Kind:        o.Kind,
			ProductName: o.ProductName,
			Total:       o.Total,
			Timestamp:   time.Now().UTC(),
		}
		if err := s.extra.Events.Publish(ctx, o.OrderNumber, evt); err != nil {
			s.logger.Warn("order event publish failed", zap.String("order_id", o.OrderNumber), zap.Error(err))
		}
	}

	if s.extra.SMS == nil && s.extra.Sheet == nil {
		return
	}
	row := sender.SheetRow{
		OrderID:     o.OrderNumber,
		Kind:        o.Kind,
		Status:      o.Status,
		Customer:    o.CustomerName,
		Phone:       o.Phone,
		Address:     o.Address,
		Product:     o.ProductName,
		Variant:     o.Variant,
		Quantity:    o.Quantity,
		Total:       o.Total,
		SubmittedAt: time.Now().UTC(),
	}
	s.notify.Add(1)
	go func() {
		defer s.notify.Done()
		bg, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		s.notifySubmission(bg, row)
	}()
}

func (s *orderServiceImpl) notifySubmission(ctx context.Context, row sender.SheetRow) {
	log := s.logger.With(zap.String("order_id", row.OrderID))
	if s.extra.SMS != nil {
		msg, err := sender.RenderSMS(row)
		if err != nil {
			log.Warn("sms template failed", zap.Error(err))
		} else if _, err := s.extra.SMS.SendSMS(ctx, capi.NormalizePhone(row.Phone), msg); err != nil {
			log.Warn("order sms failed", zap.Error(err))
		}
	}
	if s.extra.Sheet != nil {
		if err := s.extra.Sheet.AppendRow(ctx, row); err != nil {
			log.Warn("sheet append failed", zap.Error(err))
		}
	}
}

func (s *orderServiceImpl) recordMetric(ctx context.Context, name string) {
	if s.extra.Metrics == nil {
		return
	}
	if err := s.extra.Metrics.RecordCount(ctx, name, nil); err != nil {
		s.logger.Debug("cloudwatch metric failed", zap.String("metric", name), zap.Error(err))
	}
}

func (s *orderServiceImpl) zoneFor(zone, city string) string {
	if zone == models.ZoneInsideDhaka || zone == models.ZoneOutsideDhaka {
		return zone
	}
	if strings.EqualFold(strings.TrimSpace(city), "dhaka") {
		return models.ZoneInsideDhaka
	}
	return models.ZoneOutsideDhaka
}

func confirmationURL(o *models.Order) string {
	q := url.Values{}
	q.Set("order_id", o.OrderNumber)
	q.Set("product", o.ProductName)
	if o.IsInquiry() {
		q.Set("type", "inquiry")
	} else {
		q.Set("type", "buy")
		q.Set("total", strconv.Itoa(o.Total))
	}
	if o.Variant != "" {
		q.Set("variant", o.Variant)
	}
	return ConfirmationPath + "?" + q.Encode()
}

func contentOf(o *models.Order) conversion.Content {
	return conversion.Content{ProductID: o.ProductID, Name: o.ProductName, Variant: o.Variant}
}

func userDataOf(o *models.Order) capi.UserData {
	first, last, _ := strings.Cut(strings.TrimSpace(o.CustomerName), " ")
	return capi.UserData{
		Email:     o.Email,
		Phone:     o.Phone,
		FirstName: first,
		LastName:  last,
		City:      o.City,
		Country:   "bd",
	}
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
