package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/scheduler"
)

var errNotificationGatewayRequired = errors.New("notification service: gateway is required")

// ErrNotificationNotFound indicates the notification is not in the restaurant feed.
var ErrNotificationNotFound = errors.New("notification service: not found")

// ErrNotificationInvalidInput indicates a missing restaurant id.
var ErrNotificationInvalidInput = errors.New("notification service: invalid input")

const (
	defaultNotificationInterval = 5 * time.Second
	notificationKeyPrefix       = "notifications:"
	notificationTypeOrder       = "order"
	notificationTitleNewOrder   = "Novo Pedido"
	notificationMeterName       = "github.com/cardapio-field/api/internal/services"
)

// NotificationServiceDeps wires the notification feed.
type NotificationServiceDeps struct {
	Gateway    OrderGateway
	Publisher  NotificationPublisher
	Registry   *scheduler.Registry
	Interval   time.Duration
	RunTimeout time.Duration
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
	TaskLogger *zap.Logger
	Meter      metric.Meter
}

// restaurantFeed is the detection state of one restaurant. baselined stays false until a
// listing succeeds; that listing emits nothing.
type restaurantFeed struct {
	baselined     bool
	known         map[string]struct{}
	seen          map[string]struct{}
	notifications []domain.Notification
	unread        int
}

func newRestaurantFeed() *restaurantFeed {
	return &restaurantFeed{
		known:         map[string]struct{}{},
		seen:          map[string]struct{}{},
		notifications: []domain.Notification{},
	}
}

type notificationService struct {
	gateway    OrderGateway
	publisher  NotificationPublisher
	registry   *scheduler.Registry
	interval   time.Duration
	runTimeout time.Duration
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
	taskLogger *zap.Logger
	emitted    metric.Int64Counter
	polls      metric.Int64Counter

	mu    sync.Mutex
	feeds map[string]*restaurantFeed
}

var _ NotificationService = (*notificationService)(nil)

// NewNotificationService constructs the admin new-order feed.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Gateway == nil {
		return nil, errNotificationGatewayRequired
	}
	registry := deps.Registry
	if registry == nil {
		registry = scheduler.NewRegistry()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultNotificationInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	taskLogger := deps.TaskLogger
	if taskLogger == nil {
		taskLogger = zap.NewNop()
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(notificationMeterName)
	}
	emitted, err := meter.Int64Counter("notifications.emitted",
		metric.WithDescription("New-order notifications added to admin feeds."))
	if err != nil {
		return nil, err
	}
	polls, err := meter.Int64Counter("notifications.polls",
		metric.WithDescription("Order listing polls by outcome."))
	if err != nil {
		return nil, err
	}

	return &notificationService{
		gateway:    deps.Gateway,
		publisher:  deps.Publisher,
		registry:   registry,
		interval:   interval,
		runTimeout: deps.RunTimeout,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
		taskLogger: taskLogger,
		emitted:    emitted,
		polls:      polls,
		feeds:      make(map[string]*restaurantFeed),
	}, nil
}

// Watch resets the restaurant feed, takes the baseline listing and starts polling. A
// failed baseline is logged; the first successful poll then becomes the baseline.
func (s *notificationService) Watch(ctx context.Context, restaurantID string) error {
	rid := strings.TrimSpace(restaurantID)
	if rid == "" {
		return fmt.Errorf("%w: restaurant id is required", ErrNotificationInvalidInput)
	}

	key := notificationKeyPrefix + rid
	s.registry.Stop(key)

	s.mu.Lock()
	s.feeds[rid] = newRestaurantFeed()
	s.mu.Unlock()

	if _, err := s.Poll(ctx, rid); err != nil && isContextError(err) {
		return err
	}

	task, err := scheduler.NewTask(key, s.interval, func(runCtx context.Context) error {
		_, err := s.Poll(runCtx, rid)
		return err
	}, scheduler.WithLogger(s.taskLogger), scheduler.WithRunTimeout(s.runTimeout))
	if err != nil {
		return err
	}
	return s.registry.Replace(context.WithoutCancel(ctx), key, task)
}

func (s *notificationService) Unwatch(restaurantID string) bool {
	return s.registry.Stop(notificationKeyPrefix + strings.TrimSpace(restaurantID))
}

// Poll lists the restaurant's orders and emits a notification for every order id absent
// from the previous successful listing. Failures leave the snapshot untouched.
func (s *notificationService) Poll(ctx context.Context, restaurantID string) ([]Notification, error) {
	rid := strings.TrimSpace(restaurantID)
	if rid == "" {
		return nil, fmt.Errorf("%w: restaurant id is required", ErrNotificationInvalidInput)
	}

	orders, err := s.gateway.ListOrders(ctx, rid)
	if err != nil {
		s.recordPoll(ctx, rid, "error")
		if !isContextError(err) {
			s.logger(ctx, "notifications.poll.failed", map[string]any{
				"restaurantID": rid,
				"error":        err.Error(),
			})
		}
		return nil, err
	}
	s.recordPoll(ctx, rid, "ok")

	current := make(map[string]struct{}, len(orders))
	for _, order := range orders {
		if order.ID != "" {
			current[order.ID] = struct{}{}
		}
	}

	s.mu.Lock()
	feed := s.feedLocked(rid)
	if !feed.baselined {
		feed.baselined = true
		feed.known = current
		s.mu.Unlock()
		return nil, nil
	}

	var fresh []domain.Notification
	for _, order := range orders {
		if order.ID == "" {
			continue
		}
		if _, ok := feed.known[order.ID]; ok {
			continue
		}
		n := s.newOrderNotification(order)
		if _, ok := feed.seen[n.ID]; ok {
			continue
		}
		feed.seen[n.ID] = struct{}{}
		feed.notifications = append([]domain.Notification{n}, feed.notifications...)
		feed.unread++
		fresh = append(fresh, n)
	}
	feed.known = current
	s.mu.Unlock()

	if len(fresh) > 0 {
		s.emitted.Add(ctx, int64(len(fresh)), metric.WithAttributes(attribute.String("restaurant", rid)))
		s.logger(ctx, "notifications.new_orders", map[string]any{
			"restaurantID": rid,
			"count":        len(fresh),
		})
		s.publish(ctx, rid, fresh)
	}
	return fresh, nil
}

func (s *notificationService) Feed(restaurantID string) NotificationFeed {
	rid := strings.TrimSpace(restaurantID)
	watching := s.registry.Running(notificationKeyPrefix + rid)

	s.mu.Lock()
	defer s.mu.Unlock()
	feed := NotificationFeed{
		RestaurantID:  rid,
		Notifications: []Notification{},
		Watching:      watching,
	}
	if state, ok := s.feeds[rid]; ok {
		feed.Notifications = append(feed.Notifications, state.notifications...)
		feed.UnreadCount = state.unread
	}
	return feed
}

func (s *notificationService) MarkAsRead(restaurantID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, idx := s.findLocked(restaurantID, notificationID)
	if idx < 0 {
		return ErrNotificationNotFound
	}
	if !feed.notifications[idx].Read {
		feed.notifications[idx].Read = true
		feed.unread = max(0, feed.unread-1)
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(restaurantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[strings.TrimSpace(restaurantID)]
	if !ok {
		return
	}
	for i := range feed.notifications {
		feed.notifications[i].Read = true
	}
	feed.unread = 0
}

// RemoveNotification drops the entry and forgets its id, so the same order can notify
// again if it reappears as new.
func (s *notificationService) RemoveNotification(restaurantID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, idx := s.findLocked(restaurantID, notificationID)
	if idx < 0 {
		return ErrNotificationNotFound
	}
	if !feed.notifications[idx].Read {
		feed.unread = max(0, feed.unread-1)
	}
	delete(feed.seen, notificationID)
	feed.notifications = append(feed.notifications[:idx], feed.notifications[idx+1:]...)
	return nil
}

func (s *notificationService) ClearAll(restaurantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[strings.TrimSpace(restaurantID)]
	if !ok {
		return
	}
	feed.notifications = []domain.Notification{}
	feed.unread = 0
	feed.seen = map[string]struct{}{}
}

// WatchedRestaurants lists the restaurants with a running poller.
func (s *notificationService) WatchedRestaurants() []string {
	keys := s.registry.Keys()
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, notificationKeyPrefix))
	}
	return ids
}

func (s *notificationService) StopAll() {
	s.registry.StopAll()
}

func (s *notificationService) feedLocked(restaurantID string) *restaurantFeed {
	feed, ok := s.feeds[restaurantID]
	if !ok {
		feed = newRestaurantFeed()
		s.feeds[restaurantID] = feed
	}
	return feed
}

func (s *notificationService) findLocked(restaurantID, notificationID string) (*restaurantFeed, int) {
	feed, ok := s.feeds[strings.TrimSpace(restaurantID)]
	if !ok {
		return nil, -1
	}
	for i, n := range feed.notifications {
		if n.ID == notificationID {
			return feed, i
		}
	}
	return feed, -1
}

func (s *notificationService) newOrderNotification(order domain.Order) domain.Notification {
	name := order.DisplayCustomerName()
	if strings.TrimSpace(name) == "" {
		name = "Cliente"
	}
	return domain.Notification{
		ID:        NotificationID(order.ID),
		Type:      notificationTypeOrder,
		OrderID:   order.ID,
		Title:     notificationTitleNewOrder,
		Message:   fmt.Sprintf("Pedido #%s - %s", lastN(order.ID, 8), name),
		Read:      false,
		CreatedAt: s.now(),
	}
}

func (s *notificationService) publish(ctx context.Context, restaurantID string, notifications []domain.Notification) {
	if s.publisher == nil {
		return
	}
	for _, n := range notifications {
		if err := s.publisher.PublishNotification(ctx, restaurantID, n); err != nil {
			s.logger(ctx, "notifications.publish.failed", map[string]any{
				"restaurantID":   restaurantID,
				"notificationID": n.ID,
				"error":          err.Error(),
			})
		}
	}
}

func (s *notificationService) recordPoll(ctx context.Context, restaurantID, outcome string) {
	s.polls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("restaurant", restaurantID),
		attribute.String("outcome", outcome),
	))
}

// NotificationID derives the feed id of an order.
func NotificationID(orderID string) string {
	return "order_" + orderID
}
