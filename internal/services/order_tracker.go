package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cardapio-field/api/internal/platform/scheduler"
)

var errTrackerOrdersRequired = errors.New("order tracker: order service is required")

const (
	defaultTrackingInterval = 3 * time.Second
	trackingKeyPrefix       = "tracking:"
)

// OrderTrackerDeps wires the order tracker.
type OrderTrackerDeps struct {
	Orders     OrderService
	Registry   *scheduler.Registry
	Interval   time.Duration
	RunTimeout time.Duration
	TaskLogger *zap.Logger
}

type orderTracker struct {
	orders     OrderService
	registry   *scheduler.Registry
	interval   time.Duration
	runTimeout time.Duration
	taskLogger *zap.Logger
}

var _ OrderTracker = (*orderTracker)(nil)

// NewOrderTracker constructs the per-session order refresher.
func NewOrderTracker(deps OrderTrackerDeps) (OrderTracker, error) {
	if deps.Orders == nil {
		return nil, errTrackerOrdersRequired
	}
	registry := deps.Registry
	if registry == nil {
		registry = scheduler.NewRegistry()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultTrackingInterval
	}
	taskLogger := deps.TaskLogger
	if taskLogger == nil {
		taskLogger = zap.NewNop()
	}
	return &orderTracker{
		orders:     deps.Orders,
		registry:   registry,
		interval:   interval,
		runTimeout: deps.RunTimeout,
		taskLogger: taskLogger,
	}, nil
}

// Track starts refreshing the session's current order, replacing any previous tracking
// task of the session. An empty orderID tracks the stored current order. The task stops
// on its own once the order is delivered or cancelled.
func (t *orderTracker) Track(ctx context.Context, sessionID, orderID string) (TrackingStatus, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return TrackingStatus{}, fmt.Errorf("%w: session id is required", ErrOrderInvalidInput)
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		current, err := t.orders.CurrentOrder(ctx, sid)
		if err != nil {
			return TrackingStatus{}, err
		}
		oid = current.ID
	}

	key := trackingKeyPrefix + sid
	var task *scheduler.Task
	task, err := scheduler.NewTask(key, t.interval, func(runCtx context.Context) error {
		order, err := t.orders.RefreshOrder(runCtx, sid, oid)
		if err != nil {
			return err
		}
		if order.Terminal() {
			go t.registry.Remove(key, task)
		}
		return nil
	}, scheduler.WithLogger(t.taskLogger), scheduler.WithRunTimeout(t.runTimeout))
	if err != nil {
		return TrackingStatus{}, err
	}

	// The task outlives the request that started it.
	if err := t.registry.Replace(context.WithoutCancel(ctx), key, task); err != nil {
		return TrackingStatus{}, err
	}
	return TrackingStatus{OrderID: oid, Active: true, Interval: t.interval}, nil
}

func (t *orderTracker) Untrack(sessionID string) bool {
	return t.registry.Stop(trackingKeyPrefix + strings.TrimSpace(sessionID))
}

func (t *orderTracker) Tracking(sessionID string) bool {
	return t.registry.Running(trackingKeyPrefix + strings.TrimSpace(sessionID))
}

func (t *orderTracker) ActiveSessions() int {
	return len(t.registry.Keys())
}

func (t *orderTracker) StopAll() {
	t.registry.StopAll()
}
