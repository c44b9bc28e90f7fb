package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/repositories"
)

// Backend names used as readiness check keys.
const (
	BackendOrderAPI  = "orderApi"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendPubSub    = "pubsub"
)

const (
	orderAPICheckTimeout = 3 * time.Second
	orderAPICheckSlug    = "healthz"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// Backends holds one readiness check per backend. A nil check means the backend is
// not configured: carts and current orders then live in memory and notifications are not
// published.
type Backends struct {
	OrderAPI  func(context.Context) error
	Redis     func(context.Context) error
	Firestore func(context.Context) error
	PubSub    func(context.Context) error
}

// Checks turns the configured backends into dependency checks. Only the Order API is
// critical.
func (p Backends) Checks() []repositories.DependencyCheck {
	var checks []repositories.DependencyCheck
	if p.OrderAPI != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     BackendOrderAPI,
			Critical: true,
			Timeout:  orderAPICheckTimeout,
			Check:    p.OrderAPI,
		})
	}
	for _, optional := range []struct {
		name  string
		check func(context.Context) error
	}{
		{BackendRedis, p.Redis},
		{BackendFirestore, p.Firestore},
		{BackendPubSub, p.PubSub},
	} {
		if optional.check != nil {
			checks = append(checks, repositories.DependencyCheck{Name: optional.name, Check: optional.check})
		}
	}
	return checks
}

func (p Backends) unconfigured() map[string]string {
	missing := map[string]string{}
	if p.Redis == nil {
		missing[BackendRedis] = "carts kept in memory"
	}
	if p.Firestore == nil {
		missing[BackendFirestore] = "current orders kept in memory"
	}
	if p.PubSub == nil {
		missing[BackendPubSub] = "notification publishing disabled"
	}
	return missing
}

// OrderAPIPing looks up a reserved slug. Any answer from the API, a 404 included, proves
// it is reachable.
func OrderAPIPing(gateway CatalogGateway) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := gateway.GetRestaurantBySlug(ctx, orderAPICheckSlug)
		if err != nil && !isGatewayNotFound(err) {
			return err
		}
		return nil
	}
}

// SystemServiceDeps wires readiness reporting. When HealthRepository is nil one is built
// from Backends.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Backends         Backends
	Tracker          OrderTracker
	Notifications    NotificationService
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health        repositories.HealthRepository
	unconfigured  map[string]string
	tracker       OrderTracker
	notifications NotificationService
	now           func() time.Time
	build         BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the readiness reporter.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	health := deps.HealthRepository
	if health == nil {
		if deps.Backends.OrderAPI == nil {
			return nil, errors.New("system service: health repository or order api check is required")
		}
		repo, err := repositories.NewDependencyHealthRepository(deps.Backends.Checks())
		if err != nil {
			return nil, err
		}
		health = repo
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		health:        health,
		unconfigured:  deps.Backends.unconfigured(),
		tracker:       deps.Tracker,
		notifications: deps.Notifications,
		now:           func() time.Time { return clock().UTC() },
		build:         build,
	}, nil
}

// HealthReport runs the backend checks, lists unconfigured backends as ok, and adds the
// polling workload and build metadata.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	for name, detail := range s.unconfigured {
		if _, ok := report.Checks[name]; ok {
			continue
		}
		report.Checks[name] = domain.SystemHealthCheck{Status: domain.HealthStatusOK, Detail: detail}
	}

	if s.tracker != nil {
		report.Polling.TrackedSessions = s.tracker.ActiveSessions()
	}
	report.Polling.WatchedRestaurants = []string{}
	if s.notifications != nil {
		report.Polling.WatchedRestaurants = append(report.Polling.WatchedRestaurants, s.notifications.WatchedRestaurants()...)
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Status == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report, nil
}

func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
