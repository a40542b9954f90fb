package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/secret-santa/internal/adapters"
	"github.com/example/secret-santa/internal/application"
	"github.com/example/secret-santa/internal/matching"
)

// FastArgon2idParams keeps password hashing cheap in tests.
var FastArgon2idParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers, clocks and draws.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Engine      *matching.Engine
	Hasher      application.PasswordHasher
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. The default
// engine is seeded so draws repeat between runs.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Engine == nil {
		factory.Engine = matching.NewEngine(matching.SeededSource(2024, 12))
	}
	if factory.Hasher == nil {
		factory.Hasher = application.NewArgon2idHasher(FastArgon2idParams)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithEngine overrides the matching engine used by event services.
func WithEngine(engine *matching.Engine) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Engine = engine
	}
}

// EventServiceDeps captures dependencies for constructing an event service.
type EventServiceDeps struct {
	Events   application.EventRepository
	Users    application.UserDirectory
	Matcher  application.Matcher
	Notifier application.Notifier
	Logger   *slog.Logger
}

// NewEventService builds an event service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	matcher := deps.Matcher
	if matcher == nil {
		matcher = f.Engine
	}
	return application.NewEventServiceWithLogger(
		deps.Events,
		deps.Users,
		matcher,
		deps.Notifier,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// UserServiceDeps captures dependencies for constructing a user service.
type UserServiceDeps struct {
	Users  application.UserRepository
	Logger *slog.Logger
}

// NewUserService builds a user service using the supplied dependencies.
func (f *ServiceFactory) NewUserService(deps UserServiceDeps) *application.UserService {
	return application.NewUserServiceWithLogger(
		deps.Users,
		f.Hasher,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// Services is a fully wired application layer over one storage backend.
type Services struct {
	Stores   Stores
	Users    *application.UserService
	Events   *application.EventService
	Notifier *RecordingNotifier
}

// Wire connects stores through the adapters to fresh services. Notifications
// are captured by a RecordingNotifier.
func (f *ServiceFactory) Wire(stores Stores, logger *slog.Logger) Services {
	users := adapters.NewUserStore(stores.Users)
	notifier := &RecordingNotifier{}
	return Services{
		Stores: stores,
		Users:  f.NewUserService(UserServiceDeps{Users: users, Logger: logger}),
		Events: f.NewEventService(EventServiceDeps{
			Events:   adapters.NewEventStore(stores.Events),
			Users:    users,
			Notifier: notifier,
			Logger:   logger,
		}),
		Notifier: notifier,
	}
}

// RecordingNotifier stores every notification it receives.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []application.Notification
	Err  error
}

// Notify records the notification and returns Err.
func (n *RecordingNotifier) Notify(_ context.Context, notification application.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.Err
}

// Sent returns a copy of the recorded notifications.
func (n *RecordingNotifier) Sent() []application.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]application.Notification(nil), n.sent...)
}
