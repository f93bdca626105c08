package app

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/telecarehq/telecare_backend/config"
	"github.com/telecarehq/telecare_backend/internal/service/appointment"
	"github.com/telecarehq/telecare_backend/internal/service/auth"
	"github.com/telecarehq/telecare_backend/internal/service/conversation"
	"github.com/telecarehq/telecare_backend/internal/service/directory"
	"github.com/telecarehq/telecare_backend/internal/service/identity"
	"github.com/telecarehq/telecare_backend/internal/service/notification"
	"github.com/telecarehq/telecare_backend/internal/store"
	"github.com/telecarehq/telecare_backend/pkg/email"
	pasetotoken "github.com/telecarehq/telecare_backend/pkg/paseto"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvidePasetoManager,
		ProvideIdentityGuard,
		ProvideAuthService,
		ProvideNotificationService,
		ProvideConversationService,
		ProvideAppointmentService,
		ProvideDirectoryService,
	),
)

func ProvidePasetoManager(cfg *config.Config) (*pasetotoken.Manager, error) {
	return pasetotoken.NewPasetoManager(cfg)
}

func ProvideIdentityGuard(mgr *pasetotoken.Manager, stores *store.Stores) identity.Service {
	return identity.New(mgr, stores.Participants, slog.Default())
}

func ProvideAuthService(
	stores *store.Stores,
	rdb *redis.Client,
	mgr *pasetotoken.Manager,
	cfg *config.Config,
) auth.Service {
	return auth.New(stores.Users, stores.Participants, rdb, mgr, cfg, slog.Default())
}

func ProvideNotificationService(emailClient *email.Client, cfg *config.Config) notification.Service {
	return notification.New(emailClient, notification.PolicyFromConfig(cfg.Notifications), slog.Default())
}

func ProvideConversationService(stores *store.Stores, nc *nats.Conn) conversation.Service {
	return conversation.New(stores.Conversations, stores.Appointments, nc, slog.Default())
}

func ProvideAppointmentService(
	stores *store.Stores,
	dispatcher notification.Service,
	convSvc conversation.Service,
	nc *nats.Conn,
	cfg *config.Config,
) appointment.Service {
	return appointment.New(
		stores.Appointments,
		stores.Participants,
		dispatcher,
		convSvc,
		nc,
		slog.Default(),
		time.Duration(cfg.Notifications.DispatchTimeoutSeconds)*time.Second,
	)
}

func ProvideDirectoryService(stores *store.Stores) directory.Service {
	return directory.New(stores.Participants)
}
