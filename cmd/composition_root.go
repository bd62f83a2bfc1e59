package cmd

import (
	"context"
	"log/slog"

	httpadapter "dispatch/internal/adapters/in/http"
	"dispatch/internal/adapters/in/ws"
	"dispatch/internal/adapters/out/postgres"
	"dispatch/internal/core/application/dispatch"
	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/application/relay"
	"dispatch/internal/core/application/usecases/commands"
	"dispatch/internal/core/application/usecases/queries"
	"dispatch/internal/core/domain/services"
	"dispatch/internal/jobs"

	"gorm.io/gorm"
)

// CompositionRoot wires the full object graph: presence registry, websocket
// notifier, dispatch coordinator, relays, gateway, REST server and jobs.
type CompositionRoot struct {
	gormDB     *gorm.DB
	uowFactory *postgres.GormUnitOfWorkFactory
	logger     *slog.Logger

	registry    *presence.Registry
	coordinator *dispatch.Coordinator
	locations   *relay.LocationRelay
	chat        *relay.ChatRelay
	auth        *ws.TokenAuthenticator
	gateway     *ws.Gateway
	jobManager  *jobs.JobManager
}

func NewCompositionRoot(config Config, gormDB *gorm.DB, logger *slog.Logger) (*CompositionRoot, error) {
	uowFactory := postgres.NewGormUnitOfWorkFactory(gormDB)

	registry := presence.NewRegistry(logger)
	notifier := ws.NewNotifier(registry, logger)
	ranking := services.NewNearestFirstPolicy(services.DefaultTierSize)

	coordinator := dispatch.NewCoordinator(
		registry, notifier, ranking, uowFactory, config.OfferTTL, logger)

	locations := relay.NewLocationRelay(
		coordinator, registry, notifier, config.LocationThrottle, logger)
	chat := relay.NewChatRelay(coordinator, notifier, logger)

	// Terminal orders tear down their relay state and send the route
	// tombstone to the customer.
	coordinator.SetTerminalHandler(locations.HandleOrderTerminated)

	auth, err := ws.NewTokenAuthenticator(config.WSTokenSecret)
	if err != nil {
		return nil, err
	}

	gateway := ws.NewGateway(registry, coordinator, locations, chat, auth, logger)

	jobManager := jobs.NewJobManager(
		registry, coordinator, config.SessionMaxIdle, config.TerminalRetention, logger)

	return &CompositionRoot{
		gormDB:      gormDB,
		uowFactory:  uowFactory,
		logger:      logger,
		registry:    registry,
		coordinator: coordinator,
		locations:   locations,
		chat:        chat,
		auth:        auth,
		gateway:     gateway,
		jobManager:  jobManager,
	}, nil
}

func (c *CompositionRoot) CreateCreateOrderCommandHandler() commands.CreateOrderCommandHandler {
	var f commands.OrderUoWFactory = FuncOrderUoWFactory(func() commands.OrderUoW {
		return c.uowFactory.Create()
	})
	return commands.NewCreateOrderCommandHandler(f, c.coordinator)
}

func (c *CompositionRoot) CreateGetOrderQueryHandler() queries.GetOrderQueryHandler {
	return queries.NewGetOrderQueryHandler(c.gormDB)
}

func (c *CompositionRoot) CreateGetActiveOrdersQueryHandler() queries.GetActiveOrdersQueryHandler {
	return queries.NewGetActiveOrdersQueryHandler(c.gormDB)
}

func (c *CompositionRoot) CreateHTTPServer() *httpadapter.Server {
	return httpadapter.NewServer(
		c.CreateCreateOrderCommandHandler(),
		c.CreateGetOrderQueryHandler(),
		c.CreateGetActiveOrdersQueryHandler(),
		c.coordinator,
		c.registry,
		c.auth,
	)
}

func (c *CompositionRoot) Gateway() *ws.Gateway {
	return c.gateway
}

func (c *CompositionRoot) JobManager() *jobs.JobManager {
	return c.jobManager
}

// RestoreActiveOrders loads all non-terminal orders from the database and
// re-enters them into dispatch. Orders with an open offer window at crash
// time restart their round from a fresh generation.
func (c *CompositionRoot) RestoreActiveOrders(ctx context.Context) error {
	orders, err := c.uowFactory.Create().OrderRepository().GetAllActive(ctx)
	if err != nil {
		return err
	}
	return c.coordinator.Restore(ctx, orders)
}

type FuncOrderUoWFactory func() commands.OrderUoW

func (f FuncOrderUoWFactory) Create() commands.OrderUoW {
	return f()
}
