package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
	eventsvc "github.com/shf-platform/credit_layer/internal/app/services/events"
	ledgersvc "github.com/shf-platform/credit_layer/internal/app/services/ledger"
	rewardsvc "github.com/shf-platform/credit_layer/internal/app/services/rewards"
	tasksvc "github.com/shf-platform/credit_layer/internal/app/services/tasks"
	walletsvc "github.com/shf-platform/credit_layer/internal/app/services/wallet"
	"github.com/shf-platform/credit_layer/internal/app/storage"
	"github.com/shf-platform/credit_layer/internal/app/storage/memory"
	"github.com/shf-platform/credit_layer/internal/app/system"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Events storage.EventStore
	Wallet storage.WalletStore
	Awards storage.AwardStore
	KV     storage.KV
}

// Options tunes application wiring. Zero values fall back to environment
// variables and platform defaults.
type Options struct {
	MirrorURL       string
	RefreshInterval time.Duration
	JobSchedule     string
}

// Application ties the credit services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Events  *eventsvc.Service
	Wallet  *walletsvc.Service
	Rewards *rewardsvc.Service
	Tasks   *tasksvc.Service
	Export  *ledgersvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Events == nil {
		stores.Events = mem
	}
	if stores.Wallet == nil {
		stores.Wallet = mem
	}
	if stores.Awards == nil {
		stores.Awards = mem
	}
	if stores.KV == nil {
		stores.KV = mem
	}

	manager := system.NewManager()

	eventsService := eventsvc.New(stores.Events, nil, log)

	mirrorURL := strings.TrimSpace(opts.MirrorURL)
	if mirrorURL == "" {
		mirrorURL = strings.TrimSpace(os.Getenv("MIRROR_URL"))
	}
	if mirrorURL != "" {
		mirror, err := eventsvc.NewMirror(&http.Client{Timeout: 10 * time.Second}, mirrorURL, log)
		if err != nil {
			log.WithError(err).Warn("configure event mirror")
		} else {
			eventsService.WithMirror(mirror)
		}
	} else {
		log.Warn("MIRROR_URL not set; event mirroring disabled")
	}

	walletService := walletsvc.New(stores.Wallet, wallet.DefaultRates(), log).
		WithTierProvider(tierBands{eventsService})
	rewardsService := rewardsvc.New(stores.Awards, nil, log)
	eventsService.Subscribe(rewardsService)

	tasksService := tasksvc.New(eventsService, nil, log)
	exportService := ledgersvc.New(eventsService, log)

	for _, name := range []string{"events", "wallet", "rewards", "tasks"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	refresher := eventsvc.NewRefresher(eventsService, log)
	if opts.RefreshInterval > 0 {
		refresher.WithInterval(opts.RefreshInterval)
	}

	jobs := ledgersvc.NewJobs(walletService, stores.KV, log)
	if schedule := strings.TrimSpace(opts.JobSchedule); schedule != "" {
		jobs.WithSchedule(schedule)
	}

	for _, svc := range []system.Service{refresher, jobs} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager: manager,
		log:     log,
		Events:  eventsService,
		Wallet:  walletService,
		Rewards: rewardsService,
		Tasks:   tasksService,
		Export:  exportService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// tierBands adapts the derived score state to the wallet's pricing input.
type tierBands struct {
	events *eventsvc.Service
}

func (t tierBands) TierBand(ctx context.Context, userID string) string {
	return t.events.Score(ctx, userID).Tier.Band
}
