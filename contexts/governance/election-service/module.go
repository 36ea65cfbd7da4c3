package electionservice

import (
	"log/slog"
	"time"

	"guildhall/contexts/governance/election-service/adapters/cache"
	httpadapter "guildhall/contexts/governance/election-service/adapters/http"
	"guildhall/contexts/governance/election-service/adapters/memory"
	"guildhall/contexts/governance/election-service/application/commands"
	"guildhall/contexts/governance/election-service/application/queries"
	"guildhall/contexts/governance/election-service/application/workers"
	"guildhall/contexts/governance/election-service/ports"
)

type Module struct {
	Handler   httpadapter.Handler
	Registry  commands.RegistryUseCase
	Ballots   commands.BallotUseCase
	Results   queries.ResultsQueries
	Elections queries.ElectionQueries
	Store     *memory.Store
}

type Dependencies struct {
	Elections          ports.ElectionRepository
	Ledger             ports.BallotLedger
	Eligibility        ports.EligibilityChecker
	Snapshots          ports.ResultSnapshotStore
	Cache              ports.ResultsCache
	Clock              ports.Clock
	IDGen              ports.IDGenerator
	Metrics            ports.Metrics
	EligibilityTimeout time.Duration
	PersistenceTimeout time.Duration
	Logger             *slog.Logger
}

func NewModule(deps Dependencies) Module {
	registry := commands.RegistryUseCase{
		Elections: deps.Elections,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger,
	}
	ballots := commands.BallotUseCase{
		Elections:          deps.Elections,
		Ledger:             deps.Ledger,
		Eligibility:        deps.Eligibility,
		Clock:              deps.Clock,
		IDGen:              deps.IDGen,
		Metrics:            deps.Metrics,
		Logger:             deps.Logger,
		EligibilityTimeout: deps.EligibilityTimeout,
		PersistenceTimeout: deps.PersistenceTimeout,
	}
	elections := queries.ElectionQueries{
		Elections: deps.Elections,
		Ledger:    deps.Ledger,
	}
	results := queries.ResultsQueries{
		Elections: deps.Elections,
		Ledger:    deps.Ledger,
		Snapshots: deps.Snapshots,
		Cache:     deps.Cache,
		Clock:     deps.Clock,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Registry:  registry,
			Ballots:   ballots,
			Elections: elections,
			Results:   results,
			Logger:    deps.Logger,
		},
		Registry:  registry,
		Ballots:   ballots,
		Results:   results,
		Elections: elections,
	}
}

// NewInMemoryModule wires every port to one in-memory store. Eligibility is
// controlled through Store.OpenRoll and Store.GrantEligibility.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	resultsCache, err := cache.NewResultsCache(0)
	if err != nil {
		panic(err)
	}
	module := NewModule(Dependencies{
		Elections:   store,
		Ledger:      store,
		Eligibility: store,
		Snapshots:   store,
		Cache:       resultsCache,
		Clock:       store,
		IDGen:       store,
		Logger:      logger,
	})
	module.Store = store
	return module
}

type WorkerDependencies struct {
	Outbox     ports.OutboxRepository
	Publisher  ports.EventPublisher
	Subscriber ports.EventSubscriber
	Dedup      ports.EventDedupStore
	Elections  ports.ElectionRepository
	Clock      ports.Clock
	BatchSize  int
	Logger     *slog.Logger
}

type Workers struct {
	OutboxRelay workers.OutboxRelay
	Scheduler   workers.ElectionScheduler
	Tally       workers.TallyConsumer
}

// NewWorkers builds the background jobs around the module's use cases.
func (m Module) NewWorkers(deps WorkerDependencies) Workers {
	return Workers{
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.BatchSize,
			Logger:    deps.Logger,
		},
		Scheduler: workers.ElectionScheduler{
			Elections: deps.Elections,
			Registry:  m.Registry,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
		Tally: workers.TallyConsumer{
			Subscriber: deps.Subscriber,
			Dedup:      deps.Dedup,
			Results:    m.Results,
			Counters:   m.Ballots,
			Clock:      deps.Clock,
			Logger:     deps.Logger,
		},
	}
}
