package app

import (
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/config"
	"github.com/jurisdesk/atendimento/internal/pkg/queue"
	queue_memory "github.com/jurisdesk/atendimento/internal/pkg/queue/memory"
	queue_redis "github.com/jurisdesk/atendimento/internal/pkg/queue/redis"
	"github.com/jurisdesk/atendimento/internal/pkg/ratelimiter"
	limiter_memory "github.com/jurisdesk/atendimento/internal/pkg/ratelimiter/memory"
	limiter_redis "github.com/jurisdesk/atendimento/internal/pkg/ratelimiter/redis"
	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/storage/postgres"
	storage_redis "github.com/jurisdesk/atendimento/internal/storage/redis"
	"github.com/jurisdesk/atendimento/internal/storage/sqlite"
)

// Repositories agrega os repositórios e a infraestrutura compartilhada
// escolhidos conforme o driver de storage e a presença do Redis.
type Repositories struct {
	Connection    storage.ConnectionRepository
	Contact       storage.ContactRepository
	Ticket        storage.TicketRepository
	TicketMessage storage.TicketMessageRepository
	Process       storage.ProcessRepository
	RedisClient   *storage_redis.Client // Pode ser nil se Redis estiver desabilitado
	PushQueue     queue.Queue
	RateLimiter   ratelimiter.Limiter
}

func NewRepositories(cfg config.Config, log *zap.Logger) (*Repositories, error) {
	log.Info("inicializando repositórios",
		zap.String("driver", cfg.Storage.Driver),
	)

	var (
		pushQueue   queue.Queue
		rateLimiter ratelimiter.Limiter
		storeRedis  *storage_redis.Client
		err         error
	)

	// Inicializa Redis apenas se explicitamente habilitado
	if cfg.Redis.Enabled {
		log.Info("inicializando Redis...")
		storeRedis, err = storage_redis.New(cfg.Redis, log)
		if err != nil {
			log.Error("erro ao conectar com Redis", zap.Error(err))
			return nil, err
		}

		redisClient := storeRedis.RDB()
		pushQueue = queue_redis.NewQueue(redisClient, "push:events")
		rateLimiter = limiter_redis.NewLimiter(redisClient)
		log.Info("Redis conectado, fila e limiter configurados")
	} else {
		log.Info("usando implementações em memória (Redis desabilitado)")
		pushQueue = queue_memory.NewQueue(10000)
		rateLimiter = limiter_memory.NewLimiter()
	}

	switch cfg.Storage.Driver {
	case "sqlite", "":
		log.Debug("criando conexão com SQLite")
		db, err := sqlite.New(cfg.Storage.DataDir, log)
		if err != nil {
			log.Error("erro ao conectar com SQLite", zap.Error(err))
			return nil, err
		}

		log.Info("repositórios SQLite criados com sucesso", zap.String("data_dir", cfg.Storage.DataDir))
		return &Repositories{
			Connection:    sqlite.NewConnectionRepository(db),
			Contact:       sqlite.NewContactRepository(db),
			Ticket:        sqlite.NewTicketRepository(db),
			TicketMessage: sqlite.NewTicketMessageRepository(db),
			Process:       sqlite.NewProcessRepository(db),
			RedisClient:   storeRedis,
			PushQueue:     pushQueue,
			RateLimiter:   rateLimiter,
		}, nil

	case "postgres":
		log.Debug("criando conexão com PostgreSQL")
		db, err := postgres.New(cfg.DB, log)
		if err != nil {
			log.Error("erro ao conectar com PostgreSQL", zap.Error(err))
			return nil, err
		}

		log.Info("repositórios PostgreSQL criados com sucesso")
		return &Repositories{
			Connection:    postgres.NewConnectionRepository(db),
			Contact:       postgres.NewContactRepository(db),
			Ticket:        postgres.NewTicketRepository(db),
			TicketMessage: postgres.NewTicketMessageRepository(db),
			Process:       postgres.NewProcessRepository(db),
			RedisClient:   storeRedis,
			PushQueue:     pushQueue,
			RateLimiter:   rateLimiter,
		}, nil

	default:
		log.Error("driver de storage desconhecido",
			zap.String("driver", cfg.Storage.Driver),
		)
		return nil, &ErrUnknownDriver{Driver: cfg.Storage.Driver}
	}
}

type ErrUnknownDriver struct {
	Driver string
}

func (e *ErrUnknownDriver) Error() string {
	return "storage: driver desconhecido: " + e.Driver
}
