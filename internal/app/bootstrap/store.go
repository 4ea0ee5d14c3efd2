package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appconfig "github.com/wolfman30/mundos-engagement/internal/config"
	"github.com/wolfman30/mundos-engagement/internal/docstore"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// BuildStore opens the document store selected by STORE_BACKEND. The
// returned func releases its connections. awsCfg is only read for dynamodb.
func BuildStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (docstore.Store, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.StoreBackend {
	case appconfig.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		logger.Info("document store ready", "backend", "postgres")
		return docstore.NewPostgresStore(pool), pool.Close, nil

	case appconfig.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("bootstrap: ping mongo: %w", err)
		}
		logger.Info("document store ready", "backend", "mongo", "database", cfg.DatabaseName)
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return docstore.NewMongoStore(client.Database(cfg.DatabaseName)), closeFn, nil

	case appconfig.StoreDynamoDB:
		logger.Info("document store ready", "backend", "dynamodb", "table", cfg.DocumentsTable)
		return docstore.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DocumentsTable), func() {}, nil

	case appconfig.StoreMemory, "":
		logger.Warn("using in-memory document store; data is lost on restart")
		return docstore.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}
}
