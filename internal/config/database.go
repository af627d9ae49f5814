package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/redisclient"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLDriverName maps a configured dialect to its database/sql driver name
func SQLDriverName(dialect string) string {
	if dialect == DriverSQLite {
		return "sqlite"
	}
	return "pgx"
}

// OpenDatabase opens and pings the relational store
func OpenDatabase(ctx context.Context, cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(SQLDriverName(cfg.DBDriver), cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.DBDriver == DriverSQLite {
		// single writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Logger.Info("connected to database",
		zap.String("driver", cfg.DBDriver),
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName))
	return db, nil
}

// InitRedis connects the optional Redis client. It returns nil when no
// REDIS_URI is configured.
func InitRedis(ctx context.Context, cfg *Config) (*redisclient.Client, error) {
	if cfg.RedisURI == "" {
		logging.Logger.Info("redis is not configured")
		return nil, nil
	}

	opts := &redis.Options{Addr: cfg.RedisURI}
	if strings.HasPrefix(cfg.RedisURI, "redis://") || strings.HasPrefix(cfg.RedisURI, "rediss://") {
		parsed, err := redis.ParseURL(cfg.RedisURI)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URI: %w", err)
		}
		opts = parsed
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 2

	client := redisclient.NewClient(redis.NewClient(opts))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logging.Logger.Info("connected to Redis", zap.String("addr", opts.Addr))
	return client, nil
}

// InitMongoDB connects the optional audit store and ensures its indexes. It
// returns nil values when no AUDIT_MONGODB_URI is configured.
func InitMongoDB(ctx context.Context, cfg *Config) (*mongo.Client, *mongo.Collection, error) {
	if cfg.AuditMongoURI == "" {
		logging.Logger.Info("audit store is not configured")
		return nil, nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.AuditMongoURI).
		SetMonitor(otelmongo.NewMonitor()).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	collection := client.Database(cfg.AuditMongoDatabase).Collection(cfg.AuditCollection)
	if err := ensureAuditLogsIndex(connectCtx, collection, logging.Logger.Named("database")); err != nil {
		logging.Logger.Error("failed to ensure audit indexes on startup", zap.Error(err))
	}

	logging.Logger.Info("connected to MongoDB",
		zap.String("uri", maskMongoURI(cfg.AuditMongoURI)),
		zap.String("database", cfg.AuditMongoDatabase),
		zap.String("collection", cfg.AuditCollection))
	return client, collection, nil
}

// maskMongoURI masks credentials in a MongoDB URI
func maskMongoURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return uri
	}
	scheme := "mongodb://"
	if strings.HasPrefix(uri, "mongodb+srv://") {
		scheme = "mongodb+srv://"
	}
	return scheme + "****:****@" + uri[at+1:]
}

// auditIndexes lists the indexes the audit collection needs
func auditIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_1"),
		},
		{
			Keys:    bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("action_1_timestamp_-1"),
		},
		{
			Keys: bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().
				SetName("timestamp_ttl").
				SetExpireAfterSeconds(365 * 24 * 60 * 60),
		},
	}
}

// ensureAuditLogsIndex creates the audit indexes that do not exist yet
func ensureAuditLogsIndex(ctx context.Context, collection *mongo.Collection, logger *logging.SafeLogger) error {
	cursor, err := collection.Indexes().List(ctx)
	if err != nil {
		logger.Error("failed to list indexes", zap.Error(err))
		return err
	}
	defer cursor.Close(ctx)

	existing := make(map[string]bool)
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			continue
		}
		if name, ok := index["name"].(string); ok {
			existing[name] = true
		}
	}

	created := 0
	for _, model := range auditIndexes() {
		if existing[*model.Options.Name] {
			continue
		}
		if _, err := collection.Indexes().CreateOne(ctx, model); err != nil {
			// another instance may have created it concurrently
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			logger.Error("failed to create audit index",
				zap.String("index", *model.Options.Name),
				zap.Error(err))
			return err
		}
		created++
	}

	if created > 0 {
		logger.Info("created audit collection indexes",
			zap.String("collection", collection.Name()),
			zap.Int("count", created))
	}
	return nil
}
