// Package infrastructure provides document store connection setup.
//
// All collections share a single mongo.Client; the driver maintains its own
// connection pool, so components receive *mongo.Collection handles instead of
// opening their own clients.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/config"
	"sitefoundry.io/foreman/internal/pkg/logger"
)

// Collection names in the Foreman document store.
const (
	CollAdmins     = "admins"
	CollStaffs     = "staffs"
	CollProjects   = "projects"
	CollPushTokens = "push_tokens"
)

// DatabaseClients contains the shared document store client and database handle.
type DatabaseClients struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewDatabaseClients connects to the document store and verifies the connection.
func NewDatabaseClients(ctx context.Context, cfg config.MongoConfig) (*DatabaseClients, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("Document store connected",
		zap.String("database", cfg.Database),
	)

	return &DatabaseClients{
		Client:   client,
		Database: client.Database(cfg.Database),
	}, nil
}

// EnsureIndexes creates the indexes the pipeline relies on. Safe to call on
// every boot; index creation is idempotent.
func (c *DatabaseClients) EnsureIndexes(ctx context.Context) error {
	tokenIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "lastUsed", Value: 1}},
		},
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.Database.Collection(CollPushTokens).Indexes().CreateMany(opCtx, tokenIndexes); err != nil {
		return fmt.Errorf("create push_tokens indexes: %w", err)
	}

	if _, err := c.Database.Collection(CollStaffs).Indexes().CreateOne(opCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "clients", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create staffs client index: %w", err)
	}

	logger.Info("Document store indexes ensured")
	return nil
}

// Collection returns a handle to a named collection.
func (c *DatabaseClients) Collection(name string) *mongo.Collection {
	return c.Database.Collection(name)
}

// Close disconnects the client gracefully.
func (c *DatabaseClients) Close() {
	if c.Client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Client.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect failed", zap.Error(err))
	}
}
