package mongo

import (
	"context"
	"fmt"
	"log"
	"time"

	"permission_service/internal/config"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Connect builds the Mongo client and returns the service database.
func Connect(cfg config.MongoDBConfig) (*mongo.Client, *mongo.Database, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(serverAPI).
		SetMaxPoolSize(cfg.PoolSize).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(60 * time.Second).
		SetCompressors([]string{"zstd", "snappy", "zlib"}).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		log.Printf("Warning: Could not verify MongoDB connection: %s", err)
	} else {
		log.Println("Successfully connected to MongoDB")
	}

	log.Printf("MongoDB initialized - Database: %s, Max Pool Size: %d", cfg.Database, cfg.PoolSize)
	return client, client.Database(cfg.Database), nil
}

func Disconnect(client *mongo.Client) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		log.Printf("Error disconnecting from MongoDB: %s", err)
	} else {
		log.Println("Successfully disconnected from MongoDB")
	}
}
