package kv

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediarelay/pkg/config"
)

// Open builds the store selected by cfg. The returned close function releases backend
// connections and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, func(), error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemoryStore(), func() {}, nil
	case config.BackendDynamoDB:
		return openDynamo(ctx, cfg.DynamoDB)
	case config.BackendPostgres:
		return openPostgres(ctx, cfg.Postgres)
	default:
		return nil, func() {}, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func openDynamo(ctx context.Context, cfg config.DynamoDBConfig) (Store, func(), error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, func() {}, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewDynamoStore(client, cfg.Table), func() {}, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect postgres: %w", err)
	}

	store, err := NewPostgresStore(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, func() {}, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, func() {}, err
	}

	return store, pool.Close, nil
}
