// Package integration starts the backing services used by tests that need real
// infrastructure. Callers skip these tests under -short.
package integration

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 2 * time.Minute

type Env struct {
	PG    *postgres.PostgresContainer
	Kafka *kafka.KafkaContainer
	Redis *tcredis.RedisContainer

	PGURL     string
	KAddr     []string
	RedisAddr string
}

func StartPostgres(ctx context.Context, env *Env) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("foodshare"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		return err
	}
	env.PG = pgC

	env.PGURL, err = pgC.ConnectionString(ctx, "sslmode=disable")
	return err
}

func StartKafka(ctx context.Context, env *Env) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("foodshare-test"),
	)
	if err != nil {
		return err
	}
	env.Kafka = kafkaC

	env.KAddr, err = kafkaC.Brokers(ctx)
	return err
}

func StartRedis(ctx context.Context, env *Env) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	redisC, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return err
	}
	env.Redis = redisC

	endpoint, err := redisC.Endpoint(ctx, "")
	if err != nil {
		return err
	}
	env.RedisAddr = endpoint
	return nil
}

func (e *Env) Teardown(ctx context.Context) {
	if e.Kafka != nil {
		_ = e.Kafka.Terminate(ctx)
	}
	if e.Redis != nil {
		_ = e.Redis.Terminate(ctx)
	}
	if e.PG != nil {
		_ = e.PG.Terminate(ctx)
	}
}
