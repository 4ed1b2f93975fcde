package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options ajusta o cliente por serviço. Campos zero usam os padrões.
type Options struct {
	PoolSize int           // padrão do go-redis: 10 por CPU
	Timeout  time.Duration // leitura e escrita
}

func (o Options) client(addr string) *redis.Options {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &redis.Options{
		Addr:         addr,
		PoolSize:     o.PoolSize,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}

func ConnectRedis(ctx context.Context, addr string, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(opts.client(addr))

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return rdb, nil
}
