// Package cache guarda a listagem de partidas no Redis, por formato de consulta.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

// registryKey é o set com todas as chaves de listagem gravadas; usado na invalidação.
const registryKey = "fixtures:list:keys"

// FixtureCache encapsula a listagem de partidas no Redis
// TTL: tempo de expiração de cada formato de consulta
type FixtureCache struct {
	R   *redis.Client
	TTL time.Duration
}

func NewFixtureCache(r *redis.Client, ttl time.Duration) *FixtureCache {
	return &FixtureCache{R: r, TTL: ttl}
}

// Key gera a chave a partir do formato da consulta (produto, torneio, janela).
func Key(f model.FixtureFilter) string {
	product := string(f.Product)
	if product == "" {
		product = "all"
	}
	tournament := f.TournamentID
	if tournament == "" {
		tournament = "all"
	}
	return fmt.Sprintf("fixtures:list:%s:%s:%d:%d", product, tournament, unix(f.From), unix(f.To))
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Get preenche dst quando há entrada; (false, nil) em cache miss.
func (c *FixtureCache) Get(ctx context.Context, f model.FixtureFilter, dst any) (bool, error) {
	b, err := c.R.Get(ctx, Key(f)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

// Set grava a listagem e registra a chave para invalidação.
func (c *FixtureCache) Set(ctx context.Context, f model.FixtureFilter, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := Key(f)
	pipe := c.R.TxPipeline()
	pipe.Set(ctx, key, b, c.TTL)
	pipe.SAdd(ctx, registryKey, key)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateFixtures apaga todas as listagens gravadas. Chamado pelo processador
// de feed quando o status de uma partida muda.
func (c *FixtureCache) InvalidateFixtures(ctx context.Context) error {
	keys, err := c.R.SMembers(ctx, registryKey).Result()
	if err != nil {
		return err
	}
	return c.R.Del(ctx, append(keys, registryKey)...).Err()
}
