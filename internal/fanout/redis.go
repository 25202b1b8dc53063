package fanout

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/your-org/crowdwatch/internal/models"
)

// RedisDirectory keeps recipient positions in a Redis GEO set and their
// delivery addresses in a companion hash.
type RedisDirectory struct {
	client  redis.UniversalClient
	geoKey  string
	addrKey string
}

func NewRedisDirectory(client redis.UniversalClient, geoKey string) *RedisDirectory {
	return &RedisDirectory{client: client, geoKey: geoKey, addrKey: geoKey + ":addr"}
}

// Register adds or moves a recipient.
func (d *RedisDirectory) Register(ctx context.Context, r models.Recipient, lat, lon float64) error {
	_, err := d.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.GeoAdd(ctx, d.geoKey, &redis.GeoLocation{Name: r.ID, Latitude: lat, Longitude: lon})
		p.HSet(ctx, d.addrKey, r.ID, r.Address)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register recipient %s: %w", r.ID, err)
	}
	return nil
}

func (d *RedisDirectory) Remove(ctx context.Context, id string) error {
	_, err := d.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, d.geoKey, id)
		p.HDel(ctx, d.addrKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove recipient %s: %w", id, err)
	}
	return nil
}

func (d *RedisDirectory) Nearby(ctx context.Context, loc models.Location, radiusMeters float64) ([]models.Recipient, error) {
	hits, err := d.client.GeoRadius(ctx, d.geoKey, loc.Longitude, loc.Latitude, &redis.GeoRadiusQuery{
		Radius: radiusMeters,
		Unit:   "m",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius %s: %w", d.geoKey, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Name
	}
	addrs, err := d.client.HMGet(ctx, d.addrKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load recipient addresses: %w", err)
	}

	out := make([]models.Recipient, 0, len(ids))
	for i, id := range ids {
		addr, _ := addrs[i].(string)
		if addr == "" {
			continue
		}
		out = append(out, models.Recipient{ID: id, Address: addr})
	}
	return out, nil
}
