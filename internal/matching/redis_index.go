package matching

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/models"
)

// RedisRideIndex keeps active ride pickup points in a Redis GEO set so
// match queries can pre-filter candidates instead of scanning every ride.
type RedisRideIndex struct {
	client *redis.Client
	key    string
}

func NewRedisRideIndex(addr, password, key string) *RedisRideIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisRideIndex{client: c, key: key}
}

func (r *RedisRideIndex) Add(ctx context.Context, rideID string, pickup models.Coord) error {
	return r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: pickup.Lon,
		Latitude:  pickup.Lat,
		Name:      rideID,
	}).Err()
}

// Remove drops a ride that stopped accepting requests from the index.
func (r *RedisRideIndex) Remove(ctx context.Context, rideID string) error {
	return r.client.ZRem(ctx, r.key, rideID).Err()
}

func (r *RedisRideIndex) Nearby(ctx context.Context, at models.Coord, radiusMeters float64, limit int) ([]string, error) {
	res, err := r.client.GeoRadius(ctx, r.key, at.Lon, at.Lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters,
		Unit:   "m",
		Count:  limit,
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res))
	for _, g := range res {
		ids = append(ids, g.Name)
	}
	return ids, nil
}

func (r *RedisRideIndex) Close() error { return r.client.Close() }
