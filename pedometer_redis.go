package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// readingTTL keeps a day's reading around long enough for late refreshes
// across a time zone boundary.
const readingTTL = 48 * time.Hour

// redisPedometer stores the latest cumulative reading a device reported for
// each user and day. Devices push through POST /api/activity/pedometer; the
// refresher pulls through Query.
type redisPedometer struct {
	rdb *redis.Client
	loc *time.Location
}

func newRedisPedometer(rdb *redis.Client, loc *time.Location) *redisPedometer {
	return &redisPedometer{rdb: rdb, loc: loc}
}

func pedometerKey(userID int, day string) string {
	return fmt.Sprintf("getfit:pedometer:%d:%s", userID, day)
}

// Record stores a cumulative reading for date's calendar day.
func (p *redisPedometer) Record(ctx context.Context, userID int, date time.Time, r pedometerReading) error {
	key := pedometerKey(userID, dayKey(date, p.loc))
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"steps", r.Steps,
		"distance_m", strconv.FormatFloat(r.DistanceMeters, 'f', -1, 64),
		"updated_at", time.Now().Unix(),
	)
	pipe.Expire(ctx, key, readingTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Query returns the reading for the calendar day containing to. Readings are
// cumulative per day, so from only anchors the day. A day the device has not
// reported yet returns errNoReading.
func (p *redisPedometer) Query(ctx context.Context, userID int, from, to time.Time) (pedometerReading, error) {
	if !sameDay(from, to, p.loc) {
		return pedometerReading{}, fmt.Errorf("pedometer query must stay within one day: %w", errInvalidRange)
	}
	vals, err := p.rdb.HMGet(ctx, pedometerKey(userID, dayKey(to, p.loc)), "steps", "distance_m").Result()
	if errors.Is(err, redis.Nil) {
		return pedometerReading{}, errNoReading
	}
	if err != nil {
		return pedometerReading{}, err
	}
	return parseReading(vals)
}

// parseReading decodes HMGET steps, distance_m. A missing steps field means
// nothing was recorded.
func parseReading(vals []any) (pedometerReading, error) {
	var r pedometerReading
	s, ok := vals[0].(string)
	if !ok {
		return r, errNoReading
	}
	var err error
	if r.Steps, err = strconv.Atoi(s); err != nil {
		return pedometerReading{}, fmt.Errorf("bad steps value %q: %w", s, err)
	}
	if s, ok := vals[1].(string); ok {
		if r.DistanceMeters, err = strconv.ParseFloat(s, 64); err != nil {
			return pedometerReading{}, fmt.Errorf("bad distance value %q: %w", s, err)
		}
	}
	return r, nil
}
