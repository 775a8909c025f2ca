package offers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"captain-dispatch/internal/domain"
)

const (
	keyExpiry        = "offer:expiry"
	keyOrderPrefix   = "offer:order:"
	keyCaptainPrefix = "offer:captain:"
)

// RedisBook shares offers between instances.
//
// Layout:
//
//	offer:order:{orderID}     hash captainID -> offer json
//	offer:captain:{captainID} zset orderID scored by expiry (unix ms)
//	offer:expiry              zset "orderID|captainID" scored by expiry
type RedisBook struct {
	c redis.UniversalClient
}

// NewRedisBook wraps an existing client.
func NewRedisBook(c redis.UniversalClient) *RedisBook {
	return &RedisBook{c: c}
}

type offerRecord struct {
	OrderID   string    `json:"order_id"`
	CaptainID string    `json:"captain_id"`
	OfferedAt time.Time `json:"offered_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r offerRecord) toDomain() domain.Offer {
	return domain.Offer{OrderID: r.OrderID, CaptainID: r.CaptainID, OfferedAt: r.OfferedAt, ExpiresAt: r.ExpiresAt}
}

func orderKey(orderID string) string     { return keyOrderPrefix + orderID }
func captainKey(captainID string) string { return keyCaptainPrefix + captainID }
func expiryMember(o domain.Offer) string { return o.OrderID + "|" + o.CaptainID }
func score(t time.Time) float64          { return float64(t.UnixMilli()) }

func (b *RedisBook) Put(ctx context.Context, offers ...domain.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	pipe := b.c.TxPipeline()
	for _, o := range offers {
		raw, err := json.Marshal(offerRecord(o))
		if err != nil {
			return errors.Wrap(err, "marshal offer")
		}
		pipe.HSet(ctx, orderKey(o.OrderID), o.CaptainID, raw)
		pipe.ZAdd(ctx, captainKey(o.CaptainID), redis.Z{Score: score(o.ExpiresAt), Member: o.OrderID})
		pipe.ZAdd(ctx, keyExpiry, redis.Z{Score: score(o.ExpiresAt), Member: expiryMember(o)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis put offers")
	}
	return nil
}

func (b *RedisBook) ForCaptain(ctx context.Context, captainID string, now time.Time) ([]domain.Offer, error) {
	orderIDs, err := b.c.ZRangeByScore(ctx, captainKey(captainID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis captain offers")
	}
	out := make([]domain.Offer, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		raw, err := b.c.HGet(ctx, orderKey(orderID), captainID).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "redis offer get")
		}
		var rec offerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, errors.Wrap(err, "decode offer")
		}
		if o := rec.toDomain(); o.Live(now) {
			out = append(out, o)
		}
	}
	sortOffers(out)
	return out, nil
}

func (b *RedisBook) HasLive(ctx context.Context, orderID string, now time.Time) (bool, error) {
	all, err := b.c.HGetAll(ctx, orderKey(orderID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis order offers")
	}
	for _, raw := range all {
		var rec offerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return false, errors.Wrap(err, "decode offer")
		}
		if rec.toDomain().Live(now) {
			return true, nil
		}
	}
	return false, nil
}

func (b *RedisBook) DropOrder(ctx context.Context, orderID string) error {
	captains, err := b.c.HKeys(ctx, orderKey(orderID)).Result()
	if err != nil {
		return errors.Wrap(err, "redis order offer keys")
	}
	if len(captains) == 0 {
		return nil
	}
	pipe := b.c.TxPipeline()
	for _, captainID := range captains {
		pipe.ZRem(ctx, captainKey(captainID), orderID)
		pipe.ZRem(ctx, keyExpiry, orderID+"|"+captainID)
	}
	pipe.Del(ctx, orderKey(orderID))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis drop offers")
	}
	return nil
}

// Expire claims each due offer with ZREM so that concurrent sweepers on other
// instances never report the same offer twice.
func (b *RedisBook) Expire(ctx context.Context, now time.Time) ([]domain.Offer, error) {
	members, err := b.c.ZRangeByScore(ctx, keyExpiry, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis due offers")
	}

	var out []domain.Offer
	for _, member := range members {
		orderID, captainID, ok := strings.Cut(member, "|")
		if !ok {
			continue
		}
		removed, err := b.c.ZRem(ctx, keyExpiry, member).Result()
		if err != nil {
			return out, errors.Wrap(err, "redis claim offer")
		}
		if removed == 0 {
			continue
		}

		offer := domain.Offer{OrderID: orderID, CaptainID: captainID}
		if raw, err := b.c.HGet(ctx, orderKey(orderID), captainID).Result(); err == nil {
			var rec offerRecord
			if json.Unmarshal([]byte(raw), &rec) == nil {
				offer = rec.toDomain()
			}
		}

		pipe := b.c.TxPipeline()
		pipe.HDel(ctx, orderKey(orderID), captainID)
		pipe.ZRem(ctx, captainKey(captainID), orderID)
		if _, err := pipe.Exec(ctx); err != nil {
			return out, errors.Wrap(err, "redis expire offer")
		}
		out = append(out, offer)
	}
	sortOffers(out)
	return out, nil
}

var _ Book = (*RedisBook)(nil)
