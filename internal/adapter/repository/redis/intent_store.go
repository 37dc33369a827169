package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/loanledger/internal/domain"
)

// releaseScript deletes a reservation only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IntentStore implements usecase.IntentStore using Redis keys with TTLs.
type IntentStore struct {
	client *redis.Client
	prefix string
}

// NewIntentStore creates a new IntentStore.
func NewIntentStore(client *redis.Client) *IntentStore {
	return &IntentStore{
		client: client,
		prefix: "loanledger:",
	}
}

func (s *IntentStore) reservationKey(listingID string) string {
	return s.prefix + "reservation:" + listingID
}

func (s *IntentStore) intentKey(kind domain.IntentKind, id string) string {
	return s.prefix + "intent:" + string(kind) + ":" + id
}

// Reserve claims a listing for holder with SET NX.
func (s *IntentStore) Reserve(ctx context.Context, listingID, holder string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.reservationKey(listingID), holder, ttl).Result()
}

// ReservationHolder returns the holder of a listing reservation, or "".
func (s *IntentStore) ReservationHolder(ctx context.Context, listingID string) (string, error) {
	holder, err := s.client.Get(ctx, s.reservationKey(listingID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}

// Release frees a listing reservation held by holder.
func (s *IntentStore) Release(ctx context.Context, listingID, holder string) error {
	return releaseScript.Run(ctx, s.client, []string{s.reservationKey(listingID)}, holder).Err()
}

// Save stores an intent as JSON with a TTL.
func (s *IntentStore) Save(ctx context.Context, intent *domain.TransferIntent, ttl time.Duration) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	return s.client.Set(ctx, s.intentKey(intent.Kind, intent.ID), data, ttl).Err()
}

// Get loads an intent. A missing or expired intent is domain.ErrIntentNotFound.
func (s *IntentStore) Get(ctx context.Context, kind domain.IntentKind, id string) (*domain.TransferIntent, error) {
	data, err := s.client.Get(ctx, s.intentKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}

	var intent domain.TransferIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("unmarshal intent: %w", err)
	}
	return &intent, nil
}

// Delete removes an intent.
func (s *IntentStore) Delete(ctx context.Context, kind domain.IntentKind, id string) error {
	return s.client.Del(ctx, s.intentKey(kind, id)).Err()
}
