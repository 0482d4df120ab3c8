package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cooldownKeyPrefix = "verify:cooldown:"

// Cooldown rate-limits verification attempts per organization and domain so
// a misconfigured client cannot hammer upstream DNS. Backed by Redis; a nil
// client disables the limit entirely (fails open).
type Cooldown struct {
	client   *redis.Client
	interval time.Duration
}

func NewCooldown(client *redis.Client, interval time.Duration) *Cooldown {
	return &Cooldown{client: client, interval: interval}
}

// Allow reports whether a verification attempt may proceed, and if so,
// starts the cooldown window. SetNX makes the check-and-start atomic.
func (c *Cooldown) Allow(ctx context.Context, orgID uuid.UUID, domain string) (bool, error) {
	if c == nil || c.client == nil || c.interval <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("%s%s:%s", cooldownKeyPrefix, orgID, stripScheme(domain))
	ok, err := c.client.SetNX(ctx, key, "1", c.interval).Result()
	if err != nil {
		// Redis being down should not block verification.
		return true, nil
	}
	return ok, nil
}
