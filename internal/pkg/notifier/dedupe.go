package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const dedupeTTL = 48 * time.Hour

// DedupeNotifier suppresses repeated deliveries of the same event kind to the
// same organization within one calendar day. The guard makes the scheduler
// jobs safe to re-run mid-cycle: a sweep restart does not spam owners with a
// second "expiring soon" push.
type DedupeNotifier struct {
	next   Notifier
	client *redis.Client
	loc    *time.Location
	now    func() time.Time
}

func NewDedupeNotifier(next Notifier, client *redis.Client, loc *time.Location) *DedupeNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &DedupeNotifier{next: next, client: client, loc: loc, now: time.Now}
}

func (d *DedupeNotifier) Notify(ctx context.Context, kind Kind, organizationID uint, eventCtx map[string]string) error {
	day := d.now().In(d.loc).Format("2006-01-02")
	key := fmt.Sprintf("notify:%d:%s:%s", organizationID, day, kind)

	set, err := d.client.SetNX(ctx, key, 1, dedupeTTL).Result()
	if err != nil {
		// Dedupe is best-effort: with the cache down we still deliver.
		log.Errorf("[Notifier] dedupe check failed for %s: %v", key, err)
	} else if !set {
		return nil
	}

	return d.next.Notify(ctx, kind, organizationID, eventCtx)
}
