package statistics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/cache"
	"github.com/consultix/consultix/internal/pkg/database"
)

const (
	CacheKeyOrganizations = "statistics:organizations:total"
	CacheKeySubscriptions = "statistics:subscriptions:active"
	CacheKeyRequestsToday = "statistics:requests:today"
	CacheKeyRevenueMonth  = "statistics:revenue:month"
	CacheExpiration       = 30 * time.Minute
	cacheUpdateInterval   = 5 * time.Minute
)

// Data holds the platform counters shown on the operations dashboard.
type Data struct {
	TotalOrganizations  int   `json:"total_organizations"`
	ActiveSubscriptions int   `json:"active_subscriptions"`
	RequestsToday       int   `json:"requests_today"`
	RevenueMonthCents   int64 `json:"revenue_month_cents"`
}

var (
	lastCacheUpdate  time.Time
	cacheUpdateMutex sync.Mutex
)

// UpdateCacheIfNeeded refreshes the cached counters when the last refresh
// is older than the update interval.
func UpdateCacheIfNeeded() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	if time.Since(lastCacheUpdate) <= cacheUpdateInterval {
		return
	}
	if err := UpdateStatisticsCache(); err != nil {
		log.Errorf("[Statistics] cache refresh failed: %v", err)
		return
	}
	lastCacheUpdate = time.Now()
}

// UpdateStatisticsCache recomputes all counters from the database and
// stores them in Redis.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalOrgs int64
	if err := db.Model(&models.Organization{}).Count(&totalOrgs).Error; err != nil {
		return err
	}

	var activeSubs int64
	if err := db.Model(&models.Subscription{}).
		Where("status IN ?", []string{models.SubscriptionStatusTrialing, models.SubscriptionStatusActive}).
		Count(&activeSubs).Error; err != nil {
		return err
	}

	todayStart := time.Now().Truncate(24 * time.Hour)
	var requestsToday int64
	if err := db.Model(&models.QueryLog{}).
		Where("created_at >= ?", todayStart).
		Count(&requestsToday).Error; err != nil {
		return err
	}

	monthStart := time.Date(time.Now().Year(), time.Now().Month(), 1, 0, 0, 0, 0, time.Local)
	var revenue int64
	if err := db.Model(&models.Invoice{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ? AND paid_at >= ?", models.InvoiceStatusPaid, monthStart).
		Scan(&revenue).Error; err != nil {
		return err
	}

	for key, value := range map[string]int64{
		CacheKeyOrganizations: totalOrgs,
		CacheKeySubscriptions: activeSubs,
		CacheKeyRequestsToday: requestsToday,
		CacheKeyRevenueMonth:  revenue,
	} {
		if err := cache.Set(key, strconv.FormatInt(value, 10), CacheExpiration); err != nil {
			return err
		}
	}

	log.Infof("[Statistics] cache updated: orgs=%d active=%d requests=%d revenue=%d",
		totalOrgs, activeSubs, requestsToday, revenue)
	return nil
}

// GetStatistics returns the cached counters, refreshing them first when
// they are stale.
func GetStatistics() Data {
	UpdateCacheIfNeeded()

	return Data{
		TotalOrganizations:  cachedInt(CacheKeyOrganizations),
		ActiveSubscriptions: cachedInt(CacheKeySubscriptions),
		RequestsToday:       cachedInt(CacheKeyRequestsToday),
		RevenueMonthCents:   int64(cachedInt(CacheKeyRevenueMonth)),
	}
}

func cachedInt(key string) int {
	val, err := cache.GetInt(key)
	if err != nil {
		return 0
	}
	return val
}
