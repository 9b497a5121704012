package fraud

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domain "github.com/mimi6060/festival/internal/domain/fraud"
)

func TestTicketScanCache_InspectSeesOnlyWindowedScans(t *testing.T) {
	cache := newTicketScanCache(4*time.Hour, 10)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	cache.Record("t-1", base.Add(-5*time.Hour), "zone-a", nil)
	cache.Record("t-1", base.Add(-1*time.Hour), "zone-b", nil)

	var seen []scanRecord
	cache.Record("t-1", base, "zone-c", func(previous []scanRecord) {
		seen = append(seen, previous...)
	})

	// The five-hour-old scan fell out of the window before inspection.
	assert.Len(t, seen, 1)
	assert.Equal(t, "zone-b", seen[0].ZoneID)
}

func TestTicketScanCache_CapEvictsOldest(t *testing.T) {
	cache := newTicketScanCache(4*time.Hour, 3)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		cache.Record("t-1", base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("zone-%d", i), nil)
	}

	var seen []scanRecord
	cache.Record("t-1", base.Add(10*time.Minute), "zone-x", func(previous []scanRecord) {
		seen = append(seen, previous...)
	})

	assert.Len(t, seen, 3)
	assert.Equal(t, "zone-2", seen[0].ZoneID)
}

func TestUserTxCache_CountsIncludeCurrentTransaction(t *testing.T) {
	cache := newUserTxCache(100)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	cache.Record("u-1", base.Add(-30*time.Minute), domain.TransactionCashlessPayment)
	cache.Record("u-1", base.Add(-2*time.Minute), domain.TransactionCashlessTopUp)

	counts := cache.Record("u-1", base, domain.TransactionCashlessTopUp)

	assert.Equal(t, 3, counts.Count1h)
	assert.Equal(t, 2, counts.Count5Min)
	assert.Equal(t, 2, counts.TopUps1h)
}

func TestUserTxCache_HourWindowTrims(t *testing.T) {
	cache := newUserTxCache(100)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	cache.Record("u-1", base.Add(-90*time.Minute), domain.TransactionCashlessPayment)
	counts := cache.Record("u-1", base, domain.TransactionCashlessPayment)

	assert.Equal(t, 1, counts.Count1h)
}

func TestUserTxCache_ConcurrentRecordsDoNotLoseWrites(t *testing.T) {
	cache := newUserTxCache(200)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cache.Record("u-1", base.Add(time.Duration(i)*time.Second), domain.TransactionCashlessPayment)
		}(i)
	}
	wg.Wait()

	counts := cache.Record("u-1", base.Add(time.Minute), domain.TransactionCashlessPayment)
	assert.Equal(t, 51, counts.Count1h)
}

func TestFanOutCache_CountsDistinctUsersInWindow(t *testing.T) {
	cache := newFanOutCache(24*time.Hour, 100)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, cache.Add("fp-1", "u-1", base))
	assert.Equal(t, 2, cache.Add("fp-1", "u-2", base.Add(time.Minute)))
	// Same user again does not grow the set.
	assert.Equal(t, 2, cache.Add("fp-1", "u-1", base.Add(2*time.Minute)))
}

func TestFanOutCache_WindowExpiresUsers(t *testing.T) {
	cache := newFanOutCache(24*time.Hour, 100)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	cache.Add("fp-1", "u-1", base)
	count := cache.Add("fp-1", "u-2", base.Add(25*time.Hour))

	assert.Equal(t, 1, count)
}

func TestFanOutCache_CapEvictsStalestUser(t *testing.T) {
	cache := newFanOutCache(24*time.Hour, 3)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	cache.Add("fp-1", "u-1", base)
	cache.Add("fp-1", "u-2", base.Add(time.Minute))
	cache.Add("fp-1", "u-3", base.Add(2*time.Minute))

	count := cache.Add("fp-1", "u-4", base.Add(3*time.Minute))
	assert.Equal(t, 3, count)

	// u-1 was the stalest and should have been evicted; re-adding it grows
	// from the capped set again.
	count = cache.Add("fp-1", "u-1", base.Add(4*time.Minute))
	assert.Equal(t, 3, count)
}

func TestLocationCache_SwapReturnsPreviousInWindow(t *testing.T) {
	cache := newLocationCache(2 * time.Hour)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	_, ok := cache.Swap("u-1", lastLocation{Timestamp: base, Latitude: 48.85, Longitude: 2.35})
	assert.False(t, ok)

	prev, ok := cache.Swap("u-1", lastLocation{Timestamp: base.Add(time.Hour), Latitude: 43.3, Longitude: 5.37})
	assert.True(t, ok)
	assert.Equal(t, 48.85, prev.Latitude)
}

func TestLocationCache_StaleLocationIgnored(t *testing.T) {
	cache := newLocationCache(2 * time.Hour)
	base := time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

	cache.Swap("u-1", lastLocation{Timestamp: base, Latitude: 48.85, Longitude: 2.35})
	_, ok := cache.Swap("u-1", lastLocation{Timestamp: base.Add(3 * time.Hour), Latitude: 43.3, Longitude: 5.37})

	assert.False(t, ok)
}

func TestCaches_ClearResetsLen(t *testing.T) {
	scans := newTicketScanCache(time.Hour, 5)
	scans.Record("t-1", time.Now().UTC(), "zone-a", nil)
	assert.Equal(t, 1, scans.Len())
	scans.Clear()
	assert.Equal(t, 0, scans.Len())

	txs := newUserTxCache(5)
	txs.Record("u-1", time.Now().UTC(), domain.TransactionCashlessPayment)
	assert.Equal(t, 1, txs.Len())
	txs.Clear()
	assert.Equal(t, 0, txs.Len())

	fan := newFanOutCache(time.Hour, 5)
	fan.Add("fp-1", "u-1", time.Now().UTC())
	assert.Equal(t, 1, fan.Len())
	fan.Clear()
	assert.Equal(t, 0, fan.Len())

	locs := newLocationCache(time.Hour)
	locs.Swap("u-1", lastLocation{Timestamp: time.Now().UTC()})
	assert.Equal(t, 1, locs.Len())
	locs.Clear()
	assert.Equal(t, 0, locs.Len())
}
