package fraud

import (
	"sync"
	"time"

	domain "github.com/mimi6060/festival/internal/domain/fraud"
)

// The sliding caches are the only cross-call shared mutable state. Every
// cache is bounded by an entry-count cap and a time-window cutoff, both
// enforced on mutation, and guards read-modify-write cycles with a per-key
// mutex so concurrent calls for the same key never lose updates.

// scanRecord is one remembered ticket scan.
type scanRecord struct {
	Timestamp time.Time
	ZoneID    string
}

type scanEntry struct {
	mu    sync.Mutex
	scans []scanRecord
}

// ticketScanCache keeps per-ticket scan history inside a rolling window.
type ticketScanCache struct {
	mu      sync.RWMutex
	entries map[string]*scanEntry
	window  time.Duration
	cap     int
}

func newTicketScanCache(window time.Duration, cap int) *ticketScanCache {
	return &ticketScanCache{
		entries: make(map[string]*scanEntry),
		window:  window,
		cap:     cap,
	}
}

// Record trims the ticket's window, hands the pre-existing scans to inspect,
// then appends the new scan. The whole cycle runs under the ticket's lock.
func (c *ticketScanCache) Record(ticketID string, ts time.Time, zoneID string, inspect func(previous []scanRecord)) {
	entry := c.entry(ticketID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := ts.Add(-c.window)
	kept := entry.scans[:0]
	for _, s := range entry.scans {
		if s.Timestamp.After(cutoff) {
			kept = append(kept, s)
		}
	}
	entry.scans = kept

	if inspect != nil {
		inspect(entry.scans)
	}

	entry.scans = append(entry.scans, scanRecord{Timestamp: ts, ZoneID: zoneID})
	if len(entry.scans) > c.cap {
		entry.scans = entry.scans[len(entry.scans)-c.cap:]
	}
}

func (c *ticketScanCache) entry(ticketID string) *scanEntry {
	c.mu.RLock()
	entry, ok := c.entries[ticketID]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok = c.entries[ticketID]; ok {
		return entry
	}
	entry = &scanEntry{}
	c.entries[ticketID] = entry
	return entry
}

func (c *ticketScanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ticketScanCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*scanEntry)
	c.mu.Unlock()
}

// txRecord is one remembered user transaction.
type txRecord struct {
	Timestamp time.Time
	Type      domain.TransactionType
}

type txEntry struct {
	mu  sync.Mutex
	txs []txRecord
}

// velocityCounts is the windowed view a velocity check needs, current
// transaction included.
type velocityCounts struct {
	Count1h   int
	Count5Min int
	TopUps1h  int
}

// userTxCache keeps per-user transaction timestamps, capped and trimmed to
// the last hour on every mutation.
type userTxCache struct {
	mu      sync.RWMutex
	entries map[string]*txEntry
	cap     int
}

func newUserTxCache(cap int) *userTxCache {
	return &userTxCache{
		entries: make(map[string]*txEntry),
		cap:     cap,
	}
}

// Record appends the transaction and returns windowed counts including it.
func (c *userTxCache) Record(userID string, ts time.Time, txType domain.TransactionType) velocityCounts {
	entry := c.entry(userID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := ts.Add(-time.Hour)
	kept := entry.txs[:0]
	for _, tx := range entry.txs {
		if tx.Timestamp.After(cutoff) {
			kept = append(kept, tx)
		}
	}
	entry.txs = append(kept, txRecord{Timestamp: ts, Type: txType})
	if len(entry.txs) > c.cap {
		entry.txs = entry.txs[len(entry.txs)-c.cap:]
	}

	fiveMinAgo := ts.Add(-5 * time.Minute)
	counts := velocityCounts{}
	for _, tx := range entry.txs {
		counts.Count1h++
		if tx.Timestamp.After(fiveMinAgo) {
			counts.Count5Min++
		}
		if tx.Type == domain.TransactionCashlessTopUp {
			counts.TopUps1h++
		}
	}

	return counts
}

func (c *userTxCache) entry(userID string) *txEntry {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok = c.entries[userID]; ok {
		return entry
	}
	entry = &txEntry{}
	c.entries[userID] = entry
	return entry
}

func (c *userTxCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *userTxCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*txEntry)
	c.mu.Unlock()
}

type fanOutEntry struct {
	mu    sync.Mutex
	users map[string]time.Time
}

// fanOutCache maps a device fingerprint or IP address to the set of users
// recently seen on it.
type fanOutCache struct {
	mu      sync.RWMutex
	entries map[string]*fanOutEntry
	window  time.Duration
	cap     int
}

func newFanOutCache(window time.Duration, cap int) *fanOutCache {
	return &fanOutCache{
		entries: make(map[string]*fanOutEntry),
		window:  window,
		cap:     cap,
	}
}

// Add records the user on the key and returns the distinct user count
// inside the window.
func (c *fanOutCache) Add(key, userID string, ts time.Time) int {
	entry := c.entry(key)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := ts.Add(-c.window)
	for user, seen := range entry.users {
		if !seen.After(cutoff) {
			delete(entry.users, user)
		}
	}

	if _, ok := entry.users[userID]; !ok && len(entry.users) >= c.cap {
		// Cap reached: evict the stalest user.
		var oldestUser string
		var oldest time.Time
		for user, seen := range entry.users {
			if oldestUser == "" || seen.Before(oldest) {
				oldestUser, oldest = user, seen
			}
		}
		delete(entry.users, oldestUser)
	}

	entry.users[userID] = ts
	return len(entry.users)
}

func (c *fanOutCache) entry(key string) *fanOutEntry {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok = c.entries[key]; ok {
		return entry
	}
	entry = &fanOutEntry{users: make(map[string]time.Time)}
	c.entries[key] = entry
	return entry
}

func (c *fanOutCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *fanOutCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*fanOutEntry)
	c.mu.Unlock()
}

// lastLocation is a user's most recent geotagged transaction.
type lastLocation struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
}

// locationCache keeps one location per user for impossible-travel checks.
type locationCache struct {
	mu        sync.Mutex
	locations map[string]lastLocation
	window    time.Duration
}

func newLocationCache(window time.Duration) *locationCache {
	return &locationCache{
		locations: make(map[string]lastLocation),
		window:    window,
	}
}

// Swap returns the user's previous in-window location, if any, and stores
// the new one.
func (c *locationCache) Swap(userID string, loc lastLocation) (lastLocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.locations[userID]
	if ok && loc.Timestamp.Sub(prev.Timestamp) > c.window {
		ok = false
	}
	c.locations[userID] = loc
	return prev, ok
}

func (c *locationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locations)
}

func (c *locationCache) Clear() {
	c.mu.Lock()
	c.locations = make(map[string]lastLocation)
	c.mu.Unlock()
}
