// Package premiumcache реализует локальный кеш премиум-прав: быстрый
// синхронный путь чтения, по которому проверяется каждый feature-gate.
// Записи не удаляются — просроченные отфильтровываются при чтении.
package premiumcache

import (
	"sync"
	"time"
)

// GlobalKey — зарезервированный tripId, означающий «премиум для всех поездок».
const GlobalKey = "global"

// Entry — одна запись кеша: поездка и срок действия в epoch ms.
type Entry struct {
	TripID    string `json:"tripId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Cache хранит упорядоченный список записей, не более одной на tripId.
// Мьютекс защищает filter-then-append в Grant от параллельных выдач.
type Cache struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New создает пустой кеш.
func New() *Cache {
	return &Cache{now: time.Now}
}

// NewWithClock создает кеш с подменяемыми часами, используется в тестах.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{now: now}
}

// Grant добавляет или заменяет запись для tripID. Старая запись с тем же
// tripID сначала отфильтровывается, чтобы не появлялись дубликаты.
func (c *Cache) Grant(tripID string, expiresAt int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	filtered := c.entries[:0]
	for _, e := range c.entries {
		if e.TripID != tripID {
			filtered = append(filtered, e)
		}
	}
	c.entries = append(filtered, Entry{TripID: tripID, ExpiresAt: expiresAt})
}

// IsActive сообщает, открыт ли премиум для tripID: действует глобальная
// запись или собственная запись поездки. Никаких побочных эффектов.
func (c *Cache) IsActive(tripID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowMillis := c.now().UnixMilli()
	for _, e := range c.entries {
		if e.ExpiresAt <= nowMillis {
			continue
		}
		if e.TripID == GlobalKey || e.TripID == tripID {
			return true
		}
	}
	return false
}

// All возвращает снимок всех записей, включая просроченные.
func (c *Cache) All() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Active возвращает снимок только действующих записей.
func (c *Cache) Active() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowMillis := c.now().UnixMilli()
	var out []Entry
	for _, e := range c.entries {
		if e.ExpiresAt > nowMillis {
			out = append(out, e)
		}
	}
	return out
}
