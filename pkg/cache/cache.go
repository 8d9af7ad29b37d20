// Package cache is an explicit query-invalidation bus.
//
// Readers subscribe to the query keys they display. Every mutation names the keys it
// makes stale and publishes them with [Bus.Invalidate]. The bus holds no cached data;
// subscribers decide how to refetch.
//
// Keys are plain strings of the form "<query>:<scope>", for example
// "record.list:tables:9c1…" or "cellValue:records:4f2…". Helpers below build the keys
// the client and grid agree on.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Listener is called with the invalidated key.
type Listener func(key string)

type subscription struct {
	key    string
	prefix bool
	fn     Listener
}

// Bus fans out invalidations to subscribers. The zero value is not usable; call New.
type Bus struct {
	lock   sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[uint64]subscription)}
}

// Subscribe registers fn for key and returns a function removing the subscription.
func (b *Bus) Subscribe(key string, fn Listener) (unsubscribe func()) {
	return b.add(subscription{key: key, fn: fn})
}

// SubscribePrefix registers fn for every key starting with prefix.
func (b *Bus) SubscribePrefix(prefix string, fn Listener) (unsubscribe func()) {
	return b.add(subscription{key: prefix, prefix: true, fn: fn})
}

func (b *Bus) add(s subscription) func() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = s

	var once sync.Once
	return func() {
		once.Do(func() {
			b.lock.Lock()
			defer b.lock.Unlock()
			delete(b.subs, id)
		})
	}
}

// Invalidate notifies subscribers of keys. Each subscription is called at most once
// per call, with the first key it matches, in subscription order. Listeners run on the
// caller's goroutine after the bus lock is released, so they may subscribe or
// invalidate themselves.
func (b *Bus) Invalidate(keys ...string) {
	type call struct {
		id  uint64
		fn  Listener
		key string
	}

	b.lock.RLock()
	calls := make([]call, 0, len(b.subs))
	for id, s := range b.subs {
		for _, k := range keys {
			if s.matches(k) {
				calls = append(calls, call{id: id, fn: s.fn, key: k})
				break
			}
		}
	}
	b.lock.RUnlock()

	sort.Slice(calls, func(i, j int) bool { return calls[i].id < calls[j].id })
	for _, c := range calls {
		c.fn(c.key)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.subs)
}

func (s subscription) matches(key string) bool {
	if s.prefix {
		return strings.HasPrefix(key, s.key)
	}
	return s.key == key
}

// Query keys.

func RecordListKey(tableID fmt.Stringer) string {
	return "record.list:" + tableID.String()
}

func FieldListKey(tableID fmt.Stringer) string {
	return "field.list:" + tableID.String()
}

func CellValueKey(recordID fmt.Stringer) string {
	return "cellValue:" + recordID.String()
}

func ViewListKey(tableID fmt.Stringer) string {
	return "view.list:" + tableID.String()
}

const (
	BaseListKey  = "base.list"
	TableListKey = "table.list"
)

// TableListKeyFor scopes the table list to one base.
func TableListKeyFor(baseID fmt.Stringer) string {
	return TableListKey + ":" + baseID.String()
}
