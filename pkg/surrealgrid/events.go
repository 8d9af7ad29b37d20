package surrealgrid

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/models"
)

const (
	eventBuffer     = 64
	eventWriteWait  = 10 * time.Second
	eventPingPeriod = 30 * time.Second
)

// subscriber is one websocket connection following a table.
type subscriber struct {
	send chan client.Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// eventHub fans table mutations out to websocket subscribers.
type eventHub struct {
	lock sync.RWMutex
	subs map[models.TableID]map[*subscriber]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[models.TableID]map[*subscriber]struct{})}
}

func (h *eventHub) subscribe(tableID models.TableID) *subscriber {
	sub := &subscriber{send: make(chan client.Event, eventBuffer)}
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.subs[tableID] == nil {
		h.subs[tableID] = make(map[*subscriber]struct{})
	}
	h.subs[tableID][sub] = struct{}{}
	return sub
}

func (h *eventHub) unsubscribe(tableID models.TableID, sub *subscriber) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if set, ok := h.subs[tableID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, tableID)
		}
	}
	sub.close()
}

// publish delivers ev to the table's subscribers. A subscriber whose buffer is full
// is dropped; its connection closes and the client reconnects and refreshes.
func (h *eventHub) publish(ev client.Event) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for sub := range h.subs[ev.TableID] {
		select {
		case sub.send <- ev:
		default:
			delete(h.subs[ev.TableID], sub)
			sub.close()
		}
	}
}

func (h *eventHub) count(tableID models.TableID) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.subs[tableID])
}

func (h *eventHub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for tableID, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, tableID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleTableEvents streams the table's mutations as JSON [client.Event] messages.
//
//	GET /api/tables/{id}/events (websocket)
func (a *App) handleTableEvents(w http.ResponseWriter, r *http.Request) {
	tableID, err := models.ParseTableID(mux.Vars(r)["id"])
	if err != nil {
		a.respondErr(w, r, badID("table", err))
		return
	}
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(r.Context(), tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		a.log.Debug("websocket upgrade failed", "table_id", tableID, "err", err)
		return
	}
	defer conn.Close()

	sub := a.events.subscribe(tableID)
	defer a.events.unsubscribe(tableID, sub)
	a.log.Debug("event subscriber connected", "table_id", tableID)

	// The reader only notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-sub.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(eventWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
