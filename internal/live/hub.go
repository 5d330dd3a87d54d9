// Package live pushes appointment list snapshots to subscribed desks.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

const loadTimeout = 10 * time.Second

// Lister is the read side of the appointment store.
type Lister interface {
	List(ctx context.Context, q appointments.Query) ([]appointments.Appointment, error)
}

// Toast is a transient desk notification.
type Toast struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	Sound      bool   `json:"sound,omitempty"`
	SwitchView string `json:"switchView,omitempty"`
}

// Snapshot is a full, sorted view of one subscription's query.
type Snapshot struct {
	Appointments []appointments.Appointment `json:"appointments"`
	Count        int                        `json:"count"`
	Toasts       []Toast                    `json:"toasts,omitempty"`
	At           time.Time                  `json:"at"`
}

// Broadcaster carries change signals between API instances.
type Broadcaster interface {
	Publish(ctx context.Context, toast *Toast) error
}

// Hub fans store changes out to subscribers. Every subscriber gets its own
// delivery goroutine; refresh signals coalesce, so a burst of writes costs at
// most one extra load per subscriber.
type Hub struct {
	lister      Lister
	broadcaster Broadcaster
	logger      *logging.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
}

// NewHub creates a hub over lister.
func NewHub(lister Lister, logger *logging.Logger) *Hub {
	if lister == nil {
		panic("live: lister cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{lister: lister, logger: logger, subs: make(map[uint64]*subscription)}
}

// SetBroadcaster routes change signals through b so other instances see
// them. The broadcaster's receive loop calls Refresh on every instance.
func (h *Hub) SetBroadcaster(b Broadcaster) {
	h.mu.Lock()
	h.broadcaster = b
	h.mu.Unlock()
}

type subscription struct {
	query   appointments.Query
	fn      func(Snapshot)
	refresh chan struct{}
	done    chan struct{}
	once    sync.Once

	mu        sync.Mutex // held while fn runs
	cancelled bool

	toastMu sync.Mutex
	toasts  []Toast
}

// Subscribe registers onSnapshot for q and schedules the initial snapshot.
// The returned cancel is idempotent; once it returns no further callback
// runs. onSnapshot must not call cancel itself.
func (h *Hub) Subscribe(q appointments.Query, onSnapshot func(Snapshot)) (cancel func()) {
	s := &subscription{
		query:   q,
		fn:      onSnapshot,
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = s
	h.mu.Unlock()

	s.signal()
	go h.deliver(s)

	return func() {
		s.once.Do(func() {
			s.mu.Lock()
			s.cancelled = true
			s.mu.Unlock()
			close(s.done)

			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports how many subscriptions are live.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// AppointmentsChanged implements appointments.ChangeNotifier.
func (h *Hub) AppointmentsChanged(ctx context.Context) {
	h.announce(ctx, nil)
}

// Refresh schedules a snapshot for every subscriber, attaching toast when set.
func (h *Hub) Refresh(toast *Toast) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if toast != nil {
			s.queueToast(*toast)
		}
		s.signal()
	}
}

func (h *Hub) announce(ctx context.Context, toast *Toast) {
	h.mu.RLock()
	b := h.broadcaster
	h.mu.RUnlock()
	if b == nil {
		h.Refresh(toast)
		return
	}
	if err := b.Publish(ctx, toast); err != nil {
		h.logger.Warn("live: broadcast failed, refreshing locally", "error", err)
		h.Refresh(toast)
	}
}

func (h *Hub) deliver(s *subscription) {
	for {
		select {
		case <-s.done:
			return
		case <-s.refresh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		list, err := h.lister.List(ctx, s.query)
		cancel()
		if err != nil {
			h.logger.Error("live: snapshot load failed", "error", err)
			continue
		}
		appointments.SortQueue(list)
		s.send(Snapshot{Appointments: list, Count: len(list), At: time.Now().UTC()})
	}
}

func (s *subscription) signal() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *subscription) queueToast(t Toast) {
	s.toastMu.Lock()
	s.toasts = append(s.toasts, t)
	s.toastMu.Unlock()
}

func (s *subscription) send(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.toastMu.Lock()
	snap.Toasts, s.toasts = s.toasts, nil
	s.toastMu.Unlock()
	s.fn(snap)
}
