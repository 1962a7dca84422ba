package store

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"diary-client/internal/domain"
)

const maxIDAttempts = 8

// NotificationInput describe un toast nuevo; el id lo asigna la cola.
type NotificationInput struct {
	Type     domain.NotificationType
	Message  string
	Title    string
	Duration time.Duration
}

// NotificationQueue mantiene los toasts visibles en orden de insercion y
// los expira de forma automatica.
type NotificationQueue struct {
	mu     sync.Mutex
	items  []domain.Notification
	timers map[string]expiry
	seq    uint64

	scheduler       Scheduler
	clock           clockwork.Clock
	newID           func() string
	defaultDuration time.Duration
	logger          *zap.Logger
	subs            observers[[]domain.Notification]
}

type expiry struct {
	seq  uint64
	stop func() bool
}

type QueueOption func(*NotificationQueue)

func WithIDGenerator(fn func() string) QueueOption {
	return func(q *NotificationQueue) {
		if fn != nil {
			q.newID = fn
		}
	}
}

// WithDefaultDuration fija la duracion de Success/Error/Warning/Info.
func WithDefaultDuration(d time.Duration) QueueOption {
	return func(q *NotificationQueue) {
		if d >= 0 {
			q.defaultDuration = d
		}
	}
}

func WithLogger(logger *zap.Logger) QueueOption {
	return func(q *NotificationQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) QueueOption {
	return func(q *NotificationQueue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

func NewNotificationQueue(scheduler Scheduler, opts ...QueueOption) *NotificationQueue {
	q := &NotificationQueue{
		timers:          make(map[string]expiry),
		clock:           clockwork.NewRealClock(),
		newID:           newNotificationID,
		defaultDuration: 5 * time.Second,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if scheduler == nil {
		scheduler = NewClockScheduler(q.clock)
	}
	q.scheduler = scheduler
	return q
}

func newNotificationID() string {
	id, err := gonanoid.New()
	if err != nil {
		return gonanoid.MustGenerate("0123456789abcdefghijklmnopqrstuvwxyz", 21)
	}
	return id
}

// Add agrega un toast al final de la cola y devuelve su id. Con Duration > 0
// se elimina solo al cumplirse la duracion.
func (q *NotificationQueue) Add(input NotificationInput) string {
	typ := input.Type
	if !typ.Valid() {
		if typ != "" {
			q.logger.Warn("unknown notification type, using info", zap.String("type", string(typ)))
		}
		typ = domain.NotificationInfo
	}
	duration := input.Duration
	if duration < 0 {
		duration = 0
	}

	q.mu.Lock()
	id := q.uniqueIDLocked()
	q.items = append(q.items, domain.Notification{
		ID:        id,
		Type:      typ,
		Message:   input.Message,
		Title:     strings.TrimSpace(input.Title),
		Duration:  duration,
		CreatedAt: q.clock.Now(),
	})
	if duration > 0 {
		q.seq++
		seq := q.seq
		q.timers[id] = expiry{seq: seq, stop: q.scheduler.After(duration, func() { q.expire(id, seq) })}
	}
	q.subs.publish(q.copyLocked())
	q.mu.Unlock()

	q.subs.flush()
	return id
}

func (q *NotificationQueue) Success(message, title string) string {
	return q.Add(NotificationInput{Type: domain.NotificationSuccess, Message: message, Title: title, Duration: q.defaultDuration})
}

func (q *NotificationQueue) Error(message, title string) string {
	return q.Add(NotificationInput{Type: domain.NotificationError, Message: message, Title: title, Duration: q.defaultDuration})
}

func (q *NotificationQueue) Warning(message, title string) string {
	return q.Add(NotificationInput{Type: domain.NotificationWarning, Message: message, Title: title, Duration: q.defaultDuration})
}

func (q *NotificationQueue) Info(message, title string) string {
	return q.Add(NotificationInput{Type: domain.NotificationInfo, Message: message, Title: title, Duration: q.defaultDuration})
}

// Remove elimina el toast con ese id. Un id inexistente no es un error.
func (q *NotificationQueue) Remove(id string) {
	q.mu.Lock()
	if !q.removeLocked(id) {
		q.mu.Unlock()
		return
	}
	q.subs.publish(q.copyLocked())
	q.mu.Unlock()

	q.subs.flush()
}

// expire solo actua si el timer sigue siendo el vigente para ese id; un timer
// que dispara tarde no borra un toast nuevo con el mismo id.
func (q *NotificationQueue) expire(id string, seq uint64) {
	q.mu.Lock()
	if t, ok := q.timers[id]; !ok || t.seq != seq || !q.removeLocked(id) {
		q.mu.Unlock()
		return
	}
	q.subs.publish(q.copyLocked())
	q.mu.Unlock()

	q.subs.flush()
}

func (q *NotificationQueue) removeLocked(id string) bool {
	idx := -1
	for i, n := range q.items {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	q.items = append(q.items[:idx:idx], q.items[idx+1:]...)
	if t, ok := q.timers[id]; ok {
		t.stop()
		delete(q.timers, id)
	}
	return true
}

func (q *NotificationQueue) Clear() {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.items = nil
	for id, t := range q.timers {
		t.stop()
		delete(q.timers, id)
	}
	q.subs.publish([]domain.Notification{})
	q.mu.Unlock()

	q.subs.flush()
}

// List devuelve los toasts vivos, del mas antiguo al mas nuevo.
func (q *NotificationQueue) List() []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.copyLocked()
}

func (q *NotificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *NotificationQueue) Subscribe(fn func([]domain.Notification)) (unsubscribe func()) {
	return q.subs.subscribe(fn)
}

func (q *NotificationQueue) uniqueIDLocked() string {
	var id string
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id = q.newID()
		if id != "" && !q.liveLocked(id) {
			return id
		}
	}
	// Generador degenerado: se desambigua con un sufijo.
	base := id
	for {
		id = base + "-" + gonanoid.MustGenerate("0123456789", 6)
		if !q.liveLocked(id) {
			return id
		}
	}
}

func (q *NotificationQueue) liveLocked(id string) bool {
	for _, n := range q.items {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (q *NotificationQueue) copyLocked() []domain.Notification {
	out := make([]domain.Notification, len(q.items))
	copy(out, q.items)
	return out
}
