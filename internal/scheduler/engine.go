package scheduler

import (
	"container/heap"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
)

var (
	ErrInvalidTriggerTime = errors.New("scheduler: invalid trigger time")
	ErrStopped            = errors.New("scheduler: engine stopped")
)

// Alarm is one armed alert. The engine only holds identifiers; the owner of
// the instance decides what firing means.
type Alarm struct {
	InstanceID string
	AlertID    string
	Title      string
	FireAt     time.Time
}

func (a Alarm) Key() string { return a.InstanceID + "/" + a.AlertID }

type queueItem struct {
	alarm Alarm
	index int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].alarm.FireAt.Before(pq[j].alarm.FireAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// Engine keeps at most one armed alarm per instance alert and emits each alarm
// on C when its fire time is reached.
type Engine struct {
	mu         sync.Mutex
	queue      priorityQueue
	byKey      map[string]*queueItem
	byInstance map[string]map[string]struct{}
	clock      model.Clock
	log        logx.Logger
	out        chan Alarm
	wakeup     chan struct{}
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	stopped    bool
	dropped    uint64
}

func NewEngine(bufferSize int, clock model.Clock, log logx.Logger) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if clock == nil {
		clock = model.SystemClock{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		queue:      make(priorityQueue, 0),
		byKey:      make(map[string]*queueItem),
		byInstance: make(map[string]map[string]struct{}),
		clock:      clock,
		log:        log.With(logx.String("component", "scheduler")),
		out:        make(chan Alarm, bufferSize),
		wakeup:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func (e *Engine) C() <-chan Alarm {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// Schedule arms a single alarm, replacing any alarm with the same key.
func (e *Engine) Schedule(a Alarm) error {
	if a.FireAt.IsZero() {
		return ErrInvalidTriggerTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	e.scheduleLocked(a)
	e.signalWakeup()
	return nil
}

func (e *Engine) scheduleLocked(a Alarm) {
	key := a.Key()
	if item, ok := e.byKey[key]; ok {
		item.alarm = a
		heap.Fix(&e.queue, item.index)
		return
	}
	item := &queueItem{alarm: a}
	heap.Push(&e.queue, item)
	e.byKey[key] = item
	alerts := e.byInstance[a.InstanceID]
	if alerts == nil {
		alerts = make(map[string]struct{})
		e.byInstance[a.InstanceID] = alerts
	}
	alerts[a.AlertID] = struct{}{}
}

// Register arms every pending or snoozed alert of inst whose fire time is
// still ahead. Pending alerts already due are never armed. A snoozed alert
// whose snooze ran out is armed at its past time so it fires right away; the
// user asked to be reminded again. It returns the number of alarms armed.
func (e *Engine) Register(inst model.TaskInstance) int {
	log := e.log.With(logx.String("instance_id", inst.ID))
	if !inst.Reminder.Enabled || inst.Status.IsTerminal() {
		log.Debug("reminders inactive; nothing to arm", logx.String("status", string(inst.Status)))
		return 0
	}

	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return 0
	}
	armed := 0
	for _, a := range inst.Reminder.Alerts {
		if !a.Armable() {
			continue
		}
		if !a.ScheduledTime.After(now) && a.Status != model.AlertSnoozed {
			log.Warn("alert fire time already passed; not arming",
				logx.String("alert_id", a.ID), logx.Time("fire_at", a.ScheduledTime))
			continue
		}
		e.scheduleLocked(Alarm{InstanceID: inst.ID, AlertID: a.ID, Title: inst.Title, FireAt: a.ScheduledTime})
		armed++
	}
	if armed > 0 {
		e.signalWakeup()
		log.Debug("alerts armed", logx.Int("count", armed))
	}
	return armed
}

// Cancel disarms every alarm of the instance and returns how many were removed.
func (e *Engine) Cancel(instanceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for alertID := range e.byInstance[instanceID] {
		if e.removeLocked(instanceID + "/" + alertID) {
			removed++
		}
	}
	delete(e.byInstance, instanceID)
	if removed > 0 {
		e.signalWakeup()
	}
	return removed
}

func (e *Engine) CancelAlarm(instanceID, alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.removeLocked(instanceID + "/" + alertID) {
		return false
	}
	e.forgetLocked(instanceID, alertID)
	e.signalWakeup()
	return true
}

func (e *Engine) removeLocked(key string) bool {
	item, ok := e.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&e.queue, item.index)
	delete(e.byKey, key)
	return true
}

func (e *Engine) forgetLocked(instanceID, alertID string) {
	alerts := e.byInstance[instanceID]
	delete(alerts, alertID)
	if len(alerts) == 0 {
		delete(e.byInstance, instanceID)
	}
}

// Reinitialize drops every armed alarm and registers instances from scratch.
func (e *Engine) Reinitialize(instances []model.TaskInstance) int {
	e.mu.Lock()
	e.queue = make(priorityQueue, 0, len(e.queue))
	e.byKey = make(map[string]*queueItem)
	e.byInstance = make(map[string]map[string]struct{})
	e.signalWakeup()
	e.mu.Unlock()

	armed := 0
	for _, inst := range instances {
		armed += e.Register(inst)
	}
	e.log.Info("scheduler reinitialized", logx.Int("instances", len(instances)), logx.Int("armed", armed))
	return armed
}

// Upcoming lists armed alarms firing within the window, soonest first.
func (e *Engine) Upcoming(within time.Duration) []Alarm {
	limit := e.clock.Now().Add(within)
	e.mu.Lock()
	out := make([]Alarm, 0, len(e.queue))
	for _, item := range e.queue {
		if !item.alarm.FireAt.After(limit) {
			out = append(out, item.alarm)
		}
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].Key() < out[j].Key()
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

func (e *Engine) Armed(instanceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byInstance[instanceID])
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := next.FireAt.Sub(e.clock.Now())
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			due := e.popDue(e.clock.Now())
			for _, a := range due {
				select {
				case e.out <- a:
				default:
					atomic.AddUint64(&e.dropped, 1)
					e.log.Warn("alarm dropped; consumer is behind",
						logx.String("instance_id", a.InstanceID), logx.String("alert_id", a.AlertID))
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			if timer != nil {
				stopTimer(timer)
			}
			return
		}
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (Alarm, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Alarm{}, false
	}
	return e.queue[0].alarm, true
}

func (e *Engine) popDue(now time.Time) []Alarm {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alarm, 0)
	for len(e.queue) > 0 {
		next := e.queue[0].alarm
		if next.FireAt.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(*queueItem)
		delete(e.byKey, item.alarm.Key())
		e.forgetLocked(item.alarm.InstanceID, item.alarm.AlertID)
		out = append(out, item.alarm)
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
