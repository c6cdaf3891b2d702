// cmd/kagerou/scheduler.go
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// tickPhase is the per-subject pipeline state, exposed by the status API.
type tickPhase string

const (
	phaseIdle       tickPhase = "IDLE"
	phaseFetching   tickPhase = "FETCHING"
	phaseComputing  tickPhase = "COMPUTING"
	phaseDelivering tickPhase = "DELIVERING"
	phasePersisting tickPhase = "PERSISTING"
	phaseFailed     tickPhase = "FAILED"
)

// TickEvent is broadcast to status-stream subscribers after every tick.
type TickEvent struct {
	Subject   string    `json:"subject"`
	Phase     tickPhase `json:"phase"`
	Delivered int       `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// EventSink receives tick events. Implemented by the websocket hub; tests use
// a recording fake.
type EventSink interface {
	Publish(event TickEvent)
}

type noopEvents struct{}

func (noopEvents) Publish(TickEvent) {}

// cronLogger adapts the application logger to the cron.Logger interface so
// recover/skip chain wrappers report through the normal funnel.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	Log().Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	Log().Error("cron: %s: %v %v", msg, err, keysAndValues)
}

// Scheduler drives one independent poll-dedup-deliver pipeline per subject.
// Subjects tick concurrently; ticks for the same subject never overlap (the
// cron chain skips a tick while the previous one is still running). A failing
// subject only ever affects itself.
type Scheduler struct {
	cron    *cron.Cron
	source  ItemSource
	sink    DeliverySink
	store   MarkerStore
	events  EventSink
	rootCtx context.Context

	fetchTimeout time.Duration
	sendTimeout  time.Duration
	maxJitter    time.Duration

	mutex   sync.Mutex
	runners map[string]*subjectRunner
	entries map[string]cron.EntryID

	// Per-handle tick locks, shared across runner generations: when Sync
	// swaps a subject's runner while its tick is still in flight, the
	// replacement's cron chain knows nothing about the old tick. The lock
	// is what actually keeps two ticks for one handle from overlapping.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewScheduler creates an idle scheduler; call Sync to register subjects and
// Start to begin ticking.
func NewScheduler(ctx context.Context, source ItemSource, sink DeliverySink, store MarkerStore, events EventSink) *Scheduler {
	if events == nil {
		events = noopEvents{}
	}
	return &Scheduler{
		cron:         cron.New(),
		source:       source,
		sink:         sink,
		store:        store,
		events:       events,
		rootCtx:      ctx,
		fetchTimeout: time.Duration(cfg.FetchTimeoutSecs) * time.Second,
		sendTimeout:  time.Duration(cfg.SendTimeoutSecs) * time.Second,
		maxJitter:    time.Duration(cfg.StartupJitterSecs) * time.Second,
		runners:      make(map[string]*subjectRunner),
		entries:      make(map[string]cron.EntryID),
		locks:        make(map[string]*sync.Mutex),
	}
}

// lockFor returns the tick lock for a handle, creating it on first use.
// Locks are never dropped on unschedule: a removed-then-re-added handle must
// still serialize against a tick that outlived the removal.
func (s *Scheduler) lockFor(handle string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l, ok := s.locks[handle]
	if !ok {
		l = &sync.Mutex{}
		s.locks[handle] = l
	}
	return l
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight ticks to finish, so a tick is
// never cut off between delivery and persist by shutdown alone.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sync reconciles the registered subjects against the desired list: new
// subjects are scheduled, removed ones unscheduled, changed ones rescheduled.
// Safe to call at any time; it is the change handler for the registry.
func (s *Scheduler) Sync(subjects []Subject) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	desired := make(map[string]Subject, len(subjects))
	for _, sub := range subjects {
		desired[sub.Handle] = sub
	}

	for handle, runner := range s.runners {
		want, ok := desired[handle]
		if ok && want == runner.Subject() {
			delete(desired, handle)
			continue
		}
		// Removed or changed: drop the entry; changed subjects are re-added
		// below with fresh settings.
		s.cron.Remove(s.entries[handle])
		delete(s.entries, handle)
		delete(s.runners, handle)
		if !ok {
			Log().Info("unscheduled @%s", handle)
		}
	}

	for handle, sub := range desired {
		runner := newSubjectRunner(s, sub)
		job := cron.NewChain(
			cron.Recover(cronLogger{}),
			cron.SkipIfStillRunning(cronLogger{}),
		).Then(runner)

		id, err := s.cron.AddJob(fmt.Sprintf("@every %s", sub.Interval()), job)
		if err != nil {
			HandleError("failed to schedule subject", err, "scheduler", ErrorSeverityMedium)
			continue
		}
		s.runners[handle] = runner
		s.entries[handle] = id
		Log().Info("scheduled @%s every %s -> channel %s", handle, sub.Interval(), sub.ChannelID)

		// First tick runs after a randomized delay so many subjects starting
		// at once don't stampede the upstream.
		go func(job cron.Job) {
			delay := time.Duration(0)
			if s.maxJitter > 0 {
				delay = time.Duration(rand.Int63n(int64(s.maxJitter)))
			}
			select {
			case <-time.After(delay):
				job.Run()
			case <-s.rootCtx.Done():
			}
		}(job)
	}
}

// Phases returns each subject's current pipeline phase.
func (s *Scheduler) Phases() map[string]tickPhase {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make(map[string]tickPhase, len(s.runners))
	for handle, runner := range s.runners {
		out[handle] = runner.Phase()
	}
	return out
}

// subjectRunner executes the tick pipeline for one subject. It implements
// cron.Job; overlap protection comes from the chain it is scheduled under.
type subjectRunner struct {
	sched   *Scheduler
	lock    *sync.Mutex // held for the whole tick; see Scheduler.locks
	mutex   sync.Mutex
	subject Subject
	phase   tickPhase
}

func newSubjectRunner(s *Scheduler, subject Subject) *subjectRunner {
	return &subjectRunner{
		sched:   s,
		lock:    s.lockFor(subject.Handle),
		subject: subject,
		phase:   phaseIdle,
	}
}

func (r *subjectRunner) Subject() Subject {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.subject
}

func (r *subjectRunner) Phase() tickPhase {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.phase
}

func (r *subjectRunner) setPhase(p tickPhase) {
	r.mutex.Lock()
	r.phase = p
	r.mutex.Unlock()
}

// Run executes one tick. Errors are logged and reported, never propagated:
// a failed tick returns the subject to IDLE and the next cadence retries.
func (r *subjectRunner) Run() {
	subject := r.Subject()
	if GetPaused() || subject.Paused {
		return
	}

	// A previous registration of this handle may still have a tick in
	// flight after a Sync swap. Skip rather than queue, same as the cron
	// chain does within one registration.
	if !r.lock.TryLock() {
		return
	}
	defer r.lock.Unlock()

	// Bound the whole tick: fetch plus the worst-case delivery run.
	budget := r.sched.fetchTimeout + time.Duration(cfg.MaxItemsPerPoll)*r.sched.sendTimeout
	ctx, cancel := context.WithTimeout(r.sched.rootCtx, budget)
	defer cancel()

	delivered, err := r.tick(ctx)

	event := TickEvent{Subject: subject.Handle, Delivered: delivered, Time: time.Now()}
	if err != nil {
		r.setPhase(phaseFailed)
		event.Phase = phaseFailed
		event.Error = err.Error()
		HandleError(fmt.Sprintf("tick failed for @%s", subject.Handle), err, "scheduler", ErrorSeverityLow)
	} else {
		event.Phase = phaseIdle
		RecordTick(delivered)
	}
	r.sched.events.Publish(event)
	r.setPhase(phaseIdle)
}

// tick runs fetch -> compute -> deliver -> persist and returns how many items
// were handed to the sink.
func (r *subjectRunner) tick(ctx context.Context) (int, error) {
	subject := r.Subject()

	r.setPhase(phaseFetching)
	fetchCtx, cancel := context.WithTimeout(ctx, r.sched.fetchTimeout)
	batch, err := r.sched.source.Fetch(fetchCtx, subject)
	cancel()
	if err != nil {
		if SourceErrorKind(err) == SourceMalformed {
			// A garbled response is indistinguishable from an empty timeline;
			// log it and move on without touching the marker.
			Log().Warn("malformed response for @%s, treating as empty batch: %v", subject.Handle, err)
			batch = nil
		} else {
			return 0, err
		}
	}
	if len(batch) > cfg.MaxItemsPerPoll {
		batch = batch[:cfg.MaxItemsPerPoll]
	}

	r.setPhase(phaseComputing)
	marker, err := r.sched.store.Load(subject.Handle)
	if err != nil {
		if !errors.Is(err, ErrStateCorrupt) {
			return 0, err
		}
		// Corrupt state falls back to a null marker: a too-permissive first
		// poll beats a crash loop.
		Log().Warn("corrupt marker for @%s, falling back to null marker: %v", subject.Handle, err)
		marker = SeenMarker{SubjectID: subject.Handle}
	}

	var fresh []Item
	var proposed SeenMarker
	if subject.Dedupe == DedupeRecent {
		fresh, proposed = computeNewRecent(batch, marker, subject.FirstPoll)
	} else {
		fresh, proposed = computeNew(batch, marker, subject.FirstPoll)
	}

	r.setPhase(phaseDelivering)
	delivered := 0
	for _, it := range fresh {
		sendCtx, cancel := context.WithTimeout(ctx, r.sched.sendTimeout)
		err := r.sched.sink.Send(sendCtx, subject.ChannelID, renderMessage(subject, it))
		cancel()
		if err != nil {
			// Stop at the first failure and persist only confirmed progress;
			// the next tick re-fetches and re-attempts the tail.
			r.setPhase(phasePersisting)
			partial := advancePartial(marker, fresh[:delivered], subject.Dedupe)
			if delivered > 0 {
				if saveErr := r.sched.store.Save(partial); saveErr != nil {
					HandleError(fmt.Sprintf("failed to persist partial marker for @%s", subject.Handle),
						saveErr, "state", ErrorSeverityMedium)
				}
			}
			return delivered, fmt.Errorf("delivering item %s: %w", it.ID, err)
		}
		delivered++
		Log().Info("delivered @%s item %s to channel %s", subject.Handle, it.ID, subject.ChannelID)
	}

	r.setPhase(phasePersisting)
	if !markersEqual(proposed, marker) {
		if err := r.sched.store.Save(proposed); err != nil {
			// Not advanced: the same items will be recomputed as new on the
			// next tick and sent again.
			return delivered, NewError(ErrorTypeState, ErrCodeStateSave, "marker not advanced", err)
		}
	}
	return delivered, nil
}

// markersEqual compares the delivery-relevant fields of two markers.
func markersEqual(a, b SeenMarker) bool {
	if a.LastDeliveredID != b.LastDeliveredID || len(a.RecentIDs) != len(b.RecentIDs) {
		return false
	}
	for i := range a.RecentIDs {
		if a.RecentIDs[i] != b.RecentIDs[i] {
			return false
		}
	}
	return true
}
