package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/voiceclone/internal/audio"
	"github.com/ent0n29/voiceclone/internal/observability"
)

const (
	DefaultRetention           = 7 * 24 * time.Hour
	DefaultMinRecordingSeconds = 3.0

	estimateBaseSeconds     = 30
	estimatePerInputSecond  = 2
	estimateOverheadSeconds = 45

	defaultEventHistoryLimit = 64
)

type Options struct {
	// Retention is how long finished jobs stay in memory before Sweep drops them.
	Retention time.Duration
	// MinRecordingSeconds excludes shorter recordings at submission.
	MinRecordingSeconds float64
}

// Manager runs voice jobs one at a time in submission order. All job state is
// owned here; callers only ever see clones.
type Manager struct {
	mu sync.RWMutex

	pipeline     Pipeline
	store        Store
	metrics      *observability.Metrics
	retention    time.Duration
	minRecording float64

	jobs        map[string]*Job
	jobsByOwner map[string][]string
	queue       []string
	processing  bool
	currentID   string
	eventsByJob map[string][]Event

	subscribers map[string]map[int]chan Event
	nextSubID   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewManager(pipeline Pipeline, opts Options) *Manager {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.MinRecordingSeconds <= 0 {
		opts.MinRecordingSeconds = DefaultMinRecordingSeconds
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		pipeline:     pipeline,
		retention:    opts.Retention,
		minRecording: opts.MinRecordingSeconds,
		jobs:         make(map[string]*Job),
		jobsByOwner:  make(map[string][]string),
		eventsByJob:  make(map[string][]Event),
		subscribers:  make(map[string]map[int]chan Event),
		ctx:          ctx,
		cancel:       cancel,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetStore(store Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
}

func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
	if metrics != nil {
		metrics.DescribeStages(stageSlots())
	}
}

func stageSlots() []observability.StageSlot {
	slots := make([]observability.StageSlot, 0, len(Stages))
	for _, s := range Stages {
		slots = append(slots, observability.StageSlot{Name: string(s), Progress: s.Progress(), TargetP95: s.Budget()})
	}
	return slots
}

// Estimate returns the advisory processing time for recordings in seconds.
func Estimate(recordings []Recording) float64 {
	var total float64
	for _, r := range recordings {
		total += r.DurationSeconds
	}
	return estimateBaseSeconds + estimatePerInputSecond*total + estimateOverheadSeconds
}

// QualityScore is the mean recording score, or 0 without recordings.
func QualityScore(recordings []Recording) float64 {
	if len(recordings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range recordings {
		sum += r.Quality.Score
	}
	return sum / float64(len(recordings))
}

// Submit queues a job and returns it in the pending state. Recordings shorter
// than the minimum are dropped; if none remain no job is created.
func (m *Manager) Submit(req SubmitRequest) (Job, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Name = strings.TrimSpace(req.Name)
	if req.OwnerID == "" {
		return Job{}, errors.New("owner_id is required")
	}
	if req.Name == "" {
		req.Name = "Untitled voice"
	}

	kept := make([]Recording, 0, len(req.Recordings))
	for _, r := range req.Recordings {
		if r.DurationSeconds < m.minRecording {
			continue
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return Job{}, fmt.Errorf("%w: every recording is shorter than %.0f seconds", audio.ErrNoValidRecordings, m.minRecording)
	}

	now := m.now()
	job := &Job{
		ID:                   uuid.NewString(),
		OwnerID:              req.OwnerID,
		Name:                 req.Name,
		Status:               StatusPending,
		Stage:                StagePending,
		EstimatedTimeSeconds: Estimate(kept),
		Recordings:           kept,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.jobsByOwner[job.OwnerID] = append(m.jobsByOwner[job.OwnerID], job.ID)
	m.enqueueLocked(job, EventJobCreated, now)
	m.observeOutcomeLocked("submitted")
	return job.Clone(), nil
}

func (m *Manager) Get(id string) (Job, error) {
	id = strings.TrimSpace(id)
	m.mu.RLock()
	job, ok := m.jobs[id]
	store := m.store
	if ok {
		out := job.Clone()
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	if store == nil {
		return Job{}, ErrJobNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	persisted, err := store.GetJob(ctx, id)
	if err != nil {
		return Job{}, ErrJobNotFound
	}
	return persisted, nil
}

// List returns the owner's jobs, newest first, merging persisted history
// when a store is configured.
func (m *Manager) List(ownerID string, limit int) []Job {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil
	}

	m.mu.RLock()
	store := m.store
	ids := m.jobsByOwner[ownerID]
	merged := make(map[string]Job, len(ids))
	for _, id := range ids {
		if j, ok := m.jobs[id]; ok {
			merged[id] = j.Clone()
		}
	}
	m.mu.RUnlock()

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		persisted, err := store.ListJobsByOwner(ctx, ownerID, limit)
		cancel()
		if err == nil {
			for _, j := range persisted {
				if _, live := merged[j.ID]; !live {
					merged[j.ID] = j
				}
			}
		}
	}

	out := make([]Job, 0, len(merged))
	for _, j := range merged {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Cancel fails a pending job with CancelledMessage. Jobs that already
// started cannot be cancelled.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[strings.TrimSpace(id)]
	if !ok || job.Status != StatusPending {
		return false
	}
	m.removeQueuedLocked(job.ID)

	now := m.now()
	job.Status = StatusFailed
	job.Error = CancelledMessage
	job.ErrorCode = CodeCancelled
	job.CompletedTime = &now
	job.UpdatedAt = now
	m.publishLocked(Event{
		Type:    EventJobCancelled,
		JobID:   job.ID,
		OwnerID: job.OwnerID,
		Status:  job.Status,
		Stage:   job.Stage,
		Code:    job.ErrorCode,
		Error:   job.Error,
		At:      now,
	})
	m.persistLocked(job)
	m.observeOutcomeLocked("cancelled")
	m.setQueueGaugeLocked()
	return true
}

// Retry resets a failed job and queues it again. There is no automatic retry;
// this is the only way a failed job runs again.
func (m *Manager) Retry(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[strings.TrimSpace(id)]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if job.Status != StatusFailed {
		return Job{}, fmt.Errorf("%w: cannot retry a %s job", ErrInvalidJobState, job.Status)
	}
	now := m.now()
	job.Status = StatusPending
	job.Stage = StagePending
	job.Progress = 0
	job.Error = ""
	job.ErrorCode = ""
	job.ErrorDetail = ""
	job.Result = nil
	job.StartTime = nil
	job.CompletedTime = nil
	job.UpdatedAt = now
	m.enqueueLocked(job, EventJobRetried, now)
	m.observeOutcomeLocked("retried")
	return job.Clone(), nil
}

func (m *Manager) QueueStatus() QueueStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byStatus := map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}
	for _, j := range m.jobs {
		byStatus[j.Status]++
	}
	return QueueStatus{
		QueueLength:  len(m.queue),
		IsProcessing: m.processing,
		CurrentJobID: m.currentID,
		TotalJobs:    len(m.jobs),
		JobsByStatus: byStatus,
	}
}

// Events returns up to limit of the most recent events for a job.
func (m *Manager) Events(id string, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[id]; !ok {
		return nil, ErrJobNotFound
	}
	events := m.eventsByJob[id]
	start := 0
	if limit > 0 && limit < len(events) {
		start = len(events) - limit
	}
	out := make([]Event, len(events)-start)
	copy(out, events[start:])
	return out, nil
}

// Subscribe streams events for the owner's jobs. Slow subscribers miss
// events rather than block the worker.
func (m *Manager) Subscribe(ownerID string) (<-chan Event, func()) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 64)
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	if _, ok := m.subscribers[ownerID]; !ok {
		m.subscribers[ownerID] = make(map[int]chan Event)
	}
	m.subscribers[ownerID][id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[ownerID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(m.subscribers, ownerID)
		}
	}
}

// Sweep drops finished jobs whose completion is older than the retention
// window and returns how many were removed. Persisted copies are kept.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, j := range m.jobs {
		if !j.Terminal() {
			continue
		}
		finished := j.UpdatedAt
		if j.CompletedTime != nil {
			finished = *j.CompletedTime
		}
		if !finished.Before(cutoff) {
			continue
		}
		delete(m.jobs, id)
		delete(m.eventsByJob, id)
		m.jobsByOwner[j.OwnerID] = removeID(m.jobsByOwner[j.OwnerID], id)
		if len(m.jobsByOwner[j.OwnerID]) == 0 {
			delete(m.jobsByOwner, j.OwnerID)
		}
		removed++
	}
	return removed
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(m.now()); n > 0 {
					log.Printf("voice jobs: swept %d finished job(s)", n)
				}
			}
		}
	}()
}

// Shutdown stops the worker after the current stage and waits for it to
// exit or for ctx to expire. Queued jobs stay pending.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) enqueueLocked(job *Job, evtType EventType, now time.Time) {
	m.queue = append(m.queue, job.ID)
	m.publishLocked(Event{
		Type:           evtType,
		JobID:          job.ID,
		OwnerID:        job.OwnerID,
		Status:         job.Status,
		Stage:          job.Stage,
		QueuedPosition: len(m.queue),
		At:             now,
	})
	m.persistLocked(job)
	m.setQueueGaugeLocked()
	if !m.processing {
		m.processing = true
		m.wg.Add(1)
		go m.pump()
	}
}

// pump drains the queue on a single goroutine and exits when it is empty.
func (m *Manager) pump() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if len(m.queue) == 0 || m.ctx.Err() != nil {
			m.processing = false
			m.currentID = ""
			m.mu.Unlock()
			return
		}
		id := m.queue[0]
		m.queue = m.queue[1:]
		job, ok := m.jobs[id]
		if !ok || job.Status != StatusPending {
			m.mu.Unlock()
			continue
		}
		now := m.now()
		job.Status = StatusProcessing
		job.StartTime = &now
		job.UpdatedAt = now
		m.currentID = id
		work := &Work{
			JobID:      job.ID,
			OwnerID:    job.OwnerID,
			Name:       job.Name,
			Recordings: append([]Recording(nil), job.Recordings...),
		}
		m.persistLocked(job)
		m.setQueueGaugeLocked()
		m.mu.Unlock()

		m.run(work)
	}
}

func (m *Manager) run(w *Work) {
	for _, stage := range Stages {
		m.advance(w.JobID, stage)
		started := time.Now()
		err := m.runStage(stage, w)
		m.observeStage(stage, time.Since(started))
		if err != nil {
			m.pipeline.Fail(context.WithoutCancel(m.ctx), w, err)
			m.fail(w.JobID, stage, err)
			return
		}
		if stage == StageTraining {
			w.releaseAudio()
		}
	}
	m.complete(w)
}

// runStage turns a panicking stage into a conversion failure so one bad job
// cannot take down the worker.
func (m *Manager) runStage(stage Stage, w *Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s stage panicked: %v", audio.ErrConversion, stage, r)
		}
	}()
	return m.pipeline.RunStage(m.ctx, stage, w)
}

func (m *Manager) advance(id string, stage Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	now := m.now()
	job.Stage = stage
	job.Progress = stage.Progress()
	job.UpdatedAt = now
	m.publishLocked(Event{
		Type:     EventJobStage,
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		At:       now,
	})
	m.persistLocked(job)
}

func (m *Manager) complete(w *Work) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[w.JobID]
	if !ok {
		return
	}
	now := m.now()
	job.Status = StatusCompleted
	job.Stage = StageCompleted
	job.Progress = StageCompleted.Progress()
	job.CompletedTime = &now
	job.UpdatedAt = now
	job.Result = &Result{
		VoiceID:      w.ProfileID,
		SampleURL:    w.SampleURL,
		QualityScore: QualityScore(job.Recordings),
	}
	// A completed job cannot be retried, so its uploads are no longer needed.
	for i := range job.Recordings {
		job.Recordings[i].Audio = nil
	}
	res := *job.Result
	m.publishLocked(Event{
		Type:     EventJobCompleted,
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Result:   &res,
		At:       now,
	})
	m.persistLocked(job)
	m.observeOutcomeLocked("completed")
}

func (m *Manager) fail(id string, stage Stage, err error) {
	code, msg := Classify(err)
	log.Printf("voice job %s failed during %s (%s): %v", id, stage, code, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	now := m.now()
	job.Status = StatusFailed
	job.Error = msg
	job.ErrorCode = code
	job.ErrorDetail = err.Error()
	job.CompletedTime = &now
	job.UpdatedAt = now
	m.publishLocked(Event{
		Type:     EventJobFailed,
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Code:     code,
		Error:    msg,
		At:       now,
	})
	m.persistLocked(job)
	m.observeOutcomeLocked("failed")
	if m.metrics != nil {
		m.metrics.ObserveFailure(string(stage), string(code))
	}
}

func (m *Manager) removeQueuedLocked(id string) {
	m.queue = removeID(m.queue, id)
}

func (m *Manager) publishLocked(evt Event) {
	if evt.JobID != "" {
		m.eventsByJob[evt.JobID] = append(m.eventsByJob[evt.JobID], evt)
		if n := len(m.eventsByJob[evt.JobID]); n > defaultEventHistoryLimit {
			m.eventsByJob[evt.JobID] = append([]Event(nil), m.eventsByJob[evt.JobID][n-defaultEventHistoryLimit:]...)
		}
	}
	for _, ch := range m.subscribers[evt.OwnerID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (m *Manager) persistLocked(job *Job) {
	store := m.store
	if store == nil {
		return
	}
	go func(snapshot Job) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.SaveJob(ctx, snapshot); err != nil {
			log.Printf("voice job %s: persist failed: %v", snapshot.ID, err)
		}
	}(job.Clone())
}

func (m *Manager) setQueueGaugeLocked() {
	if m.metrics != nil {
		m.metrics.QueueLength.Set(float64(len(m.queue)))
	}
}

func (m *Manager) observeOutcomeLocked(event string) {
	if m.metrics != nil {
		m.metrics.ObserveOutcome(event)
	}
}

func (m *Manager) observeStage(stage Stage, d time.Duration) {
	m.mu.RLock()
	metrics := m.metrics
	m.mu.RUnlock()
	if metrics != nil {
		metrics.ObserveStage(string(stage), d)
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
