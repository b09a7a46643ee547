package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"coldtrack-sync/internal/livestore"
	"coldtrack-sync/internal/models"
)

// fakeWarehouse in-memory warehouse enforcing the same unique keys as the migrations
type fakeWarehouse struct {
	mu       sync.Mutex
	cameras  map[string]*models.Camera
	events   map[int64]*models.PersistedEvent
	readings map[int64]map[int64]models.PersistedReading // camera -> unix ts
	users    map[string]*models.User
	nextID   int64

	failInsertFor  map[string]bool
	failLookups    bool
	insertRaceHook func(externalID string) // runs before the insert is applied
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		cameras: map[string]*models.Camera{
			"camara1": {ID: 1, Name: "Camara 1", DevicePath: "camara1", Active: true},
			"camara2": {ID: 2, Name: "Camara 2", DevicePath: "camara2", Active: true},
		},
		events:        make(map[int64]*models.PersistedEvent),
		readings:      make(map[int64]map[int64]models.PersistedReading),
		users:         make(map[string]*models.User),
		failInsertFor: make(map[string]bool),
	}
}

func (f *fakeWarehouse) FindByDevice(_ context.Context, deviceID string) (*models.Camera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLookups {
		return nil, errors.New("connection refused")
	}
	cam, ok := f.cameras[deviceID]
	if !ok {
		return nil, nil
	}
	c := *cam
	return &c, nil
}

// eventStore view

type fakeEventStore struct{ w *fakeWarehouse }

func (s fakeEventStore) FindByExternalID(_ context.Context, externalID string) (*models.PersistedEvent, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.findEventLocked(externalID), nil
}

func (w *fakeWarehouse) findEventLocked(externalID string) *models.PersistedEvent {
	for _, ev := range w.events {
		if ev.ExternalID != nil && *ev.ExternalID == externalID {
			c := *ev
			return &c
		}
	}
	return nil
}

func (s fakeEventStore) Insert(_ context.Context, ev *models.PersistedEvent) (bool, error) {
	if s.w.insertRaceHook != nil {
		s.w.insertRaceHook(*ev.ExternalID)
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.failInsertFor[*ev.ExternalID] {
		return false, errors.New("warehouse unavailable")
	}
	if s.w.findEventLocked(*ev.ExternalID) != nil {
		return false, nil
	}
	s.w.nextID++
	ev.ID = s.w.nextID
	ev.CreatedAt = time.Now()
	c := *ev
	s.w.events[c.ID] = &c
	return true, nil
}

func (s fakeEventStore) Update(_ context.Context, id int64, upd models.EventUpdate) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	ev, ok := s.w.events[id]
	if !ok {
		return errors.New("not found")
	}
	ev.DurationMinutes = upd.DurationMinutes
	ev.MaxTempC = upd.MaxTempC
	if upd.SetEnd {
		ev.EndedAt = upd.EndedAt
	}
	if upd.Status != nil {
		ev.Status = *upd.Status
	}
	return nil
}

// insertLegacy adds a row without external id
func (w *fakeWarehouse) insertLegacy(ev models.PersistedEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	ev.ID = w.nextID
	w.events[ev.ID] = &ev
}

func (w *fakeWarehouse) eventsByExternalID(externalID string) []models.PersistedEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.PersistedEvent
	for _, ev := range w.events {
		if ev.ExternalID != nil && *ev.ExternalID == externalID {
			out = append(out, *ev)
		}
	}
	return out
}

func (w *fakeWarehouse) eventCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

// readingStore view

type fakeReadingStore struct{ w *fakeWarehouse }

func (s fakeReadingStore) Exists(_ context.Context, cameraID int64, ts time.Time) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	_, ok := s.w.readings[cameraID][ts.Unix()]
	return ok, nil
}

func (s fakeReadingStore) Insert(_ context.Context, r models.PersistedReading) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.readings[r.CameraID] == nil {
		s.w.readings[r.CameraID] = make(map[int64]models.PersistedReading)
	}
	if _, ok := s.w.readings[r.CameraID][r.Timestamp.Unix()]; ok {
		return false, nil
	}
	s.w.readings[r.CameraID][r.Timestamp.Unix()] = r
	return true, nil
}

func (w *fakeWarehouse) readingsFor(cameraID int64) []models.PersistedReading {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.PersistedReading
	for _, r := range w.readings[cameraID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// userStore view

type fakeUserStore struct{ w *fakeWarehouse }

func (s fakeUserStore) FindByExternalID(_ context.Context, uid string) (*models.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	u, ok := s.w.users[uid]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (s fakeUserStore) Insert(_ context.Context, u *models.User) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.users[u.ExternalID]; ok {
		return false, nil
	}
	s.w.nextID++
	u.ID = s.w.nextID
	c := *u
	s.w.users[u.ExternalID] = &c
	return true, nil
}

func (s fakeUserStore) UpdateProfile(_ context.Context, u models.User) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	existing, ok := s.w.users[u.ExternalID]
	if !ok {
		return errors.New("not found")
	}
	existing.Email = u.Email
	existing.Name = u.Name
	existing.Active = u.Active
	return nil
}

// fakeLiveStore serves fixed data per device

type fakeLiveStore struct {
	mu        sync.Mutex
	devices   []string
	events    map[string][]models.RawEvent
	readings  map[string][]models.RawReading
	snapshots map[string]*models.LiveSnapshot
	devErr    error
	panicOn   string
	calls     int

	// allReadings overrides readings for full tree scans when set
	allReadings  map[string][]models.RawReading
	dayReadCalls int
	allReadCalls int
}

func newFakeLiveStore() *fakeLiveStore {
	return &fakeLiveStore{
		events:    make(map[string][]models.RawEvent),
		readings:  make(map[string][]models.RawReading),
		snapshots: make(map[string]*models.LiveSnapshot),
	}
}

func (f *fakeLiveStore) Devices(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.devErr != nil {
		return nil, f.devErr
	}
	return append([]string(nil), f.devices...), nil
}

func (f *fakeLiveStore) Events(_ context.Context, deviceID string, _ time.Time) ([]models.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RawEvent{}, f.events[deviceID]...), nil
}

func (f *fakeLiveStore) AllEvents(_ context.Context, deviceID string) ([]models.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if deviceID == f.panicOn {
		panic("corrupt tree")
	}
	return append([]models.RawEvent{}, f.events[deviceID]...), nil
}

func (f *fakeLiveStore) Event(_ context.Context, deviceID string, _ time.Time, eventID string) (*models.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events[deviceID] {
		if ev.ExternalID == eventID {
			c := ev
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeLiveStore) Readings(_ context.Context, deviceID string, _ time.Time) ([]models.RawReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dayReadCalls++
	return append([]models.RawReading{}, f.readings[deviceID]...), nil
}

func (f *fakeLiveStore) AllReadings(_ context.Context, deviceID string) ([]models.RawReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allReadCalls++
	if all, ok := f.allReadings[deviceID]; ok {
		return append([]models.RawReading{}, all...), nil
	}
	return append([]models.RawReading{}, f.readings[deviceID]...), nil
}

func (f *fakeLiveStore) LiveSnapshot(_ context.Context, deviceID string) (*models.LiveSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[deviceID], nil
}

// fakeSubscriber replays scripted changes per path then blocks until ctx ends

type fakeSubscriber struct {
	mu      sync.Mutex
	changes map[string][]livestore.Change
	paths   []string
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, path string, handler livestore.Handler) error {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	changes := f.changes[path]
	f.changes[path] = nil
	f.mu.Unlock()

	for _, c := range changes {
		handler(ctx, c)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeSubscriber) subscribedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []models.EventNotice
}

func (n *recordingNotifier) EventChanged(_ context.Context, notice models.EventNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) all() []models.EventNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.EventNotice(nil), n.notices...)
}

type recordingRuns struct {
	mu      sync.Mutex
	reports []any
}

func (r *recordingRuns) PublishRun(_ context.Context, _ string, report any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingRuns) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type recordingLiveCache struct {
	mu    sync.Mutex
	snaps map[string]models.LiveSnapshot
}

func (c *recordingLiveCache) Put(_ context.Context, snap models.LiveSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snaps == nil {
		c.snaps = make(map[string]models.LiveSnapshot)
	}
	c.snaps[snap.DeviceID] = snap
	return nil
}

type staticUserSource struct {
	users []models.ExternalUser
	err   error
}

func (s staticUserSource) ListUsers(context.Context) ([]models.ExternalUser, error) {
	return s.users, s.err
}

func i64(v int64) *int64 { return &v }
