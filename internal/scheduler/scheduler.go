package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/classify"
	"github.com/banshee-data/radar.overlay/internal/config"
	"github.com/banshee-data/radar.overlay/internal/landmark"
	"github.com/banshee-data/radar.overlay/internal/monitoring"
	"github.com/banshee-data/radar.overlay/internal/terrain"
	"github.com/banshee-data/radar.overlay/internal/timeutil"
	"github.com/banshee-data/radar.overlay/internal/world"
)

var (
	// ErrDisabled is returned by Dispatch between Disable and the next Enable.
	ErrDisabled = errors.New("scheduler disabled")
	// ErrAreaMismatch marks a session whose provider did not follow the
	// area named by the AreaChanged event.
	ErrAreaMismatch = errors.New("provider area does not match event")
)

// StateProvider is the host game-state source.
type StateProvider interface {
	GameState() world.GameState
	// CurrentArea returns a fresh snapshot of the area the player is in.
	CurrentArea(ctx context.Context) (world.Area, error)
	MapViews() (large, mini world.MapView)
	Frame() (world.Frame, error)
}

// LandmarkSource returns the configured landmark groups of an area. An
// area without configuration yields an empty index, not an error.
type LandmarkSource interface {
	Area(area string) (landmark.AreaIndex, error)
}

// CenterSink is implemented by landmark sources that persist recomputed
// centers so the next visit to an area starts from them.
type CenterSink interface {
	SaveCenters(area string, idx landmark.AreaIndex) error
}

// MapMetrics are the per-view reference values the projector uses every frame.
type MapMetrics struct {
	LargeMapDiagonal float64
	MiniMapDiagonal  float64
	// MiniMapCenter is the mini map midpoint including its default shift.
	MiniMapCenter r2.Vec
}

// FrameContext is handed to the frame callback once per tick.
type FrameContext struct {
	Frame   world.Frame
	Session *AreaSession
	// Bitmap and Landmarks are the session artifacts as of this frame.
	Bitmap           *terrain.Bitmap
	Landmarks        landmark.AreaIndex
	Metrics          MapMetrics
	ModifyCullWindow bool
}

// FrameFunc renders one frame.
type FrameFunc func(FrameContext)

// Options configures a Scheduler.
type Options struct {
	Provider StateProvider
	// Landmarks may be nil, in which case no landmarks are clustered.
	Landmarks LandmarkSource
	Config    *config.OverlayConfig
	Clock     timeutil.Clock
	OnFrame   FrameFunc
	// OnEvent sees every dispatched event, enabled or not, before its
	// reaction runs. Host adapters use it to stay in step with the
	// dispatcher.
	OnEvent func(Event)
}

type reaction func(ctx context.Context, ev Event)

// Scheduler reacts to host events and owns the current AreaSession.
type Scheduler struct {
	provider  StateProvider
	landmarks LandmarkSource
	cfg       *config.OverlayConfig
	clock     timeutil.Clock
	onFrame   FrameFunc
	onEvent   func(Event)
	reactions map[EventType]reaction

	running atomic.Bool
	commits chan commit
	jobs    sync.WaitGroup

	mu                   sync.RWMutex
	enabled              bool
	skipOneSettingChange bool
	modifyCullWindow     bool
	drawWalkableMap      bool
	walkable             color.NRGBA
	nonWalkable          color.NRGBA
	area                 string
	epoch                uint64
	session              *AreaSession
	cancelJob            context.CancelFunc
	metrics              MapMetrics
	classStats           classify.Stats
	frames               uint64
	dropped              uint64
}

// New returns a disabled Scheduler; call Enable before dispatching.
func New(opts Options) (*Scheduler, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("scheduler: nil state provider")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyOverlayConfig()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Scheduler{
		provider:        opts.Provider,
		landmarks:       opts.Landmarks,
		cfg:             cfg,
		clock:           clock,
		onFrame:         opts.OnFrame,
		onEvent:         opts.OnEvent,
		commits:         make(chan commit, 4),
		drawWalkableMap: cfg.GetDrawWalkableMap(),
		walkable:        cfg.GetWalkableMapColor().NRGBA(),
		nonWalkable:     cfg.GetNonWalkableMapColor().NRGBA(),
	}
	s.reactions = map[EventType]reaction{
		AreaChanged:       s.onAreaChanged,
		Moved:             s.onMoved,
		Closed:            s.onClosed,
		ForegroundChanged: s.onForegroundChanged,
	}
	return s, nil
}

// Enable starts reacting to events. When the game is not open yet, the
// first Moved after enabling does not request a culling-window change.
func (s *Scheduler) Enable(gameOpen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	if !gameOpen {
		s.skipOneSettingChange = true
	}
}

// Disable stops reacting to events. Cached artifacts are kept.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	if s.cancelJob != nil {
		s.cancelJob()
		s.cancelJob = nil
	}
}

// Dispatch runs the reaction registered for ev.Type to completion on the
// caller's goroutine.
func (s *Scheduler) Dispatch(ctx context.Context, ev Event) error {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
	s.mu.RLock()
	enabled := s.enabled
	s.mu.RUnlock()
	if !enabled {
		return ErrDisabled
	}
	react, ok := s.reactions[ev.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, ev.Type)
	}
	monitoring.Tracef("scheduler: %s (area %q)", ev.Type, ev.Area)
	react(ctx, ev)
	return nil
}

// Run dispatches events and renders a frame on every tick of the frame
// interval until ctx is done or events is closed. With async_recompute set,
// area recomputes run off the loop and their results are committed here.
func (s *Scheduler) Run(ctx context.Context, events <-chan Event) error {
	ticker := s.clock.NewTicker(s.cfg.GetFrameInterval())
	defer ticker.Stop()
	s.running.Store(true)
	defer s.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.drainJobs()
				return nil
			}
			if err := s.Dispatch(ctx, ev); err != nil && !errors.Is(err, ErrDisabled) {
				monitoring.Opsf("scheduler: %v", err)
			}
		case c := <-s.commits:
			s.commit(c)
		case <-ticker.C():
			s.Tick()
		}
	}
}

// drainJobs waits for in-flight recomputes and commits their results.
func (s *Scheduler) drainJobs() {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	for {
		select {
		case c := <-s.commits:
			s.commit(c)
		case <-done:
			for {
				select {
				case c := <-s.commits:
					s.commit(c)
				default:
					return
				}
			}
		}
	}
}

func (s *Scheduler) onAreaChanged(ctx context.Context, ev Event) {
	area, err := s.provider.CurrentArea(ctx)
	if err == nil && ev.Area != "" && area.ID != ev.Area {
		err = fmt.Errorf("%w: provider is on %q", ErrAreaMismatch, area.ID)
	}
	if err != nil {
		area = world.Area{ID: ev.Area}
	}
	state := s.provider.GameState()

	s.mu.Lock()
	s.epoch++
	if s.cancelJob != nil {
		s.cancelJob()
		s.cancelJob = nil
	}
	sess := NewAreaSession(area.ID, s.epoch, s.cfg.IsSpecialArea(area.ID), area.Terrain, s.clock.Now())
	sess.Tiles = area.Tiles
	s.area = area.ID
	s.session = sess
	if err != nil {
		sess.Err = err
		s.mu.Unlock()
		monitoring.Opsf("scheduler: area %q snapshot unavailable: %v", ev.Area, err)
		return
	}
	job := s.newJob(sess, area, state)
	async := s.cfg.GetAsyncRecompute() && s.running.Load()
	var jobCtx context.Context = ctx
	if async {
		jobCtx, s.cancelJob = context.WithCancel(ctx)
	}
	s.mu.Unlock()

	monitoring.Diagf("scheduler: entered area %q (session %s, epoch %d, special=%t)",
		sess.Area, sess.ID, sess.Epoch, sess.Special)

	if !async {
		s.commit(job.run(jobCtx))
		return
	}
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		c := job.run(jobCtx)
		select {
		case s.commits <- c:
		case <-ctx.Done():
		}
	}()
}

func (s *Scheduler) onMoved(_ context.Context, _ Event) {
	large, mini := s.provider.MapViews()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateMetricsLocked(large, mini)
	if s.skipOneSettingChange {
		s.skipOneSettingChange = false
	} else {
		s.modifyCullWindow = true
	}
}

func (s *Scheduler) onClosed(_ context.Context, _ Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipOneSettingChange = true
	s.area = ""
}

func (s *Scheduler) onForegroundChanged(_ context.Context, _ Event) {
	large, mini := s.provider.MapViews()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateMetricsLocked(large, mini)
}

func (s *Scheduler) updateMetricsLocked(large, mini world.MapView) {
	s.metrics = MapMetrics{
		LargeMapDiagonal: large.Diagonal(),
		MiniMapDiagonal:  mini.Diagonal(),
		MiniMapCenter:    mini.CenterWithDefaultShift(),
	}
}

// recomputeJob captures everything an area recompute needs so it can run
// without touching scheduler state.
type recomputeJob struct {
	epoch       uint64
	area        world.Area
	drawMap     bool
	walkable    color.NRGBA
	nonWalkable color.NRGBA
	landmarks   LandmarkSource
	decode      terrain.DecodeOptions
	cluster     landmark.Options
}

type commit struct {
	epoch     uint64
	area      string
	bitmap    *terrain.Bitmap
	landmarks landmark.AreaIndex
	report    landmark.Report
	// clustered is set when landmarks hold freshly recomputed centers.
	clustered bool
	err       error
}

func (s *Scheduler) newJob(sess *AreaSession, area world.Area, state world.GameState) recomputeJob {
	return recomputeJob{
		epoch:       sess.Epoch,
		area:        area,
		drawMap:     s.drawWalkableMap && state.ShowsMap(),
		walkable:    s.walkable,
		nonWalkable: s.nonWalkable,
		landmarks:   s.landmarks,
		decode:      terrain.DecodeOptions{Workers: s.cfg.GetDecodeWorkers()},
		cluster: landmark.Options{
			Area:          area.ID,
			Workers:       s.cfg.GetClusterWorkers(),
			MaxIterations: s.cfg.GetKMeansMaxIterations(),
		},
	}
}

func (j recomputeJob) run(ctx context.Context) commit {
	c := commit{epoch: j.epoch, area: j.area.ID, landmarks: landmark.AreaIndex{}}

	if j.drawMap {
		bmp, err := terrain.DecodeWithOptions(ctx, j.area.Terrain, j.walkable, j.nonWalkable, j.decode)
		if err != nil {
			monitoring.Opsf("scheduler: terrain decode for area %q failed: %v", j.area.ID, err)
			c.err = err
		} else {
			c.bitmap = bmp
		}
	}

	if j.landmarks == nil {
		return c
	}
	groups, err := j.landmarks.Area(j.area.ID)
	if err != nil {
		monitoring.Opsf("scheduler: loading landmarks for area %q: %v", j.area.ID, err)
		c.err = errors.Join(c.err, err)
		return c
	}
	if len(groups) == 0 {
		return c
	}
	idx, report, err := landmark.Recompute(ctx, groups, j.area.Tiles, j.cluster)
	if err != nil {
		monitoring.Opsf("scheduler: clustering landmarks for area %q: %v", j.area.ID, err)
		c.err = errors.Join(c.err, err)
		c.landmarks = groups
		return c
	}
	c.landmarks = idx
	c.report = report
	c.clustered = true
	return c
}

// commit installs c into the current session and persists its centers.
// Results from an older epoch are dropped and never reach the CenterSink.
func (s *Scheduler) commit(c commit) bool {
	s.mu.Lock()
	sess := s.session
	if errors.Is(c.err, context.Canceled) {
		s.dropped++
		s.mu.Unlock()
		monitoring.Diagf("scheduler: discarding cancelled recompute (epoch %d)", c.epoch)
		return false
	}
	if sess == nil || c.epoch != s.epoch || sess.Epoch != c.epoch {
		s.dropped++
		current := s.epoch
		s.mu.Unlock()
		monitoring.Opsf("scheduler: dropping stale recompute (epoch %d, current %d)", c.epoch, current)
		return false
	}
	sess.Bitmap = c.bitmap
	sess.Landmarks = c.landmarks
	sess.Report = c.report
	sess.Err = c.err
	s.mu.Unlock()

	if sink, ok := s.landmarks.(CenterSink); ok && c.clustered {
		if err := sink.SaveCenters(c.area, c.landmarks.Clone()); err != nil {
			monitoring.Opsf("scheduler: saving landmark centers for area %q: %v", c.area, err)
		}
	}

	if c.bitmap != nil {
		monitoring.Diagf("scheduler: area %q bitmap %dx%d (%s)",
			sess.Area, c.bitmap.Width, c.bitmap.Height, humanize.Bytes(uint64(c.bitmap.SizeBytes())))
	}
	if len(c.landmarks) > 0 {
		monitoring.Diagf("scheduler: area %q landmarks: %d clustered, %d copied, %d missing in %s",
			sess.Area,
			c.report.Count(landmark.OutcomeClustered),
			c.report.Count(landmark.OutcomeCopied),
			c.report.Count(landmark.OutcomeMissing),
			c.report.Elapsed)
	}
	return true
}

// SetWalkableColor changes the walkable colour and regenerates the bitmap
// if one is currently shown.
func (s *Scheduler) SetWalkableColor(ctx context.Context, c color.NRGBA) error {
	s.mu.Lock()
	s.walkable = c
	regenerate := s.session != nil && s.session.Bitmap != nil
	s.mu.Unlock()
	if !regenerate {
		return nil
	}
	return s.regenerateBitmap(ctx)
}

// SetDrawWalkableMap turns the terrain bitmap on or off for the current area.
func (s *Scheduler) SetDrawWalkableMap(ctx context.Context, on bool) error {
	s.mu.Lock()
	s.drawWalkableMap = on
	s.mu.Unlock()
	return s.regenerateBitmap(ctx)
}

func (s *Scheduler) regenerateBitmap(ctx context.Context) error {
	s.mu.RLock()
	sess := s.session
	draw := s.drawWalkableMap
	walkable, nonWalkable := s.walkable, s.nonWalkable
	s.mu.RUnlock()
	if sess == nil {
		return nil
	}
	if !draw || !s.provider.GameState().ShowsMap() {
		s.setBitmap(sess.Epoch, nil)
		return nil
	}
	bmp, err := terrain.DecodeWithOptions(ctx, sess.terrain, walkable, nonWalkable,
		terrain.DecodeOptions{Workers: s.cfg.GetDecodeWorkers()})
	if err != nil {
		monitoring.Opsf("scheduler: terrain decode for area %q failed: %v", sess.Area, err)
		s.setBitmap(sess.Epoch, nil)
		return err
	}
	s.setBitmap(sess.Epoch, bmp)
	return nil
}

func (s *Scheduler) setBitmap(epoch uint64, bmp *terrain.Bitmap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.Epoch != epoch {
		s.dropped++
		return
	}
	s.session.Bitmap = bmp
}

// Tick renders one frame through the frame callback.
func (s *Scheduler) Tick() {
	if s.onFrame == nil {
		return
	}
	frame, err := s.provider.Frame()
	if err != nil {
		monitoring.Tracef("scheduler: no frame: %v", err)
		return
	}

	s.mu.RLock()
	fc := FrameContext{
		Frame:            frame,
		Session:          s.session,
		Metrics:          s.metrics,
		ModifyCullWindow: s.modifyCullWindow,
	}
	if s.session != nil {
		fc.Bitmap = s.session.Bitmap
		fc.Landmarks = s.session.Landmarks
	}
	s.mu.RUnlock()

	s.onFrame(fc)

	s.mu.Lock()
	s.frames++
	if fc.Session != nil && fc.Session == s.session {
		s.classStats = fc.Session.Classifier.Stats()
	}
	s.mu.Unlock()
}

// Session returns the current area session, or nil before the first area change.
func (s *Scheduler) Session() *AreaSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Artifacts is a deep copy of the current session's outputs, safe to read
// and modify while the scheduler keeps running.
type Artifacts struct {
	Area      string
	Epoch     uint64
	Bitmap    *terrain.Bitmap
	Landmarks landmark.AreaIndex
	Tiles     landmark.Observations
}

// Artifacts returns the current session's outputs. ok is false before the
// first area change.
func (s *Scheduler) Artifacts() (a Artifacts, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Artifacts{}, false
	}
	return Artifacts{
		Area:      s.session.Area,
		Epoch:     s.session.Epoch,
		Bitmap:    s.session.Bitmap.Clone(),
		Landmarks: s.session.Landmarks.Clone(),
		Tiles:     s.session.Tiles.Clone(),
	}, true
}

// CurrentArea returns the current area id; empty after Closed.
func (s *Scheduler) CurrentArea() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.area
}

// Metrics returns the cached map-view metrics.
func (s *Scheduler) Metrics() MapMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// ModifyCullWindow reports whether a move asked for the large-map culling
// window to be recalibrated.
func (s *Scheduler) ModifyCullWindow() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modifyCullWindow
}

// AcknowledgeCullWindow clears the recalibration request.
func (s *Scheduler) AcknowledgeCullWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modifyCullWindow = false
}

// Status is a point-in-time summary for debug endpoints.
type Status struct {
	Enabled          bool           `json:"enabled"`
	Area             string         `json:"area"`
	Session          string         `json:"session,omitempty"`
	Epoch            uint64         `json:"epoch"`
	Special          bool           `json:"special"`
	BitmapWidth      int            `json:"bitmap_width"`
	BitmapHeight     int            `json:"bitmap_height"`
	BitmapSize       string         `json:"bitmap_size,omitempty"`
	ValidGroups      []string       `json:"valid_groups"`
	Classifier       classify.Stats `json:"classifier"`
	Frames           uint64         `json:"frames"`
	DroppedCommits   uint64         `json:"dropped_commits"`
	ModifyCullWindow bool           `json:"modify_cull_window"`
	LargeMapDiagonal float64        `json:"large_map_diagonal"`
	MiniMapDiagonal  float64        `json:"mini_map_diagonal"`
	LastError        string         `json:"last_error,omitempty"`
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Enabled:          s.enabled,
		Area:             s.area,
		Epoch:            s.epoch,
		Classifier:       s.classStats,
		Frames:           s.frames,
		DroppedCommits:   s.dropped,
		ModifyCullWindow: s.modifyCullWindow,
		LargeMapDiagonal: s.metrics.LargeMapDiagonal,
		MiniMapDiagonal:  s.metrics.MiniMapDiagonal,
		ValidGroups:      []string{},
	}
	sess := s.session
	if sess == nil {
		return st
	}
	st.Session = sess.ID
	st.Special = sess.Special
	if sess.Bitmap != nil {
		st.BitmapWidth = sess.Bitmap.Width
		st.BitmapHeight = sess.Bitmap.Height
		st.BitmapSize = humanize.Bytes(uint64(sess.Bitmap.SizeBytes()))
	}
	for _, g := range sess.Landmarks.Valid() {
		st.ValidGroups = append(st.ValidGroups, g.Name)
	}
	if sess.Err != nil {
		st.LastError = sess.Err.Error()
	}
	return st
}
