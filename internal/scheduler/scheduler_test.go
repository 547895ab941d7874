package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"reelpost/internal/catalog"
	"reelpost/internal/dispatch"
	"reelpost/internal/distribution"
	"reelpost/internal/jobs"
	"reelpost/pkg/progress"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	fail  map[distribution.Platform]error
	calls []dispatch.Request
	hook  func(dispatch.Request)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req dispatch.Request, onProgress progress.Func) (*dispatch.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(req)
	}

	p := distribution.Platform(req.Target)
	out := &dispatch.Outcome{Target: req.Target}
	if err := f.fail[p]; err != nil {
		out.Failed = p
		out.Err = &dispatch.UploadError{Platform: p, Err: err}
		return out, out.Err
	}
	onProgress.Report(100)
	out.Results = []dispatch.Result{{Platform: p, URL: "https://example.com/" + string(p), ID: "id"}}
	return out, nil
}

type fakeNotifier struct {
	begun    []string
	finished []*dispatch.Outcome
	failed   []error
}

func (f *fakeNotifier) Begin(ctx context.Context, j jobs.Job) Notice {
	f.begun = append(f.begun, j.ID)
	return &fakeNotice{n: f}
}

func (f *fakeNotifier) Failed(ctx context.Context, j jobs.Job, err error) {
	f.failed = append(f.failed, err)
}

type fakeNotice struct {
	n *fakeNotifier
}

func (f *fakeNotice) Progress() progress.Func { return nil }

func (f *fakeNotice) Finish(ctx context.Context, o *dispatch.Outcome) {
	f.n.finished = append(f.n.finished, o)
}

type fakeRecorder struct {
	results map[string]int
	passes  int
	pending int
}

func (f *fakeRecorder) ObserveScheduledJob(result string) {
	if f.results == nil {
		f.results = map[string]int{}
	}
	f.results[result]++
}

func (f *fakeRecorder) ObservePass(pending int) {
	f.passes++
	f.pending = pending
}

type fixture struct {
	sched      *Scheduler
	store      *jobs.Store
	catalog    *catalog.Catalog
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	recorder   *fakeRecorder
	dir        string
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		store:      jobs.NewStore(filepath.Join(dir, "scheduled_posts.json")),
		catalog:    catalog.New(filepath.Join(dir, "videos.json")),
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
		recorder:   &fakeRecorder{},
		dir:        dir,
		now:        time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.sched = New(Options{
		Jobs:       f.store,
		Catalog:    f.catalog,
		Dispatcher: f.dispatcher,
		Notifier:   f.notifier,
		Recorder:   f.recorder,
		Now:        func() time.Time { return f.now },
		LockPath:   filepath.Join(dir, "scheduler.lock"),
	})
	return f
}

func (f *fixture) video(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) job(t *testing.T, id string, owner int64, p distribution.Platform, path string, at time.Time) jobs.Job {
	t.Helper()
	j := jobs.Job{ID: id, OwnerChatID: owner, Platform: p, VideoPath: path, Caption: "cap " + id, ScheduledAt: at}
	if err := f.store.Put(j); err != nil {
		t.Fatalf("Put(%s) error = %v", id, err)
	}
	return j
}

func TestPassRunsDueJobsOnce(t *testing.T) {
	f := newFixture(t)
	path := f.video(t, "masked_a.mp4")
	if _, err := f.catalog.Create("a", path, f.now); err != nil {
		t.Fatal(err)
	}

	f.job(t, "post_1", 10, distribution.Instagram, path, f.now.Add(-time.Minute))
	f.job(t, "post_2", 10, distribution.YouTube, path, f.now)
	f.job(t, "post_3", 20, distribution.YouTube, path, f.now.Add(time.Minute))

	rep := f.sched.Pass(context.Background())

	if rep.Due != 2 || rep.Published != 2 || rep.Failed != 0 || rep.Removed != 2 {
		t.Errorf("report = %+v", rep)
	}
	if len(f.dispatcher.calls) != 2 {
		t.Fatalf("dispatch calls = %d, want 2", len(f.dispatcher.calls))
	}

	left, _ := f.store.List()
	if len(left) != 1 || left[0].ID != "post_3" {
		t.Errorf("remaining = %+v", left)
	}
	if owned, _ := f.store.ListByOwner(10); len(owned) != 0 {
		t.Errorf("owner 10 still has %d jobs", len(owned))
	}

	entries, _ := f.catalog.List()
	if !entries[0].PublishedTo(distribution.Instagram) || !entries[0].PublishedTo(distribution.YouTube) {
		t.Errorf("catalog platforms = %v", entries[0].Platforms)
	}

	if f.recorder.results["success"] != 2 || f.recorder.passes != 1 || f.recorder.pending != 1 {
		t.Errorf("recorder = %+v", f.recorder)
	}
	if len(f.notifier.finished) != 2 {
		t.Errorf("notices finished = %d", len(f.notifier.finished))
	}

	f.sched.Pass(context.Background())
	if len(f.dispatcher.calls) != 2 {
		t.Errorf("second pass dispatched again: %d calls", len(f.dispatcher.calls))
	}
}

func TestPassRemovesFailedJobs(t *testing.T) {
	f := newFixture(t)
	path := f.video(t, "masked_b.mp4")
	f.dispatcher.fail = map[distribution.Platform]error{distribution.YouTube: errors.New("quota exceeded")}

	f.job(t, "post_1", 10, distribution.YouTube, path, f.now.Add(-time.Hour))
	f.job(t, "post_2", 10, distribution.Instagram, path, f.now.Add(-time.Hour))

	rep := f.sched.Pass(context.Background())

	if rep.Failed != 1 || rep.Published != 1 || rep.Removed != 2 {
		t.Errorf("report = %+v", rep)
	}
	if left, _ := f.store.List(); len(left) != 0 {
		t.Errorf("jobs left = %+v", left)
	}
	if f.recorder.results["failure"] != 1 {
		t.Errorf("recorder = %+v", f.recorder.results)
	}

	var failed *dispatch.Outcome
	for _, o := range f.notifier.finished {
		if o.Err != nil {
			failed = o
		}
	}
	if failed == nil || !errors.Is(failed.Err, dispatch.ErrUpload) {
		t.Errorf("failure notice = %+v", failed)
	}
}

func TestPassMissingVideoFile(t *testing.T) {
	f := newFixture(t)
	f.job(t, "post_1", 10, distribution.Instagram, filepath.Join(f.dir, "gone.mp4"), f.now.Add(-time.Minute))

	rep := f.sched.Pass(context.Background())

	if rep.Failed != 1 || rep.Removed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(f.dispatcher.calls) != 0 {
		t.Error("dispatched a job without a video file")
	}
	if len(f.notifier.failed) != 1 || !errors.Is(f.notifier.failed[0], ErrMissingVideoFile) {
		t.Errorf("failures = %v", f.notifier.failed)
	}
	if len(f.notifier.begun) != 0 {
		t.Error("status line opened for a missing file")
	}
	if f.recorder.results["missing_file"] != 1 {
		t.Errorf("recorder = %+v", f.recorder.results)
	}
}

func TestPassSkipsJobCancelledMidPass(t *testing.T) {
	f := newFixture(t)
	path := f.video(t, "masked_c.mp4")

	first := f.job(t, "post_1", 10, distribution.Instagram, path, f.now.Add(-2*time.Minute))
	f.job(t, "post_2", 10, distribution.YouTube, path, f.now.Add(-time.Minute))

	f.dispatcher.hook = func(req dispatch.Request) {
		if req.Target == dispatch.TargetInstagram {
			if _, err := f.store.Remove(10, "post_2"); err != nil {
				t.Errorf("Remove() error = %v", err)
			}
		}
	}

	rep := f.sched.Pass(context.Background())

	if rep.Due != 2 || rep.Published != 1 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(f.dispatcher.calls) != 1 || f.dispatcher.calls[0].Caption != first.Caption {
		t.Errorf("dispatch calls = %+v", f.dispatcher.calls)
	}
}

func TestPassKeepsJobsScheduledDuringPass(t *testing.T) {
	f := newFixture(t)
	path := f.video(t, "masked_d.mp4")
	f.job(t, "post_1", 10, distribution.Instagram, path, f.now.Add(-time.Minute))

	f.dispatcher.hook = func(dispatch.Request) {
		late := jobs.Job{ID: "post_9", OwnerChatID: 10, Platform: distribution.YouTube, VideoPath: path, ScheduledAt: f.now.Add(time.Hour)}
		if err := f.store.Put(late); err != nil {
			t.Errorf("Put() error = %v", err)
		}
	}

	f.sched.Pass(context.Background())

	left, _ := f.store.List()
	if len(left) != 1 || left[0].ID != "post_9" {
		t.Errorf("remaining = %+v, want the job added mid-pass", left)
	}
}

func TestPassDueLeeway(t *testing.T) {
	f := newFixture(t)
	f.sched.leeway = 30 * time.Second
	path := f.video(t, "masked_e.mp4")

	f.job(t, "post_1", 10, distribution.Instagram, path, f.now.Add(20*time.Second))
	f.job(t, "post_2", 10, distribution.Instagram, path, f.now.Add(40*time.Second))

	rep := f.sched.Pass(context.Background())
	if rep.Due != 1 {
		t.Errorf("due = %d, want 1", rep.Due)
	}
}

func TestPassCancelledContext(t *testing.T) {
	f := newFixture(t)
	path := f.video(t, "masked_f.mp4")
	f.job(t, "post_1", 10, distribution.Instagram, path, f.now.Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := f.sched.Pass(ctx)
	if rep.Due != 1 || rep.Published != 0 || rep.Removed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if left, _ := f.store.List(); len(left) != 1 {
		t.Errorf("jobs left = %d, want 1", len(left))
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.sched.interval = 10 * time.Millisecond

	ctx := context.Background()
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.sched.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f.sched.Stop(stopCtx)
	f.sched.Stop(stopCtx)
}

func TestPassSkipsWhileLockHeld(t *testing.T) {
	f := newFixture(t)
	f.job(t, "post_1", 42, distribution.Instagram, f.video(t, "a.mp4"), f.now.Add(-time.Minute))

	other := flock.New(filepath.Join(f.dir, "scheduler.lock"))
	if err := other.Lock(); err != nil {
		t.Fatal(err)
	}

	rep := f.sched.Pass(context.Background())
	if !rep.Busy || rep.Due != 0 || len(f.dispatcher.calls) != 0 {
		t.Fatalf("locked pass = %+v, calls = %d", rep, len(f.dispatcher.calls))
	}
	if _, ok, _ := f.store.Get(42, "post_1"); !ok {
		t.Fatal("job should stay pending while another pass holds the lock")
	}

	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	rep = f.sched.Pass(context.Background())
	if rep.Busy || rep.Published != 1 {
		t.Errorf("pass after unlock = %+v", rep)
	}
}

func TestTwoProcessesDispatchDueJobOnce(t *testing.T) {
	f := newFixture(t)
	f.job(t, "post_1", 42, distribution.YouTube, f.video(t, "a.mp4"), f.now.Add(-time.Minute))

	// A second scheduler over its own Store on the same files, as `once`
	// would open next to a running bot.
	second := New(Options{
		Jobs:       jobs.NewStore(f.store.Path()),
		Dispatcher: f.dispatcher,
		Now:        func() time.Time { return f.now },
		LockPath:   filepath.Join(f.dir, "scheduler.lock"),
	})

	release := make(chan struct{})
	started := make(chan struct{})
	f.dispatcher.hook = func(dispatch.Request) {
		close(started)
		<-release
	}

	var wg sync.WaitGroup
	var first Report
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = f.sched.Pass(context.Background())
	}()

	<-started
	rep := second.Pass(context.Background())
	close(release)
	wg.Wait()

	if !rep.Busy {
		t.Errorf("second pass = %+v, want Busy", rep)
	}
	if first.Published != 1 || len(f.dispatcher.calls) != 1 {
		t.Errorf("first pass = %+v, dispatches = %d", first, len(f.dispatcher.calls))
	}
	if left, _ := f.store.List(); len(left) != 0 {
		t.Errorf("jobs left = %d", len(left))
	}
}
