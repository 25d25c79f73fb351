package tracker_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveweb/solar-tracker/internal/trackertest"
	"github.com/saveweb/solar-tracker/pkg/tracker"
)

const (
	testProject = "test_project"
	testVersion = "1.0"
)

func testProjectDef(delay float64) tracker.Project {
	return tracker.Project{
		Meta:   tracker.ProjectMeta{Identifier: testProject, Slug: "a test project", Icon: "https://example.org/icon.png", Deadline: "2099-01-01"},
		Status: tracker.ProjectStatus{Public: true},
		Client: tracker.ProjectClient{Version: testVersion, ClaimTaskDelay: delay},
		Mongodb: tracker.ProjectMongodb{
			DBName:          "test",
			ItemCollection:  "items",
			QueueCollection: "queue",
		},
	}
}

// setupTracker starts a fake tracker holding one project and connects to it.
func setupTracker(t *testing.T, delay float64, opts ...tracker.Option) (*tracker.Tracker, *trackertest.Server) {
	t.Helper()
	srv := trackertest.New(t)
	srv.PutProject(testProjectDef(delay))

	opts = append([]tracker.Option{tracker.WithBaseURL(srv.URL())}, opts...)
	tr, err := tracker.New(context.Background(), tracker.Config{
		ProjectID:     testProject,
		Archivist:     "tester",
		ClientVersion: testVersion,
	}, opts...)
	require.NoError(t, err)
	return tr, srv
}

func TestNew(t *testing.T) {
	t.Run("connects and fetches the project", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		assert.Equal(t, srv.URL(), tr.BaseURL())
		assert.Equal(t, testProject, tr.ProjectID())
		assert.Equal(t, "tester", tr.Archivist())
		assert.Equal(t, testVersion, tr.ClientVersion())
		assert.Equal(t, 1, srv.Hits(trackertest.RouteProject))
	})

	t.Run("rejects unsafe identifiers before any request", func(t *testing.T) {
		srv := trackertest.New(t)
		srv.PutProject(testProjectDef(0))

		cases := []tracker.Config{
			{ProjectID: "bad project", Archivist: "ok", ClientVersion: testVersion},
			{ProjectID: testProject, Archivist: "bad/archivist", ClientVersion: testVersion},
			{ProjectID: "", Archivist: "ok", ClientVersion: testVersion},
			{ProjectID: testProject, Archivist: "ok", ClientVersion: ""},
		}
		for _, cfg := range cases {
			tr, err := tracker.New(context.Background(), cfg, tracker.WithBaseURL(srv.URL()))
			assert.Nil(t, tr)
			var verr *tracker.ValidationError
			assert.True(t, errors.As(err, &verr), "config %+v", cfg)
		}
		assert.Equal(t, 0, srv.Hits(trackertest.RouteProject))
	})

	t.Run("fails on client version mismatch", func(t *testing.T) {
		srv := trackertest.New(t)
		srv.PutProject(testProjectDef(0))

		tr, err := tracker.New(context.Background(), tracker.Config{
			ProjectID:     testProject,
			Archivist:     "tester",
			ClientVersion: "0.9",
		}, tracker.WithBaseURL(srv.URL()))
		require.Error(t, err)
		assert.Nil(t, tr)

		var mismatch *tracker.ConfigMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, "0.9", mismatch.Local)
		assert.Equal(t, testVersion, mismatch.Remote)
		assert.Equal(t, 0, srv.Hits(trackertest.RouteClaimTask))
	})

	t.Run("fails when the project is unknown", func(t *testing.T) {
		srv := trackertest.New(t)
		_, err := tracker.New(context.Background(), tracker.Config{
			ProjectID:     "missing",
			Archivist:     "tester",
			ClientVersion: testVersion,
		}, tracker.WithBaseURL(srv.URL()))
		assert.True(t, tracker.IsRemoteStatus(err, http.StatusNotFound))
	})

	t.Run("selects the healthy node", func(t *testing.T) {
		down := trackertest.New(t)
		down.Fail(trackertest.RoutePing, http.StatusServiceUnavailable, "")
		up := trackertest.New(t)
		up.PutProject(testProjectDef(0))

		tr, err := tracker.New(context.Background(), tracker.Config{
			ProjectID:     testProject,
			Archivist:     "tester",
			ClientVersion: testVersion,
			Nodes:         []string{down.URL(), up.URL()},
		})
		require.NoError(t, err)
		assert.Equal(t, up.URL(), tr.BaseURL())
		assert.Equal(t, 0, down.Hits(trackertest.RouteProject))
	})
}

func TestProjectCache(t *testing.T) {
	t.Run("serves from cache within the TTL", func(t *testing.T) {
		clock := newFakeClock()
		tr, srv := setupTracker(t, 0, tracker.WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		_, err := tr.Project(ctx)
		require.NoError(t, err)
		clock.Advance(59 * time.Second)
		_, err = tr.Project(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, srv.Hits(trackertest.RouteProject))
	})

	t.Run("refetches exactly once after the TTL", func(t *testing.T) {
		clock := newFakeClock()
		tr, srv := setupTracker(t, 0, tracker.WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		clock.Advance(61 * time.Second)
		_, err := tr.Project(ctx)
		require.NoError(t, err)
		_, err = tr.Project(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, srv.Hits(trackertest.RouteProject))
	})

	t.Run("picks up server side changes after the TTL", func(t *testing.T) {
		clock := newFakeClock()
		tr, srv := setupTracker(t, 0, tracker.WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		updated := testProjectDef(5)
		updated.Status.Paused = true
		srv.PutProject(updated)

		p, err := tr.Project(ctx)
		require.NoError(t, err)
		assert.False(t, p.Status.Paused)

		clock.Advance(61 * time.Second)
		p, err = tr.Project(ctx)
		require.NoError(t, err)
		assert.True(t, p.Status.Paused)
		assert.Equal(t, 5*time.Second, p.Client.Delay())
	})

	t.Run("returns independent copies", func(t *testing.T) {
		tr, _ := setupTracker(t, 0)
		ctx := context.Background()

		a, err := tr.Project(ctx)
		require.NoError(t, err)
		b, err := tr.Project(ctx)
		require.NoError(t, err)

		a.Meta.Slug = "mutated"
		a.Client.ClaimTaskDelay = 99
		assert.Equal(t, "a test project", b.Meta.Slug)

		c, err := tr.Project(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a test project", c.Meta.Slug)
		assert.Equal(t, float64(0), c.Client.ClaimTaskDelay)
	})

	t.Run("failed refetch keeps the cache and retries", func(t *testing.T) {
		clock := newFakeClock()
		tr, srv := setupTracker(t, 0, tracker.WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		clock.Advance(61 * time.Second)
		srv.Fail(trackertest.RouteProject, http.StatusBadGateway, "upstream down")
		_, err := tr.Project(ctx)
		var remote *tracker.RemoteError
		require.True(t, errors.As(err, &remote))
		assert.Equal(t, http.StatusBadGateway, remote.StatusCode)
		assert.Equal(t, "upstream down", remote.Body)

		srv.Recover(trackertest.RouteProject)
		p, err := tr.Project(ctx)
		require.NoError(t, err)
		assert.Equal(t, testProject, p.Meta.Identifier)
		assert.Equal(t, 3, srv.Hits(trackertest.RouteProject))
	})
}

func TestListProjects(t *testing.T) {
	tr, srv := setupTracker(t, 0)
	private := testProjectDef(0)
	private.Meta.Identifier = "hidden"
	private.Status.Public = false
	srv.PutProject(private)
	ctx := context.Background()

	projects, err := tr.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, testProject, projects[0].Meta.Identifier)

	projects, err = tr.ListProjects(ctx, tracker.IncludePrivate())
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	srv.Fail(trackertest.RouteProjects, http.StatusInternalServerError, "boom")
	_, err = tr.ListProjects(ctx)
	assert.True(t, tracker.IsRemoteStatus(err, http.StatusInternalServerError))
}

func TestClaimTask(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when no task is available", func(t *testing.T) {
		tr, _ := setupTracker(t, 0)
		task, err := tr.ClaimTask(ctx)
		assert.NoError(t, err)
		assert.Nil(t, task)
	})

	t.Run("returns the claimed task", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		srv.AddTask(testProject, map[string]any{"id": 17, "url": "https://example.org/17"})

		task, err := tr.ClaimTask(ctx)
		require.NoError(t, err)
		require.NotNil(t, task)

		id, err := task.ID("id")
		require.NoError(t, err)
		assert.Equal(t, tracker.IntID(17), id)
		assert.Equal(t, "https://example.org/17", task.Get("url").String())
		assert.Equal(t, trackertest.StatusProcessing, task.Status())
		assert.Equal(t, "tester", task.Get("archivist").String())
	})

	t.Run("uses the custom doc id name", func(t *testing.T) {
		srv := trackertest.New(t)
		p := testProjectDef(0)
		p.Mongodb.CustomDocIDName = "feed_id"
		srv.PutProject(p)
		srv.AddTask(testProject, map[string]any{"feed_id": "abc"})

		tr, err := tracker.New(ctx, tracker.Config{ProjectID: testProject, Archivist: "tester", ClientVersion: testVersion},
			tracker.WithBaseURL(srv.URL()))
		require.NoError(t, err)

		task, err := tr.ClaimTask(ctx)
		require.NoError(t, err)
		project, err := tr.Project(ctx)
		require.NoError(t, err)
		id, err := task.ID(project.Mongodb.DocIDName())
		require.NoError(t, err)
		assert.Equal(t, tracker.StrID("abc"), id)
	})

	t.Run("returns a remote error for other statuses", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		srv.Fail(trackertest.RouteClaimTask, http.StatusInternalServerError, `{"error":"db down"}`)

		task, err := tr.ClaimTask(ctx)
		assert.Nil(t, task)
		var remote *tracker.RemoteError
		require.True(t, errors.As(err, &remote))
		assert.Equal(t, "claim_task", remote.Op)
		assert.Equal(t, http.StatusInternalServerError, remote.StatusCode)
		assert.Contains(t, remote.Body, "db down")
	})

	t.Run("paused project is a remote error", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		p := testProjectDef(0)
		p.Status.Paused = true
		srv.PutProject(p)

		_, err := tr.ClaimTask(ctx)
		assert.True(t, tracker.IsRemoteStatus(err, http.StatusBadRequest))
	})

	t.Run("transport failure is a transport error", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		srv.HTTP.Close()

		_, err := tr.ClaimTask(ctx, tracker.WithoutDelay())
		var terr *tracker.TransportError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, "claim_task", terr.Op)
	})
}

func TestClaimPacing(t *testing.T) {
	ctx := context.Background()

	t.Run("second claim waits for the remaining delay", func(t *testing.T) {
		clock := newFakeClock()
		tr, _ := setupTracker(t, 2.0, tracker.WithClock(clock.Now, clock.Sleep))

		_, err := tr.ClaimTask(ctx)
		require.NoError(t, err)
		assert.Empty(t, clock.Sleeps())

		clock.Advance(300 * time.Millisecond)
		_, err = tr.ClaimTask(ctx)
		require.NoError(t, err)

		sleeps := clock.Sleeps()
		require.Len(t, sleeps, 1)
		assert.Equal(t, 1700*time.Millisecond, sleeps[0])
	})

	t.Run("late claims proceed immediately", func(t *testing.T) {
		clock := newFakeClock()
		tr, _ := setupTracker(t, 2.0, tracker.WithClock(clock.Now, clock.Sleep))

		_, err := tr.ClaimTask(ctx)
		require.NoError(t, err)
		clock.Advance(3 * time.Second)
		_, err = tr.ClaimTask(ctx)
		require.NoError(t, err)
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("without delay skips pacing", func(t *testing.T) {
		clock := newFakeClock()
		tr, srv := setupTracker(t, 2.0, tracker.WithClock(clock.Now, clock.Sleep))

		for i := 0; i < 3; i++ {
			_, err := tr.ClaimTask(ctx, tracker.WithoutDelay())
			require.NoError(t, err)
		}
		assert.Empty(t, clock.Sleeps())
		assert.Equal(t, 3, srv.Hits(trackertest.RouteClaimTask))
	})

	t.Run("failed claims still count for pacing", func(t *testing.T) {
		clock := newFakeClock()
		tr, srv := setupTracker(t, 2.0, tracker.WithClock(clock.Now, clock.Sleep))
		srv.Fail(trackertest.RouteClaimTask, http.StatusInternalServerError, "")

		_, err := tr.ClaimTask(ctx)
		require.Error(t, err)
		_, err = tr.ClaimTask(ctx)
		require.Error(t, err)
		assert.Equal(t, []time.Duration{2 * time.Second}, clock.Sleeps())
	})

	t.Run("claim wait reports the remaining gap", func(t *testing.T) {
		clock := newFakeClock()
		tr, _ := setupTracker(t, 2.0, tracker.WithClock(clock.Now, clock.Sleep))

		wait, err := tr.ClaimWait(ctx)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), wait)

		_, err = tr.ClaimTask(ctx)
		require.NoError(t, err)
		clock.Advance(500 * time.Millisecond)
		wait, err = tr.ClaimWait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1500*time.Millisecond, wait)
	})

	t.Run("cancelled wait does not send a claim", func(t *testing.T) {
		tr, srv := setupTracker(t, 10.0)
		_, err := tr.ClaimTask(ctx)
		require.NoError(t, err)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = tr.ClaimTask(cctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, srv.Hits(trackertest.RouteClaimTask))
	})

	t.Run("real clock sleeps for the delay", func(t *testing.T) {
		tr, _ := setupTracker(t, 0.2)

		_, err := tr.ClaimTask(ctx)
		require.NoError(t, err)
		start := time.Now()
		_, err = tr.ClaimTask(ctx)
		require.NoError(t, err)
		elapsed := time.Since(start)

		assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
		assert.Less(t, elapsed, 400*time.Millisecond)
	})
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("updates an integer task", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		srv.AddTask(testProject, map[string]any{"id": 5})

		res, err := tr.UpdateTask(ctx, tracker.IntID(5), "DONE")
		require.NoError(t, err)
		assert.Equal(t, "Task updated successfully", res.Msg())

		task, ok := srv.Task(testProject, int64(5))
		require.True(t, ok)
		assert.Equal(t, "DONE", task["status"])
	})

	t.Run("string and integer ids are distinct", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		srv.AddTask(testProject, map[string]any{"id": 5})

		_, err := tr.UpdateTask(ctx, tracker.StrID("5"), "DONE")
		var remote *tracker.RemoteError
		require.True(t, errors.As(err, &remote))
		assert.Equal(t, http.StatusNotFound, remote.StatusCode)
		assert.Contains(t, remote.Body, "Task not found")
	})

	t.Run("rejects a zero id locally", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		_, err := tr.UpdateTask(ctx, tracker.ID{}, "DONE")
		assert.ErrorIs(t, err, tracker.ErrInvalidID)
		assert.Equal(t, 0, srv.Hits(trackertest.RouteUpdateTask))
	})

	t.Run("escapes ids in the path", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		srv.AddTask(testProject, map[string]any{"id": "a b/c"})

		_, err := tr.UpdateTask(ctx, tracker.StrID("a b/c"), "FAIL")
		require.NoError(t, err)
		task, ok := srv.Task(testProject, "a b/c")
		require.True(t, ok)
		assert.Equal(t, "FAIL", task["status"])
	})
}

func TestInsertItem(t *testing.T) {
	ctx := context.Background()

	t.Run("integer id with string status", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)

		res, err := tr.InsertItem(ctx, tracker.IntID(5), tracker.StrStatus("x"), map[string]any{"a": 1})
		require.NoError(t, err)
		assert.Equal(t, "Item inserted successfully", res.Msg())

		items := srv.Items(testProject)
		require.Len(t, items, 1)
		assert.Equal(t, int64(5), items[0].ID)
		assert.Equal(t, "int", items[0].IDType)
		assert.Equal(t, "x", items[0].Status)
		assert.Equal(t, "str", items[0].StatusType)
		assert.Equal(t, `{"a":1}`, items[0].Payload)
		assert.Equal(t, "tester", items[0].Archivist)
	})

	t.Run("string id without status", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)

		_, err := tr.InsertItem(ctx, tracker.StrID("z"), tracker.NoStatus(), nil)
		require.NoError(t, err)

		items := srv.Items(testProject)
		require.Len(t, items, 1)
		assert.Equal(t, "z", items[0].ID)
		assert.Equal(t, "str", items[0].IDType)
		assert.Equal(t, "None", items[0].StatusType)
		assert.Nil(t, items[0].Status)
		assert.Equal(t, "null", items[0].Payload)
	})

	t.Run("integer status and ordered payload", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)

		payload := tracker.NewPayload().Set("title", "标题").Set("body", "<p>hi</p>")
		_, err := tr.InsertItem(ctx, tracker.IntID(1), tracker.IntStatus(404), payload)
		require.NoError(t, err)

		items := srv.Items(testProject)
		require.Len(t, items, 1)
		assert.Equal(t, int64(404), items[0].Status)
		assert.Equal(t, `{"title":"标题","body":"<p>hi</p>"}`, items[0].Payload)
	})

	t.Run("duplicate item is a remote error", func(t *testing.T) {
		tr, _ := setupTracker(t, 0)

		_, err := tr.InsertItem(ctx, tracker.IntID(1), tracker.NoStatus(), nil)
		require.NoError(t, err)
		_, err = tr.InsertItem(ctx, tracker.IntID(1), tracker.NoStatus(), nil)
		var remote *tracker.RemoteError
		require.True(t, errors.As(err, &remote))
		assert.Equal(t, http.StatusInternalServerError, remote.StatusCode)
		assert.Contains(t, remote.Body, "duplicate key")
	})

	t.Run("bad payload fails locally", func(t *testing.T) {
		tr, srv := setupTracker(t, 0)
		_, err := tr.InsertItem(ctx, tracker.IntID(1), tracker.NoStatus(), make(chan int))
		assert.Error(t, err)
		assert.Equal(t, 0, srv.Hits(trackertest.RouteInsertItem))
	})
}

func TestPing(t *testing.T) {
	tr, srv := setupTracker(t, 0)

	rtt, err := tr.Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	srv.Fail(trackertest.RoutePing, http.StatusServiceUnavailable, "")
	_, err = tr.Ping(context.Background())
	var terr *tracker.TransportError
	assert.True(t, errors.As(err, &terr))
}

type recordingTracer struct {
	tracker.NopTracer
	starts []string
	ends   []int
	pacing []time.Duration
}

func (r *recordingTracer) RequestStart(ev tracker.Event) { r.starts = append(r.starts, ev.Op) }
func (r *recordingTracer) RequestEnd(ev tracker.Event)   { r.ends = append(r.ends, ev.StatusCode) }
func (r *recordingTracer) ClaimPacing(wait, delay time.Duration) {
	r.pacing = append(r.pacing, wait)
}

func TestTracer(t *testing.T) {
	rec := &recordingTracer{}
	clock := newFakeClock()
	tr, _ := setupTracker(t, 1.0, tracker.WithTracer(rec), tracker.WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	_, err := tr.ClaimTask(ctx)
	require.NoError(t, err)
	_, err = tr.ClaimTask(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"fetch_project", "claim_task", "claim_task"}, rec.starts)
	assert.Equal(t, []int{200, 404, 404}, rec.ends)
	assert.Equal(t, []time.Duration{time.Second}, rec.pacing)
}
