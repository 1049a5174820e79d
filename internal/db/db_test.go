package db

import (
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanecount/internal/counting"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDB_Pragmas(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "pragmas.db"))
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var timeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestMigrations_UpDownVersion(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(MigrationsFS()))
	version, dirty, err = db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Already at latest.
	require.NoError(t, db.MigrateUp(MigrationsFS()))

	require.NoError(t, db.MigrateDown(MigrationsFS()))
	version, _, err = db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='crossings'`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestMigrations_CustomFS(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "custom.db"))
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"000001_init.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE t1 (id INTEGER PRIMARY KEY);")},
		"000001_init.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE t1;")},
	}
	require.NoError(t, db.MigrateUp(fsys))
	version, _, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func testSummary() counting.Summary {
	return counting.Summary{
		TotalCounted: 2,
		ByLane: map[counting.Lane]counting.LaneCounts{
			counting.LaneLeft:  {Total: 1, ByClass: map[counting.VehicleClass]int{counting.ClassCar: 1, counting.ClassBus: 0}},
			counting.LaneRight: {Total: 1, ByClass: map[counting.VehicleClass]int{counting.ClassCar: 0, counting.ClassBus: 1}},
		},
		CountedTrackIDs: []int64{4, 9},
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	db := setupTestDB(t)

	started := time.Unix(1700000000, 0)
	s := &Session{ID: "s-1", Source: "clip.jsonl", LinePosition: 648, StartedAt: started}
	require.NoError(t, db.CreateSession(s))

	got, err := db.GetSession("s-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "clip.jsonl", got.Source)
	assert.Equal(t, 648.0, got.LinePosition)
	assert.Equal(t, "{}", got.ConfigJSON)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Summary)

	finished := started.Add(90 * time.Second)
	require.NoError(t, db.FinishSession("s-1", SessionOutcome{
		Status:         StatusCompleted,
		Summary:        testSummary(),
		Frames:         2700,
		ProcessingTime: 90 * time.Second,
		ProcessingFPS:  30,
		FinishedAt:     finished,
	}))

	got, err = db.GetSession("s-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.TotalCounted)
	assert.Equal(t, int64(2700), got.Frames)
	assert.Equal(t, 90*time.Second, got.ProcessingTime)
	assert.Equal(t, 30.0, got.ProcessingFPS)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
	require.NotNil(t, got.Summary)
	assert.Equal(t, testSummary(), *got.Summary)
}

func TestSessions_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = db.FinishSession("nope", SessionOutcome{Status: StatusFailed})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, db.DeleteSession("nope"), ErrSessionNotFound)
}

func TestSessions_DuplicateID(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.CreateSession(&Session{ID: "dup", LinePosition: 300}))
	assert.Error(t, db.CreateSession(&Session{ID: "dup", LinePosition: 300}))
}

func TestListSessions(t *testing.T) {
	db := setupTestDB(t)

	base := time.Unix(1700000000, 0)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.CreateSession(&Session{
			ID:           id,
			LinePosition: 300,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := db.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := db.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestCrossings_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.CreateSession(&Session{ID: "s", LinePosition: 300}))

	evs := []counting.CrossingEvent{
		{SessionID: "s", TrackID: 9, Lane: counting.LaneRight, Class: counting.ClassBus,
			Direction: counting.DirectionDown, Method: counting.MethodDirect, FrameIndex: 40, DwellFrames: 12, MeanConfidence: 0.8},
		{SessionID: "s", TrackID: 4, Lane: counting.LaneLeft, Class: counting.ClassCar,
			Direction: counting.DirectionUp, Method: counting.MethodLifetime, FrameIndex: 20, DwellFrames: 7, MeanConfidence: 0.6,
			LaneFromDirection: true},
	}
	for _, ev := range evs {
		require.NoError(t, db.RecordCrossing(ev))
	}
	// Duplicate track is ignored.
	require.NoError(t, db.RecordCrossing(evs[0]))

	got, err := db.Crossings("s")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, evs[1], got[0])
	assert.Equal(t, evs[0], got[1])
}

func TestCrossings_RequireSession(t *testing.T) {
	db := setupTestDB(t)
	err := db.RecordCrossing(counting.CrossingEvent{SessionID: "missing", TrackID: 1, Lane: counting.LaneLeft})
	assert.Error(t, err)
}

func TestDeleteSession_CascadesCrossings(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.CreateSession(&Session{ID: "s", LinePosition: 300}))
	require.NoError(t, db.RecordCrossing(counting.CrossingEvent{SessionID: "s", TrackID: 1, Lane: counting.LaneLeft}))

	require.NoError(t, db.DeleteSession("s"))
	got, err := db.Crossings("s")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCrossingRecorder(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.CreateSession(&Session{ID: "s", LinePosition: 300}))

	rec := db.NewCrossingRecorder()
	rec.Record(counting.CrossingEvent{SessionID: "s", TrackID: 1, Lane: counting.LaneLeft, Class: counting.ClassCar})
	assert.NoError(t, rec.Err())
	assert.Equal(t, 1, rec.Count())

	rec.Record(counting.CrossingEvent{SessionID: "other", TrackID: 2})
	assert.Error(t, rec.Err())
	assert.Equal(t, 1, rec.Count())
}

func TestCrossingRecorder_WithSession(t *testing.T) {
	db := setupTestDB(t)
	rec := db.NewCrossingRecorder()

	sess, err := counting.NewSession(counting.DefaultConfig(300), counting.WithCrossingHandler(rec.Record))
	require.NoError(t, err)
	require.NoError(t, db.CreateSession(&Session{ID: sess.ID(), LinePosition: 300}))

	for i, y := range []float64{250, 310} {
		_, err := sess.Process(counting.DetectionEvent{
			FrameIndex: int64(i),
			TrackID:    3,
			BBox:       counting.BBox{25, y - 50, 175, y + 50},
			Confidence: 0.9,
		})
		require.NoError(t, err)
	}
	require.NoError(t, rec.Err())

	got, err := db.Crossings(sess.ID())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].TrackID)
	assert.Equal(t, counting.ClassCar, got[0].Class)
	assert.Equal(t, counting.LaneRight, got[0].Lane)
}
