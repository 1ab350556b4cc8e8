package tests

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presqr/server/internal/config"
	"github.com/presqr/server/internal/db"
	"github.com/presqr/server/internal/model"
	"github.com/presqr/server/internal/repo"
)

func newCandidate(f Fixture, at time.Time) model.AttendanceSession {
	return model.AttendanceSession{
		ID:          uuid.New(),
		CourseID:    f.Course.ID,
		LecturerID:  f.Lecturer.ID,
		Token:       "token-" + uuid.NewString(),
		GeneratedAt: at,
		ExpiresAt:   at.Add(time.Hour),
	}
}

func TestSessionRepoIntegration(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, RunMigrations(database))

	sessions := repo.NewSessionRepo(database)
	reset := func(t *testing.T, n int) Fixture {
		t.Helper()
		require.NoError(t, TruncateAttendanceTables(ctx, database))
		f, err := SeedFixture(ctx, database, n)
		require.NoError(t, err)
		return f
	}
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("CreateOrReuseActive_concurrent", func(t *testing.T) {
		f := reset(t, 0)

		const n = 10
		ids := make([]uuid.UUID, n)
		var created int
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, reused, err := sessions.CreateOrReuseActive(ctx, newCandidate(f, t0.Add(time.Duration(i)*time.Millisecond)))
				if !assert.NoError(t, err) {
					return
				}
				ids[i] = s.ID
				if !reused {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("CreateOrReuseActive_unknownCourse", func(t *testing.T) {
		f := reset(t, 0)
		c := newCandidate(f, t0)
		c.CourseID = uuid.New()
		_, _, err := sessions.CreateOrReuseActive(ctx, c)
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("AppendScan_classifiesRejections", func(t *testing.T) {
		f := reset(t, 2)
		s, _, err := sessions.CreateOrReuseActive(ctx, newCandidate(f, t0))
		require.NoError(t, err)
		student := f.Students[0].ID

		_, err = sessions.AppendScan(ctx, s.ID, student, t0.Add(time.Minute))
		require.NoError(t, err)

		_, err = sessions.AppendScan(ctx, s.ID, student, t0.Add(2*time.Minute))
		assert.ErrorIs(t, err, repo.ErrDuplicateScan)

		_, err = sessions.AppendScan(ctx, s.ID, f.Students[1].ID, s.ExpiresAt)
		assert.ErrorIs(t, err, repo.ErrSessionClosed)

		_, err = sessions.AppendScan(ctx, uuid.New(), student, t0.Add(time.Minute))
		assert.ErrorIs(t, err, repo.ErrNotFound)

		_, err = sessions.AppendScan(ctx, s.ID, uuid.New(), t0.Add(time.Minute))
		assert.ErrorIs(t, err, repo.ErrNotFound)

		stored, err := sessions.GetByID(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, stored.Scans, 1)
		assert.Equal(t, student, stored.Scans[0].StudentID)
		assert.True(t, stored.Scans[0].ScannedAt.Equal(t0.Add(time.Minute)))
	})

	t.Run("AppendScan_concurrentSameStudent", func(t *testing.T) {
		f := reset(t, 1)
		s, _, err := sessions.CreateOrReuseActive(ctx, newCandidate(f, t0))
		require.NoError(t, err)

		const n = 20
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = sessions.AppendScan(ctx, s.ID, f.Students[0].ID, t0.Add(time.Duration(i+1)*time.Second))
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, repo.ErrDuplicateScan)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("ListByCourse_orderAndJoin", func(t *testing.T) {
		f := reset(t, 2)
		older, _, err := sessions.CreateOrReuseActive(ctx, newCandidate(f, t0))
		require.NoError(t, err)
		_, err = sessions.AppendScan(ctx, older.ID, f.Students[1].ID, t0.Add(time.Minute))
		require.NoError(t, err)
		_, err = sessions.AppendScan(ctx, older.ID, f.Students[0].ID, t0.Add(2*time.Minute))
		require.NoError(t, err)

		newer, reused, err := sessions.CreateOrReuseActive(ctx, newCandidate(f, t0.Add(time.Hour)))
		require.NoError(t, err)
		require.False(t, reused)

		list, err := sessions.ListByCourse(ctx, f.Course.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Empty(t, list[0].Scans)
		assert.Equal(t, older.ID, list[1].ID)
		require.Len(t, list[1].Scans, 2)
		assert.Equal(t, f.Students[1].ID, list[1].Scans[0].Student.ID)
		assert.Equal(t, f.Students[1].IDNumber, list[1].Scans[0].Student.IDNumber)
		assert.Equal(t, f.Students[0].ID, list[1].Scans[1].Student.ID)

		empty, err := sessions.ListByCourse(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
