package backfill_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-graph/internal/backfill"
	"github.com/ajitpratap0/cortex-graph/internal/embedder"
	"github.com/ajitpratap0/cortex-graph/internal/indexing"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/resolver"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

const dim = 16

func newManager(t *testing.T, st store.GraphStore, emb embedder.Embedder) *indexing.Manager {
	t.Helper()
	idx, err := indexing.NewManager(context.Background(), st, emb, indexing.Options{Dimension: dim, BatchSize: 4}, slog.Default())
	require.NoError(t, err)
	return idx
}

// countingIndexer records how many IndexEntities calls reached the manager.
type countingIndexer struct {
	inner   backfill.Indexer
	calls   atomic.Int32
	release chan struct{}
}

func (c *countingIndexer) IndexEntities(ctx context.Context, es []models.Entity) indexing.BatchReport {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	return c.inner.IndexEntities(ctx, es)
}

func TestEnsureAllIndexed_LegacyAndNewEntities(t *testing.T) {
	st := store.NewMockStore()
	emb := embedder.NewMockEmbedder(dim)
	idx := newManager(t, st, emb)
	ctx := context.Background()

	res := resolver.New(st, idx, slog.Default())
	for i := 0; i < 3; i++ {
		_, err := res.Merge(ctx, models.Entity{Name: fmt.Sprintf("new-%d", i), Type: "Thing"})
		require.NoError(t, err)
	}
	for i := 0; i < 9; i++ {
		st.AddLegacyNode(models.Entity{Name: fmt.Sprintf("legacy-%d", i), Type: "Old", Observations: []string{"from before"}})
	}
	n, err := st.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	c := backfill.New(st, idx, slog.Default())
	report, err := c.EnsureAllIndexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), report.Found)
	assert.Equal(t, 9, report.Indexed)
	assert.Empty(t, report.Failed)
	assert.NotEmpty(t, report.RunID)

	n, err = st.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, st.HasBaseLabel(models.MergeKey{Name: "legacy-0", Type: "Old"}))

	// Second run finds nothing.
	report, err = c.EnsureAllIndexed(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Found)
	assert.Zero(t, report.Indexed)
	assert.Equal(t, report, c.LastReport())
}

func TestMigrate_FailuresStayUnindexed(t *testing.T) {
	st := store.NewMockStore()
	emb := embedder.NewMockEmbedder(dim)
	idx := newManager(t, st, emb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		st.AddLegacyNode(models.Entity{Name: fmt.Sprintf("n%d", i), Type: "T"})
	}
	emb.FailOn(func(text string) error {
		if strings.Contains(text, "n3") {
			return errors.New("rejected")
		}
		return nil
	})

	c := backfill.New(st, idx, slog.Default())
	report, err := c.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Indexed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "n3", report.Failed[0].Name)

	n, err := st.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	emb.FailOn(nil)
	report, err = c.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
}

func TestTriggerOnce_StartsSingleRun(t *testing.T) {
	st := store.NewMockStore()
	idx := newManager(t, st, embedder.NewMockEmbedder(dim))
	for i := 0; i < 6; i++ {
		st.AddLegacyNode(models.Entity{Name: fmt.Sprintf("n%d", i), Type: "T"})
	}
	ci := &countingIndexer{inner: idx, release: make(chan struct{})}
	c := backfill.New(st, ci, slog.Default())

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TriggerOnce(context.Background()) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	close(ci.release)
	c.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), ci.calls.Load())
	assert.False(t, c.TriggerOnce(context.Background()))
	assert.False(t, c.Start(context.Background()))

	n, err := st.CountUnindexed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NotNil(t, c.LastReport())
	assert.Equal(t, backfill.TriggerLazy, c.LastReport().Trigger)
}

func TestTriggerOnce_SurvivesCancelledRequest(t *testing.T) {
	st := store.NewMockStore()
	idx := newManager(t, st, embedder.NewMockEmbedder(dim))
	st.AddLegacyNode(models.Entity{Name: "a", Type: "T"})
	c := backfill.New(st, idx, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, c.TriggerOnce(ctx))
	c.Wait()

	n, err := st.CountUnindexed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// failingCountStore fails CountUnindexed until told otherwise.
type failingCountStore struct {
	*store.MockStore
	fail atomic.Bool
}

func (f *failingCountStore) CountUnindexed(ctx context.Context) (int64, error) {
	if f.fail.Load() {
		return 0, errors.New("database unavailable")
	}
	return f.MockStore.CountUnindexed(ctx)
}

func TestTriggerOnce_RearmsAfterFailure(t *testing.T) {
	st := &failingCountStore{MockStore: store.NewMockStore()}
	st.fail.Store(true)
	idx := newManager(t, st, embedder.NewMockEmbedder(dim))
	st.AddLegacyNode(models.Entity{Name: "a", Type: "T"})
	c := backfill.New(st, idx, slog.Default())

	require.True(t, c.Start(context.Background()))
	c.Wait()
	assert.Nil(t, c.LastReport())

	st.fail.Store(false)
	require.True(t, c.TriggerOnce(context.Background()))
	c.Wait()
	require.NotNil(t, c.LastReport())
	assert.Equal(t, 1, c.LastReport().Indexed)
}

// pausingStore blocks the first SetEmbeddings until release is closed.
type pausingStore struct {
	*store.MockStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *pausingStore) SetEmbeddings(ctx context.Context, w store.EmbeddingWrite) error {
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return p.MockStore.SetEmbeddings(ctx, w)
}

func TestEnsureAllIndexed_ConcurrentMergeKeepsFreshVectors(t *testing.T) {
	st := &pausingStore{MockStore: store.NewMockStore(), entered: make(chan struct{}), release: make(chan struct{})}
	idx := newManager(t, st, embedder.NewMockEmbedder(dim))
	res := resolver.New(st, idx, slog.Default())
	ctx := context.Background()
	key := models.MergeKey{Name: "L", Type: "Old"}
	st.AddLegacyNode(models.Entity{Name: "L", Type: "Old", Observations: []string{"old"}})

	c := backfill.New(st, idx, slog.Default())
	done := make(chan *backfill.Report, 1)
	go func() {
		report, err := c.EnsureAllIndexed(ctx)
		assert.NoError(t, err)
		done <- report
	}()

	<-st.entered
	_, err := res.Merge(ctx, models.Entity{Name: "L", Type: "Old", Observations: []string{"new"}})
	require.NoError(t, err)
	close(st.release)
	report := <-done
	assert.Equal(t, 1, report.Indexed)

	final, err := st.GetEntity(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, final.Observations)
	set, ok := st.Embeddings(key)
	require.True(t, ok)
	assert.Equal(t, embedder.HashVector(indexing.ContentText(*final), dim), set.Content)
	assert.Equal(t, embedder.HashVector(indexing.ObservationText(*final), dim), set.Observation)
}
