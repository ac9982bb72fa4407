package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenityjs/plugin-registry/internal/models"
)

func TestRunCycle_DiscardsPluginWithoutReleases(t *testing.T) {
	f := newFixture(t)
	f.platform.addRepo(repoFixture(42, "foo"))

	report, err := f.catalog.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Discarded)

	has, err := f.repo.Has(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, has)
	assert.False(t, f.cache.Has(42))
	assert.Zero(t, f.notifier.count())
}

func TestRunCycle_ReleaseProbeFailureDiscards(t *testing.T) {
	f := newFixture(t)
	f.platform.addRepo(repoFixture(42, "foo"), releaseWithDownloads("v1", 1))
	f.platform.releasesErr = errPlatformDown

	report, err := f.catalog.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Discarded)

	// re-evaluated once the platform recovers
	f.platform.releasesErr = nil
	report, err = f.catalog.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Admitted)
}

func TestRunCycle_AdmitsAndNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.platform.addRepo(repoFixture(43, "foo"), releaseWithDownloads("v1", 3, 4), releaseWithDownloads("v2", 5))

	report, err := f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Admitted)

	stored, err := f.repo.Get(ctx, 43)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Approved)
	assert.Equal(t, "alice", stored.Owner.Username)
	assert.Equal(t, "main", stored.Branch)
	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, DefaultLogoURL, f.notifier.notices[0].LogoURL)

	report, err = f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, f.notifier.count())
	assert.False(t, f.cache.Has(43))
}

func TestRunCycle_NotificationFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errPlatformDown
	f.platform.addRepo(repoFixture(43, "foo"), releaseWithDownloads("v1", 1))

	report, err := f.catalog.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Admitted)

	has, err := f.repo.Has(context.Background(), 43)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRunCycle_CachedPluginIsNotReenriched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.platform.addRepo(repoFixture(43, "foo"), releaseWithDownloads("v1", 1))
	_, err := f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	require.NoError(t, f.catalog.OnDecision(ctx, models.ApprovalDecision{Action: models.DecisionApprove, PluginID: 43}, nil))
	require.Equal(t, int32(1), f.platform.contributorsCalls.Load())

	report, err := f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cached)
	assert.Equal(t, int32(1), f.platform.contributorsCalls.Load())
	assert.Equal(t, 1, f.notifier.count())
}

func TestRunCycle_RepopulatesAfterClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		r := repoFixture(id, "plugin"+string(rune('a'+id)))
		f.platform.addRepo(r, releaseWithDownloads("v1", id))
	}
	_, err := f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetApproval(ctx, 1, true))
	require.NoError(t, f.repo.SetApproval(ctx, 3, true))

	report, err := f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Enriched)
	assert.Equal(t, 1, report.Pending)

	f.cache.Clear()
	assert.Empty(t, f.catalog.GetAllFromCache())

	_, err = f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	all := f.catalog.GetAllFromCache()
	require.Len(t, all, 2)
	assert.ElementsMatch(t, []int64{1, 3}, []int64{all[0].ID, all[1].ID})
	for _, p := range all {
		assert.True(t, p.Approved)
	}
}

func TestRunCycle_SearchFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.platform.addRepo(repoFixture(43, "foo"), releaseWithDownloads("v1", 1))
	f.platform.searchErr = errPlatformDown

	_, err := f.catalog.RunCycle(context.Background())
	require.ErrorIs(t, err, errPlatformDown)

	has, err := f.repo.Has(context.Background(), 43)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRunCycle_BranchDriftUpdatesRegistry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.platform.addRepo(repoFixture(43, "foo"), releaseWithDownloads("v1", 1))
	_, err := f.catalog.RunCycle(ctx)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetApproval(ctx, 43, true))

	f.platform.mu.Lock()
	f.platform.repos[0].DefaultBranch = "develop"
	f.platform.mu.Unlock()

	_, err = f.catalog.RunCycle(ctx)
	require.NoError(t, err)

	stored, err := f.repo.Get(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, "develop", stored.Branch)
	cached, ok := f.catalog.GetFromCache(43)
	require.True(t, ok)
	assert.Equal(t, "develop", cached.Branch)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.catalog.interval = 10 * time.Millisecond
	f.catalog.clearInterval = 25 * time.Millisecond
	f.platform.addRepo(repoFixture(43, "foo"), releaseWithDownloads("v1", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.catalog.Run(ctx) }()

	require.Eventually(t, func() bool { return f.notifier.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, f.notifier.count())
}
