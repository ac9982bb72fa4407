package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serenityjs/plugin-registry/internal/github"
	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/repository"
)

var errPlatformDown = errors.New("platform unavailable")

// fakePlatform serves canned repositories, releases and raw files.
type fakePlatform struct {
	mu           sync.Mutex
	repos        []github.Repository
	searchErr    error
	getRepoErr   error
	releases     map[string][]github.Release
	releasesErr  error
	contributors map[string][]github.Contributor
	existing     map[string]bool
	files        map[string][]byte
	probes       []string

	// contributorsGate, when set, blocks ListContributors until closed.
	contributorsGate  chan struct{}
	contributorsCalls atomic.Int32
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		releases:     map[string][]github.Release{},
		contributors: map[string][]github.Contributor{},
		existing:     map[string]bool{},
		files:        map[string][]byte{},
	}
}

func (f *fakePlatform) addRepo(r github.Repository, releases ...github.Release) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos = append(f.repos, r)
	f.releases[r.Owner.Login+"/"+r.Name] = releases
}

func (f *fakePlatform) setExists(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[url] = true
}

func (f *fakePlatform) SearchRepositories(ctx context.Context, query string) ([]github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]github.Repository(nil), f.repos...), nil
}

func (f *fakePlatform) GetRepository(ctx context.Context, id int64) (*github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getRepoErr != nil {
		return nil, f.getRepoErr
	}
	for i := range f.repos {
		if f.repos[i].ID == id {
			r := f.repos[i]
			return &r, nil
		}
	}
	return nil, &github.HTTPError{StatusCode: http.StatusNotFound}
}

func (f *fakePlatform) ListReleases(ctx context.Context, owner, name string) ([]github.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releasesErr != nil {
		return nil, f.releasesErr
	}
	return f.releases[owner+"/"+name], nil
}

func (f *fakePlatform) ListContributors(ctx context.Context, owner, name string) ([]github.Contributor, error) {
	f.contributorsCalls.Add(1)
	if f.contributorsGate != nil {
		<-f.contributorsGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contributors[owner+"/"+name], nil
}

func (f *fakePlatform) RawURL(owner, name, branch, path string) string {
	return fmt.Sprintf("https://raw.test/%s/%s/%s/%s", owner, name, branch, path)
}

func (f *fakePlatform) FetchRaw(ctx context.Context, owner, name, branch, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.files[f.RawURL(owner, name, branch, path)]
	if !ok {
		return nil, &github.HTTPError{StatusCode: http.StatusNotFound}
	}
	return body, nil
}

func (f *fakePlatform) Exists(ctx context.Context, rawURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, rawURL)
	return f.existing[rawURL], nil
}

func (f *fakePlatform) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probes)
}

// recordingNotifier remembers every pending notice it was handed.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []models.PendingNotice
	err     error
}

func (n *recordingNotifier) NotifyPending(ctx context.Context, notice models.PendingNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type fixture struct {
	catalog  *Catalog
	repo     *repository.SQLRepository
	cache    *Cache
	platform *fakePlatform
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "plugins.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	platform := newFakePlatform()
	notifier := &recordingNotifier{}
	cache := NewCache()
	enricher := NewEnricher(platform, EnricherOptions{Concurrency: 4})
	return &fixture{
		catalog:  New(repo, cache, enricher, platform, notifier, Options{Topic: "serenityjs-plugin"}),
		repo:     repo,
		cache:    cache,
		platform: platform,
		notifier: notifier,
	}
}

func repoFixture(id int64, name string) github.Repository {
	return github.Repository{
		ID:            id,
		Name:          name,
		FullName:      "alice/" + name,
		Owner:         github.User{Login: "alice", HTMLURL: "https://github.com/alice", AvatarURL: "https://avatars.test/alice"},
		HTMLURL:       "https://github.com/alice/" + name,
		DefaultBranch: "main",
	}
}

func releaseWithDownloads(tag string, counts ...int64) github.Release {
	rel := github.Release{TagName: tag}
	for i, c := range counts {
		rel.Assets = append(rel.Assets, github.Asset{Name: fmt.Sprintf("%s-%d.zip", tag, i), DownloadCount: c})
	}
	return rel
}
