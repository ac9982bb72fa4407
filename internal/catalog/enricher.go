package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/serenityjs/plugin-registry/internal/github"
	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/metrics"
	"github.com/serenityjs/plugin-registry/internal/pkg/tracing"
)

const (
	DefaultLogoURL = "https://avatars.githubusercontent.com/u/92610726?s=88&v=4"

	logoPath     = "public/logo.png"
	bannerPath   = "public/banner.png"
	readmePath   = "README.md"
	manifestPath = "package.json"

	maxGalleryImages = 10
)

// Platform is the subset of the source platform the pipeline talks to.
type Platform interface {
	SearchRepositories(ctx context.Context, query string) ([]github.Repository, error)
	GetRepository(ctx context.Context, id int64) (*github.Repository, error)
	ListReleases(ctx context.Context, owner, name string) ([]github.Release, error)
	ListContributors(ctx context.Context, owner, name string) ([]github.Contributor, error)
	RawURL(owner, name, branch, path string) string
	FetchRaw(ctx context.Context, owner, name, branch, path string) ([]byte, error)
	Exists(ctx context.Context, rawURL string) (bool, error)
}

// Enricher assembles a Plugin from a registry record and live platform data.
// Every sub-fetch degrades to a neutral value; Enrich itself never fails.
type Enricher struct {
	platform       Platform
	defaultLogoURL string
	concurrency    int
	logger         *slog.Logger
}

type EnricherOptions struct {
	DefaultLogoURL string
	// Concurrency bounds parallel sub-fetches per enrichment.
	Concurrency int
	Logger      *slog.Logger
}

func NewEnricher(platform Platform, opts EnricherOptions) *Enricher {
	if opts.DefaultLogoURL == "" {
		opts.DefaultLogoURL = DefaultLogoURL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Enricher{
		platform:       platform,
		defaultLogoURL: opts.DefaultLogoURL,
		concurrency:    opts.Concurrency,
		logger:         opts.Logger,
	}
}

type manifest struct {
	Version  string   `json:"version"`
	Keywords []string `json:"keywords"`
}

// Enrich snapshots stored plus repo and the plugin's releases, contributors,
// images, README and manifest.
func (e *Enricher) Enrich(ctx context.Context, stored models.StoredPlugin, repo github.Repository) models.Plugin {
	ctx, span := tracing.StartSpan(ctx, "catalog.enrich",
		attribute.Int64("plugin.id", stored.ID),
		attribute.String("plugin.name", stored.Name),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.EnrichmentDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	plugin := models.Plugin{
		StoredPlugin: stored,
		Description:  repo.Description,
		Stars:        repo.StargazersCount,
		Published:    timePtr(repo.CreatedAt),
		Updated:      timePtr(repo.UpdatedAt),
		Gallery:      []string{},
		Contributors: []models.Contributor{},
		Releases:     []models.Release{},
	}
	owner, name, branch := stored.Owner.Username, stored.Name, stored.Branch
	log := e.logger.With("plugin_id", stored.ID, "plugin", owner+"/"+name)

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	g.Go(func() error {
		releases, err := e.platform.ListReleases(ctx, owner, name)
		if err != nil {
			log.Debug("list releases failed", "error", err)
			return nil
		}
		plugin.Releases = convertReleases(releases)
		plugin.Downloads = models.TotalDownloads(plugin.Releases)
		return nil
	})
	g.Go(func() error {
		contributors, err := e.platform.ListContributors(ctx, owner, name)
		if err != nil {
			log.Debug("list contributors failed", "error", err)
			return nil
		}
		plugin.Contributors = convertContributors(contributors)
		return nil
	})
	g.Go(func() error {
		plugin.Logo = e.LogoURL(ctx, stored)
		return nil
	})
	g.Go(func() error {
		if url, ok := e.probe(ctx, owner, name, branch, bannerPath); ok {
			plugin.Banner = &url
		}
		return nil
	})
	g.Go(func() error {
		plugin.Gallery = e.gallery(ctx, owner, name, branch)
		return nil
	})
	g.Go(func() error {
		body, err := e.platform.FetchRaw(ctx, owner, name, branch, readmePath)
		if err != nil {
			log.Debug("fetch readme failed", "error", err)
			return nil
		}
		readme := string(body)
		plugin.Readme = &readme
		return nil
	})
	g.Go(func() error {
		m, err := e.manifest(ctx, owner, name, branch)
		if err != nil {
			log.Warn("plugin manifest unavailable", "error", err)
			return nil
		}
		if m.Version != "" {
			version := normalizeVersion(m.Version)
			plugin.Version = &version
		}
		if m.Keywords != nil {
			plugin.Keywords = m.Keywords
		}
		return nil
	})
	_ = g.Wait()

	return plugin
}

// LogoURL is the plugin's logo on its branch, or the default logo when absent.
func (e *Enricher) LogoURL(ctx context.Context, stored models.StoredPlugin) string {
	if url, ok := e.probe(ctx, stored.Owner.Username, stored.Name, stored.Branch, logoPath); ok {
		return url
	}
	return e.defaultLogoURL
}

func (e *Enricher) probe(ctx context.Context, owner, name, branch, path string) (string, bool) {
	url := e.platform.RawURL(owner, name, branch, path)
	ok, err := e.platform.Exists(ctx, url)
	if err != nil || !ok {
		return "", false
	}
	return url, true
}

// gallery probes image1..image10 in order and stops at the first miss.
func (e *Enricher) gallery(ctx context.Context, owner, name, branch string) []string {
	images := []string{}
	for i := 1; i <= maxGalleryImages; i++ {
		url, ok := e.probe(ctx, owner, name, branch, fmt.Sprintf("public/gallery/image%d.png", i))
		if !ok {
			break
		}
		images = append(images, url)
	}
	return images
}

func (e *Enricher) manifest(ctx context.Context, owner, name, branch string) (*manifest, error) {
	body, err := e.platform.FetchRaw(ctx, owner, name, branch, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", manifestPath, err)
	}
	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	return &m, nil
}

// normalizeVersion returns the canonical form of a semver version and raw otherwise.
func normalizeVersion(raw string) string {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return raw
	}
	return v.String()
}

func convertReleases(in []github.Release) []models.Release {
	out := make([]models.Release, 0, len(in))
	for _, r := range in {
		rel := models.Release{
			Name:       r.TagName,
			Tag:        r.TagName,
			URL:        r.HTMLURL,
			Prerelease: r.Prerelease,
			Assets:     make([]models.ReleaseAsset, 0, len(r.Assets)),
		}
		if r.Name != nil && *r.Name != "" {
			rel.Name = *r.Name
		}
		if r.Body != nil {
			rel.Description = *r.Body
		}
		for _, a := range r.Assets {
			rel.Assets = append(rel.Assets, models.ReleaseAsset{
				Name:          a.Name,
				Size:          a.Size,
				DownloadURL:   a.BrowserDownloadURL,
				DownloadCount: a.DownloadCount,
			})
		}
		out = append(out, rel)
	}
	return out
}

func convertContributors(in []github.Contributor) []models.Contributor {
	out := make([]models.Contributor, 0, len(in))
	for _, c := range in {
		out = append(out, models.Contributor{
			Identity:      identityFromUser(c.User),
			Contributions: c.Contributions,
		})
	}
	return out
}

func identityFromUser(u github.User) models.Identity {
	return models.Identity{Username: u.Login, ProfileURL: u.HTMLURL, AvatarURL: u.AvatarURL}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
