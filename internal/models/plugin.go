package models

import "time"

// Identity is a source-platform account (repository owner or contributor).
type Identity struct {
	Username   string `json:"username"`
	ProfileURL string `json:"profile_url"`
	AvatarURL  string `json:"avatar_url"`
}

// Contributor is an Identity with the platform-reported contribution count.
type Contributor struct {
	Identity
	Contributions int `json:"contributions"`
}

// StoredPlugin is the durable registry row for a discovered plugin.
// ID is the platform repository id and never changes once inserted.
type StoredPlugin struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Owner    Identity `json:"owner"`
	URL      string   `json:"url"`
	Branch   string   `json:"branch"`
	Approved bool     `json:"approved"`
}

// StoredPluginUpdate carries the columns to change in a registry update.
// Nil fields keep their stored value.
type StoredPluginUpdate struct {
	Name     *string
	Owner    *Identity
	URL      *string
	Branch   *string
	Approved *bool
}

// IsEmpty reports whether the update changes nothing.
func (u StoredPluginUpdate) IsEmpty() bool {
	return u.Name == nil && u.Owner == nil && u.URL == nil && u.Branch == nil && u.Approved == nil
}

// ReleaseAsset is a downloadable file attached to a release.
type ReleaseAsset struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	DownloadURL   string `json:"download_url"`
	DownloadCount int64  `json:"download_count"`
}

// Release summarizes a published plugin release.
type Release struct {
	Name        string         `json:"name"`
	Tag         string         `json:"tag"`
	URL         string         `json:"url"`
	Description string         `json:"description"`
	Prerelease  bool           `json:"prerelease"`
	Assets      []ReleaseAsset `json:"assets"`
}

// Plugin is an approved plugin enriched with platform metadata, as served by the read API.
// Pointer fields are null when the platform did not provide them.
type Plugin struct {
	StoredPlugin

	Description  *string       `json:"description"`
	Version      *string       `json:"version"`
	Stars        int           `json:"stars"`
	Downloads    int64         `json:"downloads"`
	Keywords     []string      `json:"keywords"`
	Logo         string        `json:"logo"`
	Banner       *string       `json:"banner"`
	Published    *time.Time    `json:"published"`
	Updated      *time.Time    `json:"updated"`
	Readme       *string       `json:"readme"`
	Gallery      []string      `json:"gallery"`
	Contributors []Contributor `json:"contributors"`
	Releases     []Release     `json:"releases"`
}

// TotalDownloads sums the download counts of every asset of every release.
func TotalDownloads(releases []Release) int64 {
	var total int64
	for i := range releases {
		for j := range releases[i].Assets {
			total += releases[i].Assets[j].DownloadCount
		}
	}
	return total
}
