package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		local  string
		want   bool
	}{
		{"dev always upgrades", "v1.0.0", "dev", true},
		{"git-describe suffix always upgrades", "v1.0.0", "v1.0.0-3-gabcdef", true},
		{"newer patch", "v1.0.1", "v1.0.0", true},
		{"newer minor", "v1.1.0", "v1.0.9", true},
		{"newer major", "v2.0.0", "v1.9.9", true},
		{"equal", "v1.2.3", "v1.2.3", false},
		{"older remote", "v1.0.0", "v1.0.1", false},
		{"missing v prefix", "1.3.0", "v1.2.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNewer(tt.remote, tt.local))
		})
	}
}

func TestCompareSemver(t *testing.T) {
	assert.Equal(t, 1, compareSemver("v2.0.0", "v1.9.9"))
	assert.Equal(t, -1, compareSemver("v0.1.0", "v0.2.0"))
	assert.Equal(t, 0, compareSemver("1.2.3", "v1.2.3"))
	// Pre-release suffixes compare on the numeric core only.
	assert.Equal(t, 0, compareSemver("v1.2.3-rc.1", "v1.2.3"))
}

func TestFindChecksumAsset(t *testing.T) {
	release := &githubRelease{
		TagName: "v1.0.0",
		Assets: []githubAsset{
			{Name: "pipectl_Darwin_arm64.tar.gz", BrowserDownloadURL: "https://example.com/a"},
			{Name: "checksums.txt", BrowserDownloadURL: "https://example.com/checksums"},
			{Name: "pipectl_Linux_x86_64.tar.gz", BrowserDownloadURL: "https://example.com/b"},
		},
	}

	asset := findChecksumAsset(release)
	require.NotNil(t, asset)
	assert.Equal(t, "checksums.txt", asset.Name)
	assert.Equal(t, "https://example.com/checksums", asset.BrowserDownloadURL)
}

func TestFindChecksumAssetMissing(t *testing.T) {
	release := &githubRelease{
		TagName: "v0.9.0",
		Assets: []githubAsset{
			{Name: "pipectl_Darwin_arm64.tar.gz"},
		},
	}

	assert.Nil(t, findChecksumAsset(release))
}

func TestReplaceBinary(t *testing.T) {
	dir := t.TempDir()
	selfPath := filepath.Join(dir, "pipectl")
	newPath := filepath.Join(dir, "pipectl-next")
	require.NoError(t, os.WriteFile(selfPath, []byte("old"), 0o755))
	require.NoError(t, os.WriteFile(newPath, []byte("new"), 0o755))

	require.NoError(t, replaceBinary(selfPath, newPath))

	data, err := os.ReadFile(selfPath)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
