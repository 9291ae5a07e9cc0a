package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newUpgradeCommand() *cobra.Command {
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade pipectl in place from the latest release",
		Long: `Upgrade pipectl in place from the latest GitHub release. The release
archive is checked against the published checksums.txt before the running
binary is replaced. Without a usable release the command falls back to
go install.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(cmd, skipVerify)
		},
	}

	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip SHA-256 checksum verification")

	return cmd
}

func runUpgrade(cmd *cobra.Command, skipVerify bool) error {
	out := cmd.OutOrStdout()
	warn := cmd.ErrOrStderr()

	fmt.Fprintf(out, "Current version: %s\n", version)

	release, err := fetchLatestRelease(cmd.Context())
	if err != nil {
		fmt.Fprintf(warn, "Warning: cannot check GitHub releases: %v\n", err)
		return fallbackGoInstall(cmd)
	}
	if release == nil {
		fmt.Fprintln(out, "No GitHub releases found")
		return fallbackGoInstall(cmd)
	}

	if version != "dev" && !isNewer(release.TagName, version) {
		fmt.Fprintf(out, "Already up to date (%s)\n", version)
		return nil
	}
	fmt.Fprintf(out, "New version available: %s\n", release.TagName)

	asset := findAsset(release)
	if asset == nil {
		fmt.Fprintf(warn, "No binary for %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return fallbackGoInstall(cmd)
	}

	var expectedHash string
	if !skipVerify {
		expectedHash = loadExpectedChecksum(cmd.Context(), warn, release, asset.Name)
	}

	selfPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determine executable path: %w", err)
	}
	selfPath, err = filepath.EvalSymlinks(selfPath)
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	fmt.Fprintf(out, "Downloading %s...\n", asset.Name)
	binPath, tmpDir, err := downloadVerifyAndExtract(cmd.Context(), out, asset.BrowserDownloadURL, expectedHash)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := replaceBinary(selfPath, binPath); err != nil {
		return fmt.Errorf("replace binary: %w", err)
	}

	fmt.Fprintf(out, "Upgraded to %s\n", release.TagName)
	return nil
}

// --- GitHub API types ---

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// fetchLatestRelease returns nil without error when the repository has no
// releases yet.
func fetchLatestRelease(ctx context.Context) (*githubRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.github.com/repos/srec-tools/pipectl/releases/latest", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	return &release, nil
}

// --- Version comparison ---

func isNewer(remote, local string) bool {
	if local == "dev" {
		return true
	}
	// A git-describe suffix (e.g. "v1.0.0-3-gabcdef") means a between-releases
	// build; always upgrade those.
	localClean := strings.TrimPrefix(local, "v")
	if strings.Count(localClean, "-") > 0 {
		return true
	}
	return compareSemver(remote, local) > 0
}

func compareSemver(a, b string) int {
	ap := semverParts(a)
	bp := semverParts(b)
	for i := 0; i < 3; i++ {
		if ap[i] > bp[i] {
			return 1
		}
		if ap[i] < bp[i] {
			return -1
		}
	}
	return 0
}

func semverParts(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	parts := strings.SplitN(v, ".", 3)
	var result [3]int
	for i, p := range parts {
		if i >= 3 {
			break
		}
		p, _, _ = strings.Cut(p, "-")
		result[i], _ = strconv.Atoi(p)
	}
	return result
}

// --- Asset matching ---

func findAsset(release *githubRelease) *githubAsset {
	name, err := pipectlAssetName()
	if err != nil {
		return nil
	}
	for i := range release.Assets {
		if release.Assets[i].Name == name {
			return &release.Assets[i]
		}
	}
	return nil
}

func pipectlAssetName() (string, error) {
	osName := ""
	switch runtime.GOOS {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	archName := ""
	switch runtime.GOARCH {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("unsupported arch: %s", runtime.GOARCH)
	}

	return fmt.Sprintf("pipectl_%s_%s.tar.gz", osName, archName), nil
}

// --- Checksum lookup ---

// loadExpectedChecksum fetches checksums.txt from the release and returns the
// expected SHA-256 for assetName. Returns "" when checksums.txt is missing or
// has no entry; old releases shipped without one.
func loadExpectedChecksum(ctx context.Context, warn io.Writer, release *githubRelease, assetName string) string {
	csAsset := findChecksumAsset(release)
	if csAsset == nil {
		fmt.Fprintln(warn, "Warning: release has no checksums.txt; skipping verification")
		return ""
	}

	client := &http.Client{Timeout: 15 * time.Second}
	path, err := downloadToTempFile(ctx, csAsset.BrowserDownloadURL, os.TempDir(), client)
	if err != nil {
		fmt.Fprintf(warn, "Warning: cannot download checksums.txt: %v; skipping verification\n", err)
		return ""
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(warn, "Warning: cannot read checksums.txt: %v; skipping verification\n", err)
		return ""
	}
	defer f.Close()

	checksums, err := parseChecksumFile(f)
	if err != nil {
		fmt.Fprintf(warn, "Warning: cannot parse checksums.txt: %v; skipping verification\n", err)
		return ""
	}

	hash, ok := checksums[assetName]
	if !ok {
		fmt.Fprintf(warn, "Warning: no checksum for %s in checksums.txt; skipping verification\n", assetName)
		return ""
	}
	return hash
}

func findChecksumAsset(release *githubRelease) *githubAsset {
	for i := range release.Assets {
		if release.Assets[i].Name == "checksums.txt" {
			return &release.Assets[i]
		}
	}
	return nil
}

// --- Download + verify + replace ---

func downloadVerifyAndExtract(ctx context.Context, out io.Writer, url, expectedHash string) (binPath, tmpDir string, err error) {
	tmpDir, err = os.MkdirTemp("", "pipectl-upgrade-*")
	if err != nil {
		return "", "", err
	}

	client := &http.Client{Timeout: 120 * time.Second}
	archivePath, err := downloadToTempFile(ctx, url, tmpDir, client)
	if err != nil {
		os.RemoveAll(tmpDir)
		return "", "", err
	}

	if expectedHash != "" {
		actual, err := sha256File(archivePath)
		if err != nil {
			os.RemoveAll(tmpDir)
			return "", "", fmt.Errorf("computing checksum: %w", err)
		}
		if actual != expectedHash {
			os.RemoveAll(tmpDir)
			return "", "", fmt.Errorf("checksum mismatch: expected %s, got %s", expectedHash, actual)
		}
		fmt.Fprintln(out, "Checksum verified")
	}

	f, err := os.Open(archivePath)
	if err != nil {
		os.RemoveAll(tmpDir)
		return "", "", err
	}
	defer f.Close()

	if err := extractTarGz(f, tmpDir, "pipectl"); err != nil {
		os.RemoveAll(tmpDir)
		return "", "", err
	}

	binPath = filepath.Join(tmpDir, "pipectl")
	if err := os.Chmod(binPath, 0o755); err != nil {
		os.RemoveAll(tmpDir)
		return "", "", err
	}

	return binPath, tmpDir, nil
}

func replaceBinary(selfPath, newPath string) error {
	// Rename is atomic and works on Unix even while the binary runs.
	if err := os.Rename(newPath, selfPath); err == nil {
		return nil
	}
	// Cross-filesystem fallback: copy over.
	src, err := os.Open(newPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(selfPath, os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func fallbackGoInstall(cmd *cobra.Command) error {
	goPath, err := exec.LookPath("go")
	if err != nil {
		return errors.New("no GitHub releases and `go` not in PATH; cannot upgrade")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Falling back to: go install github.com/srec-tools/pipectl/cmd/pipectl@latest")
	run := exec.CommandContext(cmd.Context(), goPath, "install", "github.com/srec-tools/pipectl/cmd/pipectl@latest")
	run.Stdout = cmd.OutOrStdout()
	run.Stderr = cmd.ErrOrStderr()
	if err := run.Run(); err != nil {
		return fmt.Errorf("go install failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Upgraded via go install")
	return nil
}
