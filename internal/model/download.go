package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// lockFileName is the per-directory record of checksums the last fetch
// verified against.
const lockFileName = "download-manifest.lock.json"

type DownloadOptions struct {
	Repo    string
	OutDir  string
	HFToken string
	Stdout  io.Writer
	Stderr  io.Writer
}

// ErrAccessDenied reports a 401/403 from the checkpoint host, usually a
// gated repo fetched without a token.
type ErrAccessDenied struct {
	Repo string
	Msg  string
}

func (e *ErrAccessDenied) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("access denied for %s", e.Repo)
}

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches every file in the repo's pinned manifest into OutDir.
// Files whose on-disk checksum already matches are skipped. Checksums not
// pinned in the manifest are resolved from upstream metadata once and then
// recorded in the lock manifest, so later fetches verify against the same
// value.
func Download(opts DownloadOptions) error {
	if opts.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if opts.OutDir == "" {
		return fmt.Errorf("out dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	manifest, err := PinnedManifest(opts.Repo)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, lockFileName)
	lock := readLockManifest(lockPath)
	if lock.Files == nil {
		lock.Files = make(map[string]lockRecord)
	}
	lock.Repo = opts.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	// No overall timeout: checkpoint files run to hundreds of megabytes.
	client := &http.Client{Timeout: 0}

	for _, f := range manifest.Files {
		rec, err := fetchFile(client, manifest.Repo, f, lock, opts)
		if err != nil {
			return err
		}
		lock.Files[f.Filename] = rec
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)

	return nil
}

// fetchFile ensures one manifest file exists locally with the expected
// checksum and returns the lock record to persist for it.
func fetchFile(client *http.Client, repo string, f ModelFile, lock lockManifest, opts DownloadOptions) (lockRecord, error) {
	expected := strings.ToLower(f.SHA256)
	if expected == "" {
		if lr, ok := lock.Files[f.Filename]; ok && lr.Revision == f.Revision && isSHA256Hex(lr.SHA256) {
			expected = strings.ToLower(lr.SHA256)
		} else {
			resolved, err := resolveChecksumFromMetadata(client, repo, f, opts.HFToken)
			if err != nil {
				return lockRecord{}, err
			}
			expected = resolved
		}
	}

	localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return lockRecord{}, fmt.Errorf("create local subdir: %w", err)
	}

	ok, err := existingMatches(localPath, expected)
	if err != nil {
		return lockRecord{}, err
	}
	if ok {
		fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
		return lockRecord{Revision: f.Revision, SHA256: expected}, nil
	}

	fmt.Fprintf(opts.Stdout, "fetch %s@%s -> %s\n", f.Filename, f.Revision, localPath)

	actual, err := downloadWithProgress(client, repo, f, opts.HFToken, localPath, opts.Stdout)
	if err != nil {
		return lockRecord{}, err
	}
	if actual != expected {
		return lockRecord{}, fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Filename, expected, actual)
	}
	fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)

	return lockRecord{Revision: f.Revision, SHA256: expected}, nil
}

// existingMatches reports whether path already holds content with the
// expected checksum.
func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}

	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}

	return actual == expected, nil
}

// progressWriter periodically reports bytes written to out.
type progressWriter struct {
	out       io.Writer
	total     int64
	written   int64
	lastPrint time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.lastPrint) > 700*time.Millisecond {
		if p.total > 0 {
			pct := float64(p.written) * 100 / float64(p.total)
			fmt.Fprintf(p.out, "  progress: %.1f%% (%d/%d bytes)\n", pct, p.written, p.total)
		} else {
			fmt.Fprintf(p.out, "  progress: %d bytes\n", p.written)
		}
		p.lastPrint = time.Now()
	}

	return len(b), nil
}

// downloadWithProgress streams one file to outPath via a temp file and
// returns the sha256 of the received bytes. The rename happens only after
// the full body arrived, so a cut connection never leaves a partial file
// under the final name.
func downloadWithProgress(client *http.Client, repo string, file ModelFile, token, outPath string, stdout io.Writer) (string, error) {
	req, err := http.NewRequest(http.MethodGet, resolveURL(repo, file), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ErrAccessDenied{
			Repo: repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed for %s: %s", file.Filename, resp.Status)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	progress := &progressWriter{out: stdout, total: resp.ContentLength, lastPrint: time.Now()}

	if _, err := io.Copy(io.MultiWriter(fh, h, progress), resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)

		return "", fmt.Errorf("download read failed: %w", err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveChecksumFromMetadata issues a HEAD request and extracts a sha256
// from the linked-etag headers the hub serves for LFS files.
func resolveChecksumFromMetadata(client *http.Client, repo string, f ModelFile, token string) (string, error) {
	req, err := http.NewRequest(http.MethodHead, resolveURL(repo, f), nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata request failed for %s: %w", f.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ErrAccessDenied{
			Repo: repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("metadata request failed for %s: %s", f.Filename, resp.Status)
	}

	for _, key := range []string{"X-Linked-Etag", "X-Repo-Commit", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", fmt.Errorf("unable to resolve sha256 metadata for %s; provide pinned checksum", f.Filename)
}

func resolveURL(repo string, file ModelFile) string {
	return fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s", repo, file.Revision, file.Filename)
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// normalizeETag strips quotes and the weak-validator prefix.
func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")

	return strings.Trim(v, "\"")
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// readLockManifest loads path, tolerating absence and corruption: a fetch
// that cannot read its lock simply re-resolves checksums.
func readLockManifest(path string) lockManifest {
	b, err := os.ReadFile(path)
	if err != nil {
		return lockManifest{}
	}

	var out lockManifest
	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}

	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}

	return nil
}
