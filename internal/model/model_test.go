package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ErrAccessDenied
// ---------------------------------------------------------------------------

func TestErrAccessDenied_WithMsg(t *testing.T) {
	err := &ErrAccessDenied{Repo: "org/repo", Msg: "custom error"}
	if err.Error() != "custom error" {
		t.Errorf("Error() = %q; want %q", err.Error(), "custom error")
	}
}

func TestErrAccessDenied_WithoutMsg(t *testing.T) {
	err := &ErrAccessDenied{Repo: "org/repo"}
	if !strings.Contains(err.Error(), "org/repo") {
		t.Errorf("Error() = %q; should mention repo", err.Error())
	}
}

// ---------------------------------------------------------------------------
// PinnedManifest / RepoForArch / WeightsPath
// ---------------------------------------------------------------------------

func TestPinnedManifest_KnownRepos(t *testing.T) {
	repos := []string{
		"kyutai/mimi",
		"facebook/encodec_24khz",
	}
	for _, repo := range repos {
		t.Run(repo, func(t *testing.T) {
			m, err := PinnedManifest(repo)
			if err != nil {
				t.Fatalf("PinnedManifest(%q) error = %v", repo, err)
			}
			if m.Repo != repo {
				t.Errorf("Repo = %q; want %q", m.Repo, repo)
			}
			if len(m.Files) == 0 {
				t.Error("Files is empty")
			}
			for _, f := range m.Files {
				if f.Filename == "" {
					t.Error("File has empty Filename")
				}
				if f.Revision == "" {
					t.Error("File has empty Revision")
				}
			}
		})
	}
}

func TestPinnedManifest_UnknownRepo(t *testing.T) {
	_, err := PinnedManifest("unknown/repo")
	if err == nil {
		t.Error("PinnedManifest(unknown) = nil; want error")
	}
}

func TestRepoForArch(t *testing.T) {
	tests := []struct {
		arch    string
		want    string
		wantErr bool
	}{
		{arch: "mimi", want: "kyutai/mimi"},
		{arch: "encodec-24khz", want: "facebook/encodec_24khz"},
		{arch: "default", want: "facebook/encodec_24khz"},
		{arch: "", want: "facebook/encodec_24khz"},
		{arch: "unknown", wantErr: true},
	}
	for _, tt := range tests {
		got, err := RepoForArch(tt.arch)
		if tt.wantErr {
			if err == nil {
				t.Errorf("RepoForArch(%q) = nil error; want error", tt.arch)
			}
			continue
		}
		if err != nil {
			t.Errorf("RepoForArch(%q) error = %v", tt.arch, err)
			continue
		}
		if got != tt.want {
			t.Errorf("RepoForArch(%q) = %q; want %q", tt.arch, got, tt.want)
		}
	}
}

func TestWeightsPath(t *testing.T) {
	got, err := WeightsPath("/models/mimi", "kyutai/mimi")
	if err != nil {
		t.Fatalf("WeightsPath error = %v", err)
	}
	want := filepath.Join("/models/mimi", "model.safetensors")
	if got != want {
		t.Errorf("WeightsPath = %q; want %q", got, want)
	}

	if _, err := WeightsPath("/models", "unknown/repo"); err == nil {
		t.Error("WeightsPath(unknown repo) = nil; want error")
	}
}

// ---------------------------------------------------------------------------
// existingMatches
// ---------------------------------------------------------------------------

func TestExistingMatches_NoFile(t *testing.T) {
	ok, err := existingMatches("/nonexistent/path/file.bin", "abc")
	if err != nil {
		t.Fatalf("existingMatches(missing) error = %v", err)
	}
	if ok {
		t.Error("existingMatches(missing) = true; want false")
	}
}

func TestExistingMatches_Directory(t *testing.T) {
	dir := t.TempDir()
	_, err := existingMatches(dir, "abc")
	if err == nil {
		t.Error("existingMatches(directory) = nil; want error")
	}
}

func TestExistingMatches_ChecksumMismatch(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "f.bin")
	os.WriteFile(p, []byte("data"), 0o644)

	ok, err := existingMatches(p, strings.Repeat("a", 64))
	if err != nil {
		t.Fatalf("existingMatches error = %v", err)
	}
	if ok {
		t.Error("existingMatches(mismatch) = true; want false")
	}
}

func TestExistingMatches_ChecksumMatch(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "f.bin")
	content := []byte("hello world")
	os.WriteFile(p, content, 0o644)

	ok, err := existingMatches(p, sha256hex(content))
	if err != nil {
		t.Fatalf("existingMatches error = %v", err)
	}
	if !ok {
		t.Error("existingMatches(match) = false; want true")
	}
}

// ---------------------------------------------------------------------------
// fileSHA256
// ---------------------------------------------------------------------------

func TestFileSHA256_KnownContent(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "f.bin")
	content := []byte("test content")
	os.WriteFile(p, content, 0o644)

	got, err := fileSHA256(p)
	if err != nil {
		t.Fatalf("fileSHA256 error = %v", err)
	}
	if got != sha256hex(content) {
		t.Errorf("fileSHA256 = %q; want %q", got, sha256hex(content))
	}
}

func TestFileSHA256_MissingFile(t *testing.T) {
	_, err := fileSHA256("/nonexistent/file.bin")
	if err == nil {
		t.Error("fileSHA256(missing) = nil; want error")
	}
}

func TestFileSHA256_EmptyFile(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "empty.bin")
	os.WriteFile(p, []byte{}, 0o644)

	got, err := fileSHA256(p)
	if err != nil {
		t.Fatalf("fileSHA256(empty) error = %v", err)
	}
	if got != sha256hex(nil) {
		t.Errorf("fileSHA256(empty) = %q; want %q", got, sha256hex(nil))
	}
}

// ---------------------------------------------------------------------------
// readLockManifest / writeLockManifest
// ---------------------------------------------------------------------------

func TestReadLockManifest_MissingFile(t *testing.T) {
	lock := readLockManifest("/nonexistent/lock.json")
	_ = lock.Repo
	_ = lock.Files
}

func TestReadLockManifest_InvalidJSON(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "lock.json")
	os.WriteFile(p, []byte("{bad"), 0o644)

	lock := readLockManifest(p)
	_ = lock.Repo
	_ = lock.Files
}

func TestReadLockManifest_ValidFile(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "lock.json")
	content := `{"repo":"org/repo","generated":"2026-01-01T00:00:00Z","files":{"a.bin":{"revision":"r1","sha256":"` + strings.Repeat("1", 64) + `"}}}`
	os.WriteFile(p, []byte(content), 0o644)

	lock := readLockManifest(p)
	if lock.Repo != "org/repo" {
		t.Errorf("Repo = %q; want org/repo", lock.Repo)
	}
	if lock.Files == nil {
		t.Fatal("Files is nil")
	}
	rec, ok := lock.Files["a.bin"]
	if !ok {
		t.Fatal("Files[a.bin] not found")
	}
	if rec.Revision != "r1" {
		t.Errorf("Revision = %q; want r1", rec.Revision)
	}
}

func TestWriteReadLockManifest_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "lock.json")

	original := lockManifest{
		Repo:      "kyutai/mimi",
		Generated: "2026-01-01T00:00:00Z",
		Files: map[string]lockRecord{
			"model.safetensors": {
				Revision: "abc123",
				SHA256:   strings.Repeat("a", 64),
			},
		},
	}

	if err := writeLockManifest(p, original); err != nil {
		t.Fatalf("writeLockManifest error = %v", err)
	}

	got := readLockManifest(p)
	if got.Repo != original.Repo {
		t.Errorf("Repo = %q; want %q", got.Repo, original.Repo)
	}
	rec, ok := got.Files["model.safetensors"]
	if !ok {
		t.Fatal("Files[model.safetensors] not found")
	}
	if rec.Revision != "abc123" {
		t.Errorf("Revision = %q; want abc123", rec.Revision)
	}
}

func TestWriteLockManifest_MissingParentDir(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "subdir", "lock.json")

	err := writeLockManifest(p, lockManifest{Files: map[string]lockRecord{}})
	if err == nil {
		t.Error("writeLockManifest(missing parent) = nil; want error")
	}
}

func TestWriteLockManifest_ValidContent(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "lock.json")

	lock := lockManifest{
		Repo:      "test/repo",
		Generated: "2026-01-01T00:00:00Z",
		Files: map[string]lockRecord{
			"a.bin": {Revision: "rev1", SHA256: strings.Repeat("1", 64)},
		},
	}
	if err := writeLockManifest(p, lock); err != nil {
		t.Fatalf("writeLockManifest error = %v", err)
	}

	raw, _ := os.ReadFile(p)
	var got lockManifest
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if got.Files["a.bin"].Revision != "rev1" {
		t.Errorf("Revision = %q; want rev1", got.Files["a.bin"].Revision)
	}
}

// ---------------------------------------------------------------------------
// resolveURL / setAuth
// ---------------------------------------------------------------------------

func TestResolveURL(t *testing.T) {
	f := ModelFile{Filename: "model.safetensors", Revision: "abc123"}
	got := resolveURL("org/repo", f)
	want := "https://huggingface.co/org/repo/resolve/abc123/model.safetensors"
	if got != want {
		t.Errorf("resolveURL = %q; want %q", got, want)
	}
}

func TestSetAuth_WithToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	setAuth(req, "mytoken")
	if got := req.Header.Get("Authorization"); got != "Bearer mytoken" {
		t.Errorf("Authorization = %q; want %q", got, "Bearer mytoken")
	}
}

func TestSetAuth_EmptyToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	setAuth(req, "")
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q; want empty for empty token", got)
	}
}

// ---------------------------------------------------------------------------
// normalizeETag / isSHA256Hex
// ---------------------------------------------------------------------------

func TestNormalizeETag_Variants(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"abc"`, "abc"},
		{`W/"abc"`, "abc"},
		{`  abc  `, "abc"},
		{`W/"` + strings.Repeat("a", 64) + `"`, strings.Repeat("a", 64)},
		{"", ""},
	}
	for _, tt := range tests {
		got := normalizeETag(tt.input)
		if got != tt.want {
			t.Errorf("normalizeETag(%q) = %q; want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsSHA256Hex(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{strings.Repeat("a", 64), true},
		{strings.Repeat("A", 64), true},
		{strings.Repeat("a", 63), false},
		{strings.Repeat("a", 65), false},
		{"", false},
		{strings.Repeat("g", 64), false},
	}
	for _, tt := range tests {
		got := isSHA256Hex(tt.input)
		if got != tt.want {
			t.Errorf("isSHA256Hex(%q) = %v; want %v", tt.input, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Download — validation path (no network)
// ---------------------------------------------------------------------------

func TestDownload_EmptyRepo(t *testing.T) {
	err := Download(DownloadOptions{OutDir: "/tmp"})
	if err == nil {
		t.Error("Download(empty repo) = nil; want error")
	}
}

func TestDownload_EmptyOutDir(t *testing.T) {
	err := Download(DownloadOptions{Repo: "kyutai/mimi"})
	if err == nil {
		t.Error("Download(empty outDir) = nil; want error")
	}
}

func TestDownload_UnknownRepo(t *testing.T) {
	err := Download(DownloadOptions{Repo: "not/a/known/repo", OutDir: t.TempDir()})
	if err == nil {
		t.Error("Download(unknown repo) = nil; want error")
	}
}

// ---------------------------------------------------------------------------
// downloadWithProgress / resolveChecksumFromMetadata — via httptest
// ---------------------------------------------------------------------------

func TestDownloadWithProgress_Success(t *testing.T) {
	content := []byte("fake model weights")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	outPath := filepath.Join(tmp, "model.bin")
	file := ModelFile{Filename: "model.bin", Revision: "rev1"}

	got, err := downloadWithProgress(newHFClient(srv.URL), "org/repo", file, "", outPath, &strings.Builder{})
	if err != nil {
		t.Fatalf("downloadWithProgress error = %v", err)
	}
	if got != sha256hex(content) {
		t.Errorf("checksum = %q; want %q", got, sha256hex(content))
	}

	data, readErr := os.ReadFile(outPath)
	if readErr != nil {
		t.Fatalf("ReadFile: %v", readErr)
	}
	if string(data) != string(content) {
		t.Errorf("file content = %q; want %q", data, content)
	}
}

func TestDownloadWithProgress_AccessDenied(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprintf("HTTP%d", code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			}))
			defer srv.Close()

			_, err := downloadWithProgress(newHFClient(srv.URL), "org/repo",
				ModelFile{Filename: "f.bin", Revision: "r1"}, "", filepath.Join(t.TempDir(), "f.bin"), &strings.Builder{})
			if err == nil {
				t.Errorf("HTTP %d should return error", code)
			}
			if !strings.Contains(err.Error(), "access denied") {
				t.Errorf("expected access denied error, got %v", err)
			}
		})
	}
}

func TestDownloadWithProgress_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := downloadWithProgress(newHFClient(srv.URL), "org/repo",
		ModelFile{Filename: "f.bin", Revision: "r1"}, "", filepath.Join(t.TempDir(), "f.bin"), &strings.Builder{})
	if err == nil {
		t.Error("HTTP 500 should return error")
	}
}

func TestResolveChecksumFromMetadata_LinkedEtag(t *testing.T) {
	checksum := strings.Repeat("a", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Linked-Etag", `"`+checksum+`"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	got, err := resolveChecksumFromMetadata(newHFClient(srv.URL), "org/repo",
		ModelFile{Filename: "f.bin", Revision: "r1"}, "")
	if err != nil {
		t.Fatalf("resolveChecksumFromMetadata error = %v", err)
	}
	if got != checksum {
		t.Errorf("checksum = %q; want %q", got, checksum)
	}
}

func TestResolveChecksumFromMetadata_EtagFallback(t *testing.T) {
	checksum := strings.Repeat("b", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Etag", `"`+checksum+`"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	got, err := resolveChecksumFromMetadata(newHFClient(srv.URL), "org/repo",
		ModelFile{Filename: "f.bin", Revision: "r1"}, "")
	if err != nil {
		t.Fatalf("resolveChecksumFromMetadata error = %v", err)
	}
	if got != checksum {
		t.Errorf("checksum = %q; want %q", got, checksum)
	}
}

func TestResolveChecksumFromMetadata_NoUsableHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := resolveChecksumFromMetadata(newHFClient(srv.URL), "org/repo",
		ModelFile{Filename: "f.bin", Revision: "r1"}, "")
	if err == nil {
		t.Error("no usable header should return error")
	}
}

func TestResolveChecksumFromMetadata_WithToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-Linked-Etag", strings.Repeat("c", 64))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, _ = resolveChecksumFromMetadata(newHFClient(srv.URL), "org/repo",
		ModelFile{Filename: "f.bin", Revision: "r1"}, "my-token")

	if gotAuth != "Bearer my-token" {
		t.Errorf("Authorization = %q; want %q", gotAuth, "Bearer my-token")
	}
}

// ---------------------------------------------------------------------------
// Helpers used in tests
// ---------------------------------------------------------------------------

// sha256hex returns the lowercase hex SHA256 of data.
func sha256hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// hfTransport is a test RoundTripper that rewrites huggingface.co requests
// to a local test server, enabling tests of the production HTTP code paths.
type hfTransport struct {
	target string // e.g. "http://127.0.0.1:PORT"
}

func (t *hfTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = "http"
	clone.URL.Host = strings.TrimPrefix(t.target, "http://")
	return http.DefaultTransport.RoundTrip(clone)
}

// newHFClient returns an *http.Client whose transport redirects
// all requests (including those to huggingface.co) to the given server.
func newHFClient(serverURL string) *http.Client {
	return &http.Client{Transport: &hfTransport{target: serverURL}}
}
