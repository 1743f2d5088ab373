package recipe

// SourceSpec is the Stage 1, fully-evaluated counterpart of SourceEntry: every
// template has been rendered to a concrete string (spec.md §4.6). The
// Evaluator produces these; the source cache consumes them. This mirrors the
// split Azure-dalec draws between its Stage-0 `Source` struct (source.go)
// and the concrete fetch descriptors `source_http.go`/`source_git.go` build
// from it, minus the `llb.State` builder methods — we fetch to a real
// filesystem path, not a BuildKit graph.

import (
	"path"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

type SourceSpecKind int

const (
	SpecURL SourceSpecKind = iota
	SpecGit
	SpecPath
)

// SourceSpec is a concrete, rendered source descriptor (spec.md §3).
type SourceSpec struct {
	Kind SourceSpecKind

	// SpecURL
	URLs       []string
	Sha256     string
	Md5        string
	FileName   string
	URLPatches []string

	// SpecGit
	GitURL         string
	Rev            string
	Tag            string
	Branch         string
	Depth          int
	Lfs            bool
	ExpectedCommit string

	// SpecPath
	Path         string
	Include      []string
	Exclude      []string
	UseGitignore bool
	PathPatches  []string

	// Shared
	TargetDir string
}

// Checksum returns the strongest available checksum and its kind ("sha256"
// preferred over "md5"), used both for download validation and cache-entry
// bookkeeping (spec.md §6 CacheEntry.checksum/checksum_type).
func (s SourceSpec) Checksum() (value, kind string) {
	if s.Sha256 != "" {
		return s.Sha256, "sha256"
	}
	if s.Md5 != "" {
		return s.Md5, "md5"
	}
	return "", ""
}

// GitReferenceString is the "reference_string" spec.md §4.6's Git cache key
// hashes alongside the URL: the most specific ref the source pins to, in
// priority order rev > tag > branch, falling back to "HEAD".
func (s SourceSpec) GitReferenceString() string {
	switch {
	case s.Rev != "":
		return s.Rev
	case s.Tag != "":
		return "refs/tags/" + s.Tag
	case s.Branch != "":
		return "refs/heads/" + s.Branch
	default:
		return "HEAD"
	}
}

// URLCacheKey computes spec.md §4.6's `sha256(url ∥ optional checksum)` for
// the URL that actually succeeded (finalURL), not necessarily URLs[0] —
// mirror fallback means the winning mirror is only known at fetch time.
func URLCacheKey(finalURL, checksum string) string {
	return digest.FromString(finalURL + checksum).Encoded()
}

// GitCacheKey computes spec.md §4.6's `sha256(url ∥ reference_string)`.
func GitCacheKey(url, referenceString string) string {
	return digest.FromString(url + referenceString).Encoded()
}

// archiveSuffixes is the closed set spec.md §4.6 recognises as extractable:
// ".tar(.gz|.bz2|.xz|.zst)?", ".tgz", ".tbz2", ".txz", ".zip", ".7z".
var archiveSuffixes = []string{
	".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst", ".tar",
	".tgz", ".tbz2", ".txz", ".zip", ".7z",
}

// IsArchiveExtension reports whether filename's suffix marks it as an
// extractable archive per spec.md §4.6's content-type classification.
func IsArchiveExtension(filename string) bool {
	lower := strings.ToLower(filename)
	for _, suf := range archiveSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// FilenameFromURL derives the default archive/file name from a URL's path
// component, used when no explicit `file_name` override is present.
func FilenameFromURL(u string) string {
	return path.Base(u)
}
