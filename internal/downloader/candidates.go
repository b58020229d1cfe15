package downloader

import (
	"net/url"
	"path"
	"strings"
)

// Rewrite describes how a pixiv "large" image reference is turned into
// download candidates
type Rewrite struct {
	// SourceHost is replaced by MirrorHost on every candidate
	SourceHost string
	MirrorHost string

	// MasterSegment is replaced by OriginalSegment to reach the full size file
	MasterSegment   string
	OriginalSegment string

	// ResolutionToken is stripped from the file name of the original
	ResolutionToken string
}

// DefaultRewrite returns the rules for pixiv's i.pximg.net image host
func DefaultRewrite() Rewrite {
	return Rewrite{
		SourceHost:      "i.pximg.net",
		MirrorHost:      "i.pixiv.cat",
		MasterSegment:   "c/600x1200_90_webp/img-master",
		OriginalSegment: "img-original",
		ResolutionToken: "_master1200",
	}
}

// Candidate is one URL to try for a job and the file extension to save it under
type Candidate struct {
	URL    string
	Suffix string
}

// ResolveCandidates derives the download candidates for ref, in the order
// they should be tried:
//
//  1. the original file
//  2. the original file with jpg and png swapped
//  3. ref itself, the compressed master
//
// Every candidate has its host mirrored. Duplicate URLs are dropped, keeping
// the first occurrence.
func ResolveCandidates(ref string, rw Rewrite) []Candidate {
	if ref == "" {
		return nil
	}

	original := ref
	if rw.MasterSegment != "" {
		original = strings.Replace(original, rw.MasterSegment, rw.OriginalSegment, 1)
	}
	if rw.ResolutionToken != "" {
		original = strings.Replace(original, rw.ResolutionToken, "", 1)
	}

	raw := []string{original}
	if swapped, ok := swapExtension(original); ok {
		raw = append(raw, swapped)
	}
	raw = append(raw, ref)

	seen := make(map[string]struct{}, len(raw))
	candidates := make([]Candidate, 0, len(raw))
	for _, u := range raw {
		u = mirrorHost(u, rw)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		candidates = append(candidates, Candidate{URL: u, Suffix: extensionOf(u)})
	}
	return candidates
}

var secondaryFormat = map[string]string{
	"jpg": "png",
	"png": "jpg",
}

func swapExtension(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	ext := extensionOf(raw)
	alt, ok := secondaryFormat[ext]
	if !ok {
		return "", false
	}
	u.Path = strings.TrimSuffix(u.Path, path.Ext(u.Path)) + "." + alt
	u.RawPath = ""
	return u.String(), true
}

func mirrorHost(raw string, rw Rewrite) string {
	if rw.SourceHost == "" || rw.MirrorHost == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host != rw.SourceHost {
		return raw
	}
	u.Host = rw.MirrorHost
	return u.String()
}

// extensionOf returns the lower-case extension of the URL path without the
// dot, defaulting to jpg
func extensionOf(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "jpeg" {
		return "jpg"
	}
	if ext == "" {
		return "jpg"
	}
	return ext
}
