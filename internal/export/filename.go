// Package export turns finished work items into named artifacts and hands
// them to a share target or a save target.
package export

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"listingprep/internal/domain"
	"listingprep/internal/slug"
)

const (
	// DefaultPrefix marks fallback names for items without AI copy.
	DefaultPrefix = "avito_"

	maxSlugLength = 100
)

var ErrNotReady = errors.New("item has no rendered artifact")

// Artifact is one file ready for delivery.
type Artifact struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Filename names the export of item encoded as enc. A descriptor alt text
// wins; otherwise prefix plus the original file stem is used.
func Filename(item domain.WorkItem, enc domain.Encoding, prefix string) string {
	ext := enc.Extension()
	if item.Descriptor != nil && strings.TrimSpace(item.Descriptor.AltText) != "" {
		if s := slug.Truncate(slug.Slugify(item.Descriptor.AltText), maxSlugLength); s != "" {
			return s + "." + ext
		}
	}
	return prefix + stem(item.Name) + "." + ext
}

// stem strips the last extension. Names without one, or that start with
// their only dot, are returned whole.
func stem(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		return name[:idx]
	}
	return name
}

// ArtifactFor builds the artifact of a done item.
func ArtifactFor(item domain.WorkItem, prefix string) (Artifact, error) {
	if item.Status != domain.StatusDone || item.Rendered == nil || len(item.Rendered.Data) == 0 {
		return Artifact{}, fmt.Errorf("item %s: %w", item.ID, ErrNotReady)
	}
	return Artifact{
		Name:     Filename(item, item.Rendered.Encoding, prefix),
		MIMEType: item.Rendered.MIMEType,
		Data:     item.Rendered.Data,
	}, nil
}

// ArtifactsFor collects the artifacts of all done items with names made
// unique within the set. Items that are not done are skipped.
func ArtifactsFor(items []domain.WorkItem, prefix string) []Artifact {
	names := NewNameSet()
	var out []Artifact
	for _, item := range items {
		art, err := ArtifactFor(item, prefix)
		if err != nil {
			continue
		}
		art.Name = names.Claim(art.Name)
		out = append(out, art)
	}
	return out
}

// NameSet hands out unique file names, appending -2, -3 to repeats.
type NameSet struct {
	taken    map[string]struct{}
	counters map[string]int
}

func NewNameSet() *NameSet {
	return &NameSet{taken: make(map[string]struct{}), counters: make(map[string]int)}
}

// Claim returns name, or the first free numbered variant of it.
func (s *NameSet) Claim(name string) string {
	if _, ok := s.taken[name]; !ok {
		s.taken[name] = struct{}{}
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	n := s.counters[name]
	if n == 0 {
		n = 2
	}
	for {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if _, ok := s.taken[candidate]; !ok {
			s.counters[name] = n + 1
			s.taken[candidate] = struct{}{}
			return candidate
		}
		n++
	}
}
