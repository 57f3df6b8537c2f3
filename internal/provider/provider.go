package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	ErrNoMatchingVariant = errors.New("no stream variant matches the selection")
	ErrInvalidURL        = errors.New("url is not a supported source")
)

type (
	// Provider is the capability contract Tube requires from a source-extraction
	// backend. Implementations must be safe for concurrent use.
	Provider interface {
		// ValidateURL reports whether the URL is recognised by this provider.
		ValidateURL(url string) bool

		// VideoID extracts the provider's identifier for the video at the URL.
		VideoID(url string) (string, error)

		// Info retrieves the metadata, including every stream variant on offer.
		Info(ctx context.Context, url string) (*VideoInfo, error)

		// Open selects exactly one variant using the selector and opens a
		// readable stream for it. If nothing matches, ErrNoMatchingVariant
		// is returned and no stream is opened.
		Open(ctx context.Context, url string, selector Selector) (*Stream, error)
	}

	// Variant is one encoded representation of a video offered by the
	// provider (container, quality, audio/video presence).
	Variant struct {
		Itag          int
		MimeType      string
		Container     string
		QualityLabel  string
		Bitrate       int
		ContentLength int64
		HasVideo      bool
		HasAudio      bool
	}

	VideoInfo struct {
		ID          string
		Title       string
		Author      string
		Description string
		PublishDate time.Time
		Duration    time.Duration
		Variants    []Variant
	}

	// Stream is an open byte stream for a single variant. Length is the
	// number of bytes the provider expects to deliver, or 0 if unknown.
	Stream struct {
		io.ReadCloser
		Variant Variant
		Length  int64
	}

	Selector func(Variant) bool
)

// VideoWithResolution selects variants in the given container carrying a video
// track at exactly the quality label provided (e.g. "mp4", "720p").
func VideoWithResolution(container string, qualityLabel string) Selector {
	return func(v Variant) bool {
		return v.HasVideo && strings.EqualFold(v.Container, container) && v.QualityLabel == qualityLabel
	}
}

// AudioOnly selects variants that carry audio and no video, in any container.
func AudioOnly() Selector {
	return func(v Variant) bool {
		return v.HasAudio && !v.HasVideo
	}
}

// Select applies the selector to the variants and deterministically picks
// one of the matches: the highest bitrate wins, ties broken by lowest itag.
func Select(variants []Variant, selector Selector) (Variant, error) {
	var (
		best  Variant
		found bool
	)
	for _, v := range variants {
		if !selector(v) {
			continue
		}

		if !found || v.Bitrate > best.Bitrate || (v.Bitrate == best.Bitrate && v.Itag < best.Itag) {
			best = v
			found = true
		}
	}

	if !found {
		return Variant{}, ErrNoMatchingVariant
	}

	return best, nil
}

// Resolutions returns the quality labels of every mp4 variant with a video
// track, deduplicated and in the order the provider reported them.
func Resolutions(variants []Variant) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, v := range variants {
		if !v.HasVideo || v.Container != "mp4" || v.QualityLabel == "" {
			continue
		}
		if seen[v.QualityLabel] {
			continue
		}

		seen[v.QualityLabel] = true
		out = append(out, v.QualityLabel)
	}

	return out
}

// ContainerFromMimeType extracts the container from a MIME type such as
// `video/mp4; codecs="avc1.4d401e"`, returning "mp4".
func ContainerFromMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	_, sub, ok := strings.Cut(strings.TrimSpace(base), "/")
	if !ok {
		return ""
	}

	return strings.ToLower(sub)
}
