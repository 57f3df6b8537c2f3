package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hbomb79/Tube/internal/cache"
	"github.com/hbomb79/Tube/pkg/logger"
	"github.com/kkdai/youtube/v2"
)

var (
	log = logger.Get("Provider")

	videoIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	pathFormPattern = regexp.MustCompile(`^https?://(youtu\.be/|(www\.)?youtube\.com/(embed|v|shorts|live)/)`)

	queryDomains = map[string]bool{
		"youtube.com":        true,
		"www.youtube.com":    true,
		"m.youtube.com":      true,
		"music.youtube.com":  true,
		"gaming.youtube.com": true,
	}
)

type Config struct {
	InfoCacheTTL   time.Duration `yaml:"info_cache_ttl" env:"PROVIDER_INFO_CACHE_TTL" env-default:"2m"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"PROVIDER_REQUEST_TIMEOUT" env-default:"0s"`
}

// YouTube is the Provider backed by the kkdai/youtube client. Video metadata is
// cached briefly because a single download looks it up once per stream.
type YouTube struct {
	client *youtube.Client
	videos *cache.Cache[string, *youtube.Video]
}

func NewYouTube(config Config) *YouTube {
	client := &youtube.Client{}
	if config.RequestTimeout > 0 {
		client.HTTPClient = &http.Client{Timeout: config.RequestTimeout}
	}

	return &YouTube{
		client: client,
		videos: cache.New[string, *youtube.Video](config.InfoCacheTTL),
	}
}

func (yt *YouTube) ValidateURL(rawURL string) bool {
	_, err := yt.VideoID(rawURL)
	return err == nil
}

// VideoID extracts the 11 character video ID from a watch URL (with a 'v' query
// parameter on one of the known YouTube hosts) or from the path of a short-form
// URL such as youtu.be/<id> or youtube.com/shorts/<id>.
func (yt *YouTube) VideoID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	id := parsed.Query().Get("v")
	if pathFormPattern.MatchString(rawURL) && id == "" {
		segments := strings.Split(parsed.Path, "/")
		if parsed.Host == "youtu.be" && len(segments) > 1 {
			id = segments[1]
		} else if len(segments) > 2 {
			id = segments[2]
		}
	} else if !queryDomains[parsed.Hostname()] {
		return "", fmt.Errorf("%w: %q is not a YouTube domain", ErrInvalidURL, parsed.Hostname())
	}

	if id == "" {
		return "", fmt.Errorf("%w: no video id found in %q", ErrInvalidURL, rawURL)
	}

	if len(id) > 11 {
		id = id[:11]
	}
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: video id %q does not match expected format", ErrInvalidURL, id)
	}

	return id, nil
}

func (yt *YouTube) Info(ctx context.Context, rawURL string) (*VideoInfo, error) {
	video, err := yt.video(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	return &VideoInfo{
		ID:          video.ID,
		Title:       video.Title,
		Author:      video.Author,
		Description: video.Description,
		PublishDate: video.PublishDate,
		Duration:    video.Duration,
		Variants:    variantsFromFormats(video.Formats),
	}, nil
}

func (yt *YouTube) Open(ctx context.Context, rawURL string, selector Selector) (*Stream, error) {
	video, err := yt.video(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	variant, err := Select(variantsFromFormats(video.Formats), selector)
	if err != nil {
		return nil, err
	}

	var format *youtube.Format
	for i := range video.Formats {
		if video.Formats[i].ItagNo == variant.Itag {
			format = &video.Formats[i]
			break
		}
	}
	if format == nil {
		return nil, fmt.Errorf("selected variant (itag %d) vanished from format list", variant.Itag)
	}

	log.Emit(logger.DEBUG, "Opening stream for video %s (itag=%d, mime=%s)\n", video.ID, variant.Itag, variant.MimeType)
	reader, length, err := yt.client.GetStreamContext(ctx, video, format)
	if err != nil {
		// Stream URLs carry an expiring signature, so a cached video may
		// no longer be openable. Drop it so the next attempt refetches.
		yt.videos.DeleteItem(video.ID)
		return nil, fmt.Errorf("failed to open stream for itag %d: %w", variant.Itag, err)
	}

	return &Stream{ReadCloser: reader, Variant: variant, Length: length}, nil
}

func (yt *YouTube) video(ctx context.Context, rawURL string) (*youtube.Video, error) {
	id, err := yt.VideoID(rawURL)
	if err != nil {
		return nil, err
	}

	if v, ok := yt.videos.RetrieveItem(id); ok {
		log.Emit(logger.VERBOSE, "Video %s served from metadata cache\n", id)
		return v, nil
	}

	video, err := yt.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video %s: %w", id, err)
	}

	yt.videos.Prune()
	yt.videos.PushItem(id, video)
	return video, nil
}

func variantsFromFormats(formats youtube.FormatList) []Variant {
	variants := make([]Variant, 0, len(formats))
	for _, f := range formats {
		variants = append(variants, Variant{
			Itag:          f.ItagNo,
			MimeType:      f.MimeType,
			Container:     ContainerFromMimeType(f.MimeType),
			QualityLabel:  f.QualityLabel,
			Bitrate:       f.Bitrate,
			ContentLength: f.ContentLength,
			HasVideo:      f.QualityLabel != "" || strings.HasPrefix(f.MimeType, "video/"),
			HasAudio:      f.AudioChannels > 0 || f.AudioQuality != "",
		})
	}

	return variants
}
