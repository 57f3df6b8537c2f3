package provider_test

import (
	"testing"

	"github.com/hbomb79/Tube/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var variants = []provider.Variant{
	{Itag: 18, Container: "mp4", QualityLabel: "360p", Bitrate: 500, HasVideo: true, HasAudio: true},
	{Itag: 134, Container: "mp4", QualityLabel: "360p", Bitrate: 300, HasVideo: true},
	{Itag: 243, Container: "webm", QualityLabel: "360p", Bitrate: 900, HasVideo: true},
	{Itag: 136, Container: "mp4", QualityLabel: "720p", Bitrate: 1200, HasVideo: true},
	{Itag: 140, Container: "mp4", Bitrate: 128, HasAudio: true},
	{Itag: 251, Container: "webm", Bitrate: 160, HasAudio: true},
	{Itag: 139, Container: "mp4", Bitrate: 160, HasAudio: true},
}

func Test_Select_HighestBitrateWins(t *testing.T) {
	v, err := provider.Select(variants, provider.VideoWithResolution("mp4", "360p"))
	require.NoError(t, err)
	assert.Equal(t, 18, v.Itag)
}

func Test_Select_AudioOnlyTieBreaksOnItag(t *testing.T) {
	v, err := provider.Select(variants, provider.AudioOnly())
	require.NoError(t, err)
	assert.Equal(t, 139, v.Itag, "equal bitrate variants must resolve to the lowest itag")
}

func Test_Select_NoMatch(t *testing.T) {
	_, err := provider.Select(variants, provider.VideoWithResolution("mp4", "1080p"))
	assert.ErrorIs(t, err, provider.ErrNoMatchingVariant)

	_, err = provider.Select(nil, provider.AudioOnly())
	assert.ErrorIs(t, err, provider.ErrNoMatchingVariant)
}

func Test_Resolutions_Mp4VideoOnlyDeduplicated(t *testing.T) {
	assert.Equal(t, []string{"360p", "720p"}, provider.Resolutions(variants))
	assert.Empty(t, provider.Resolutions(nil))
}

func Test_ContainerFromMimeType(t *testing.T) {
	tests := []struct {
		mime      string
		container string
	}{
		{`video/mp4; codecs="avc1.4d401e"`, "mp4"},
		{`audio/webm; codecs="opus"`, "webm"},
		{"audio/MP4", "mp4"},
		{"garbage", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.container, provider.ContainerFromMimeType(tt.mime))
		})
	}
}

func Test_YouTube_VideoID(t *testing.T) {
	yt := provider.NewYouTube(provider.Config{})
	valid := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":            "dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=10s":          "dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ":              "dQw4w9WgXcQ",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ":          "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                           "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":             "dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ":              "dQw4w9WgXcQ",
		"http://youtube.com/live/dQw4w9WgXcQ?feature=share":      "dQw4w9WgXcQ",
		"  https://www.youtube.com/watch?v=dQw4w9WgXcQextra  ":   "dQw4w9WgXcQ",
	}
	for url, id := range valid {
		t.Run(url, func(t *testing.T) {
			got, err := yt.VideoID(url)
			require.NoError(t, err)
			assert.Equal(t, id, got)
			assert.True(t, yt.ValidateURL(url))
		})
	}

	invalid := []string{
		"not-a-url",
		"",
		"https://valid.example/watch?id=abc",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=bad!chars!!",
		"https://vimeo.com/watch?v=dQw4w9WgXcQ",
	}
	for _, url := range invalid {
		t.Run(url, func(t *testing.T) {
			_, err := yt.VideoID(url)
			assert.ErrorIs(t, err, provider.ErrInvalidURL)
			assert.False(t, yt.ValidateURL(url))
		})
	}
}
