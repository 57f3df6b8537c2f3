package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Tube/internal/fetch"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/internal/provider"
	"github.com/labstack/gommon/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExpected = errors.New("test: expected error")

type stubOpener struct {
	variants []provider.Variant
	body     []byte
	length   int64
	readErr  error
}

func (o *stubOpener) Open(_ context.Context, _ string, selector provider.Selector) (*provider.Stream, error) {
	v, err := provider.Select(o.variants, selector)
	if err != nil {
		return nil, err
	}

	var r io.Reader = bytes.NewReader(o.body)
	if o.readErr != nil {
		r = io.MultiReader(r, &failingReader{o.readErr})
	}

	return &provider.Stream{ReadCloser: io.NopCloser(r), Variant: v, Length: o.length}, nil
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }

// recordingSink records every signal so tests can assert on ordering.
type recordingSink struct {
	infos    []int64
	progress []int64
}

func (s *recordingSink) Info(n int64)     { s.infos = append(s.infos, n) }
func (s *recordingSink) Progress(n int64) { s.progress = append(s.progress, n) }

var audioVariant = []provider.Variant{{Itag: 140, Container: "mp4", HasAudio: true}}

func Test_Fetch_WritesFileAndReportsProgress(t *testing.T) {
	body := bytes.Repeat([]byte(random.String(32)), 4000)
	opener := &stubOpener{variants: audioVariant, body: body, length: int64(len(body))}
	dest := filepath.Join(t.TempDir(), "audio.mp4")
	sink := &recordingSink{}

	err := fetch.New(opener).Fetch(context.Background(), "url", provider.AudioOnly(), dest, sink)
	require.NoError(t, err)

	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, written)

	assert.Equal(t, []int64{int64(len(body))}, sink.infos)
	require.NotEmpty(t, sink.progress)
	assert.Greater(t, len(sink.progress), 1, "expected periodic progress signals for a multi-buffer copy")
	assert.EqualValues(t, len(body), sink.progress[len(sink.progress)-1])
	assert.IsIncreasing(t, sink.progress)
}

func Test_Fetch_UnknownLengthReportsFinalSize(t *testing.T) {
	body := []byte("hello world")
	opener := &stubOpener{variants: audioVariant, body: body}
	sink := &recordingSink{}

	err := fetch.New(opener).Fetch(context.Background(), "url", provider.AudioOnly(), filepath.Join(t.TempDir(), "a"), sink)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, int64(len(body))}, sink.infos)
}

func Test_Fetch_NoMatchingVariantCreatesNoFile(t *testing.T) {
	opener := &stubOpener{variants: audioVariant}
	dest := filepath.Join(t.TempDir(), "video.mp4")

	err := fetch.New(opener).Fetch(context.Background(), "url", provider.VideoWithResolution("mp4", "720p"), dest, &progress.State{})
	assert.ErrorIs(t, err, provider.ErrNoMatchingVariant)
	assert.NoFileExists(t, dest)
}

func Test_Fetch_PrematureEndOfStream(t *testing.T) {
	opener := &stubOpener{variants: audioVariant, body: []byte("short"), length: 1024}
	dest := filepath.Join(t.TempDir(), "audio.mp4")

	err := fetch.New(opener).Fetch(context.Background(), "url", provider.AudioOnly(), dest, &progress.State{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.FileExists(t, dest, "partial file is left for the caller to clean up")
}

func Test_Fetch_StreamError(t *testing.T) {
	opener := &stubOpener{variants: audioVariant, body: []byte("partial"), length: 1024, readErr: errExpected}
	dest := filepath.Join(t.TempDir(), "audio.mp4")

	err := fetch.New(opener).Fetch(context.Background(), "url", provider.AudioOnly(), dest, &progress.State{})
	assert.ErrorIs(t, err, errExpected)
}

func Test_Fetch_UnwritableDestination(t *testing.T) {
	opener := &stubOpener{variants: audioVariant, body: []byte("x"), length: 1}
	dest := filepath.Join(t.TempDir(), "missing-dir", "audio.mp4")

	err := fetch.New(opener).Fetch(context.Background(), "url", provider.AudioOnly(), dest, &progress.State{})
	assert.Error(t, err)
}
