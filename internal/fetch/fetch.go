package fetch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/internal/provider"
	"github.com/hbomb79/Tube/pkg/logger"
)

var log = logger.Get("Fetcher")

const copyBufferSize = 32 * 1024

type Opener interface {
	Open(ctx context.Context, url string, selector provider.Selector) (*provider.Stream, error)
}

// Fetcher copies a single provider stream variant to local storage while
// reporting the expected and transferred byte counts to a progress sink.
type Fetcher struct {
	opener Opener
}

func New(opener Opener) *Fetcher {
	return &Fetcher{opener: opener}
}

// Fetch opens the variant chosen by the selector and writes it to the destination
// path. It returns once the provider has signalled end-of-stream and the file has
// been closed. On failure a partially written destination may remain on disk;
// removing it is the caller's responsibility.
func (fetcher *Fetcher) Fetch(ctx context.Context, sourceURL string, selector provider.Selector, destination string, sink progress.Sink) error {
	stream, err := fetcher.opener.Open(ctx, sourceURL, selector)
	if err != nil {
		return err
	}
	defer stream.Close()

	sink.Info(stream.Length)
	log.Emit(logger.DEBUG, "Fetching itag %d (%d bytes expected) to %s\n", stream.Variant.Itag, stream.Length, destination)

	file, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	writer := &progressWriter{dest: file, sink: sink}
	written, copyErr := io.CopyBuffer(writer, stream, make([]byte, copyBufferSize))
	closeErr := file.Close()

	if copyErr != nil {
		return fmt.Errorf("stream copy failed after %d bytes: %w", written, copyErr)
	}
	if stream.Length > 0 && written < stream.Length {
		return fmt.Errorf("stream ended after %d of %d bytes: %w", written, stream.Length, io.ErrUnexpectedEOF)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to flush destination file: %w", closeErr)
	}

	if stream.Length <= 0 {
		// Provider never announced a size, so report the final
		// count as the expected size now that it is known.
		sink.Info(written)
	}

	log.Emit(logger.SUCCESS, "Fetched %d bytes to %s\n", written, destination)
	return nil
}

// progressWriter forwards writes to the destination, reporting the running
// byte total to the sink after each successful write.
type progressWriter struct {
	dest    io.Writer
	sink    progress.Sink
	written int64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	if n > 0 {
		w.written += int64(n)
		w.sink.Progress(w.written)
	}

	return n, err
}
