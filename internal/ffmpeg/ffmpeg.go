package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hbomb79/Tube/pkg/logger"
)

var log = logger.Get("FFmpeg")

var ErrIncompleteOutput = errors.New("merged output is missing a video or audio stream")

// Config contains the paths to the FFmpeg binaries and the
// codec used when re-encoding the audio stream of a merge.
type Config struct {
	FfmpegBinaryPath  string `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY_PATH" env-default:"ffmpeg"`
	FfprobeBinaryPath string `yaml:"ffprobe_binary" env:"FFPROBE_BINARY_PATH" env-default:"ffprobe"`
	AudioCodec        string `yaml:"audio_codec" env:"FFMPEG_AUDIO_CODEC" env-default:"aac"`
	VerifyOutput      bool   `yaml:"verify_output" env:"FFMPEG_VERIFY_OUTPUT" env-default:"true"`
}

// Merger combines a video-only file and an audio-only file in to a single
// container by invoking FFmpeg. The video stream is copied bit-for-bit and
// the audio stream is re-encoded using the configured codec.
type Merger struct {
	config Config
	probe  func(path string) (StreamSummary, error)
}

func NewMerger(config Config) *Merger {
	if config.AudioCodec == "" {
		config.AudioCodec = "aac"
	}

	merger := &Merger{config: config}
	merger.probe = func(path string) (StreamSummary, error) {
		return ProbeFile(path, config.FfprobeBinaryPath)
	}

	return merger
}

// Merge runs FFmpeg with both inputs, writing the result to outputPath. A
// non-zero exit, or (when verification is enabled) output lacking either
// stream, results in a *MergeError and any output written is removed.
func (merger *Merger) Merge(ctx context.Context, videoPath string, audioPath string, outputPath string) error {
	args := merger.args(videoPath, audioPath, outputPath)
	log.Emit(logger.DEBUG, "Running %s %v\n", merger.config.FfmpegBinaryPath, args)

	if err := run(ctx, merger.config.FfmpegBinaryPath, args...); err != nil {
		merger.discard(outputPath)
		return err
	}

	if merger.config.VerifyOutput {
		summary, err := merger.probe(outputPath)
		if err != nil {
			merger.discard(outputPath)
			return &MergeError{ExitCode: -1, Err: fmt.Errorf("failed to verify merged output: %w", err)}
		}
		if summary.Video == 0 || summary.Audio == 0 {
			merger.discard(outputPath)
			return &MergeError{ExitCode: -1, Err: fmt.Errorf("%w (video=%d, audio=%d)", ErrIncompleteOutput, summary.Video, summary.Audio)}
		}
	}

	log.Emit(logger.SUCCESS, "Merged %s + %s -> %s\n", videoPath, audioPath, outputPath)
	return nil
}

// args builds the FFmpeg command line for a merge. The first video stream of
// the first input and the first audio stream of the second input are mapped
// to the output; video is passed through, audio is re-encoded.
func (merger *Merger) args(videoPath string, audioPath string, outputPath string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", merger.config.AudioCodec,
		outputPath,
	}
}

func (merger *Merger) discard(outputPath string) {
	if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.WARNING, "Failed to remove partial merge output %s: %v\n", outputPath, err)
	}
}
