package ffmpeg

import (
	"fmt"

	"github.com/floostack/transcoder/ffmpeg"
)

// StreamSummary counts the streams of each kind found in a media file.
type StreamSummary struct {
	Video int
	Audio int
	Other int
}

// ProbeFile uses ffprobe to count the video and audio streams in the file at path.
func ProbeFile(path string, ffprobeBinPath string) (StreamSummary, error) {
	cfg := ffmpeg.Config{FfprobeBinPath: ffprobeBinPath}
	transcoder := ffmpeg.New(&cfg).Input(path)
	metadata, err := transcoder.GetMetadata()
	if err != nil {
		return StreamSummary{}, fmt.Errorf("failed to extract file metadata information using ffprobe: %s", err.Error())
	}

	summary := StreamSummary{}
	for _, stream := range metadata.GetStreams() {
		switch stream.GetCodecType() {
		case "video":
			summary.Video++
		case "audio":
			summary.Audio++
		default:
			summary.Other++
		}
	}

	return summary, nil
}
