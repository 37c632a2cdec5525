package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png" // frame decoding
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rere-player/internal/logging"
)

// Recorder renders a sub-range of a source into a container.
type Recorder interface {
	// Formats returns the muxers and encoders available.
	Formats(ctx context.Context) (muxers, encoders map[string]bool, err error)
	// Record seeks input to start and writes length seconds to w.
	Record(ctx context.Context, input string, start, length float64, f Format, w io.Writer) error
}

// FrameGrabber decodes a single frame at a position.
type FrameGrabber interface {
	GrabFrame(ctx context.Context, input string, at float64) (image.Image, error)
}

// MediaInfo is what ffprobe reports about a source.
type MediaInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
}

// FFmpeg drives the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string

	processes map[string]*exec.Cmd
	processMu sync.Mutex

	formatsOnce sync.Once
	muxers      map[string]bool
	encoders    map[string]bool
	formatsErr  error
}

// NewFFmpeg resolves the binaries. Empty paths fall back to PATH lookup.
// A missing ffmpeg is not an error here; every operation reports
// ErrCaptureUnsupported instead.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	f := &FFmpeg{processes: make(map[string]*exec.Cmd)}
	if p, err := exec.LookPath(ffmpegPath); err == nil {
		f.ffmpegPath = p
	} else {
		logging.Warn("ffmpeg not found (%s): segment export and snapshots disabled", ffmpegPath)
	}
	if p, err := exec.LookPath(ffprobePath); err == nil {
		f.ffprobePath = p
	}
	return f
}

// Available reports whether ffmpeg was found.
func (f *FFmpeg) Available() bool {
	return f.ffmpegPath != ""
}

// Formats implements Recorder. The probe runs once.
func (f *FFmpeg) Formats(ctx context.Context) (map[string]bool, map[string]bool, error) {
	if !f.Available() {
		return nil, nil, ErrCaptureUnsupported
	}
	f.formatsOnce.Do(func() {
		var out []byte
		out, f.formatsErr = exec.CommandContext(ctx, f.ffmpegPath, "-hide_banner", "-muxers").Output()
		if f.formatsErr != nil {
			return
		}
		f.muxers = parseCapabilityList(out, "--")

		out, f.formatsErr = exec.CommandContext(ctx, f.ffmpegPath, "-hide_banner", "-encoders").Output()
		if f.formatsErr != nil {
			return
		}
		f.encoders = parseCapabilityList(out, "------")
		logging.Debug("ffmpeg supports %d muxers and %d encoders", len(f.muxers), len(f.encoders))
	})
	if f.formatsErr != nil {
		return nil, nil, fmt.Errorf("%w: probing ffmpeg failed: %v", ErrCaptureUnsupported, f.formatsErr)
	}
	return f.muxers, f.encoders, nil
}

// parseCapabilityList reads the name column of `ffmpeg -muxers` or
// `ffmpeg -encoders` output following the separator line.
func parseCapabilityList(out []byte, separator string) map[string]bool {
	names := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	body := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !body {
			body = line == separator
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

func ffTime(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// recordArgs builds the ffmpeg command line. -ss before -i seeks the
// input, and ffmpeg decodes accurately to the exact start when
// re-encoding.
func recordArgs(input string, start, length float64, f Format) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", ffTime(start),
		"-i", input,
		"-t", ffTime(length),
		"-map", "0:v?", "-map", "0:a?",
	}
	if f.VideoCodec != "" {
		args = append(args, "-c:v", f.VideoCodec)
	}
	if f.AudioCodec != "" {
		args = append(args, "-c:a", f.AudioCodec)
	}
	if f.Container == "mp4" {
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	return append(args, "-f", f.Container, "pipe:1")
}

func (f *FFmpeg) run(ctx context.Context, key string, args []string, w io.Writer) error {
	if !f.Available() {
		return ErrCaptureUnsupported
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr

	f.processMu.Lock()
	f.processes[key] = cmd
	f.processMu.Unlock()

	defer func() {
		f.processMu.Lock()
		delete(f.processes, key)
		f.processMu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Error("FFmpeg stderr: %s", stderr.String())
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// Record implements Recorder.
func (f *FFmpeg) Record(ctx context.Context, input string, start, length float64, format Format, w io.Writer) error {
	key := "record:" + uuid.NewString()
	return f.run(ctx, key, recordArgs(input, start, length, format), w)
}

// GrabFrame implements FrameGrabber.
func (f *FFmpeg) GrabFrame(ctx context.Context, input string, at float64) (image.Image, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", ffTime(at),
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe", "-c:v", "png",
		"pipe:1",
	}
	var out bytes.Buffer
	if err := f.run(ctx, "frame:"+uuid.NewString(), args, &out); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// ffprobeOutput is the subset of `ffprobe -print_format json` we read.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads duration and video dimensions of a source.
func (f *FFmpeg) Probe(ctx context.Context, input string) (*MediaInfo, error) {
	if f.ffprobePath == "" {
		return nil, ErrCaptureUnsupported
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	info := &MediaInfo{}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			info.Codec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	return info, nil
}

// Cleanup stops all running ffmpeg processes.
func (f *FFmpeg) Cleanup() {
	f.processMu.Lock()
	defer f.processMu.Unlock()

	for key, cmd := range f.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process %s", key)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process %s: %v", key, err)
			}
		}
	}
}

// Running returns the number of active ffmpeg processes.
func (f *FFmpeg) Running() int {
	f.processMu.Lock()
	defer f.processMu.Unlock()
	return len(f.processes)
}
