package postprocessor

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
)

// Options configura el procesador FFmpeg
type Options struct {
	FFmpegPath    string
	FFprobePath   string
	MaxConcurrent int // 0 = sin límite
}

// FFmpegProcessor implementa Transcoder y Prober con FFmpeg
type FFmpegProcessor struct {
	ffmpeg  string
	ffprobe string
	sem     *semaphore.Weighted
}

// Compiletime check
var (
	_ Transcoder = (*FFmpegProcessor)(nil)
	_ Prober     = (*FFmpegProcessor)(nil)
)

// NewFFmpegProcessor crea un nuevo procesador FFmpeg
func NewFFmpegProcessor(opts Options) *FFmpegProcessor {
	f := &FFmpegProcessor{
		ffmpeg:  opts.FFmpegPath,
		ffprobe: opts.FFprobePath,
	}
	if f.ffmpeg == "" {
		f.ffmpeg = "ffmpeg"
	}
	if f.ffprobe == "" {
		f.ffprobe = "ffprobe"
	}
	if opts.MaxConcurrent > 0 {
		f.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return f
}

// VideoInfo contiene información del video
type VideoInfo struct {
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	Duration   float64
	Bitrate    int64
	HasVideo   bool
	HasAudio   bool
}

// NeedsConversion implementa Transcoder.NeedsConversion
func (f *FFmpegProcessor) NeedsConversion(inputPath string) bool {
	return !IsPassthrough(inputPath)
}

// Convert convierte a H.264/AAC con faststart. Si tiene éxito el archivo
// original se elimina; si falla se conserva y se borra la salida parcial.
func (f *FFmpegProcessor) Convert(ctx context.Context, inputPath string) (string, error) {
	outputPath := OutputPath(inputPath)
	if outputPath == inputPath {
		return "", fmt.Errorf("convert %s: input is already mp4", inputPath)
	}

	if f.sem != nil {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("wait for transcode slot: %w", err)
		}
		defer f.sem.Release(1)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart", // Optimizar para streaming
		outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpeg, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, output)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}

	if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove original: %w", err)
	}

	return outputPath, nil
}

// Probe obtiene información del video usando ffprobe
func (f *FFmpegProcessor) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, f.ffprobe, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	if !gjson.ValidBytes(output) {
		return nil, fmt.Errorf("parse ffprobe output: invalid json")
	}

	return parseProbe(output), nil
}

func parseProbe(output []byte) *VideoInfo {
	info := &VideoInfo{
		Duration: gjson.GetBytes(output, "format.duration").Float(),
		Bitrate:  gjson.GetBytes(output, "format.bit_rate").Int(),
	}

	if video := gjson.GetBytes(output, `streams.#(codec_type=="video")`); video.Exists() {
		info.HasVideo = true
		info.VideoCodec = video.Get("codec_name").String()
		info.Width = int(video.Get("width").Int())
		info.Height = int(video.Get("height").Int())
	}

	if audio := gjson.GetBytes(output, `streams.#(codec_type=="audio")`); audio.Exists() {
		info.HasAudio = true
		info.AudioCodec = audio.Get("codec_name").String()
	}

	return info
}

// CheckFFmpegInstalled verifica que FFmpeg esté instalado
func (f *FFmpegProcessor) CheckFFmpegInstalled() error {
	if err := exec.Command(f.ffmpeg, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found: %w (install: sudo apt install ffmpeg)", err)
	}
	if err := exec.Command(f.ffprobe, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found: %w (install: sudo apt install ffmpeg)", err)
	}
	return nil
}
