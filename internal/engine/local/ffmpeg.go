package local

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// encodeJob is one ffmpeg invocation: a looping background clip composited
// with caption overlay frames read from stdin. The card sits centered
// horizontally, outerPadding above the bottom edge.
type encodeJob struct {
	Source           string
	Width, Height    int
	FPS              int
	DurationInFrames int
	OverlayWidth     int
	OverlayHeight    int
	OutputPath       string
}

func (j encodeJob) args() []string {
	w, h := strconv.Itoa(j.Width), strconv.Itoa(j.Height)
	fps := strconv.Itoa(j.FPS)

	filter := strings.Join([]string{
		"[0:v]scale=" + w + ":" + h + ":force_original_aspect_ratio=increase",
		"crop=" + w + ":" + h,
		"setsar=1",
		"fps=" + fps,
		"drawbox=x=0:y=0:w=iw:h=ih:color=black@0.3:t=fill[bg]",
	}, ",") + ";[bg][1:v]overlay=x=(W-w)/2:y=H-h-" + strconv.Itoa(outerPadding) + ":format=auto,format=yuv420p[out]"

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-stream_loop", "-1",
		"-i", j.Source,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", j.OverlayWidth, j.OverlayHeight),
		"-r", fps,
		"-i", "pipe:0",
		"-filter_complex", filter,
		"-map", "[out]",
		"-an",
		"-frames:v", strconv.Itoa(j.DurationInFrames),
		"-r", fps,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		j.OutputPath,
	}
}

// sourceFor turns a media URL into an ffmpeg input. file URLs become plain
// paths; http(s) URLs are passed through.
func sourceFor(videoURL string) (string, error) {
	u, err := url.Parse(videoURL)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		if u.Path == "" {
			return "", fmt.Errorf("file url without path: %q", videoURL)
		}
		return u.Path, nil
	case "http", "https":
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported video url scheme %q", u.Scheme)
	}
}

// lastLines keeps the last n lines written to it.
type lastLines struct {
	mu      sync.Mutex
	partial bytes.Buffer
	lines   []string
	next    int
	full    bool
}

func newLastLines(n int) *lastLines {
	return &lastLines{lines: make([]string, n)}
}

func (l *lastLines) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.partial.Write(p)
	for {
		b := l.partial.Bytes()
		i := bytes.IndexAny(b, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(b[:i])); line != "" {
			l.add(line)
		}
		l.partial.Next(i + 1)
	}
	return len(p), nil
}

func (l *lastLines) add(line string) {
	l.lines[l.next] = line
	l.next = (l.next + 1) % len(l.lines)
	if l.next == 0 {
		l.full = true
	}
}

// String returns the buffered lines oldest first, including any trailing
// line without a newline.
func (l *lastLines) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	if l.full {
		out = append(out, l.lines[l.next:]...)
	}
	out = append(out, l.lines[:l.next]...)
	if rest := strings.TrimSpace(l.partial.String()); rest != "" {
		out = append(out, rest)
	}
	return strings.Join(out, "\n")
}
