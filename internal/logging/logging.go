// Package logging wires up structured logging: log/slog with its
// default text handler, used pervasively throughout the codebase
// (slog.Info, slog.Warn, slog.Error with attribute pairs), never a
// custom JSON or third-party logging library. It adds one thing a
// single stderr-only binary never needed: writing to both stderr and a
// rotating daily file, since a long-running server process needs its
// logs on disk. File rotation has no off-the-shelf dependency reached
// for elsewhere in this codebase, so it's a small hand-rolled
// io.Writer here rather than an ecosystem pull-in for ~40 lines.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tradingengine/internal/infra"
)

// dailyFile is an io.Writer that reopens a new file named
// app_YYYYMMDD.log (UTC) whenever the date rolls over.
type dailyFile struct {
	mu      sync.Mutex
	dir     string
	day     string
	current *os.File
}

func newDailyFile(dir string) (*dailyFile, error) {
	if err := infra.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}
	df := &dailyFile{dir: dir}
	if err := df.rotate(time.Now().UTC()); err != nil {
		return nil, err
	}
	return df, nil
}

func (df *dailyFile) rotate(now time.Time) error {
	day := now.Format("20060102")
	f, err := os.OpenFile(filepath.Join(df.dir, "app_"+day+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}
	if df.current != nil {
		df.current.Close()
	}
	df.current = f
	df.day = day
	return nil
}

func (df *dailyFile) Write(p []byte) (int, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	now := time.Now().UTC()
	if now.Format("20060102") != df.day {
		if err := df.rotate(now); err != nil {
			return 0, err
		}
	}
	return df.current.Write(p)
}

func (df *dailyFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if df.current != nil {
		return df.current.Close()
	}
	return nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// Setup builds and installs the default slog.Logger, writing to both
// stderr and a daily-rotating file under dir. It returns a closer that
// must run on shutdown. An empty dir disables the file sink and logs to
// stderr only (used by tests).
func Setup(dir string, level slog.Level) (io.Closer, error) {
	if dir == "" {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))
		return noopCloser{}, nil
	}

	df, err := newDailyFile(dir)
	if err != nil {
		return nil, err
	}
	writer := io.MultiWriter(os.Stderr, df)
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return df, nil
}
