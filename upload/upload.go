// Package upload orchestrates the life of a single request: stage the incoming
// stream to a temp file, push it to the media host, relay the resulting URL to
// the destination channel, and clean up. The temp file's lifetime is bounded by
// the request: it is removed on every exit path, including mid-flight failures.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akimotok/clipcast/channels"
	"github.com/akimotok/clipcast/media"
	"github.com/akimotok/clipcast/relay"
	"github.com/akimotok/clipcast/telemetry"
)

// ValidationError rejects a request before any staging or external call.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid request: %s: %v", e.Msg, e.Err)
	}
	return "invalid request: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Sender delivers a formatted message to a chat id. Satisfied by *relay.Relay.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Request is one transient upload-and-relay job.
type Request struct {
	Filename    string
	Body        io.Reader
	Title       string
	Destination string
	Author      string
}

// Result reports a completed job.
type Result struct {
	URL     string
	ChatID  int64
	Message string
}

// Pipeline wires the upload client, relay, and destination resolver.
type Pipeline struct {
	Uploader media.Uploader
	Sender   Sender
	Resolver *channels.Resolver

	// DataDir is the staging area for temp files.
	DataDir string
	// Timeout bounds the outbound media-host call.
	Timeout time.Duration
}

// Run executes one request: validate, stage, upload, relay. Validation happens
// before the temp file is created and before any external call; staging,
// upload, relay, and cleanup are strictly sequential. The staged file is
// removed whichever way the request ends.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	log := telemetry.LoggerWithCorr(ctx)

	if req.Body == nil {
		telemetry.Inc(telemetry.RequestsRejected)
		return Result{}, &ValidationError{Msg: "no file part"}
	}
	if strings.TrimSpace(req.Filename) == "" {
		telemetry.Inc(telemetry.RequestsRejected)
		return Result{}, &ValidationError{Msg: "empty filename"}
	}
	chatID, err := p.Resolver.Resolve(req.Destination)
	if err != nil {
		telemetry.Inc(telemetry.RequestsRejected)
		return Result{}, &ValidationError{Msg: "unresolvable destination", Err: err}
	}

	path, size, err := p.stage(req.Filename, req.Body)
	if err != nil {
		return Result{}, fmt.Errorf("stage upload: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove staged file", slog.String("path", path), slog.Any("err", err))
		}
	}()
	if telemetry.StagedBytes != nil {
		telemetry.StagedBytes.Observe(float64(size))
	}
	log.Debug("staged upload", slog.String("path", path), slog.Int64("bytes", size))

	uctx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	uctx, span := telemetry.StartSpan(uctx, "upload", "media.upload")
	telemetry.Inc(telemetry.UploadsStarted)
	var asset media.Asset
	telemetry.TimeFunc(telemetry.UploadDuration, func() {
		asset, err = p.Uploader.Upload(uctx, path)
	})
	if err != nil {
		telemetry.Inc(telemetry.UploadsFailed)
		telemetry.RecordError(span, err)
		span.End()
		return Result{}, err
	}
	telemetry.Inc(telemetry.UploadsSucceeded)
	telemetry.SetSpanSuccess(span)
	span.End()

	text := relay.Format(req.Author, strings.TrimSpace(req.Title), asset.URL())
	if err := p.Sender.Send(ctx, chatID, text); err != nil {
		log.Error("relay failed", slog.Int64("chat_id", chatID), slog.Any("err", err))
		return Result{}, err
	}

	log.Info("upload relayed", slog.Int64("chat_id", chatID), slog.String("url", asset.URL()))
	return Result{URL: asset.URL(), ChatID: chatID, Message: text}, nil
}

// stage copies the request body into a uuid-named file under DataDir. Only the
// original extension is kept; the client-supplied name never touches the disk
// path.
func (p *Pipeline) stage(filename string, body io.Reader) (string, int64, error) {
	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return "", 0, err
	}
	ext := filepath.Ext(filepath.Base(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	path := filepath.Join(p.DataDir, uuid.New().String()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("failed to remove partial staged file", slog.String("path", path), slog.Any("err", rmErr))
		}
		return "", 0, err
	}
	return path, size, nil
}
