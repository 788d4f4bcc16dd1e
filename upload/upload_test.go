package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/akimotok/clipcast/channels"
	"github.com/akimotok/clipcast/media"
	"github.com/akimotok/clipcast/relay"
	"github.com/akimotok/clipcast/testutil"
)

func newTestPipeline(t *testing.T, up *testutil.MockUploader, sender *testutil.MockSender) *Pipeline {
	t.Helper()
	return &Pipeline{
		Uploader: up,
		Sender:   sender,
		Resolver: channels.NewResolver(map[string]int64{"good": -100111, "b2b": -100222}),
		DataDir:  t.TempDir(),
		Timeout:  5 * time.Second,
	}
}

func TestRunSuccess(t *testing.T) {
	up := &testutil.MockUploader{Asset: media.Asset{SecureURL: "X"}}
	sender := &testutil.MockSender{}
	p := newTestPipeline(t, up, sender)

	res, err := p.Run(context.Background(), Request{
		Filename:    "clip.mp4",
		Body:        strings.NewReader("video-bytes"),
		Title:       "Great play",
		Destination: "good",
		Author:      "RequesterName",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.URL != "X" {
		t.Errorf("url = %q", res.URL)
	}
	if res.ChatID != -100111 {
		t.Errorf("chat id = %d", res.ChatID)
	}
	if up.Calls() != 1 {
		t.Errorf("upload calls = %d, want 1", up.Calls())
	}
	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("relay calls = %d, want 1", len(sent))
	}
	if sent[0].Text != "[RequesterName - Great play](X)" {
		t.Errorf("relayed text = %q", sent[0].Text)
	}
	if sent[0].ChatID != -100111 {
		t.Errorf("relayed chat id = %d", sent[0].ChatID)
	}
}

func TestRunEagerVariantPreferred(t *testing.T) {
	up := &testutil.MockUploader{Asset: media.Asset{SecureURL: "orig", EagerURL: "eager"}}
	sender := &testutil.MockSender{}
	p := newTestPipeline(t, up, sender)

	res, err := p.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("v"), Destination: "good"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.URL != "eager" {
		t.Errorf("url = %q, want eager variant", res.URL)
	}
}

func TestRunRejectsBeforeExternalCalls(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"missing file part", Request{Filename: "clip.mp4", Destination: "good"}},
		{"empty filename", Request{Filename: "  ", Body: strings.NewReader("v"), Destination: "good"}},
		{"unknown destination", Request{Filename: "clip.mp4", Body: strings.NewReader("v"), Destination: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &testutil.MockUploader{Asset: media.Asset{SecureURL: "X"}}
			sender := &testutil.MockSender{}
			p := newTestPipeline(t, up, sender)

			_, err := p.Run(context.Background(), tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if up.Calls() != 0 {
				t.Errorf("upload called %d times on rejected request", up.Calls())
			}
			if len(sender.Sent()) != 0 {
				t.Errorf("relay called on rejected request")
			}
		})
	}
}

func TestRunUnknownDestinationWrapsResolverError(t *testing.T) {
	p := newTestPipeline(t, &testutil.MockUploader{}, &testutil.MockSender{})
	_, err := p.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("v"), Destination: "nope"})
	if !errors.Is(err, channels.ErrUnknownDestination) {
		t.Fatalf("expected ErrUnknownDestination in chain, got %v", err)
	}
}

func TestRunCleansTempOnSuccess(t *testing.T) {
	up := &testutil.MockUploader{Asset: media.Asset{SecureURL: "X"}}
	p := newTestPipeline(t, up, &testutil.MockSender{})

	if _, err := p.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("v"), Destination: "good"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if up.LastPath == "" {
		t.Fatal("uploader never saw a staged path")
	}
	if _, err := os.Stat(up.LastPath); !os.IsNotExist(err) {
		t.Errorf("staged file %s still exists after success", up.LastPath)
	}
}

func TestRunCleansTempOnUploadFailure(t *testing.T) {
	up := &testutil.MockUploader{Err: &media.UploadError{Msg: "quota exceeded"}}
	sender := &testutil.MockSender{}
	p := newTestPipeline(t, up, sender)

	_, err := p.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("v"), Destination: "good"})
	var ue *media.UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *media.UploadError, got %v", err)
	}
	if _, err := os.Stat(up.LastPath); !os.IsNotExist(err) {
		t.Errorf("staged file %s still exists after upload failure", up.LastPath)
	}
	if len(sender.Sent()) != 0 {
		t.Error("relay called after failed upload")
	}
}

func TestRunCleansTempOnRelayFailure(t *testing.T) {
	up := &testutil.MockUploader{Asset: media.Asset{SecureURL: "X"}}
	sender := &testutil.MockSender{Err: &relay.ChannelError{ChatID: -100111, Msg: "chat not found"}}
	p := newTestPipeline(t, up, sender)

	_, err := p.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("v"), Destination: "good"})
	var ce *relay.ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *relay.ChannelError, got %v", err)
	}
	if _, err := os.Stat(up.LastPath); !os.IsNotExist(err) {
		t.Errorf("staged file %s still exists after relay failure", up.LastPath)
	}
	if up.Calls() != 1 {
		t.Errorf("upload calls = %d, want exactly 1", up.Calls())
	}
}

func TestRunOmitsAbsentSegments(t *testing.T) {
	up := &testutil.MockUploader{Asset: media.Asset{SecureURL: "X"}}
	sender := &testutil.MockSender{}
	p := newTestPipeline(t, up, sender)

	// no title: the title segment is dropped, not rendered empty
	if _, err := p.Run(context.Background(), Request{Filename: "c.mp4", Body: strings.NewReader("v"), Destination: "b2b", Author: "Someone"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	sent := sender.Sent()
	if sent[0].Text != "[Someone](X)" {
		t.Errorf("relayed text = %q", sent[0].Text)
	}
	if strings.Contains(sent[0].Text, "None") || strings.Contains(sent[0].Text, "[]") {
		t.Errorf("degraded formatting leaked placeholders: %q", sent[0].Text)
	}
}

func TestStageKeepsOnlyExtension(t *testing.T) {
	p := &Pipeline{DataDir: t.TempDir()}
	path, size, err := p.stage("../../evil name.mp4", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })
	if size != 3 {
		t.Errorf("size = %d", size)
	}
	if filepath.Dir(path) != p.DataDir {
		t.Errorf("staged outside data dir: %s", path)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Errorf("extension lost: %s", path)
	}
	base := strings.TrimSuffix(filepath.Base(path), ".mp4")
	if strings.Contains(base, "evil") {
		t.Errorf("client filename leaked into path: %s", path)
	}
}
