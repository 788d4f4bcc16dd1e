// Package media wraps the Cloudinary upload API for the single purpose of
// pushing local video files to the media host. The host stores and transcodes
// the asset remotely; the returned URLs are permanent and not owned by this
// service.
package media

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/akimotok/clipcast/config"
)

// Asset is the durable result of a media upload.
type Asset struct {
	// SecureURL points at the original stored asset.
	SecureURL string
	// EagerURL points at the transcoded variant (bounding-box transform), if
	// the provider produced one.
	EagerURL string
}

// URL returns the best link for sharing: the transcoded variant when present,
// the original otherwise.
func (a Asset) URL() string {
	if a.EagerURL != "" {
		return a.EagerURL
	}
	return a.SecureURL
}

// UploadError wraps a provider-side failure with its message preserved for the
// requester. Callers must not let it crash the host process.
type UploadError struct {
	Msg string
	Err error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media upload: %s: %v", e.Msg, e.Err)
	}
	return "media upload: " + e.Msg
}

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader pushes a local file to the media host and returns its durable URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (Asset, error)
}

// Client is the Cloudinary-backed Uploader.
type Client struct {
	cld       *cloudinary.Cloudinary
	transform string
}

// NewClient builds a Client from configuration. Requires media credentials
// (see Config.ValidateMediaReady).
func NewClient(cfg *config.Config) (*Client, error) {
	if err := cfg.ValidateMediaReady(); err != nil {
		return nil, err
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	return &Client{cld: cld, transform: cfg.UploadTransform}, nil
}

// Upload sends the file at localPath as a video asset, requesting the
// configured eager transform. The file must exist and be readable at call
// time; this is checked before the provider is contacted.
func (c *Client) Upload(ctx context.Context, localPath string) (Asset, error) {
	if _, err := os.Stat(localPath); err != nil {
		return Asset{}, &UploadError{Msg: "local file not readable", Err: err}
	}

	res, err := c.cld.Upload.Upload(ctx, localPath, uploader.UploadParams{
		ResourceType: "video",
		Eager:        c.transform,
	})
	if err != nil {
		return Asset{}, &UploadError{Msg: "provider call failed", Err: err}
	}
	// Cloudinary reports some failures in the response body with a nil error.
	if res.Error.Message != "" {
		return Asset{}, &UploadError{Msg: res.Error.Message}
	}
	if res.SecureURL == "" {
		return Asset{}, &UploadError{Msg: "provider returned empty url"}
	}

	asset := Asset{SecureURL: res.SecureURL}
	if len(res.Eager) > 0 {
		asset.EagerURL = res.Eager[0].SecureURL
	}
	return asset, nil
}
