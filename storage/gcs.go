package storage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/client"
)

const DefaultPublicBaseURL = "https://firebasestorage.googleapis.com"

type GCSConfig struct {
	// Client is bound to the storage API root, e.g.
	// https://storage.googleapis.com, with a storage-scoped token source.
	Client *client.Client

	// PublicBaseURL prefixes the returned media URLs.
	PublicBaseURL string

	// MakePublic grants allUsers read access after each upload.
	MakePublic bool

	Logger *slog.Logger
}

// GCS uploads through the JSON API media endpoint.
type GCS struct {
	client     *client.Client
	publicBase string
	makePublic bool
	logger     *slog.Logger
}

var _ Uploader = &GCS{}

func NewGCS(cfg GCSConfig) (*GCS, error) {
	if cfg.Client == nil {
		return nil, ErrClientMissing
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = DefaultPublicBaseURL
	}
	return &GCS{
		client:     cfg.Client,
		publicBase: publicBase,
		makePublic: cfg.MakePublic,
		logger:     cfg.Logger.WithGroup("gcs"),
	}, nil
}

func (g *GCS) Upload(ctx context.Context, target blob.Target, data []byte) (string, error) {
	if err := validate(target); err != nil {
		return "", err
	}
	mediaType := target.MediaType
	if mediaType == "" {
		mediaType = blob.OctetStream
	}

	_, err := g.client.Do(ctx, client.Request{
		Method:      http.MethodPost,
		Path:        "upload/storage/v1/b/" + url.PathEscape(target.Bucket) + "/o",
		Query:       url.Values{"uploadType": {"media"}, "name": {target.Path}},
		ContentType: mediaType,
		Body:        data,
	})
	if err != nil {
		uerr := &UploadError{Bucket: target.Bucket, Path: target.Path, Err: err}
		var se *client.StatusError
		if errors.As(err, &se) {
			uerr.Status = se.StatusCode
			uerr.Body = se.Body
		}
		g.logger.Warn("upload failed", "bucket", target.Bucket, "path", target.Path, "status", uerr.Status, "error", err)
		return "", uerr
	}

	if g.makePublic {
		g.publish(ctx, target)
	}

	g.logger.Debug("uploaded", "bucket", target.Bucket, "path", target.Path, "bytes", len(data))
	return MediaURL(g.publicBase, target.Bucket, target.Path), nil
}

// publish grants public read. Failure only costs a log line: the media URL
// stays usable with a download token.
func (g *GCS) publish(ctx context.Context, target blob.Target) {
	err := g.client.Exec(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "storage/v1/b/" + url.PathEscape(target.Bucket) + "/o/" + url.PathEscape(target.Path) + "/acl",
		JSON:   map[string]string{"entity": "allUsers", "role": "READER"},
	})
	if err != nil {
		g.logger.Warn("could not make object public", "bucket", target.Bucket, "path", target.Path, "error", err)
	}
}

// MediaURL is the retrievable URL of an object, keyed by bucket and the
// escaped object path.
func MediaURL(publicBase, bucket, path string) string {
	return strings.TrimRight(publicBase, "/") + "/v0/b/" + bucket + "/o/" + url.PathEscape(path) + "?alt=media"
}
