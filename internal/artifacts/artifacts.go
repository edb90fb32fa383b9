// Package artifacts manages GCS objects scoped to a single load-test run.
// Every client owns a run-scoped root directory (<testRoot>/<runID>) so that
// concurrent runs against the same bucket never collide, and cleanup can
// delete everything under that root without touching other runs.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Artifact describes an object uploaded to the run's namespace.
type Artifact struct {
	// Name is the full object name within the bucket, e.g.
	// "avrotobigtable/3f2a.../input/schema.json".
	Name string
	// Bucket is the bucket holding the object.
	Bucket string
}

// Path returns the fully qualified gs:// path of the artifact.
func (a *Artifact) Path() string {
	return FullGcsPath(a.Bucket, a.Name)
}

// Client uploads and deletes artifacts under a run-scoped GCS root.
type Client struct {
	client   *storage.Client
	bucket   string
	testRoot string
	runID    string
	logger   *slog.Logger
}

// NewClient creates an artifact client rooted at <testRoot>/<runID> in the
// given bucket. The runID is freshly generated, so each client owns a unique
// namespace.
func NewClient(ctx context.Context, bucket, testRoot string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("artifact bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:   client,
		bucket:   bucket,
		testRoot: strings.Trim(testRoot, "/"),
		runID:    uuid.NewString(),
		logger:   logger.With("component", "artifacts"),
	}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// RunID returns the unique identifier of this run's namespace.
func (c *Client) RunID() string { return c.runID }

// RunRoot returns the object-name prefix owned by this run.
func (c *Client) RunRoot() string {
	return joinPath(c.testRoot, c.runID)
}

// RunPath composes a fully qualified gs:// path under the run root.
func (c *Client) RunPath(parts ...string) string {
	return FullGcsPath(c.bucket, append([]string{c.RunRoot()}, parts...)...)
}

// UploadArtifact copies a local file to destRelPath under the run root.
// The content is copied verbatim.
func (c *Client) UploadArtifact(ctx context.Context, destRelPath, localPath string) (*Artifact, error) {
	f, err := os.Open(localPath) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck

	name := joinPath(c.RunRoot(), destRelPath)
	w := c.client.Bucket(c.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, c.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize gs://%s/%s: %w", c.bucket, name, err)
	}

	c.logger.Info("artifact uploaded", "local", localPath, "object", name)
	return &Artifact{Name: name, Bucket: c.bucket}, nil
}

// UploadArtifacts uploads several files concurrently. Keys of files are
// destination paths relative to the run root, values are local paths.
// The first failure aborts the remaining uploads.
func (c *Client) UploadArtifacts(ctx context.Context, files map[string]string) (map[string]*Artifact, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([]*Artifact, len(files))
	dests := make([]string, 0, len(files))
	for dest := range files {
		dests = append(dests, dest)
	}
	for i, dest := range dests {
		i, dest := i, dest
		g.Go(func() error {
			a, err := c.UploadArtifact(ctx, dest, files[dest])
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*Artifact, len(files))
	for i, dest := range dests {
		out[dest] = results[i]
	}
	return out, nil
}

// Cleanup deletes every object under the run root and closes the client.
func (c *Client) Cleanup(ctx context.Context) error {
	prefix := c.RunRoot() + "/"
	it := c.client.Bucket(c.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var deleted int
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("list gs://%s/%s: %w", c.bucket, prefix, err)
		}
		if err := c.client.Bucket(c.bucket).Object(attrs.Name).Delete(ctx); err != nil {
			return fmt.Errorf("delete gs://%s/%s: %w", c.bucket, attrs.Name, err)
		}
		deleted++
	}
	c.logger.Info("run artifacts deleted", "prefix", prefix, "objects", deleted)
	return c.client.Close()
}

// FullGcsPath composes a "gs://bucket/a/b/c" path from a bucket name and
// path segments. Empty segments are skipped.
func FullGcsPath(bucket string, parts ...string) string {
	return "gs://" + joinPath(append([]string{bucket}, parts...)...)
}

// ParseGcsPath extracts bucket and object name from a gs:// URI.
func ParseGcsPath(path string) (bucket, name string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("parse GCS path %q: %w", path, err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("expected gs:// scheme, got %q in %q", u.Scheme, path)
	}
	bucket = u.Host
	name = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("empty bucket in GCS path %q", path)
	}
	return bucket, name, nil
}

// joinPath joins segments with single slashes, dropping empty segments and
// trimming stray slashes from each.
func joinPath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}
