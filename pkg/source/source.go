// Package source locates package archives. A reference is a local file or
// directory, an http(s) URL or an s3://bucket/key object; remote packages
// are downloaded into a cache directory keyed by the BLAKE3 hash of the
// reference.
package source

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/modman/pkg/archive"
	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"lukechampine.com/blake3"
)

// DefaultMaxSize bounds a download
const DefaultMaxSize = 64 << 20

// Scheme says where a package came from
type Scheme string

const (
	SchemeLocal Scheme = "file"
	SchemeHTTP  Scheme = "http"
	SchemeS3    Scheme = "s3"
)

// Package is a located package, ready to be opened
type Package struct {
	Ref    string
	Scheme Scheme
	// Path is the local file or directory holding the package
	Path   string
	Format archive.Format
	// Data holds the archive bytes; nil for directories
	Data []byte
	// Digest is the BLAKE3 hash of Data
	Digest string
	Cached bool
}

// ObjectGetter is the part of the S3 client used to download packages
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher resolves package references
type Fetcher struct {
	fs        types.FS
	cacheDir  string
	http      *http.Client
	s3        ObjectGetter
	s3Profile string
	maxSize   int64
	refresh   bool
	logger    zerolog.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.http = c } }

// WithS3Client sets the S3 client instead of loading the default config
func WithS3Client(c ObjectGetter) Option { return func(f *Fetcher) { f.s3 = c } }

// WithS3Profile selects the shared config profile for S3
func WithS3Profile(p string) Option { return func(f *Fetcher) { f.s3Profile = p } }

// WithMaxSize bounds downloads; zero keeps the default
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithRefresh ignores cached downloads
func WithRefresh(r bool) Option { return func(f *Fetcher) { f.refresh = r } }

// NewFetcher creates a fetcher caching downloads in cacheDir
func NewFetcher(fsys types.FS, cacheDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		fs:       fsys,
		cacheDir: cacheDir,
		http:     &http.Client{Timeout: 30 * time.Second},
		maxSize:  DefaultMaxSize,
		logger:   logging.GetLogger("source"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Digest returns the hex BLAKE3-256 hash of data
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// Fetch locates ref and loads it
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Package, error) {
	done := logging.LogOperationStart(f.logger, "source.fetch")
	defer done()

	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return f.local(ref)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.local(u.Path)
	case "http", "https":
		return f.remote(ctx, ref, SchemeHTTP, path.Base(u.Path), func() ([]byte, error) {
			return f.download(ctx, ref)
		})
	case "s3":
		bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
		if bucket == "" || key == "" {
			return nil, errors.Newf(errors.ErrInvalidInput, "s3 reference %s needs a bucket and a key", ref)
		}
		return f.remote(ctx, ref, SchemeS3, path.Base(key), func() ([]byte, error) {
			return f.getObject(ctx, bucket, key)
		})
	}
	return nil, errors.Newf(errors.ErrInvalidInput, "unsupported package reference scheme %q", u.Scheme)
}

func (f *Fetcher) local(p string) (*Package, error) {
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "package %s", p)
	}
	pkg := &Package{Ref: p, Scheme: SchemeLocal, Path: p}
	if info.IsDir() {
		pkg.Format = archive.FormatDirectory
		return pkg, nil
	}

	data, err := f.fs.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "read package %s", p)
	}
	return pkg, pkg.load(data)
}

func (p *Package) load(data []byte) error {
	format, err := archive.Detect(data)
	if err != nil {
		return err
	}
	p.Format, p.Data, p.Digest = format, data, Digest(data)
	return nil
}

// remote serves ref from the cache or downloads it with get
func (f *Fetcher) remote(ctx context.Context, ref string, scheme Scheme, name string, get func() ([]byte, error)) (*Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrSourceFetch, "fetch cancelled")
	}

	cached := filepath.Join(f.cacheDir, Digest([]byte(ref))[:32]+"-"+sanitizeName(name))
	pkg := &Package{Ref: ref, Scheme: scheme, Path: cached}

	if !f.refresh {
		if data, err := f.fs.ReadFile(cached); err == nil {
			if err := pkg.load(data); err == nil {
				pkg.Cached = true
				f.logger.Debug().Str("ref", ref).Str("path", cached).Msg("Using cached package")
				return pkg, nil
			}
			f.logger.Warn().Str("path", cached).Msg("Ignoring unreadable cached package")
		}
	}

	data, err := get()
	if err != nil {
		return nil, err
	}
	if err := pkg.load(data); err != nil {
		return nil, err
	}

	if err := f.fs.MkdirAll(f.cacheDir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileWrite, "create cache directory %s", f.cacheDir)
	}
	if err := f.fs.WriteFile(cached, data, 0644); err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileWrite, "cache package %s", cached)
	}

	f.logger.Info().
		Str("ref", ref).
		Str("size", logging.Size(len(data))).
		Str("digest", pkg.Digest[:16]).
		Msg("Downloaded package")
	return pkg, nil
}

func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == "/" {
		return "package"
	}
	return name
}

// readLimited reads at most max bytes and fails when the body is longer
func readLimited(r io.Reader, max int64, ref string) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, max+1))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSourceFetch, "read %s", ref)
	}
	if n > max {
		return nil, errors.Newf(errors.ErrSourceFetch, "%s is larger than %s", ref, logging.Size(int(max)))
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) download(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "bad url %s", ref)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSourceFetch, "download %s", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Newf(errors.ErrSourceFetch, "%s not found", ref).WithDetail("status", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrSourceFetch, "download %s: %s", ref, resp.Status).WithDetail("status", resp.StatusCode)
	}
	return readLimited(resp.Body, f.maxSize, ref)
}

func (f *Fetcher) getObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.s3 == nil {
		var opts []func(*config.LoadOptions) error
		if f.s3Profile != "" {
			opts = append(opts, config.WithSharedConfigProfile(f.s3Profile))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrSourceFetch, "load AWS configuration")
		}
		f.s3 = s3.NewFromConfig(cfg)
	}

	ref := "s3://" + bucket + "/" + key
	resp, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nosuchkey *s3types.NoSuchKey
		if stderrors.As(err, &nosuchkey) {
			return nil, errors.Newf(errors.ErrSourceFetch, "%s not found", ref).WithDetail("key", key)
		}
		return nil, errors.Wrapf(err, errors.ErrSourceFetch, "get %s", ref)
	}
	defer resp.Body.Close()

	if resp.ContentLength != nil && *resp.ContentLength > f.maxSize {
		return nil, errors.Newf(errors.ErrSourceFetch, "%s is larger than %s", ref, logging.Size(int(f.maxSize)))
	}
	return readLimited(resp.Body, f.maxSize, ref)
}
