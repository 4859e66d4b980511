// Package media serves stored clip bytes with HTTP byte-range semantics.
package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/observability/metrics"
)

const (
	componentName = "media"

	// ContentType is the only media type clips are served as.
	ContentType = "video/mp4"

	contentRangeKey = "content_range"
)

// safeFilenamePattern defines the acceptable characters for clip filenames
var safeFilenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

// Source resolves and fetches clip objects. *clips.Catalog implements it.
type Source interface {
	Lookup(ctx context.Context, name string) (clips.Object, error)
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Response is a fully materialised HTTP response for a clip request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type cachedClip struct {
	modified time.Time
	size     int64
	data     []byte
}

// Server answers clip byte requests.
type Server struct {
	source  Source
	cache   *cache.Cache
	group   singleflight.Group
	metrics *metrics.MediaMetrics
	log     logger.Logger
}

// NewServer creates a media server. A zero ttl disables the byte cache.
func NewServer(source Source, ttl time.Duration, m *metrics.MediaMetrics, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		source:  source,
		metrics: m,
		log:     log.Module(componentName),
	}
	if ttl > 0 {
		s.cache = cache.New(ttl, ttl*2)
	}
	return s
}

// Invalidate evicts cached content for the given object names.
func (s *Server) Invalidate(names ...string) {
	if s.cache == nil {
		return
	}
	for _, name := range names {
		s.cache.Delete(name)
	}
}

// Serve answers a request for the clip object name with an optional Range header.
func (s *Server) Serve(ctx context.Context, name, rangeHeader string) (*Response, error) {
	name, err := cleanName(name)
	if err != nil {
		s.metrics.RecordRequest("not_found", 0)
		return nil, err
	}

	obj, err := s.source.Lookup(ctx, name)
	if err != nil {
		s.metrics.RecordRequest(statusLabel(err), 0)
		return nil, err
	}

	data, err := s.content(ctx, obj)
	if err != nil {
		s.metrics.RecordRequest(statusLabel(err), 0)
		return nil, err
	}

	resp, err := buildResponse(data, rangeHeader)
	if err != nil {
		s.log.Debug("unsatisfiable range",
			logger.String("clip", name),
			logger.String("range", rangeHeader),
			logger.Int("length", len(data)))
		s.metrics.RecordRequest("invalid_range", 0)
		return nil, err
	}

	if resp.Status == http.StatusPartialContent {
		s.metrics.RecordRequest("partial", len(resp.Body))
	} else {
		s.metrics.RecordRequest("full", len(resp.Body))
	}
	return resp, nil
}

// content returns the object bytes, from cache when the stored object is unchanged.
func (s *Server) content(ctx context.Context, obj clips.Object) ([]byte, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(obj.Name); ok {
			if c, ok := v.(*cachedClip); ok && c.modified.Equal(obj.LastModified) && c.size == obj.Size {
				s.metrics.RecordCache(true)
				return c.data, nil
			}
		}
		s.metrics.RecordCache(false)
	}

	v, err, _ := s.group.Do(obj.Name, func() (any, error) {
		data, err := s.source.Fetch(ctx, obj.Name)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.SetDefault(obj.Name, &cachedClip{
				modified: obj.LastModified,
				size:     obj.Size,
				data:     data,
			})
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func buildResponse(data []byte, rangeHeader string) (*Response, error) {
	length := int64(len(data))
	header := http.Header{}
	header.Set("Content-Type", ContentType)
	header.Set("Accept-Ranges", "bytes")

	if rangeHeader == "" {
		header.Set("Content-Length", strconv.FormatInt(length, 10))
		return &Response{Status: http.StatusOK, Header: header, Body: data}, nil
	}

	r, ok := parseRange(rangeHeader, length)
	if !ok {
		return nil, errors.Newf("range %q not satisfiable for %d bytes", rangeHeader, length).
			Component(componentName).
			Category(errors.CategoryInvalidRange).
			Context("range", rangeHeader).
			Context(contentRangeKey, fmt.Sprintf("bytes */%d", length)).
			Build()
	}

	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, length))
	header.Set("Content-Length", strconv.FormatInt(r.length(), 10))
	return &Response{
		Status: http.StatusPartialContent,
		Header: header,
		Body:   data[r.start : r.end+1],
	}, nil
}

// UnsatisfiedContentRange returns the "bytes */L" Content-Range value carried
// by an invalid range error.
func UnsatisfiedContentRange(err error) (string, bool) {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return "", false
	}
	v, ok := ee.GetContext()[contentRangeKey].(string)
	return v, ok
}

// cleanName unescapes a requested filename and rejects anything that is not a
// plain file name.
func cleanName(raw string) (string, error) {
	name, err := url.PathUnescape(raw)
	if err != nil || name == "" || !safeFilenamePattern.MatchString(name) || name[0] == '.' {
		return "", errors.Newf("invalid clip filename %q", raw).
			Component(componentName).
			Category(errors.CategoryNotFound).
			Context("filename", raw).
			Build()
	}
	return name, nil
}

func statusLabel(err error) string {
	if errors.IsNotFound(err) {
		return "not_found"
	}
	return "error"
}
