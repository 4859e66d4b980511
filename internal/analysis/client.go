package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/httpclient"
	"github.com/DeGirum/face-recognition/internal/logger"
)

const findFacesPath = "/v1/find_faces"

type findFacesRequest struct {
	Clip          string `json:"clip"`
	SaveAnnotated bool   `json:"save_annotated"`
}

type findFacesResponse struct {
	Faces []Face `json:"faces"`
}

// Client calls a face analysis engine over HTTP. The engine reads clips from
// the shared clip directory and writes annotated variants next to them.
type Client struct {
	baseURL string
	http    *httpclient.Client
	log     logger.Logger
}

// NewClient creates an engine client from settings.
func NewClient(settings conf.AnalysisSettings, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(settings.URL, "/"),
		http: httpclient.New(&httpclient.Config{
			DefaultTimeout: settings.Timeout,
			Component:      componentName,
		}),
		log: log.Module(componentName),
	}
}

// HTTPClient exposes the transport for tests.
func (c *Client) HTTPClient() *httpclient.Client {
	return c.http
}

// FindFacesInClip implements Engine.
func (c *Client) FindFacesInClip(ctx context.Context, name string, opts Options) (FaceMap, error) {
	start := time.Now()

	var resp findFacesResponse
	err := c.http.PostJSON(ctx, c.baseURL+findFacesPath, findFacesRequest{Clip: name, SaveAnnotated: opts.SaveAnnotated}, &resp)
	if err != nil {
		return nil, errors.New(fmt.Errorf("face analysis of %s failed: %w", name, err)).
			Component(componentName).
			Category(errors.CategoryAnnotation).
			Context("clip", name).
			Timing("find_faces", time.Since(start)).
			Build()
	}

	faces := make(FaceMap, len(resp.Faces))
	for _, f := range resp.Faces {
		if prev, ok := faces[f.TrackID]; ok {
			// the engine may split one track across several entries
			prev.Embeddings = append(prev.Embeddings, f.Embeddings...)
			if prev.Attribute == "" {
				prev.Attribute = f.Attribute
			}
			f = prev
		}
		faces[f.TrackID] = f
	}

	c.log.Info("face analysis completed",
		logger.String("clip", name),
		logger.Int("tracks", len(faces)),
		logger.Duration("duration", time.Since(start)))
	return faces, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}
