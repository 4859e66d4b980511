package analysis

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

const testEngineURL = "http://engine.local:8765"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	c := NewClient(conf.AnalysisSettings{URL: testEngineURL + "/", Timeout: time.Second}, nil)
	mock := httpmock.NewMockTransport()
	c.HTTPClient().HTTPClient().Transport = mock
	t.Cleanup(c.Close)
	return c, mock
}

func TestFindFacesInClip(t *testing.T) {
	t.Parallel()

	c, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPost, testEngineURL+findFacesPath,
		func(req *http.Request) (*http.Response, error) {
			var body findFacesRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			assert.Equal(t, "clip1.mp4", body.Clip)
			assert.True(t, body.SaveAnnotated)
			return httpmock.NewJsonResponse(http.StatusOK, findFacesResponse{Faces: []Face{
				{TrackID: 3, Attribute: "Alice", Embeddings: []recognition.Embedding{{1, 2}}},
				{TrackID: 1, Embeddings: []recognition.Embedding{{3, 4}}},
				{TrackID: 3, Embeddings: []recognition.Embedding{{5, 6}}},
			}})
		})

	faces, err := c.FindFacesInClip(t.Context(), "clip1.mp4", Options{SaveAnnotated: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, faces.TrackIDs())
	assert.Equal(t, "Alice", faces[3].Attribute)
	assert.Len(t, faces[3].Embeddings, 2, "split tracks are merged")
	assert.Empty(t, faces[1].Attribute)
}

func TestFindFacesInClipFailure(t *testing.T) {
	t.Parallel()

	c, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPost, testEngineURL+findFacesPath,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"))

	_, err := c.FindFacesInClip(t.Context(), "clip1.mp4", Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAnnotation))
	assert.Equal(t, http.StatusBadGateway, errors.HTTPStatus(err))
}
