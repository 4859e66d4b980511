package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/DeGirum/face-recognition/internal/annotation"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

const sessionContextKey = "annotation_session"

// ClipRow is one row of the clip listing.
type ClipRow struct {
	Created   string `json:"created"`
	FileName  string `json:"file_name"`
	Annotated bool   `json:"annotated"`
}

type selectClipRequest struct {
	Name string `json:"name"`
}

type attributeRequest struct {
	Attribute string `json:"attribute"`
}

func (s *Server) registerAPIRoutes(g *echo.Group) {
	if s.clips != nil {
		g.GET("/clips", s.listClips)
	}
	if s.sessions == nil {
		return
	}

	withSession := s.sessionMiddleware()
	g.DELETE("/clips/:stem", s.deleteClip, withSession)
	g.GET("/session", s.getSession, withSession)
	g.POST("/session/clip", s.selectClip, withSession)
	g.POST("/session/annotate", s.startAnnotation, withSession)
	g.PUT("/session/tracks/:id", s.editTrack, withSession)
	g.POST("/session/commit", s.commit, withSession)
	g.GET("/objects", s.listObjects)
	g.POST("/objects", s.addObject, withSession)
	g.GET("/db/info", s.dbInfo)
}

// sessionMiddleware attaches the caller's annotation session, creating one
// and setting its cookie when the request carries none.
func (s *Server) sessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var id string
			if cookie, err := c.Cookie(annotation.CookieName); err == nil {
				id = cookie.Value
			}
			session, created := s.sessions.GetOrCreate(id)
			if created {
				c.SetCookie(&http.Cookie{
					Name:     annotation.CookieName,
					Value:    session.ID(),
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

func sessionFrom(c echo.Context) *annotation.Session {
	s, _ := c.Get(sessionContextKey).(*annotation.Session)
	return s
}

func (s *Server) listClips(c echo.Context) error {
	list, err := s.clips.List(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "Failed to list clips")
	}

	rows := make([]ClipRow, 0, len(list))
	for _, clip := range list {
		row := ClipRow{
			Created:   clip.CreatedAt().In(time.Local).Format(time.DateTime),
			Annotated: clip.Annotated != nil,
		}
		if clip.Original != nil {
			row.FileName = clip.Original.Name
		} else {
			row.FileName = clip.Annotated.Name
		}
		rows = append(rows, row)
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) deleteClip(c echo.Context) error {
	session := sessionFrom(c)
	if err := session.DeleteClip(c.Request().Context(), c.Param("stem")); err != nil {
		return s.HandleError(c, err, "Failed to delete clip")
	}
	return s.snapshot(c, session, http.StatusOK)
}

func (s *Server) getSession(c echo.Context) error {
	return s.snapshot(c, sessionFrom(c), http.StatusOK)
}

func (s *Server) selectClip(c echo.Context) error {
	var req selectClipRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleErrorWithCode(c, err, "Invalid request body", http.StatusBadRequest)
	}
	session := sessionFrom(c)
	if err := session.SelectClip(c.Request().Context(), req.Name); err != nil {
		return s.HandleError(c, err, "Failed to select clip")
	}
	return s.snapshot(c, session, http.StatusOK)
}

func (s *Server) startAnnotation(c echo.Context) error {
	session := sessionFrom(c)
	if err := session.StartAnnotation(c.Request().Context()); err != nil {
		return s.HandleError(c, err, "Failed to start annotation")
	}
	return s.snapshot(c, session, http.StatusAccepted)
}

func (s *Server) editTrack(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return s.HandleErrorWithCode(c, err, "Invalid track id", http.StatusBadRequest)
	}
	var req attributeRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleErrorWithCode(c, err, "Invalid request body", http.StatusBadRequest)
	}
	session := sessionFrom(c)
	if err := session.EditAttribute(id, req.Attribute); err != nil {
		return s.HandleError(c, err, "Failed to edit track")
	}
	return s.snapshot(c, session, http.StatusOK)
}

func (s *Server) commit(c echo.Context) error {
	result, err := sessionFrom(c).Commit(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "Failed to update database")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) listObjects(c echo.Context) error {
	objects, err := s.sessions.Known().List(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "Failed to list known objects")
	}
	return c.JSON(http.StatusOK, recognition.SortedObjects(objects))
}

func (s *Server) addObject(c echo.Context) error {
	var req attributeRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleErrorWithCode(c, err, "Invalid request body", http.StatusBadRequest)
	}
	obj, err := sessionFrom(c).AddKnownObject(c.Request().Context(), req.Attribute)
	if err != nil {
		message := "Failed to add attribute"
		if errors.IsCategory(err, errors.CategoryDuplicate) {
			message = "Attribute already exists"
		}
		return s.HandleError(c, err, message)
	}
	return c.JSON(http.StatusCreated, obj)
}

func (s *Server) dbInfo(c echo.Context) error {
	counts, err := s.sessions.Known().Store().CountEmbeddings(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "Failed to read database info")
	}
	return c.JSON(http.StatusOK, recognition.SortedCounts(counts))
}

func (s *Server) snapshot(c echo.Context, session *annotation.Session, code int) error {
	snap, err := session.Snapshot(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "Failed to read session")
	}
	return c.JSON(code, snap)
}
