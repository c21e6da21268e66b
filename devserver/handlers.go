package devserver

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-tasks/domain"
)

const (
	maxJSONBodySize   = 64 * 1024
	maxUploadBodySize = 10 << 20
)

// Register wires the remote task API onto e. Every /api route requires a
// verified bearer token and only sees the caller's own records.
func Register(e *echo.Echo, store *Store, auth Authenticator, logger *log.Logger) {
	e.GET("/healthz", healthz)
	e.GET("/files/:id/:name", getFile(store))

	g := e.Group("/api", RequireUser(auth, logger))
	g.GET("/tasks/", listTasks(store))
	g.POST("/tasks/", createTask(store))
	g.GET("/tasks/:id/", getTask(store))
	g.PATCH("/tasks/:id/", updateTask(store))
	g.DELETE("/tasks/:id/", deleteTask(store))
	g.POST("/subtasks/", createSubtask(store))
	g.PATCH("/subtasks/:id/", updateSubtask(store))
	g.DELETE("/subtasks/:id/", deleteSubtask(store))
	g.POST("/attachments/", createAttachment(store))
	g.DELETE("/attachments/:id/", deleteAttachment(store))
	g.GET("/profile/", getProfile(store))
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// storeError maps store errors onto HTTP responses.
func storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, "not found")
	case domain.IsValidation(err):
		return c.String(http.StatusBadRequest, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func decodeJSON(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, maxJSONBodySize)
	return sonic.ConfigStd.NewDecoder(lr).Decode(out)
}

func listTasks(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.ListTasks(userID(c)))
	}
}

func getTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := store.GetTask(userID(c), c.Param("id"))
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func createTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.NewTask
		if err := decodeJSON(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		t, err := store.CreateTask(userID(c), req)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func updateTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := make(map[string]any)
		if err := decodeJSON(c, &raw); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		patch, err := patchFromJSON(raw)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		t, err := store.UpdateTask(userID(c), c.Param("id"), patch)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

// patchFromJSON converts a decoded PATCH body into a Patch. Timestamps
// arrive as RFC 3339 strings.
func patchFromJSON(raw map[string]any) (domain.Patch, error) {
	patch := make(domain.Patch, len(raw))
	for name, value := range raw {
		field, err := domain.ParseField(name)
		if err != nil {
			return nil, err
		}
		if field == domain.FieldDueDate || field == domain.FieldRemindMe {
			if s, ok := value.(string); ok {
				ts, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return nil, &domain.ValidationError{Field: name, Reason: "invalid timestamp"}
				}
				value = ts
			}
		}
		v, err := domain.NormalizeField(field, value)
		if err != nil {
			return nil, err
		}
		patch[field] = v
	}
	return patch, nil
}

func deleteTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.DeleteTask(userID(c), c.Param("id")); err != nil {
			return storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type subtaskRequest struct {
	Task  string `json:"task"`
	Title string `json:"title"`
}

func createSubtask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req subtaskRequest
		if err := decodeJSON(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		sub, err := store.CreateSubtask(userID(c), req.Task, strings.TrimSpace(req.Title))
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusCreated, sub)
	}
}

func updateSubtask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.SubtaskPatch
		if err := decodeJSON(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		sub, err := store.UpdateSubtask(userID(c), c.Param("id"), req)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func deleteSubtask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.DeleteSubtask(userID(c), c.Param("id")); err != nil {
			return storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func createAttachment(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		req.Body = http.MaxBytesReader(c.Response(), req.Body, maxUploadBodySize)
		taskID := c.FormValue("task")
		fh, err := c.FormFile("file")
		if err != nil || taskID == "" {
			return c.String(http.StatusBadRequest, "task and file are required")
		}
		f, err := fh.Open()
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable file")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable file")
		}
		att, err := store.CreateAttachment(userID(c), taskID, fh.Filename, fh.Header.Get(echo.HeaderContentType), data,
			func(id, name string) string { return "/files/" + id + "/" + name })
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusCreated, att)
	}
}

func deleteAttachment(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.DeleteAttachment(userID(c), c.Param("id")); err != nil {
			return storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getFile(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		f, ok := store.File(c.Param("id"))
		if !ok || f.name != c.Param("name") {
			return c.String(http.StatusNotFound, "not found")
		}
		ct := f.contentType
		if ct == "" {
			ct = echo.MIMEOctetStream
		}
		return c.Blob(http.StatusOK, ct, f.data)
	}
}

func getProfile(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.Profile(userID(c)))
	}
}
