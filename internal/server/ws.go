package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/kindredhq/kindred/internal/db"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Job streams carry no sensitive payload and the API has no auth layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamInterval is how often a job snapshot is pushed to the socket.
const streamInterval = time.Second

// streamJob streams job snapshots over a websocket until the job reaches a
// terminal status or the client disconnects.
func (s *Server) streamJob(c echo.Context) error {
	jobID := c.Param("id")

	if _, err := s.jobReader.GetJob(c.Request().Context(), jobID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "unknown job id",
			}})
		}
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to load job",
		}})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := c.Request().Context()
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		job, err := s.jobReader.GetJob(ctx, jobID)
		if err != nil {
			s.logger.Warn("job stream lookup failed", "job_id", jobID, "error", err)
			return nil
		}
		if err := conn.WriteJSON(job); err != nil {
			return nil
		}
		if job.Status.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
