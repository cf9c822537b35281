package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kindredhq/kindred/internal/db"
	"github.com/kindredhq/kindred/internal/service"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type ingestProfileRequest struct {
	Handle       string `json:"handle"`
	OwnerID      string `json:"owner_id"`
	MaxPosts     int    `json:"max_posts"`
	IncludeReels bool   `json:"include_reels"`
}

type jobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (s *Server) ingestProfile(c echo.Context) error {
	var req ingestProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid request body",
		}})
	}
	if strings.TrimSpace(req.Handle) == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_handle",
			Message: "handle is required",
		}})
	}

	maxPosts := req.MaxPosts
	if maxPosts <= 0 {
		maxPosts = s.cfg.MaxPostsDefault
	}
	if maxPosts > s.cfg.MaxPostsHardLimit {
		maxPosts = s.cfg.MaxPostsHardLimit
	}

	force := c.QueryParam("force") == "true"

	jobID, err := s.jobs.StartProfileIngest(c.Request().Context(), service.ProfileIngestRequest{
		Handle:       req.Handle,
		OwnerID:      req.OwnerID,
		MaxPosts:     maxPosts,
		IncludeReels: req.IncludeReels,
		Force:        force,
	})
	if err != nil {
		if errors.Is(err, service.ErrCooldown) {
			return c.JSON(http.StatusTooManyRequests, apiResponse{Error: &errorBody{
				Code:    "cooldown",
				Message: "this profile was ingested recently, retry later or pass ?force=true",
			}})
		}
		s.logger.Error("profile ingest rejected", "handle", req.Handle, "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to start ingestion",
		}})
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: jobAccepted{JobID: jobID, Status: "queued"}})
}

func (s *Server) ingestVoice(c echo.Context) error {
	ownerID := c.FormValue("owner_id")
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_owner",
			Message: "owner_id is required",
		}})
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_audio",
			Message: "audio file is required",
		}})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_upload",
			Message: "could not open audio upload",
		}})
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_upload",
			Message: "could not read audio upload",
		}})
	}

	jobID, err := s.jobs.StartVoiceIngest(c.Request().Context(), ownerID, fileHeader.Filename, audio)
	if err != nil {
		s.logger.Error("voice ingest rejected", "owner_id", ownerID, "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to start voice ingestion",
		}})
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: jobAccepted{JobID: jobID, Status: "queued"}})
}

func (s *Server) getJob(c echo.Context) error {
	job, err := s.jobReader.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "unknown job id",
			}})
		}
		s.logger.Error("job lookup failed", "job_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to load job",
		}})
	}
	return c.JSON(http.StatusOK, apiResponse{Data: job})
}

type webhookResponse struct {
	Status string `json:"status"`
}

// researchWebhook receives vendor callbacks. It always returns 200 so the
// vendor does not retry ignored or duplicate deliveries.
func (s *Server) researchWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusOK, webhookResponse{Status: "ignored"})
	}

	taskID := webhookTaskID(body)
	if taskID == "" {
		s.logger.Warn("webhook without task identifier dropped")
		return c.JSON(http.StatusOK, webhookResponse{Status: "ignored"})
	}

	outcome, err := s.completer.HandleCompletion(c.Request().Context(), taskID, body)
	if err != nil {
		s.logger.Error("webhook completion failed", "task_id", taskID, "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to process completion",
		}})
	}

	s.logger.Info("webhook handled", "task_id", taskID, "outcome", outcome)
	return c.JSON(http.StatusOK, webhookResponse{Status: string(outcome)})
}

// webhookTaskID pulls the provider task identifier out of the payload.
// Vendors are not consistent about the key name.
func webhookTaskID(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"task_id", "id"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) discoverMatches(c echo.Context) error {
	personID := c.QueryParam("person_id")
	if personID == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_person",
			Message: "person_id is required",
		}})
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	matches, err := s.discovery.FindMatches(c.Request().Context(), personID, limit)
	if err != nil {
		s.logger.Error("match lookup failed", "person_id", personID, "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to compute matches",
		}})
	}
	return c.JSON(http.StatusOK, apiResponse{Data: matches})
}

func (s *Server) discoverGraph(c echo.Context) error {
	raw := c.QueryParam("person_id")
	if raw == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_person",
			Message: "person_id is required",
		}})
	}
	var centerIDs []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			centerIDs = append(centerIDs, id)
		}
	}

	data, err := s.discovery.GraphSnapshot(c.Request().Context(), centerIDs)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "unknown person id",
			}})
		}
		s.logger.Error("graph snapshot failed", "person_id", raw, "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to build graph snapshot",
		}})
	}
	return c.JSON(http.StatusOK, apiResponse{Data: data})
}

func (s *Server) discoverInterests(c echo.Context) error {
	personID := c.QueryParam("person_id")
	if personID == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_person",
			Message: "person_id is required",
		}})
	}

	interests, err := s.discovery.Interests(c.Request().Context(), personID)
	if err != nil {
		s.logger.Error("interest lookup failed", "person_id", personID, "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to load interests",
		}})
	}
	return c.JSON(http.StatusOK, apiResponse{Data: interests})
}

type icebreakerRequest struct {
	PersonID string `json:"person_id"`
	TargetID string `json:"target_id"`
}

func (s *Server) chatIcebreaker(c echo.Context) error {
	var req icebreakerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid request body",
		}})
	}
	if req.PersonID == "" || req.TargetID == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_person",
			Message: "person_id and target_id are required",
		}})
	}

	text, err := s.discovery.Icebreaker(c.Request().Context(), req.PersonID, req.TargetID)
	if err != nil {
		if errors.Is(err, service.ErrNoSharedInterests) {
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "no_shared_interests",
				Message: "these people have no overlapping interests",
			}})
		}
		s.logger.Error("icebreaker generation failed",
			"person_id", req.PersonID, "target_id", req.TargetID, "error", err)
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to generate icebreaker",
		}})
	}
	return c.JSON(http.StatusOK, apiResponse{Data: map[string]string{"icebreaker": text}})
}
