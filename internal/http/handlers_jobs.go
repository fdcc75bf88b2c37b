package http

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"bindery/internal/jobs"
	"bindery/internal/model"
	"bindery/internal/store"
)

// codedStatus maps a producer/ingestion error code onto an HTTP status.
func codedStatus(code string) int {
	switch code {
	case jobs.CodeFileNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusBadRequest
	}
}

// jobCreateError maps job creation failures onto the response envelope.
func jobCreateError(c *fiber.Ctx, err error) error {
	if coded, ok := jobs.AsCoded(err); ok {
		return c.Status(codedStatus(coded.Code)).JSON(JobResponse{
			Success: false,
			Code:    coded.Code,
			Error:   coded.Message,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(JobResponse{
		Success: false,
		Code:    "JOB_CREATE_FAILED",
		Error:   err.Error(),
	})
}

// parseSessionID parses an optional editSessionId body field.
func parseSessionID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func createValidationJobHandler(c *fiber.Ctx) error {
	var req ValidationJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	sessionID, err := parseSessionID(req.EditSessionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid editSessionId",
		})
	}

	producer := c.Locals("producer").(*jobs.Producer)
	job, err := producer.CreateValidation(c.Context(),
		jobs.FileRef{FileID: req.FileID, URL: req.FileURL}, req.FileType, req.OrderOptions, sessionID)
	if err != nil {
		return jobCreateError(c, err)
	}

	return c.Status(http.StatusOK).JSON(JobResponse{Success: true, Job: &job})
}

func createConversionJobHandler(c *fiber.Ctx) error {
	var req ConversionJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	producer := c.Locals("producer").(*jobs.Producer)
	job, err := producer.CreateConversion(c.Context(),
		jobs.FileRef{FileID: req.FileID, URL: req.FileURL}, req.Options)
	if err != nil {
		return jobCreateError(c, err)
	}

	return c.Status(http.StatusOK).JSON(JobResponse{Success: true, Job: &job})
}

func createSynthesisJobHandler(c *fiber.Ctx) error {
	var req SynthesisJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	sessionID, err := parseSessionID(req.EditSessionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid editSessionId",
		})
	}

	producer := c.Locals("producer").(*jobs.Producer)
	job, err := producer.CreateSynthesis(c.Context(), jobs.SynthesisRequest{
		Cover:       jobs.FileRef{FileID: req.CoverFileID, URL: req.CoverURL},
		Content:     jobs.FileRef{FileID: req.ContentFileID, URL: req.ContentURL},
		SpineWidth:  req.SpineWidth,
		OrderID:     req.OrderID,
		CallbackURL: req.CallbackURL,
		Priority:    req.Priority,
		SessionID:   sessionID,
	})
	if err != nil {
		return jobCreateError(c, err)
	}

	return c.Status(http.StatusOK).JSON(JobResponse{Success: true, Job: &job})
}

func jobDetailHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid job id",
		})
	}

	job, err := st.GetJobByID(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(JobResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "job not found",
		})
	}

	return c.Status(http.StatusOK).JSON(JobResponse{Success: true, Job: &job})
}

func jobsListHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	status := model.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(ListJobsResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid status filter",
		})
	}

	jobType := model.JobType(c.Query("type"))
	if jobType != "" && !jobType.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(ListJobsResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid type filter",
		})
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ListJobsResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid limit value",
			})
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	offset := 0
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ListJobsResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid offset value",
			})
		}
		offset = n
	}

	list, err := st.ListJobs(c.Context(), store.JobListFilter{
		Status: status,
		Type:   jobType,
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ListJobsResponse{
			Success: false,
			Code:    "JOB_LIST_FAILED",
			Error:   err.Error(),
		})
	}

	if list == nil {
		list = []model.Job{}
	}
	return c.Status(http.StatusOK).JSON(ListJobsResponse{Success: true, Jobs: list})
}

func jobStatsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	stats, err := st.JobStats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(JobStatsResponse{
			Success: false,
			Code:    "JOB_STATS_FAILED",
			Error:   err.Error(),
		})
	}

	if stats == nil {
		stats = []store.JobStatRow{}
	}
	return c.Status(http.StatusOK).JSON(JobStatsResponse{Success: true, Stats: stats})
}
