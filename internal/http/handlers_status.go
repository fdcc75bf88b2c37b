package http

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"bindery/internal/jobs"
	"bindery/internal/model"
	"bindery/internal/store"
)

// jobStatusUpdateHandler is the worker-facing ingestion endpoint. Workers
// report progress and final outcomes here; session synchronization and
// webhook fan-out happen behind it.
func jobStatusUpdateHandler(c *fiber.Ctx) error {
	var req StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid job id",
		})
	}

	ingestor := c.Locals("ingestor").(*jobs.Ingestor)
	job, err := ingestor.UpdateStatus(c.Context(), jobID, store.StatusPatch{
		Status:        model.JobStatus(req.Status),
		OutputFileID:  req.OutputFileID,
		OutputFileURL: req.OutputFileURL,
		Result:        req.Result,
		ErrorMessage:  req.ErrorMessage,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(JobResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "job not found",
			})
		}
		if coded, ok := jobs.AsCoded(err); ok {
			return c.Status(fiber.StatusBadRequest).JSON(JobResponse{
				Success: false,
				Code:    coded.Code,
				Error:   coded.Message,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(JobResponse{
			Success: false,
			Code:    "STATUS_UPDATE_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(http.StatusOK).JSON(JobResponse{Success: true, Job: &job})
}
