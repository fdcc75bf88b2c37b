package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"bindery/internal/jobs"
)

// mergeCheckHandler runs the synthesis pre-flight. It never creates a job:
// the editor uses it to surface problems before the user commits an order.
func mergeCheckHandler(c *fiber.Ctx) error {
	var req MergeCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(MergeCheckResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	sessionID, err := uuid.Parse(req.EditSessionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(MergeCheckResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid editSessionId",
		})
	}

	checker := c.Locals("checker").(*jobs.Checker)
	result := checker.CheckMergeable(c.Context(), sessionID,
		jobs.FileRef{FileID: req.CoverFileID, URL: req.CoverURL},
		jobs.FileRef{FileID: req.ContentFileID, URL: req.ContentURL},
		req.SpineWidth)

	return c.Status(http.StatusOK).JSON(MergeCheckResponse{
		Success:   true,
		Mergeable: result.Mergeable,
		Issues:    result.Issues,
	})
}
