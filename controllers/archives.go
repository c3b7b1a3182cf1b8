package controllers

import (
	"io"
	"strconv"

	"ilmhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type ArchiveController struct{}

// GetArchives lists the event and log batches archived to S3.
func (ac *ArchiveController) GetArchives(c *fiber.Ctx) error {
	archives, err := services.NewArchiveService().GetArchives()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch archives"})
	}
	return c.JSON(fiber.Map{"archives": archives})
}

// DownloadArchive streams one archived ZIP back to the caller.
func (ac *ArchiveController) DownloadArchive(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid archive ID"})
	}

	body, fileName, err := services.NewArchiveService().DownloadArchive(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Archive not found"})
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read archive"})
	}

	c.Set("Content-Type", "application/zip")
	c.Set("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	return c.Send(data)
}
