package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-stuffbot/pkg/camera"
	"github.com/teslashibe/go-stuffbot/pkg/hub"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.loop.Status())
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(s.loop.History())
}

func (s *Server) handleObjects(c *fiber.Ctx) error {
	return c.JSON(s.loop.Status().Objects)
}

func (s *Server) handleCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return fiber.NewError(fiber.StatusNotFound, "camera not configured")
	}
	return c.JSON(s.cameras.Config())
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(camera.PresetNames())
}

// handleApplyPreset switches the camera preset. It tunes capture only and
// never commands the robot.
func (s *Server) handleApplyPreset(c *fiber.Ctx) error {
	if s.cameras == nil {
		return fiber.NewError(fiber.StatusNotFound, "camera not configured")
	}
	name := c.Params("name")
	if camera.GetPreset(name) == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "unknown preset",
			"presets": camera.PresetNames(),
		})
	}
	if err := s.cameras.ApplyPreset(name); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("camera preset applied", "preset", name)
	return c.JSON(s.cameras.Config())
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		hub.NewClient(h, conn).Run()
	}
}
