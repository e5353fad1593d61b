package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framelink/internal/api/models"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List cameras",
		Description: "Cameras that can be selected, with their frame sizes and parameter ranges",
		Tags:        []string{"cameras"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.CameraListResponse, error) {
		cameras, err := s.cameras.Devices(ctx)
		if err != nil {
			s.logger.Error("Failed to list cameras", "error", err)
			return nil, huma.Error500InternalServerError("failed to list cameras", err)
		}
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: cameras, Count: len(cameras)},
		}, nil
	})
}
