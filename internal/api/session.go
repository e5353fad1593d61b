package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framelink/internal/api/models"
	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/session"
	"github.com/smazurov/framelink/pkg/wire"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Session status",
		Description: "State of the streaming session with its settings, parameters and throughput",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.SessionResponse, error) {
		return &models.SessionResponse{Body: s.manager.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/api/session/start",
		Summary:       "Start streaming",
		Description:   "Connect to a consumer and start streaming. Returns once connecting has begun.",
		Tags:          []string{"session"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 409, 422},
	}, func(ctx context.Context, input *models.StartSessionRequest) (*models.SessionResponse, error) {
		req, err := startRequest(input.Body)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if err := s.manager.Start(req); err != nil {
			return nil, sessionError(err)
		}
		return &models.SessionResponse{Body: s.manager.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-session",
		Method:      http.MethodPost,
		Path:        "/api/session/stop",
		Summary:     "Stop streaming",
		Description: "Stop the session and release the camera and connection. Succeeds when idle.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.SessionResponse, error) {
		s.manager.Stop()
		return &models.SessionResponse{Body: s.manager.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-session-settings",
		Method:      http.MethodPatch,
		Path:        "/api/session/settings",
		Summary:     "Update settings",
		Description: "Change settings of the streaming session. Camera, resolution and fps changes restart capture on the same connection.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422},
	}, func(ctx context.Context, input *models.UpdateSettingsRequest) (*models.SessionResponse, error) {
		current, ok := s.manager.Settings()
		if !ok {
			return nil, sessionError(session.ErrNotStreaming)
		}
		next, err := applyPatch(current, input.Body)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if err := s.manager.UpdateSettings(next); err != nil {
			return nil, sessionError(err)
		}
		return &models.SessionResponse{Body: s.manager.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "send-control",
		Method:      http.MethodPost,
		Path:        "/api/session/control",
		Summary:     "Apply control",
		Description: "Apply a ZOOM, EXPOSURE, FOCUS or FLASH command. Values are clamped to the camera's ranges.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422},
	}, func(ctx context.Context, input *models.ControlRequest) (*models.ControlResponse, error) {
		cmd, ok := control.Parse(input.Body.Command)
		if !ok {
			return nil, huma.Error422UnprocessableEntity("unrecognized control command: " + input.Body.Command)
		}
		p, err := s.manager.ApplyControl(cmd)
		if err != nil {
			return nil, sessionError(err)
		}
		return &models.ControlResponse{Body: p}, nil
	})
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrValidation):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, session.ErrActive), errors.Is(err, session.ErrNotStreaming):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError("session operation failed", err)
	}
}

func startRequest(body models.StartSessionData) (session.StartRequest, error) {
	w, h, err := wire.ParseResolution(body.Resolution)
	if err != nil {
		return session.StartRequest{}, err
	}
	params := control.DefaultParameters()
	if body.Parameters != nil {
		params = *body.Parameters
	}
	return session.StartRequest{
		Settings: session.Settings{
			Camera:     body.Camera,
			Facing:     body.Facing,
			Resolution: capture.Size{Width: w, Height: h},
			FPS:        body.FPS,
			Quality:    body.Quality,
			Parameters: params,
		},
		Address:    body.Address,
		Port:       body.Port,
		Connection: body.Connection,
	}, nil
}

func applyPatch(s session.Settings, patch models.SettingsPatch) (session.Settings, error) {
	if patch.Camera != nil {
		s.Camera = *patch.Camera
	}
	if patch.Facing != nil {
		s.Facing = *patch.Facing
	}
	if patch.Resolution != nil {
		w, h, err := wire.ParseResolution(*patch.Resolution)
		if err != nil {
			return s, err
		}
		s.Resolution = capture.Size{Width: w, Height: h}
	}
	if patch.FPS != nil {
		s.FPS = *patch.FPS
	}
	if patch.Quality != nil {
		s.Quality = *patch.Quality
	}
	if patch.Zoom != nil {
		s.Parameters.Zoom = *patch.Zoom
	}
	if patch.Exposure != nil {
		s.Parameters.Exposure = *patch.Exposure
	}
	if patch.Focus != nil {
		s.Parameters.Focus = *patch.Focus
	}
	if patch.Flash != nil {
		s.Parameters.Flash = *patch.Flash
	}
	return s, nil
}
