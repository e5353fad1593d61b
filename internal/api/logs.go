package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framelink/internal/api/models"
	"github.com/smazurov/framelink/internal/logging"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Newest entries from the in-memory log history. Pass the returned last value as after to poll for new entries.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		entries := logging.GetHistory().Query(logging.Query{
			Module: input.Module,
			Level:  input.Level,
			After:  input.After,
			Limit:  input.Limit,
		})
		last := input.After
		if len(entries) > 0 {
			last = entries[len(entries)-1].Seq
		} else {
			entries = []logging.LogEntry{}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries), Last: last},
		}, nil
	})
}
