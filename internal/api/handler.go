package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/matheodrd/httphelper/handler"

	"buswatch/internal/ingest"
	"buswatch/internal/tracking"
)

// wsHandler upgrades a viewer connection and hands it to the websocket
// manager. Channel membership is negotiated afterwards with join messages.
func (s *Server) wsHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		viewerID := r.URL.Query().Get("viewer_id")
		if viewerID == "" {
			return handler.NewErrWithStatus(http.StatusBadRequest, errors.New("missing viewer_id"))
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, fmt.Errorf("websocket accept: %w", err))
		}

		s.WebsocketManager.HandleNewConnection(viewerID, conn)
		return nil
	})
}

type trackResponse struct {
	Success bool                    `json:"success"`
	Data    tracking.PositionUpdate `json:"data"`
}

// trackHandler is the authorized publisher's ingestion endpoint: one
// position report per call. It answers as soon as the position is recorded,
// without waiting for fan-out or the ETA refresh.
func (s *Server) trackHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		channelID := r.PathValue("channelID")

		var report ingest.PositionReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("decoding report: %w", err))
		}
		report.ChannelID = channelID

		pos, err := s.Ingestion.Submit(r.Context(), report)
		switch {
		case errors.Is(err, tracking.ErrInvalidPosition):
			return handler.NewErrWithStatus(http.StatusBadRequest, err)
		case errors.Is(err, tracking.ErrUnknownChannel):
			return handler.NewErrWithStatus(http.StatusNotFound, err)
		case err != nil:
			return handler.NewErrWithStatus(http.StatusInternalServerError, err)
		}

		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(trackResponse{
			Success: true,
			Data: tracking.PositionUpdate{
				ChannelID:  channelID,
				Lat:        pos.Lat,
				Lon:        pos.Lon,
				ObservedAt: pos.ObservedAt,
			},
		})
	})
}
