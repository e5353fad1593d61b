// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/session"
	"github.com/smazurov/framelink/internal/version"
	"github.com/smazurov/framelink/pkg/wire"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Session models
type SessionResponse struct {
	Body session.Status
}

type StartSessionData struct {
	Address    string              `json:"address,omitempty" example:"192.168.1.10" doc:"Consumer host, ignored for usb"`
	Port       int                 `json:"port,omitempty" example:"5000" minimum:"0" maximum:"65535" doc:"Consumer port, 5000 when omitted"`
	Connection wire.ConnectionType `json:"connection_type,omitempty" enum:"wifi,usb" doc:"wifi, or usb for a forwarded loopback port"`
	Camera     string              `json:"camera" example:"test" doc:"Camera selector"`
	Facing     wire.Facing         `json:"facing,omitempty" enum:"front,rear" doc:"Camera facing, rear when omitted"`
	Resolution string              `json:"resolution" example:"1280x720" doc:"Requested resolution as WxH"`
	FPS        int                 `json:"fps,omitempty" example:"30" doc:"Requested capture rate"`
	Quality    int                 `json:"quality" example:"80" doc:"JPEG quality 1..100"`
	Parameters *control.Parameters `json:"parameters,omitempty" doc:"Initial capture parameters"`
}

type StartSessionRequest struct {
	Body StartSessionData
}

// SettingsPatch changes only the fields it sets.
type SettingsPatch struct {
	Camera     *string      `json:"camera,omitempty" doc:"Camera selector, restarts capture"`
	Facing     *wire.Facing `json:"facing,omitempty" enum:"front,rear" doc:"Camera facing"`
	Resolution *string      `json:"resolution,omitempty" example:"640x480" doc:"Resolution as WxH, restarts capture"`
	FPS        *int         `json:"fps,omitempty" doc:"Capture rate, restarts capture"`
	Quality    *int         `json:"quality,omitempty" doc:"JPEG quality 1..100"`
	Zoom       *float64     `json:"zoom,omitempty" doc:"Zoom factor"`
	Exposure   *int         `json:"exposure,omitempty" doc:"Exposure compensation"`
	Focus      *float64     `json:"focus,omitempty" doc:"Focus position 0..1"`
	Flash      *bool        `json:"flash,omitempty" doc:"Torch on or off"`
}

type UpdateSettingsRequest struct {
	Body SettingsPatch
}

type ControlData struct {
	Command string `json:"command" example:"ZOOM:2.0" doc:"Control line as a consumer would send it"`
}

type ControlRequest struct {
	Body ControlData
}

type ControlResponse struct {
	Body control.Parameters
}

// Camera models
type CameraListData struct {
	Cameras []capture.Device `json:"cameras" doc:"Available cameras"`
	Count   int              `json:"count" example:"2" doc:"Number of cameras"`
}

type CameraListResponse struct {
	Body CameraListData
}

// Log models
type LogsRequest struct {
	Limit  int    `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Newest entries to return"`
	Module string `query:"module" example:"session" doc:"Only entries from this module"`
	Level  string `query:"level" enum:"debug,info,warn,error" example:"warn" doc:"Minimum level"`
	After  uint64 `query:"after" doc:"Only entries with a sequence number above this, for polling"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Log entries, oldest first"`
	Count   int                `json:"count" doc:"Number of entries returned"`
	Last    uint64             `json:"last" doc:"Sequence number of the newest entry returned, or the after value"`
}

type LogsResponse struct {
	Body LogsData
}
