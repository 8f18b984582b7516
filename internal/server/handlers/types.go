package handlers

import "github.com/vzahanych/weather-timeline/internal/server/utils"

type SearchRequest struct {
	Query string `json:"query" validate:"max=200"`
}

// LocationRequest carries what the client's geolocation produced: a
// position, or the reason there is none.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required_without=Error"`
	Longitude *float64 `json:"longitude" validate:"required_with=Latitude"`
	Error     string   `json:"error" validate:"omitempty,oneof=denied unavailable timeout"`
}

type APIKeyRequest struct {
	APIKey string `json:"api_key" validate:"max=256"`
}

type TimelineRequest struct {
	Location string   `form:"location" validate:"required_without=Lat,max=200"`
	Lat      *float64 `form:"lat" validate:"required_without=Location"`
	Lng      *float64 `form:"lng" validate:"required_with=Lat"`
}

type ErrorResponse struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code,omitempty"`
	Details string                  `json:"details,omitempty"`
	Fields  []utils.ValidationError `json:"fields,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}
