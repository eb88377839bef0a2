package relay

import "time"

// ErrorResponse is the JSON body of every non-2xx relay answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Upstream  string    `json:"upstream"`
	Timestamp time.Time `json:"timestamp"`
}
