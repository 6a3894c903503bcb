package httptransport

import "time"

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type shareRequest struct {
	GranteeID string     `json:"grantee_id"`
	Level     string     `json:"level"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type exportRequest struct {
	DestinationPath string `json:"destination_path"`
}
