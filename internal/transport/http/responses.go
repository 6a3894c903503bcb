package httptransport

import (
	"time"

	"frametruth/internal/acl"
	"frametruth/internal/audit"
	"frametruth/internal/auth"
	"frametruth/internal/detection"
	"frametruth/internal/file"
)

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func fromUser(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	SessionID   string    `json:"session_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type fileResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

func fromFile(f file.File) fileResponse {
	return fileResponse{
		ID:        f.ID.String(),
		OwnerID:   f.OwnerID.String(),
		Filename:  f.Filename,
		Size:      f.Size,
		MimeType:  f.MimeType,
		SHA256:    f.SHA256,
		CreatedAt: f.CreatedAt,
	}
}

func fromFiles(files []file.File) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, fromFile(f))
	}
	return out
}

type listingResponse struct {
	Owned  []fileResponse `json:"owned"`
	Shared []fileResponse `json:"shared"`
}

type detectionResponse struct {
	Detector   string    `json:"detector"`
	Version    string    `json:"version"`
	Score      float64   `json:"score"`
	Label      string    `json:"label"`
	Flagged    bool      `json:"flagged"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

type fileDetailResponse struct {
	fileResponse
	Detections []detectionResponse `json:"detections"`
}

func fromDetections(ds []detection.Detection) []detectionResponse {
	out := make([]detectionResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, detectionResponse{
			Detector:   d.DetectorName,
			Version:    d.DetectorVersion,
			Score:      d.Score,
			Label:      d.Label,
			Flagged:    d.Flagged,
			AnalyzedAt: d.CreatedAt,
		})
	}
	return out
}

type grantResponse struct {
	GranteeID string     `json:"grantee_id"`
	Level     string     `json:"level"`
	GrantedBy string     `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func fromGrants(grants []acl.Grant) []grantResponse {
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantResponse{
			GranteeID: g.GranteeID.String(),
			Level:     g.Level.String(),
			GrantedBy: g.GrantedBy.String(),
			GrantedAt: g.GrantedAt,
			ExpiresAt: g.ExpiresAt,
		})
	}
	return out
}

type entryResponse struct {
	ID         int64             `json:"id"`
	ActorID    string            `json:"actor_id,omitempty"`
	FileID     string            `json:"file_id,omitempty"`
	Action     string            `json:"action"`
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func fromEntries(entries []audit.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp := entryResponse{
			ID:         e.ID,
			Action:     e.Action,
			IPAddress:  e.IPAddress,
			UserAgent:  e.UserAgent,
			Metadata:   e.Metadata,
			OccurredAt: e.OccurredAt,
		}
		if !e.ActorID.IsNil() {
			resp.ActorID = e.ActorID.String()
		}
		if e.FileID != nil {
			resp.FileID = e.FileID.String()
		}
		out = append(out, resp)
	}
	return out
}

type statsResponse struct {
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}
