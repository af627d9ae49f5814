package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Participant is a participant pass record, one row of the passes table
type Participant struct {
	ID            int64     `db:"id" json:"id"`
	MINo          string    `db:"mi_no" json:"miNo"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	College       string    `db:"college" json:"college"`
	Phone         string    `db:"phone" json:"phone,omitempty"`
	PhotoPath     string    `db:"image_path" json:"-"`
	ImageUploaded bool      `db:"image_uploaded" json:"imageUploaded"`
	IDType        string    `db:"govt_id_type" json:"idType"`
	IDLast4       string    `db:"govt_id_last4" json:"idLast4"`
	PassImagePath string    `db:"pass_image_path" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// HasIDDocument reports whether identity document details were recorded
func (p *Participant) HasIDDocument() bool {
	return p.IDType != "" && p.IDLast4 != ""
}

// ParticipantProfile holds the fields refreshed on every successful check
type ParticipantProfile struct {
	Email   string
	MINo    string
	Name    string
	College string
	Phone   string
}

// ParticipantResponse is the public projection returned by GET /get
type ParticipantResponse struct {
	MINo          string `json:"miNo"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	College       string `json:"college"`
	ImageUploaded bool   `json:"imageUploaded"`
	HasImage      bool   `json:"hasImage"`
	PassImage     string `json:"passImage"`
	IDType        string `json:"idType"`
	IDLast4       string `json:"idLast4"`
	HasIDDocument bool   `json:"hasIdDocument"`
}

// NewParticipantResponse builds the public projection; passURL maps a stored
// pass filename to its public path.
func NewParticipantResponse(p *Participant, passURL func(string) string) ParticipantResponse {
	resp := ParticipantResponse{
		MINo:          p.MINo,
		Name:          p.Name,
		Email:         p.Email,
		College:       p.College,
		ImageUploaded: p.ImageUploaded,
		HasImage:      p.PhotoPath != "",
		IDType:        p.IDType,
		IDLast4:       p.IDLast4,
		HasIDDocument: p.HasIDDocument(),
	}
	if p.PassImagePath != "" && passURL != nil {
		resp.PassImage = passURL(p.PassImagePath)
	}
	return resp
}

// CheckRequest is the body accepted by /check
type CheckRequest struct {
	Email string `json:"email" form:"email"`
}

// CheckResponse is returned by a successful /check
type CheckResponse struct {
	Token         string `json:"token"`
	ImageUploaded bool   `json:"imageUploaded"`
}

// OKResponse is returned by a successful photo upload
type OKResponse struct {
	OK bool `json:"ok"`
}

// SavePassResponse is returned by a successful /save-pass
type SavePassResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

// HealthResponse is returned by the liveness endpoints
type HealthResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

// ReadyResponse is returned by /ready
type ReadyResponse struct {
	OK       bool              `json:"ok"`
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// VerifierResult is the registration verifier's answer for one email
type VerifierResult struct {
	UserExists bool        `json:"userExists"`
	MIID       LooseString `json:"mi_id"`
	Name       LooseString `json:"name"`
	College    LooseString `json:"college"`
}

// LooseString decodes a JSON string, number or null into a string
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = LooseString(n.String())
	return nil
}

func (s LooseString) String() string {
	return string(s)
}

// IDLast4 returns the last four characters of a trimmed document number
func IDLast4(idNumber string) string {
	r := []rune(strings.TrimSpace(idNumber))
	if len(r) <= 4 {
		return string(r)
	}
	return string(r[len(r)-4:])
}
