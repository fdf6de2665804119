package models

// SyncMode selects one-way or two-way reconciliation.
type SyncMode string

const (
	OneWay SyncMode = "one_way"
	TwoWay SyncMode = "two_way"
)

// Valid reports whether m is a known mode.
func (m SyncMode) Valid() bool {
	return m == OneWay || m == TwoWay
}

// Credentials carries tokens for both roles. Either token of a role may be empty, but not both.
type Credentials struct {
	SourceAccessToken  string `json:"sourceAccessToken"`
	SourceRefreshToken string `json:"sourceRefreshToken,omitempty"`
	DestAccessToken    string `json:"destAccessToken"`
	DestRefreshToken   string `json:"destRefreshToken,omitempty"`
}

// HasSource reports whether the source role has any token.
func (c Credentials) HasSource() bool {
	return c.SourceAccessToken != "" || c.SourceRefreshToken != ""
}

// HasDestination reports whether the destination role has any token.
func (c Credentials) HasDestination() bool {
	return c.DestAccessToken != "" || c.DestRefreshToken != ""
}

// TransferRequest is the body of a transfer start request.
type TransferRequest struct {
	Playlists []PlaylistRef `json:"playlists"`
	Auth      *Credentials  `json:"auth,omitempty"`
}

// SyncRequest is the body of a sync start request.
type SyncRequest struct {
	Source        PlaylistRef  `json:"source"`
	Destination   PlaylistRef  `json:"destination"`
	Mode          SyncMode     `json:"mode"`
	RemoveMissing bool         `json:"removeMissing,omitempty"`
	Auth          *Credentials `json:"auth,omitempty"`
}

// StartResponse is returned by both start endpoints.
type StartResponse struct {
	ID    string `json:"id"`
	State *Job   `json:"state"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
