package domain

// ICEServer is one STUN/TURN endpoint used for connectivity establishment.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ConnectionConfig is the only configuration surface of a peer connection.
type ConnectionConfig struct {
	ICEServers []ICEServer
}
