package gql

import (
	"strings"
	"sync"
)

const (
	headerClientID  = "Client-Id"
	headerIntegrity = "Client-Integrity"
	headerDeviceID  = "X-Device-Id"
	headerAuth      = "Authorization"
)

// Credentials is the process-wide credential bundle. It is populated
// opportunistically from headers observed on the page's own authenticated
// requests and lives only for the lifetime of the process.
type Credentials struct {
	mu            sync.RWMutex
	deviceID      string
	integrity     string
	authorization string
}

// CredentialStatus reports which credential fields are currently populated,
// without exposing their values.
type CredentialStatus struct {
	HasDeviceID      bool `json:"has_device_id"`
	HasIntegrity     bool `json:"has_integrity"`
	HasAuthorization bool `json:"has_authorization"`
}

func NewCredentials() *Credentials {
	return &Credentials{}
}

// CaptureFromHeaders records any credential headers present in an observed
// request. Header name matching is case-insensitive; empty values are
// ignored so a later anonymous request never clears a captured value.
func (c *Credentials) CaptureFromHeaders(headers map[string]string) {
	var deviceID, integrity, authorization string
	for name, value := range headers {
		if value == "" {
			continue
		}
		switch strings.ToLower(name) {
		case strings.ToLower(headerDeviceID):
			deviceID = value
		case strings.ToLower(headerIntegrity):
			integrity = value
		case strings.ToLower(headerAuth):
			authorization = value
		}
	}
	if deviceID == "" && integrity == "" && authorization == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if deviceID != "" {
		c.deviceID = deviceID
	}
	if integrity != "" {
		c.integrity = integrity
	}
	if authorization != "" {
		c.authorization = authorization
	}
}

// Status returns redacted presence flags for the bundle.
func (c *Credentials) Status() CredentialStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CredentialStatus{
		HasDeviceID:      c.deviceID != "",
		HasIntegrity:     c.integrity != "",
		HasAuthorization: c.authorization != "",
	}
}

func (c *Credentials) values() (deviceID, integrity, authorization string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID, c.integrity, c.authorization
}
