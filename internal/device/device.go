package device

import "time"

// Device is a door controller known to the system. Physical communication is
// out of scope; the gate only checks that the device exists and is active.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
