package protocol

import "encoding/json"

// PTY control frame types
const (
	PTYResize  = "resize"
	PTYRestart = "restart"
)

// PTYControl is a text frame that steers a kernel pseudo-terminal
type PTYControl struct {
	Type string `json:"type"`
	Rows int    `json:"rows,omitempty"`
	Cols int    `json:"cols,omitempty"`
}

// ResizeFrame returns the encoded resize control frame
func ResizeFrame(rows, cols int) []byte {
	b, _ := json.Marshal(PTYControl{Type: PTYResize, Rows: rows, Cols: cols})
	return b
}

// RestartFrame returns the encoded restart control frame
func RestartFrame() []byte {
	b, _ := json.Marshal(PTYControl{Type: PTYRestart})
	return b
}
