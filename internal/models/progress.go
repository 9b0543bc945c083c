package models

// ScanProgress is reported back to a remote capture rig after each frame.
type ScanProgress struct {
	Frame  int    `json:"frame"`
	Total  int    `json:"total"`
	State  string `json:"state"`
	Active int    `json:"active,omitempty"`
	Error  string `json:"error,omitempty"`
}
