package model

// ProgressStatus marks a deployment progress record.
type ProgressStatus string

const (
	StatusLoading ProgressStatus = "loading"
	StatusSuccess ProgressStatus = "success"
	StatusError   ProgressStatus = "error"
)

// ProgressEvent is one record of the deployment event stream.
type ProgressEvent struct {
	Message string         `json:"message"`
	Status  ProgressStatus `json:"status"`
	Address string         `json:"address,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e ProgressEvent) Terminal() bool {
	return e.Status == StatusSuccess || e.Status == StatusError
}
