package handlers

// Failure is the response for any command that could not be carried out.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func fail(msg string) Failure {
	return Failure{Error: msg}
}

// TestConnectionResponse reports a forced flush, or a probe when the queue
// was empty.
type TestConnectionResponse struct {
	Success          bool   `json:"success"`
	TooFrequent      bool   `json:"tooFrequent,omitempty"`
	Message          string `json:"message,omitempty"`
	QueueSize        *int   `json:"queueSize,omitempty"`
	SentEvents       *int   `json:"sentEvents,omitempty"`
	RemainingInQueue *int   `json:"remainingInQueue,omitempty"`
	Error            string `json:"error,omitempty"`
}

type TrackingStatusResponse struct {
	IsTracking bool `json:"isTracking"`
	IsOnline   bool `json:"isOnline"`
}

type SetTrackingResponse struct {
	Success    bool   `json:"success"`
	IsTracking bool   `json:"isTracking"`
	Error      string `json:"error,omitempty"`
}

type ExceptionsResponse struct {
	Success          bool `json:"success"`
	Count            int  `json:"count"`
	RemovedFromQueue int  `json:"removedFromQueue"`
}

type BackendURLResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
