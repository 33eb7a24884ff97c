package domain

import "time"

// DefaultName is used when an endpoint is registered without a name.
const DefaultName = "default"

type EndpointID string

// Endpoint is one monitored service. Only Status changes after creation.
type Endpoint struct {
	ID     EndpointID `json:"id"`
	URL    string     `json:"url"`
	Name   string     `json:"name"`
	Added  time.Time  `json:"added"`
	Status Status     `json:"status"`
}

// NewEndpoint builds an unsaved endpoint with the sentinel name applied.
func NewEndpoint(url, name string) Endpoint {
	if name == "" {
		name = DefaultName
	}
	return Endpoint{
		URL:    url,
		Name:   name,
		Added:  time.Now().UTC(),
		Status: StatusUnknown,
	}
}
