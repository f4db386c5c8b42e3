// Package dashboards fetches a user's saved dashboards from the Moonstream
// API and caches the list per access token.
package dashboards

import (
	"errors"
	"time"
)

// Dashboards errors.
var (
	ErrNoToken = errors.New("no access token")
	ErrDecode  = errors.New("malformed dashboards response")
)

// Dashboard is one entry of the API's dashboard list.
type Dashboard struct {
	ID            string       `json:"id" msgpack:"id"`
	ApplicationID string       `json:"application_id,omitempty" msgpack:"application_id,omitempty"`
	ResourceData  ResourceData `json:"resource_data" msgpack:"resource_data"`
	CreatedAt     time.Time    `json:"created_at,omitempty" msgpack:"created_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at,omitempty" msgpack:"updated_at,omitempty"`
}

// ResourceData holds the user-facing fields of a dashboard.
type ResourceData struct {
	Name string `json:"name" msgpack:"name"`
}

// Name is a shortcut for ResourceData.Name.
func (d Dashboard) Name() string {
	return d.ResourceData.Name
}

// ListResponse is the body of GET /dashboards/.
type ListResponse struct {
	Resources []Dashboard `json:"resources"`
}

// Status tags a State.
type Status int

const (
	NotLoaded Status = iota
	Loading
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is what the sidebar knows about the dashboard list. Only the field
// matching Status is meaningful: Dashboards for Loaded, Err for Failed.
// The zero value is NotLoaded.
type State struct {
	Status     Status
	Dashboards []Dashboard
	Err        error
}

// LoadingState marks a fetch in flight.
func LoadingState() State {
	return State{Status: Loading}
}

// LoadedState carries a fetched list. A nil list is an empty one.
func LoadedState(list []Dashboard) State {
	if list == nil {
		list = []Dashboard{}
	}
	return State{Status: Loaded, Dashboards: list}
}

// FailedState carries the error of the last fetch.
func FailedState(err error) State {
	return State{Status: Failed, Err: err}
}

// Result is the outcome of an asynchronous fetch, delivered to the
// component that started it.
type Result struct {
	// Seq matches the result to the fetch that produced it.
	Seq        uint64
	Dashboards []Dashboard
	Err        error
}

// State converts the result to a Loaded or Failed state.
func (r Result) State() State {
	if r.Err != nil {
		return FailedState(r.Err)
	}
	return LoadedState(r.Dashboards)
}
