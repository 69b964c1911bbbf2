package viewcache

// LoadingStatus is the load state published by views.
type LoadingStatus int

const (
	StatusIdle LoadingStatus = iota
	StatusLoading
	StatusPartiallyLoaded // some pages loaded, more available
	StatusReady
	StatusError
)

func (s LoadingStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPartiallyLoaded:
		return "partially_loaded"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
