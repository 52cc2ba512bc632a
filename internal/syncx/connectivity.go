package syncx

// Connectivity is the explicit state the engine branches on instead of
// nested fallback chains. Degraded means the last remote call failed but a
// cached snapshot is serving reads; Offline means there is no data at all
// beyond what the client itself wrote.
type Connectivity int

const (
	ConnOnline Connectivity = iota
	ConnDegraded
	ConnOffline
)

func (c Connectivity) String() string {
	switch c {
	case ConnOnline:
		return "online"
	case ConnDegraded:
		return "degraded"
	case ConnOffline:
		return "offline"
	}
	return "unknown"
}
