package udptracker

type action int32

// udp tracker action
const (
	actionConnect  action = 0
	actionAnnounce action = 1
	actionError    action = 3
)

func (a action) String() string {
	switch a {
	case actionConnect:
		return "connect"
	case actionAnnounce:
		return "announce"
	case actionError:
		return "error"
	default:
		return "unknown"
	}
}
