package job

type SlotStatus int

const (
	SlotQueued SlotStatus = iota
	SlotDownloading
	SlotPaused
	SlotCompleted
	SlotFailed
)

func (s SlotStatus) String() string {
	switch s {
	case SlotQueued:
		return "Queued"
	case SlotDownloading:
		return "Downloading"
	case SlotPaused:
		return "Paused"
	case SlotCompleted:
		return "Completed"
	case SlotFailed:
		return "Failed"
	}
	return "Unknown"
}

// History reports the terminal states.
func (s SlotStatus) History() bool {
	return s == SlotCompleted || s == SlotFailed
}

type CommandStatus int32

const (
	CommandQueued CommandStatus = iota
	CommandDownloading
	CommandCompleted
	CommandMissing
	CommandFailed
)

func (s CommandStatus) String() string {
	switch s {
	case CommandQueued:
		return "Queued"
	case CommandDownloading:
		return "Downloading"
	case CommandCompleted:
		return "Completed"
	case CommandMissing:
		return "Missing"
	case CommandFailed:
		return "Failed"
	}
	return "Unknown"
}
