package protocol

// WebSocket event names pushed from server to client.
const (
	EventSnapshotCompleted = "snapshot.completed"
	EventConfigReloaded    = "config.reloaded"
	EventShutdown          = "shutdown"
)
