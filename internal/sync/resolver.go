package sync

// Action is the conflict resolver's verdict for one pulled remote record.
type Action int

const (
	// ActionInsert creates a local record from the remote payload.
	ActionInsert Action = iota
	// ActionUpdate overwrites the local record with the remote payload.
	ActionUpdate
	// ActionIgnore keeps the local record; the remote copy is stale.
	ActionIgnore
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	default:
		return "ignore"
	}
}

// Resolve decides what to do with a pulled remote record. localStamp is the
// local record's conflict timestamp, or nil when no local record exists.
//
// Rules:
//   - No local record: insert.
//   - Initial sync: the remote is authoritative unconditionally, even when
//     its conflict timestamp is older. A newly-signed-in device converges
//     to server state instead of retaining stale or placeholder local data.
//   - Steady state: Last-Write-Wins: update iff the remote stamp is
//     strictly greater.
//
// Pure function; no I/O.
func Resolve(localStamp *int64, remoteStamp int64, initial bool) Action {
	if localStamp == nil {
		return ActionInsert
	}

	if initial {
		return ActionUpdate
	}

	if remoteStamp > *localStamp {
		return ActionUpdate
	}

	return ActionIgnore
}
