// Package resolver decides which side of a diverged record wins.
//
// Resolution is last-write-wins on the record's last_modified timestamp,
// compared at whole-record granularity. There is no field-level merging:
// the winning side's full record replaces the loser.
package resolver

// Winner identifies which side of a conflict prevailed.
type Winner int

const (
	// RemoteWins means the remote record replaces the local one; the local
	// record becomes synced.
	RemoteWins Winner = iota

	// LocalWins means the local record is kept and re-queued for upload so
	// the remote converges on it next cycle.
	LocalWins
)

// String returns a human-readable representation of the winner.
func (w Winner) String() string {
	if w == LocalWins {
		return "local"
	}
	return "remote"
}

// Resolve compares the two modification timestamps (unix millis) and picks
// a winner. Equal timestamps favor the remote: accepting the remote copy is
// the convergent choice since every other device pulls the same document.
func Resolve(localModified, remoteModified int64) Winner {
	if localModified > remoteModified {
		return LocalWins
	}
	return RemoteWins
}
