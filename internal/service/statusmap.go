package service

import "github.com/forgesync/ticketbridge/internal/port/remote"

// matchStatusTag intersects a ticket's tag set with the remote workflow's
// status names and returns the winner: the last tag in iteration order that
// names a known status. The explicit found flag keeps a winner sitting at
// status-list index 0 from being dropped.
func matchStatusTag(tags []string, statuses []remote.Status) (remote.Status, bool) {
	var (
		winner remote.Status
		found  bool
	)
	for _, tag := range tags {
		for _, st := range statuses {
			if st.Name == tag {
				winner = st
				found = true
				break
			}
		}
	}
	return winner, found
}
