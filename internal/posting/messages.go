package posting

import (
	"fmt"

	"posterbot/internal/content"
)

const (
	MsgQueueEmpty    = "Scheduled posting time is due, but there are no posts in queue to post."
	MsgPostDelivered = "Your post was sent to the channel."
)

// deliveredMessage is the summary sent to the owner after a delivery.
// st must be computed after the delivered item was marked.
func deliveredMessage(st content.Stats) string {
	return fmt.Sprintf(
		"%s Remaining posts in queue: %d (finished: %d, unpolished: %d, draft: %d)",
		MsgPostDelivered, st.Pending(), st.Finished, st.Unpolished, st.Draft,
	)
}
