package cloudsync

import "budgetsync/internal/model"

// Direction is which side of a sync wins.
type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

// Decision is the chosen direction and the rule that chose it.
type Decision struct {
	Direction Direction
	Reason    string
}

// Decide picks the sync direction for local and cloud state. cloud is nil
// when the remote holds no readable snapshot. shared marks a device that
// joined an existing budget, which prefers downloading whenever the choice
// is not clear cut.
func Decide(local, cloud *model.SyncPayload, shared bool) Decision {
	localItems, cloudItems := local.ItemCount(), cloud.ItemCount()
	hasLocal, hasCloud := localItems > 0, cloudItems > 0

	switch {
	case hasCloud && !hasLocal:
		return Decision{DirectionDownload, "only cloud has data"}
	case hasLocal && !hasCloud:
		return Decision{DirectionUpload, "only local has data"}
	case !hasLocal && !hasCloud:
		if shared {
			return Decision{DirectionDownload, "no data anywhere, shared budget prefers download"}
		}
		return Decision{DirectionUpload, "no data anywhere, new budget uploads empty state"}
	}

	switch {
	case cloud.LastModified == 0:
		return Decision{DirectionUpload, "cloud has no timestamp"}
	case local.LastModified == 0:
		return Decision{DirectionDownload, "local has no timestamp"}
	case shared && cloudItems > localItems:
		return Decision{DirectionDownload, "shared budget and cloud has more records"}
	case local.LastModified > cloud.LastModified:
		return Decision{DirectionUpload, "local is newer"}
	case cloud.LastModified > local.LastModified:
		return Decision{DirectionDownload, "cloud is newer"}
	default:
		return Decision{DirectionUpload, "same timestamp"}
	}
}
