package interfaces

import (
	"context"

	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// IDataSource is the running streaming daemon as seen by the control surfaces
type IDataSource interface {
	GetName() string
	Start(ctx context.Context) error
	Stop() error
	GetStatus() *models.MSessionStatus

	// WatchStatus streams connection status changes until ctx is done
	WatchStatus(ctx context.Context) <-chan models.MConnectionStatus

	// Subscriptions returns the live subscription table
	Subscriptions(ctx context.Context) ([]models.MSubscriptionInfo, error)

	// Stats returns the event counters
	Stats() models.MIngestorStats
}
