package interfaces

import "market-stream/src/models"

// -----------------------------------------------------------------------------
// ISender writes wire requests on the push connection.
// -----------------------------------------------------------------------------

type ISender interface {

	// Send marshals msg and writes it; fails when not connected
	Send(msg interface{}) error

	// -----------------------------------------------------------------------------

	State() models.ConnectionState
}
