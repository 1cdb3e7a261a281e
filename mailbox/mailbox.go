// Package mailbox abstracts the bi-directional doorbell between the host
// and the co-processor. A mailbox carries no data; it only signals that one
// of the shared queues has new bytes.
package mailbox

// Callback is invoked from interrupt context when the peer rings the
// doorbell. It must do the minimum needed to wake the dispatcher: set a
// flag, execute a wake primitive, return. No queue work in interrupt
// context.
type Callback func()

// Mailbox is one end of a doorbell pair.
type Mailbox interface {
	// Send rings the peer. Non-blocking; consecutive signals may
	// coalesce.
	Send()
	// RegisterCallback installs cb to run on an inbound doorbell.
	RegisterCallback(cb Callback)
}

// Verifier is implemented by drivers that can probe their hardware.
type Verifier interface {
	VerifyHardware() error
}
