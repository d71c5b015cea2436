package scs

import "fmt"

// CommResult is the outcome of one exchange on the bus.
// Exactly one result accompanies every transport operation.
type CommResult int

// Communication results.
const (
	Success      CommResult = 0
	PortBusy     CommResult = -1
	TxFail       CommResult = -2
	RxFail       CommResult = -3
	TxError      CommResult = -4
	RxWaiting    CommResult = -5
	RxTimeout    CommResult = -6
	RxCorrupt    CommResult = -7
	NotAvailable CommResult = -9
)

func (r CommResult) String() string {
	switch r {
	case Success:
		return "communication success"
	case PortBusy:
		return "port in use"
	case TxFail:
		return "TX failed"
	case RxFail:
		return "RX failed"
	case TxError:
		return "TX packet error"
	case RxWaiting:
		return "RX waiting"
	case RxTimeout:
		return "RX timeout"
	case RxCorrupt:
		return "RX corrupt"
	case NotAvailable:
		return "not available"
	default:
		return fmt.Sprintf("unknown result %d", int(r))
	}
}

// OK reports whether the exchange completed.
func (r CommResult) OK() bool {
	return r == Success
}
