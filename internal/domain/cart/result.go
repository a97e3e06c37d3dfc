package cart

// Status classifies the outcome of a cart operation.
type Status int

const (
	StatusOK Status = iota
	StatusInsufficientStock
	StatusNotFound
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInsufficientStock:
		return "insufficient_stock"
	case StatusNotFound:
		return "not_found"
	case StatusFault:
		return "fault"
	default:
		return "unknown"
	}
}

// User-facing messages attached to non-OK results.
const (
	MsgOutOfStock  = "Requested quantity is out of stock"
	MsgAddFault    = "Error adding product"
	MsgRemoveFault = "Error removing product"
	MsgUpdateFault = "Error changing product amount"
)

// Result is what every cart operation returns. Cart is the snapshot after the
// operation: the new cart on success, the untouched cart otherwise.
type Result struct {
	Status  Status
	Message string
	Cart    Cart
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}
