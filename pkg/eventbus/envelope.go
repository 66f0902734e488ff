package eventbus

import "encoding/json"

const Source = "com.retailer.orders"

// Detail types routed by the channel to the stage that consumes them.
const (
	DetailOrderCreated          = "OrderCreated"
	DetailStockValidated        = "StockValidated"
	DetailStockValidationFailed = "StockValidationFailed"
	DetailInventoryUpdated      = "InventoryUpdated"
)

// Envelope is the only thing stages exchange: a detail type plus a
// serialized order snapshot.
type Envelope struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detailType"`
	Detail     json.RawMessage `json:"detail"`
}

func NewEnvelope(detailType string, detail any) (Envelope, error) {
	payload, err := json.Marshal(detail)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Source: Source, DetailType: detailType, Detail: payload}, nil
}
