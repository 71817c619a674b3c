package bitget

import "encoding/json"

const (
	DefaultWSURL   = "wss://ws.bitget.com/v2/ws/public"
	DefaultRESTURL = "https://api.bitget.com"
	Exchange       = "BITGET"

	InstTypeSpot    = "SPOT"
	InstTypeFutures = "USDT-FUTURES"

	booksChannel = "books15"
)

// subscribeRequest Structure
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstId   string `json:"instId"`
}

// pushMessage is any push on the public stream: data pushes and
// subscribe/error acks share the envelope.
type pushMessage struct {
	Event  string          `json:"event"` // subscribe, error
	Code   json.Number     `json:"code"`
	Msg    string          `json:"msg"`
	Action string          `json:"action"` // snapshot
	Arg    subscribeArg    `json:"arg"`
	Data   []booksSnapshot `json:"data"`
}

// booksSnapshot levels are [price, size] string pairs.
type booksSnapshot struct {
	Asks     [][2]string `json:"asks"`
	Bids     [][2]string `json:"bids"`
	Checksum int64       `json:"checksum"`
	Seq      int64       `json:"seq"`
	Ts       string      `json:"ts"`
}

// apiResponse is the REST envelope; Code "00000" means success.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type spotSymbol struct {
	Symbol            string `json:"symbol"`
	PricePrecision    string `json:"pricePrecision"`
	QuantityPrecision string `json:"quantityPrecision"`
}

type contractSymbol struct {
	Symbol      string `json:"symbol"`
	PricePlace  string `json:"pricePlace"`
	VolumePlace string `json:"volumePlace"`
}
