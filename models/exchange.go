package models

import "encoding/json"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BITSTAMP //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BitstampMessage is the envelope of every Bitstamp websocket frame.
type BitstampMessage struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	// Data is decoded lazily because its shape depends on Event.
	Data json.RawMessage `json:"data"`
}

// BitstampBookData is the payload of an order_book channel data event.
type BitstampBookData struct {
	Timestamp      string     `json:"timestamp"`
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BYBIT /////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BybitBookResp mirrors the result object of GET /v5/market/orderbook.
type BybitBookResp struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	Ts       int64      `json:"ts"`
	UpdateID int64      `json:"u"`
}

