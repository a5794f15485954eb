package pb

import "orderflow/models"

//go:generate protoc --go_out=../.. --go_opt=paths=source_relative --go-grpc_out=../.. --go-grpc_opt=paths=source_relative --proto_path=../.. api/pb/orderbook.proto

// ServiceName is the fully qualified name reported by the health service.
const ServiceName = "orderbook.OrderbookAggregator"

// FromModel converts a merged book to its wire form, resolving each
// level's source to its exchange name.
func FromModel(book models.OrderBook) *Orderbook {
	return &Orderbook{
		Spread: book.Spread,
		Bids:   levelsFromModel(book.Bids),
		Asks:   levelsFromModel(book.Asks),
	}
}

func levelsFromModel(levels []models.Level) []*Level {
	out := make([]*Level, 0, len(levels))
	for _, l := range levels {
		out = append(out, &Level{Exchange: l.Source.String(), Price: l.Price, Amount: l.Quantity})
	}
	return out
}
