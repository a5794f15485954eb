package pb

import (
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"

	"orderflow/models"
)

func TestOrderbookWireFormat(t *testing.T) {
	book := &Orderbook{
		Spread: 1,
		Bids:   []*Level{{Exchange: "binance", Price: 100, Amount: 2}},
	}
	b, err := proto.Marshal(book)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// spread: field 1, fixed64
	num, typ, n := protowire.ConsumeTag(b)
	if num != 1 || typ != protowire.Fixed64Type {
		t.Fatalf("unexpected first field %d/%d", num, typ)
	}
	v, m := protowire.ConsumeFixed64(b[n:])
	if math.Float64frombits(v) != 1 {
		t.Fatalf("unexpected spread %v", math.Float64frombits(v))
	}
	b = b[n+m:]

	// bids: field 2, embedded Level
	num, typ, n = protowire.ConsumeTag(b)
	if num != 2 || typ != protowire.BytesType {
		t.Fatalf("unexpected second field %d/%d", num, typ)
	}
	inner, _ := protowire.ConsumeBytes(b[n:])
	num, typ, n = protowire.ConsumeTag(inner)
	if num != 1 || typ != protowire.BytesType {
		t.Fatalf("unexpected level field %d/%d", num, typ)
	}
	if s, _ := protowire.ConsumeString(inner[n:]); s != "binance" {
		t.Fatalf("unexpected exchange %q", s)
	}
}

func TestOrderbookDecodeKeepsUnknownFields(t *testing.T) {
	book := &Orderbook{
		Spread: -0.5,
		Bids:   []*Level{{Exchange: "bitstamp", Price: 0.07, Amount: 3}},
		Asks:   []*Level{{Exchange: "binance", Price: 0.071, Amount: 0}, {Exchange: "bybit", Price: 0.072, Amount: 1}},
	}
	b, err := proto.Marshal(book)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b = protowire.AppendTag(b, 15, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)

	got := &Orderbook{}
	if err := proto.Unmarshal(b, got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.GetSpread() != -0.5 || len(got.GetBids()) != 1 || len(got.GetAsks()) != 2 {
		t.Fatalf("unexpected decode %v", got)
	}
	if a := got.GetAsks()[0]; a.GetExchange() != "binance" || a.GetPrice() != 0.071 || a.GetAmount() != 0 {
		t.Fatalf("unexpected ask %v", a)
	}
	if len(got.ProtoReflect().GetUnknown()) == 0 {
		t.Fatalf("expected unknown field to be retained")
	}
}

func TestOrderbookRejectsTruncatedInput(t *testing.T) {
	b, err := proto.Marshal(&Orderbook{Spread: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := proto.Unmarshal(b[:len(b)-1], &Orderbook{}); err == nil {
		t.Fatalf("expected error for truncated message")
	}
}

func TestFromModel(t *testing.T) {
	book := models.OrderBook{
		Spread: 1,
		Bids:   []models.Level{{Source: models.SourceBitstamp, Price: 100, Quantity: 2}},
		Asks:   []models.Level{{Source: models.SourceBinance, Price: 101, Quantity: 1}},
	}
	out := FromModel(book)
	if out.GetSpread() != 1 || out.GetBids()[0].GetExchange() != "bitstamp" || out.GetAsks()[0].GetExchange() != "binance" || out.GetBids()[0].GetAmount() != 2 {
		t.Fatalf("unexpected conversion %v", out)
	}
	if empty := FromModel(models.OrderBook{}); len(empty.GetBids()) != 0 || len(empty.GetAsks()) != 0 {
		t.Fatalf("expected empty sides, got %v", empty)
	}
}

func TestServiceDescriptorMatchesServiceName(t *testing.T) {
	if OrderbookAggregator_ServiceDesc.ServiceName != ServiceName {
		t.Fatalf("service desc name %q, want %q", OrderbookAggregator_ServiceDesc.ServiceName, ServiceName)
	}
	svc := File_api_pb_orderbook_proto.Services().ByName("OrderbookAggregator")
	if svc == nil || string(svc.FullName()) != ServiceName {
		t.Fatalf("descriptor missing service %s", ServiceName)
	}
	if m := svc.Methods().ByName("Summary"); m == nil || !m.IsStreamingServer() || m.IsStreamingClient() {
		t.Fatalf("Summary should be server streaming only")
	}
}
