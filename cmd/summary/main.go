// Command summary subscribes to an orderflow server and prints each merged
// book it receives.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"orderflow/api/pb"
	"orderflow/logger"
)

func main() {
	log := logger.GetLogger()

	addr := flag.String("addr", "[::1]:10000", "Address of the orderflow gRPC endpoint")
	limit := flag.Int("limit", 0, "Stop after this many books (0 means no limit)")
	format := flag.String("format", "text", "Log format: text or json")
	flag.Parse()

	if err := log.Configure("info", *format, "stdout", 0, false); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.WithError(err).Error("failed to create client")
		os.Exit(1)
	}
	defer conn.Close()

	if err := run(ctx, pb.NewOrderbookAggregatorClient(conn), *limit, log); err != nil {
		log.WithError(err).WithFields(logger.Fields{"address": *addr}).Error("summary stream ended")
		os.Exit(1)
	}
}

func run(ctx context.Context, client pb.OrderbookAggregatorClient, limit int, log *logger.Log) error {
	stream, err := client.Summary(ctx, &pb.Empty{})
	if err != nil {
		return err
	}

	for received := 0; limit <= 0 || received < limit; received++ {
		book, err := stream.Recv()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case status.Code(err) == codes.Canceled && ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		fields := logger.Fields{
			"spread": book.GetSpread(),
			"bids":   len(book.GetBids()),
			"asks":   len(book.GetAsks()),
		}
		if bids := book.GetBids(); len(bids) > 0 {
			fields["best_bid"] = bids[0].GetPrice()
			fields["best_bid_exchange"] = bids[0].GetExchange()
		}
		if asks := book.GetAsks(); len(asks) > 0 {
			fields["best_ask"] = asks[0].GetPrice()
			fields["best_ask_exchange"] = asks[0].GetExchange()
		}
		log.WithComponent("summary").WithFields(fields).Info("orderbook")
	}
	return nil
}
