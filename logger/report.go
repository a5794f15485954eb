package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var (
	mergedBooks      int64
	droppedUpdates   int64
	laggedMessages   int64
	subsOpened       int64
	subsClosed       int64
	components       sync.Map // map[string]*componentStat
	sourceUpdates    sync.Map // map[string]*int64
)

func componentFor(name string) *componentStat {
	v, _ := components.LoadOrStore(name, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentFor(component).errors, 1)
}

// IncrementSourceUpdate counts one snapshot accepted from source.
func IncrementSourceUpdate(source string) {
	v, _ := sourceUpdates.LoadOrStore(source, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func IncrementMerged() {
	atomic.AddInt64(&mergedBooks, 1)
}

func IncrementDropped() {
	atomic.AddInt64(&droppedUpdates, 1)
}

// IncrementLagged adds the number of messages a subscriber skipped.
func IncrementLagged(missed uint64) {
	atomic.AddInt64(&laggedMessages, int64(missed))
}

func IncrementSubscriptionOpened() {
	atomic.AddInt64(&subsOpened, 1)
}

func IncrementSubscriptionClosed() {
	atomic.AddInt64(&subsClosed, 1)
}

// Counters is a point-in-time copy of the pipeline counters.
type Counters struct {
	SourceUpdates       map[string]int64
	MergedBooks         int64
	DroppedUpdates      int64
	LaggedMessages      int64
	SubscriptionsOpened int64
	SubscriptionsClosed int64
	Warns               map[string]int64
	Errors              map[string]int64
}

func Snapshot() Counters {
	c := Counters{
		SourceUpdates:       map[string]int64{},
		MergedBooks:         atomic.LoadInt64(&mergedBooks),
		DroppedUpdates:      atomic.LoadInt64(&droppedUpdates),
		LaggedMessages:      atomic.LoadInt64(&laggedMessages),
		SubscriptionsOpened: atomic.LoadInt64(&subsOpened),
		SubscriptionsClosed: atomic.LoadInt64(&subsClosed),
		Warns:               map[string]int64{},
		Errors:              map[string]int64{},
	}
	sourceUpdates.Range(func(k, v any) bool {
		c.SourceUpdates[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		c.Warns[k.(string)] = atomic.LoadInt64(&cs.warns)
		c.Errors[k.(string)] = atomic.LoadInt64(&cs.errors)
		return true
	})
	return c
}

// StartReport begins periodic logging of runtime and pipeline statistics.
// The goroutine exits when ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPct := 0.0
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memUsedMB := 0.0
	if memStats, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(memStats.Used) / 1024 / 1024
	}

	c := Snapshot()
	active := c.SubscriptionsOpened - c.SubscriptionsClosed

	var totalUpdates int64
	for _, n := range c.SourceUpdates {
		totalUpdates += n
	}

	log.WithComponent("report").WithFields(Fields{
		"goroutines":           runtime.NumGoroutine(),
		"cpu_percent":          cpuPct,
		"memory_mb":            int64(memUsedMB),
		"source_updates":       c.SourceUpdates,
		"merged_books":         c.MergedBooks,
		"dropped_updates":      c.DroppedUpdates,
		"lagged_messages":      c.LaggedMessages,
		"active_subscriptions": active,
		"warns":                c.Warns,
		"errors":               c.Errors,
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsedMB)},
		{MetricName: aws.String("SourceUpdates"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(totalUpdates))},
		{MetricName: aws.String("MergedBooks"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.MergedBooks))},
		{MetricName: aws.String("DroppedUpdates"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.DroppedUpdates))},
		{MetricName: aws.String("SubscriberLag"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.LaggedMessages))},
		{MetricName: aws.String("ActiveSubscribers"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(active))},
	}
	for source, n := range c.SourceUpdates {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("SourceUpdates"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Source"), Value: aws.String(source)}},
			Value:      aws.Float64(float64(n)),
		})
	}

	publishMetrics(ctx, data)
}
