package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchOptions selects the region, namespace and credentials used to
// publish report metrics. Empty keys fall back to the default AWS chain.
type CloudWatchOptions struct {
	Region          string
	Namespace       string
	Dashboard       string
	AccessKeyID     string
	SecretAccessKey string
}

type metricPublisher interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var (
	cwMu        sync.RWMutex
	cwClient    metricPublisher
	cwNamespace = "Orderflow"
)

// InitCloudWatch creates the CloudWatch client and the default dashboard.
// Failures leave publishing disabled; they never stop the process.
func InitCloudWatch(ctx context.Context, opts CloudWatchOptions) error {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws configuration: %w", err)
	}

	client := cloudwatch.NewFromConfig(cfg)

	cwMu.Lock()
	cwClient = client
	if opts.Namespace != "" {
		cwNamespace = opts.Namespace
	}
	namespace := cwNamespace
	cwMu.Unlock()

	GetLogger().WithComponent("cloudwatch").WithFields(Fields{
		"region":    opts.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")

	if opts.Dashboard != "" {
		createDashboard(ctx, client, opts.Dashboard, namespace)
	}
	return nil
}

// publishMetrics sends data to CloudWatch when a client has been initialised.
func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	log := GetLogger().WithComponent("cloudwatch")

	cwMu.RLock()
	client, namespace := cwClient, cwNamespace
	cwMu.RUnlock()

	if client == nil || len(data) == 0 {
		return
	}

	if _, err := client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: data,
	}); err != nil {
		log.WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}
	log.WithFields(Fields{"metrics": strings.Join(names, ",")}).Debug("published metrics to CloudWatch")
}

func createDashboard(ctx context.Context, client *cloudwatch.Client, name, namespace string) {
	body := fmt.Sprintf(`{
"widgets": [{
"type": "metric",
"width": 24,
"height": 6,
"properties": {
"metrics": [
    ["%[1]s","SourceUpdates"],
    ["%[1]s","MergedBooks"],
    ["%[1]s","DroppedUpdates"],
    ["%[1]s","SubscriberLag"],
    ["%[1]s","ActiveSubscribers"]
],
"period": 60,
"stat": "Sum",
"title": "Orderflow pipeline"
}
}]
}`, namespace)

	if _, err := client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(name),
		DashboardBody: aws.String(body),
	}); err != nil {
		GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}
