package external

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"expirywatch/internal/types"
)

// cloudwatchAPI is the subset of the CloudWatch SDK client used by the sink.
// This interface enables testing with a mock client.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetricsSink implements MetricsSink by publishing one datum per
// run counter, dimensioned by job type.
type CloudWatchMetricsSink struct {
	client    cloudwatchAPI
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetricsSink creates a sink publishing under the given namespace.
func NewCloudWatchMetricsSink(client *cloudwatch.Client, namespace string, logger *slog.Logger) *CloudWatchMetricsSink {
	return newCloudWatchMetricsSink(client, namespace, logger)
}

// newCloudWatchMetricsSink accepts the narrow API interface for testing.
func newCloudWatchMetricsSink(client cloudwatchAPI, namespace string, logger *slog.Logger) *CloudWatchMetricsSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetricsSink{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordJobRun publishes the Checked/Alerted/Sent/Failed counters for one
// job run. A metrics failure is reported to the caller but callers treat it
// as non-fatal; losing a datapoint must never fail a run.
func (m *CloudWatchMetricsSink) RecordJobRun(ctx context.Context, jobType string, summary types.RunSummary) error {
	now := time.Now().UTC()
	dims := []cwtypes.Dimension{
		{Name: aws.String("JobType"), Value: aws.String(jobType)},
	}

	datum := func(name string, value int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Timestamp:  aws.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(value)),
		}
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum("RecordsChecked", summary.Checked),
			datum("AlertsDue", summary.Alerted),
			datum("AlertsSent", summary.Sent),
			datum("AlertsFailed", summary.Failed),
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to publish job metrics", err)
	}
	return nil
}

var _ MetricsSink = (*CloudWatchMetricsSink)(nil)
