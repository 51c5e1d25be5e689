package aws

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const metricNamespace = "Intake"

// Metrics emits one CloudWatch count per terminal workflow outcome.
type Metrics struct {
	CloudWatch CloudWatchAPI
}

func NewMetrics(cw CloudWatchAPI) *Metrics {
	return &Metrics{CloudWatch: cw}
}

// CountOutcome records a single occurrence of an outcome (found, ineligible,
// mb_success, ...) for a club. Metric failures are logged, never propagated.
func (m *Metrics) CountOutcome(ctx context.Context, club, outcome string) {
	if m == nil || m.CloudWatch == nil {
		return
	}
	one := 1.0
	name := "Outcome"
	now := time.Now()
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awsString(metricNamespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Timestamp:  &now,
			Value:      &one,
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: awsString("Club"), Value: &club},
				{Name: awsString("Status"), Value: &outcome},
			},
		}},
	})
	if err != nil {
		log.Printf("[metrics] put metric failed: %v", err)
	}
}
