package monitoring

import (
	"context"
	"errors"
	"fmt"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// TimeSeriesLister is the part of the Cloud Monitoring metric client the
// provider needs.
type TimeSeriesLister interface {
	ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest) SeriesIterator
}

type SeriesIterator interface {
	Next() (*monitoringpb.TimeSeries, error)
}

type GCPProvider struct {
	lister TimeSeriesLister
	closer func() error
}

func NewGCPProvider(ctx context.Context, opts ...option.ClientOption) (*GCPProvider, error) {
	client, err := monitoring.NewMetricClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric client: %w", err)
	}
	return &GCPProvider{lister: metricClientLister{client: client}, closer: client.Close}, nil
}

// NewProviderWithLister builds a provider over an arbitrary lister.
func NewProviderWithLister(lister TimeSeriesLister) *GCPProvider {
	return &GCPProvider{lister: lister}
}

func (p *GCPProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	if err := p.closer(); err != nil {
		return fmt.Errorf("close metric client: %w", err)
	}
	return nil
}

func (p *GCPProvider) Query(ctx context.Context, q Query) (TimeSeries, error) {
	req := buildRequest(q)
	iter := p.lister.ListTimeSeries(ctx, req)
	out := TimeSeries{}
	for {
		ts, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, ErrNotFound
			}
			return nil, &ProviderError{Filter: q.Filter, Err: err}
		}
		for _, point := range ts.GetPoints() {
			out.add(pointTimestamp(point), pointValue(point))
		}
	}
	return out, nil
}

func buildRequest(q Query) *monitoringpb.ListTimeSeriesRequest {
	start := AlignMinute(q.Start.Unix())
	end := AlignMinute(q.End.Unix())
	return &monitoringpb.ListTimeSeriesRequest{
		Name:   fmt.Sprintf("projects/%s", q.Project),
		Filter: q.Filter,
		Interval: &monitoringpb.TimeInterval{
			StartTime: &timestamppb.Timestamp{Seconds: start},
			EndTime:   &timestamppb.Timestamp{Seconds: end},
		},
		Aggregation: &monitoringpb.Aggregation{
			AlignmentPeriod:  durationpb.New(AlignmentPeriod),
			PerSeriesAligner: monitoringpb.Aggregation_ALIGN_SUM,
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}
}

func pointTimestamp(point *monitoringpb.Point) int64 {
	interval := point.GetInterval()
	if start := interval.GetStartTime(); start != nil && start.GetSeconds() > 0 {
		return start.GetSeconds()
	}
	return interval.GetEndTime().GetSeconds() - int64(AlignmentPeriod.Seconds())
}

func pointValue(point *monitoringpb.Point) float64 {
	if point.GetValue() == nil {
		return 0
	}
	switch v := point.GetValue().GetValue().(type) {
	case *monitoringpb.TypedValue_DoubleValue:
		return v.DoubleValue
	case *monitoringpb.TypedValue_Int64Value:
		return float64(v.Int64Value)
	default:
		return 0
	}
}

type metricClientLister struct {
	client *monitoring.MetricClient
}

func (l metricClientLister) ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest) SeriesIterator {
	return l.client.ListTimeSeries(ctx, req)
}
