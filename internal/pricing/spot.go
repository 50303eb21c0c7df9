package pricing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// DefaultSpotDiscount is the fraction of the on-demand price charged for
// discounted capacity when no market data is available
const DefaultSpotDiscount = 0.7

// SpotSource compares discounted and on-demand capacity for a shape
type SpotSource interface {
	SpotQuote(ctx context.Context, provider types.Provider, region string, shape types.ResourceShape) (types.SpotQuote, error)
}

// DiscountSpotSource prices discounted capacity as a fixed fraction of the
// tracker's on-demand price
type DiscountSpotSource struct {
	tracker *Tracker
	factor  float64
}

// NewDiscountSpotSource creates a discount-factor spot source. A factor
// outside (0, 1] falls back to DefaultSpotDiscount.
func NewDiscountSpotSource(tracker *Tracker, factor float64) *DiscountSpotSource {
	if factor <= 0 || factor > 1 {
		factor = DefaultSpotDiscount
	}
	return &DiscountSpotSource{tracker: tracker, factor: factor}
}

// SpotQuote implements SpotSource
func (s *DiscountSpotSource) SpotQuote(_ context.Context, provider types.Provider, region string, shape types.ResourceShape) (types.SpotQuote, error) {
	onDemand, err := s.tracker.Price(provider, region, shape)
	if err != nil {
		return types.SpotQuote{}, err
	}
	return types.SpotQuote{
		Available:     true,
		SpotPrice:     onDemand * s.factor,
		OnDemandPrice: onDemand,
	}, nil
}

// EC2SpotAPI is the subset of the EC2 client used for spot prices
type EC2SpotAPI interface {
	DescribeSpotPriceHistory(ctx context.Context, in *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

// instanceType is an EC2 size with its on-demand list price in us-east-1
type instanceType struct {
	Name      ec2types.InstanceType
	CPU       float64
	MemoryGiB float64
	GPU       float64
	OnDemand  float64
}

// instanceTypes is ordered smallest first
var instanceTypes = []instanceType{
	{Name: ec2types.InstanceTypeT3Medium, CPU: 2, MemoryGiB: 4, OnDemand: 0.0416},
	{Name: ec2types.InstanceTypeM5Large, CPU: 2, MemoryGiB: 8, OnDemand: 0.096},
	{Name: ec2types.InstanceTypeM5Xlarge, CPU: 4, MemoryGiB: 16, OnDemand: 0.192},
	{Name: ec2types.InstanceTypeM52xlarge, CPU: 8, MemoryGiB: 32, OnDemand: 0.384},
	{Name: ec2types.InstanceTypeM54xlarge, CPU: 16, MemoryGiB: 64, OnDemand: 0.768},
	{Name: ec2types.InstanceTypeG4dnXlarge, CPU: 4, MemoryGiB: 16, GPU: 1, OnDemand: 0.526},
	{Name: ec2types.InstanceTypeG4dn12xlarge, CPU: 48, MemoryGiB: 192, GPU: 4, OnDemand: 3.912},
}

// fittingInstance returns the cheapest instance type that holds the shape
func fittingInstance(shape types.ResourceShape) (instanceType, bool) {
	var (
		best  instanceType
		found bool
	)
	for _, it := range instanceTypes {
		if it.CPU < shape.CPU || it.MemoryGiB < shape.MemoryGiB || it.GPU < shape.GPU {
			continue
		}
		if !found || it.OnDemand < best.OnDemand {
			best, found = it, true
		}
	}
	return best, found
}

// EC2SpotSource reads the spot market for the smallest instance type that
// fits a shape and applies its spot/on-demand ratio to the tracker's price.
// Non-AWS providers use the fallback source.
type EC2SpotSource struct {
	client   EC2SpotAPI
	tracker  *Tracker
	fallback SpotSource
	now      func() time.Time
}

// NewEC2SpotSource creates an EC2-backed spot source
func NewEC2SpotSource(client EC2SpotAPI, tracker *Tracker, fallback SpotSource) *EC2SpotSource {
	return &EC2SpotSource{
		client:   client,
		tracker:  tracker,
		fallback: fallback,
		now:      time.Now,
	}
}

// SpotQuote implements SpotSource
func (s *EC2SpotSource) SpotQuote(ctx context.Context, provider types.Provider, region string, shape types.ResourceShape) (types.SpotQuote, error) {
	if provider != types.ProviderAWS {
		return s.fallback.SpotQuote(ctx, provider, region, shape)
	}

	onDemand, err := s.tracker.Price(provider, region, shape)
	if err != nil {
		return types.SpotQuote{}, err
	}

	it, ok := fittingInstance(shape)
	if !ok {
		return types.SpotQuote{Available: false, OnDemandPrice: onDemand}, nil
	}

	out, err := s.client.DescribeSpotPriceHistory(ctx, &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       []ec2types.InstanceType{it.Name},
		ProductDescriptions: []string{"Linux/UNIX"},
		StartTime:           aws.Time(s.now().Add(-time.Hour)),
		MaxResults:          aws.Int32(20),
	}, func(o *ec2.Options) {
		o.Region = region
	})
	if err != nil {
		return types.SpotQuote{}, fmt.Errorf("describe spot price history: %w", err)
	}

	spot, ok := latestSpotPrice(out.SpotPriceHistory)
	if !ok {
		logger.Log.Debugw("no spot price history", "instance_type", it.Name, "region", region)
		return types.SpotQuote{Available: false, OnDemandPrice: onDemand}, nil
	}

	return types.SpotQuote{
		Available:     true,
		SpotPrice:     onDemand * spot / it.OnDemand,
		OnDemandPrice: onDemand,
	}, nil
}

// latestSpotPrice returns the lowest price among the most recent observations
// across availability zones
func latestSpotPrice(history []ec2types.SpotPrice) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}

	sort.Slice(history, func(i, j int) bool {
		return aws.ToTime(history[i].Timestamp).After(aws.ToTime(history[j].Timestamp))
	})

	seen := make(map[string]bool)
	best, found := 0.0, false
	for _, sp := range history {
		zone := aws.ToString(sp.AvailabilityZone)
		if seen[zone] {
			continue
		}
		seen[zone] = true

		price, err := strconv.ParseFloat(aws.ToString(sp.SpotPrice), 64)
		if err != nil || price <= 0 {
			continue
		}
		if !found || price < best {
			best, found = price, true
		}
	}
	return best, found
}
