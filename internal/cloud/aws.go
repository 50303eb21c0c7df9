// Package cloud loads shared AWS configuration for the provisioners,
// the spot price source and the S3 tier backend.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// LoadAWSConfig loads credentials from the default chain. An empty region
// keeps whatever the environment provides.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// IdentityAPI is the subset of STS used to check credentials
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Identity is the principal the loaded credentials resolve to
type Identity struct {
	Account string
	ARN     string
}

// VerifyIdentity resolves the caller identity, failing fast on bad credentials
func VerifyIdentity(ctx context.Context, client IdentityAPI) (*Identity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to verify AWS credentials: %w", err)
	}
	return &Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
	}, nil
}

// NewIdentityClient creates an STS client from a loaded config
func NewIdentityClient(cfg aws.Config) IdentityAPI {
	return sts.NewFromConfig(cfg)
}
