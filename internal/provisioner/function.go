package provisioner

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Lambda sizing rules
const (
	minFunctionMemoryMB = 128
	maxFunctionMemoryMB = 10240
	memoryMBPerVCPU     = 1769
	defaultTimeout      = 60
)

// MetadataCodeKey overrides the code object key of a function deployment
const MetadataCodeKey = "code_key"

// LambdaAPI is the subset of the Lambda client used by FunctionProvisioner
type LambdaAPI interface {
	CreateFunction(ctx context.Context, in *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	CreateFunctionUrlConfig(ctx context.Context, in *lambda.CreateFunctionUrlConfigInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionUrlConfigOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, in *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
	DeleteFunction(ctx context.Context, in *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
	PutFunctionConcurrency(ctx context.Context, in *lambda.PutFunctionConcurrencyInput, optFns ...func(*lambda.Options)) (*lambda.PutFunctionConcurrencyOutput, error)
	DeleteFunctionConcurrency(ctx context.Context, in *lambda.DeleteFunctionConcurrencyInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionConcurrencyOutput, error)
}

// FunctionConfig holds function provisioner settings
type FunctionConfig struct {
	RoleARN    string
	CodeBucket string
	CodePrefix string
	Runtime    string
	Handler    string
}

// FunctionProvisioner runs deployments as Lambda functions with a function URL.
// Hibernation pins reserved concurrency to zero.
type FunctionProvisioner struct {
	client LambdaAPI
	cfg    FunctionConfig
}

// NewFunctionProvisioner creates a function provisioner
func NewFunctionProvisioner(client LambdaAPI, cfg FunctionConfig) *FunctionProvisioner {
	if cfg.Runtime == "" {
		cfg.Runtime = string(lambdatypes.RuntimePython312)
	}
	if cfg.Handler == "" {
		cfg.Handler = "handler.predict"
	}
	return &FunctionProvisioner{client: client, cfg: cfg}
}

// FunctionName returns the Lambda function name of a deployment
func FunctionName(d *types.Deployment) string {
	return "modelctl-" + ObjectName(d)
}

// Deploy creates the function and its URL
func (p *FunctionProvisioner) Deploy(ctx context.Context, d *types.Deployment) (string, error) {
	name := FunctionName(d)
	memory, timeout := functionSize(d.Resources)

	_, err := p.client.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(name),
		Role:         aws.String(p.cfg.RoleARN),
		PackageType:  lambdatypes.PackageTypeZip,
		Runtime:      lambdatypes.Runtime(p.cfg.Runtime),
		Handler:      aws.String(p.cfg.Handler),
		Code: &lambdatypes.FunctionCode{
			S3Bucket: aws.String(p.cfg.CodeBucket),
			S3Key:    aws.String(p.codeKey(d)),
		},
		MemorySize: aws.Int32(memory),
		Timeout:    aws.Int32(timeout),
		Environment: &lambdatypes.Environment{Variables: map[string]string{
			"MODEL_ID":   d.ModelID,
			"MODEL_KIND": string(d.ModelKind),
		}},
		Tags: map[string]string{
			LabelManaged:      "true",
			LabelDeploymentID: d.ID,
			LabelName:         d.Name,
		},
	})
	if err != nil {
		var exists *lambdatypes.ResourceConflictException
		if !errors.As(err, &exists) {
			return "", fmt.Errorf("create function %s: %w", name, err)
		}
		if err := p.Update(ctx, d); err != nil {
			return "", err
		}
	}

	out, err := p.client.CreateFunctionUrlConfig(ctx, &lambda.CreateFunctionUrlConfigInput{
		FunctionName: aws.String(name),
		AuthType:     lambdatypes.FunctionUrlAuthTypeAwsIam,
	})
	if err != nil {
		return "", fmt.Errorf("create function url %s: %w", name, err)
	}

	url := aws.ToString(out.FunctionUrl)
	logger.Log.Infow("function deployment created", "deployment_id", d.ID, "function", name, "url", url)
	return url, nil
}

// Update applies the deployment's memory and timeout
func (p *FunctionProvisioner) Update(ctx context.Context, d *types.Deployment) error {
	name := FunctionName(d)
	memory, timeout := functionSize(d.Resources)

	_, err := p.client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(name),
		MemorySize:   aws.Int32(memory),
		Timeout:      aws.Int32(timeout),
	})
	if err != nil {
		return fmt.Errorf("update function %s: %w", name, err)
	}
	return nil
}

// Delete removes the function
func (p *FunctionProvisioner) Delete(ctx context.Context, d *types.Deployment) error {
	name := FunctionName(d)

	_, err := p.client.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(name)})
	if err != nil {
		var missing *lambdatypes.ResourceNotFoundException
		if errors.As(err, &missing) {
			return nil
		}
		return fmt.Errorf("delete function %s: %w", name, err)
	}

	logger.Log.Infow("function deployment deleted", "deployment_id", d.ID, "function", name)
	return nil
}

// Hibernate blocks invocations by reserving zero concurrency
func (p *FunctionProvisioner) Hibernate(ctx context.Context, d *types.Deployment) error {
	name := FunctionName(d)

	_, err := p.client.PutFunctionConcurrency(ctx, &lambda.PutFunctionConcurrencyInput{
		FunctionName:                 aws.String(name),
		ReservedConcurrentExecutions: aws.Int32(0),
	})
	if err != nil {
		return fmt.Errorf("hibernate function %s: %w", name, err)
	}
	return nil
}

// Activate removes the zero concurrency reservation
func (p *FunctionProvisioner) Activate(ctx context.Context, d *types.Deployment) error {
	name := FunctionName(d)

	_, err := p.client.DeleteFunctionConcurrency(ctx, &lambda.DeleteFunctionConcurrencyInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("activate function %s: %w", name, err)
	}
	return nil
}

func (p *FunctionProvisioner) codeKey(d *types.Deployment) string {
	if key := d.Metadata[MetadataCodeKey]; key != "" {
		return key
	}
	if p.cfg.CodePrefix == "" {
		return d.ModelID + ".zip"
	}
	return p.cfg.CodePrefix + "/" + d.ModelID + ".zip"
}

// functionSize maps resources to Lambda memory (MB) and timeout (s).
// Lambda allots CPU in proportion to memory, so memory is raised to
// cover the requested cores.
func functionSize(r types.ResourceRequirements) (int32, int32) {
	memory := math.Max(math.Ceil(r.MemoryGiB*1024), math.Ceil(r.CPU*memoryMBPerVCPU))
	memory = math.Min(math.Max(memory, minFunctionMemoryMB), maxFunctionMemoryMB)

	timeout := r.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return int32(memory), int32(timeout)
}
