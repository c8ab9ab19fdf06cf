package querier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"

	"jcosta/tsquery/config"
)

// Client is the part of the Timestream Query API the runner needs.
type Client interface {
	timestreamquery.QueryAPIClient
	DescribeEndpoints(ctx context.Context, params *timestreamquery.DescribeEndpointsInput, optFns ...func(*timestreamquery.Options)) (*timestreamquery.DescribeEndpointsOutput, error)
}

// Connector builds a Client bound to a fixed base endpoint.
type Connector func(ctx context.Context, baseEndpoint string) (Client, error)

// NewConnector returns a Connector that signs requests for the configured
// region with either static credentials or the SDK default chain. The SDK's
// own endpoint discovery is turned off: every client talks to exactly the
// endpoint it was built for.
func NewConnector(settings config.AWS) Connector {
	return func(ctx context.Context, baseEndpoint string) (Client, error) {
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(settings.Region),
		}
		if settings.HasStaticCredentials() {
			creds := credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, settings.SessionToken)
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
		}

		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		return timestreamquery.NewFromConfig(cfg, func(o *timestreamquery.Options) {
			o.BaseEndpoint = aws.String(baseEndpoint)
			o.EndpointDiscovery.EnableEndpointDiscovery = aws.EndpointDiscoveryDisabled
		}), nil
	}
}
