package awscloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"resource-graph/internal/discovery"
)

// SDKLister serves listing operations with the AWS SDK. Credential
// resolution stays with the SDK's default chain; this type only turns
// typed responses into the raw record maps the scanner consumes.
type SDKLister struct {
	cfg aws.Config
}

func NewSDKLister(ctx context.Context) (*SDKLister, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SDKLister{cfg: cfg}, nil
}

// Ping verifies the account is reachable at all.
func (l *SDKLister) Ping(ctx context.Context) error {
	client := ec2.NewFromConfig(l.cfg)
	_, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{MaxResults: aws.Int32(5)})
	return err
}

func (l *SDKLister) List(ctx context.Context, desc discovery.TypeDescriptor, token string) (*discovery.Page, error) {
	ec2Client := ec2.NewFromConfig(l.cfg, func(o *ec2.Options) {
		if desc.Region != "" {
			o.Region = desc.Region
		}
	})

	var next *string
	if token != "" {
		next = aws.String(token)
	}

	switch desc.Operation {
	case "DescribeVpcs":
		out, err := ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{NextToken: next})
		if err != nil {
			return nil, err
		}
		return toPage(out, out.NextToken)

	case "DescribeSubnets":
		out, err := ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{NextToken: next})
		if err != nil {
			return nil, err
		}
		return toPage(out, out.NextToken)

	case "DescribeSecurityGroups":
		out, err := ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{NextToken: next})
		if err != nil {
			return nil, err
		}
		return toPage(out, out.NextToken)

	case "DescribeInstances":
		out, err := ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: next})
		if err != nil {
			return nil, err
		}
		return toPage(out, out.NextToken)

	case "DescribeVolumes":
		out, err := ec2Client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{NextToken: next})
		if err != nil {
			return nil, err
		}
		return toPage(out, out.NextToken)

	case "ListBuckets":
		s3Client := s3.NewFromConfig(l.cfg, func(o *s3.Options) {
			if desc.Region != "" {
				o.Region = desc.Region
			}
		})
		out, err := s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
		if err != nil {
			return nil, err
		}
		return toPage(out, nil)

	default:
		return nil, fmt.Errorf("unsupported listing operation: %s", desc.Operation)
	}
}

// toPage flattens a typed SDK response into the loosely-typed record map
// the field path resolver operates on.
func toPage(out any, next *string) (*discovery.Page, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listing response: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode listing response: %w", err)
	}
	page := &discovery.Page{Body: body}
	if next != nil {
		page.NextToken = *next
	}
	return page, nil
}
