// Package awscloud instantiates the discovery adapter for AWS account
// inventories. The service mapping and rule tables are plain data; the
// generic scanner does the rest.
package awscloud

import (
	"log/slog"

	"resource-graph/internal/discovery"
	"resource-graph/pkg/api"
)

const Provider = "aws"

// Mappings lists, per resource type, the EC2/S3 operation to invoke and the
// response fields carrying identity. Item paths use fieldpath grammar, so
// the doubly nested DescribeInstances response flattens in the table itself.
var Mappings = []discovery.ServiceMapping{
	{
		Type:          api.ResourceNetwork,
		Service:       "ec2",
		Operation:     "DescribeVpcs",
		ItemsField:    "Vpcs",
		IDField:       "VpcId",
		NameTag:       "Tags[Name]",
		StatusField:   "State",
		TagPairsField: "Tags",
	},
	{
		Type:          api.ResourceSubnet,
		Service:       "ec2",
		Operation:     "DescribeSubnets",
		ItemsField:    "Subnets",
		IDField:       "SubnetId",
		NameTag:       "Tags[Name]",
		RefField:      "SubnetArn",
		StatusField:   "State",
		RegionField:   "AvailabilityZone",
		TagPairsField: "Tags",
	},
	{
		Type:          api.ResourceSecurityGroup,
		Service:       "ec2",
		Operation:     "DescribeSecurityGroups",
		ItemsField:    "SecurityGroups",
		IDField:       "GroupId",
		NameField:     "GroupName",
		NameTag:       "Tags[Name]",
		TagPairsField: "Tags",
	},
	{
		Type:          api.ResourceComputeInstance,
		Service:       "ec2",
		Operation:     "DescribeInstances",
		ItemsField:    "Reservations[].Instances[]",
		IDField:       "InstanceId",
		NameTag:       "Tags[Name]",
		ShapeField:    "InstanceType",
		StatusField:   "State.Name",
		CreatedField:  "LaunchTime",
		TagPairsField: "Tags",
		DNSField:      "PublicDnsName",
		IPField:       "PublicIpAddress",
	},
	{
		Type:          api.ResourceBlockVolume,
		Service:       "ec2",
		Operation:     "DescribeVolumes",
		ItemsField:    "Volumes",
		IDField:       "VolumeId",
		NameTag:       "Tags[Name]",
		ShapeField:    "VolumeType",
		StatusField:   "State",
		CreatedField:  "CreateTime",
		RegionField:   "AvailabilityZone",
		TagPairsField: "Tags",
	},
	{
		Type:         api.ResourceStorageBucket,
		Service:      "s3",
		Operation:    "ListBuckets",
		ItemsField:   "Buckets",
		IDField:      "Name",
		NameField:    "Name",
		CreatedField: "CreationDate",
		ShapeField:   "StorageClass",
	},
}

// Rules infers edges from listing response fields.
var Rules = []api.RelationshipRule{
	{
		SourceType:    api.ResourceSubnet,
		Field:         "VpcId",
		TargetType:    api.ResourceNetwork,
		Relationship:  api.RelRunsIn,
		Bidirectional: true,
	},
	{
		SourceType:   api.ResourceSecurityGroup,
		Field:        "VpcId",
		TargetType:   api.ResourceNetwork,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceComputeInstance,
		Field:        "SubnetId",
		TargetType:   api.ResourceSubnet,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:    api.ResourceComputeInstance,
		Field:         "SecurityGroups[].GroupId",
		TargetType:    api.ResourceSecurityGroup,
		Relationship:  api.RelSecuredBy,
		Bidirectional: true,
	},
	{
		SourceType:   api.ResourceComputeInstance,
		Field:        "BlockDeviceMappings[].Ebs.VolumeId",
		TargetType:   api.ResourceBlockVolume,
		Relationship: api.RelUses,
	},
	{
		SourceType:   api.ResourceBlockVolume,
		Field:        "Attachments[].InstanceId",
		TargetType:   api.ResourceComputeInstance,
		Relationship: api.RelUsedBy,
	},
}

// NewAdapter builds the AWS adapter over any resource lister. Production
// callers pass NewSDKLister; tests pass fakes.
func NewAdapter(lister discovery.ResourceLister, logger *slog.Logger) *discovery.Scanner {
	return discovery.NewScanner(Provider, "aws-inventory", lister, Mappings, Rules, logger)
}
