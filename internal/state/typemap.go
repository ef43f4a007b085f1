package state

import "resource-graph/pkg/api"

// TypeMapping normalizes one declared type string.
type TypeMapping struct {
	Resource  api.ResourceType
	Provider  string
	NameAttr  string // type-conventional name attribute
	ShapeAttr string // attribute keying the static cost tables
}

// DefaultTypeMap maps declared type strings to normalized resource types.
// Unrecognized declared types are never dropped; they fall back to
// ResourceUnknown with the provider parsed from the declaration.
var DefaultTypeMap = map[string]TypeMapping{
	// AWS
	"aws_instance":             {api.ResourceComputeInstance, "aws", "name", "instance_type"},
	"aws_vpc":                  {api.ResourceNetwork, "aws", "name", ""},
	"aws_subnet":               {api.ResourceSubnet, "aws", "name", ""},
	"aws_security_group":       {api.ResourceSecurityGroup, "aws", "name", ""},
	"aws_s3_bucket":            {api.ResourceStorageBucket, "aws", "bucket", ""},
	"aws_ebs_volume":           {api.ResourceBlockVolume, "aws", "name", "type"},
	"aws_db_instance":          {api.ResourceDatabase, "aws", "identifier", "instance_class"},
	"aws_rds_cluster":          {api.ResourceDatabase, "aws", "cluster_identifier", "instance_class"},
	"aws_elasticache_cluster":  {api.ResourceCache, "aws", "cluster_id", "node_type"},
	"aws_lambda_function":      {api.ResourceServerlessFunction, "aws", "function_name", ""},
	"aws_sqs_queue":            {api.ResourceQueue, "aws", "name", ""},
	"aws_sns_topic":            {api.ResourceTopic, "aws", "name", ""},
	"aws_lb":                   {api.ResourceLoadBalancer, "aws", "name", "load_balancer_type"},
	"aws_alb":                  {api.ResourceLoadBalancer, "aws", "name", "load_balancer_type"},
	"aws_elb":                  {api.ResourceLoadBalancer, "aws", "name", ""},
	"aws_route53_record":       {api.ResourceDNSRecord, "aws", "name", ""},
	"aws_api_gateway_rest_api": {api.ResourceAPIGateway, "aws", "name", ""},
	"aws_iam_role":             {api.ResourceIAMRole, "aws", "name", ""},
	"aws_eks_cluster":          {api.ResourceContainerCluster, "aws", "name", ""},

	// Azure
	"azurerm_virtual_machine":        {api.ResourceComputeInstance, "azure", "name", "vm_size"},
	"azurerm_linux_virtual_machine":  {api.ResourceComputeInstance, "azure", "name", "size"},
	"azurerm_virtual_network":        {api.ResourceNetwork, "azure", "name", ""},
	"azurerm_subnet":                 {api.ResourceSubnet, "azure", "name", ""},
	"azurerm_network_security_group": {api.ResourceSecurityGroup, "azure", "name", ""},
	"azurerm_storage_account":        {api.ResourceStorageBucket, "azure", "name", "account_tier"},
	"azurerm_mssql_database":         {api.ResourceDatabase, "azure", "name", "sku_name"},
	"azurerm_lb":                     {api.ResourceLoadBalancer, "azure", "name", "sku"},

	// GCP
	"google_compute_instance":      {api.ResourceComputeInstance, "gcp", "name", "machine_type"},
	"google_compute_network":       {api.ResourceNetwork, "gcp", "name", ""},
	"google_compute_subnetwork":    {api.ResourceSubnet, "gcp", "name", ""},
	"google_compute_firewall":      {api.ResourceSecurityGroup, "gcp", "name", ""},
	"google_storage_bucket":        {api.ResourceStorageBucket, "gcp", "name", "storage_class"},
	"google_sql_database_instance": {api.ResourceDatabase, "gcp", "name", "tier"},
	"google_pubsub_topic":          {api.ResourceTopic, "gcp", "name", ""},

	// Kubernetes provider
	"kubernetes_namespace":  {api.ResourceNamespace, "kubernetes", "", ""},
	"kubernetes_deployment": {api.ResourceContainerWorkload, "kubernetes", "", ""},
	"kubernetes_service":    {api.ResourceContainerService, "kubernetes", "", ""},
}

// AttributeRules infers edges from flattened instance attributes, with the
// same mechanism (and the same matching heuristics) as live discovery.
var AttributeRules = []api.RelationshipRule{
	{
		SourceType:   api.ResourceSubnet,
		Field:        "vpc_id",
		TargetType:   api.ResourceNetwork,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceSecurityGroup,
		Field:        "vpc_id",
		TargetType:   api.ResourceNetwork,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceComputeInstance,
		Field:        "subnet_id",
		TargetType:   api.ResourceSubnet,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:    api.ResourceComputeInstance,
		Field:         "vpc_security_group_ids",
		TargetType:    api.ResourceSecurityGroup,
		Relationship:  api.RelSecuredBy,
		IsArray:       true,
		Bidirectional: true,
	},
	{
		SourceType:   api.ResourceDatabase,
		Field:        "vpc_security_group_ids",
		TargetType:   api.ResourceSecurityGroup,
		Relationship: api.RelSecuredBy,
		IsArray:      true,
	},
	{
		SourceType:   api.ResourceLoadBalancer,
		Field:        "subnets",
		TargetType:   api.ResourceSubnet,
		Relationship: api.RelRunsIn,
		IsArray:      true,
	},
	{
		SourceType:   api.ResourceServerlessFunction,
		Field:        "role",
		TargetType:   api.ResourceIAMRole,
		Relationship: api.RelUses,
	},
	{
		SourceType:   api.ResourceDNSRecord,
		Field:        "records",
		TargetType:   api.ResourceLoadBalancer,
		Relationship: api.RelResolvesTo,
		IsArray:      true,
	},
	{
		SourceType:   api.ResourceCache,
		Field:        "security_group_ids",
		TargetType:   api.ResourceSecurityGroup,
		Relationship: api.RelSecuredBy,
		IsArray:      true,
	},
	{
		SourceType:   api.ResourceSubnet,
		Field:        "virtual_network_name",
		TargetType:   api.ResourceNetwork,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceSubnet,
		Field:        "network",
		TargetType:   api.ResourceNetwork,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceContainerWorkload,
		Field:        "metadata[].namespace",
		TargetType:   api.ResourceNamespace,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceContainerService,
		Field:        "metadata[].namespace",
		TargetType:   api.ResourceNamespace,
		Relationship: api.RelRunsIn,
	},
}
