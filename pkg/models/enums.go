package models

// Kind identifies the ORD entity variant. It matches the type fragment of the
// entity's ORD ID.
type Kind string

const (
	KindAPIResource           Kind = "apiResource"
	KindEventResource         Kind = "eventResource"
	KindEntityType            Kind = "entityType"
	KindCapability            Kind = "capability"
	KindIntegrationDependency Kind = "integrationDependency"
	KindPackage               Kind = "package"
	KindConsumptionBundle     Kind = "consumptionBundle"
	KindProduct               Kind = "product"
	KindVendor                Kind = "vendor"
)

// Visibility controls who may discover a resource.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
	VisibilityPrivate  Visibility = "private"
)

// ReleaseStatus is the lifecycle state an entity declares for itself.
type ReleaseStatus string

const (
	ReleaseStatusActive     ReleaseStatus = "active"
	ReleaseStatusBeta       ReleaseStatus = "beta"
	ReleaseStatusDeprecated ReleaseStatus = "deprecated"
)

// APIProtocol is the protocol an API resource is exposed with.
type APIProtocol string

const (
	APIProtocolODataV2      APIProtocol = "odata-v2"
	APIProtocolODataV4      APIProtocol = "odata-v4"
	APIProtocolSOAPInbound  APIProtocol = "soap-inbound"
	APIProtocolSOAPOutbound APIProtocol = "soap-outbound"
	APIProtocolRest         APIProtocol = "rest"
	APIProtocolGraphQL      APIProtocol = "graphql"
	APIProtocolWebsocket    APIProtocol = "websocket"
	APIProtocolDeltaSharing APIProtocol = "delta-sharing"
	APIProtocolCustom       APIProtocol = "custom"
)

// PolicyLevel names a compliance rule set a package or entity declares.
type PolicyLevel string

const (
	PolicyLevelNone   PolicyLevel = "none"
	PolicyLevelCoreV1 PolicyLevel = "sap:core:v1"
	PolicyLevelCustom PolicyLevel = "custom"
)

// AccessStrategyType is the declared method to fetch a resource definition.
type AccessStrategyType string

const (
	AccessStrategyOpen   AccessStrategyType = "open"
	AccessStrategyCustom AccessStrategyType = "custom"
)

// ResourceDefinitionType identifies the format of a resource definition file.
type ResourceDefinitionType string

const (
	DefinitionOpenAPIV2  ResourceDefinitionType = "openapi-v2"
	DefinitionOpenAPIV3  ResourceDefinitionType = "openapi-v3"
	DefinitionRAMLV1     ResourceDefinitionType = "raml-v1"
	DefinitionEDMX       ResourceDefinitionType = "edmx"
	DefinitionCSDLJSON   ResourceDefinitionType = "csdl-json"
	DefinitionWSDLV1     ResourceDefinitionType = "wsdl-v1"
	DefinitionWSDLV2     ResourceDefinitionType = "wsdl-v2"
	DefinitionAsyncAPIV2 ResourceDefinitionType = "asyncapi-v2"
	DefinitionCustom     ResourceDefinitionType = "custom"
)

// VisibilityValues etc. are the closed enum domains the document validator
// checks membership against. Rule sets per spec version may narrow these.
var (
	VisibilityValues = []string{
		string(VisibilityPublic), string(VisibilityInternal), string(VisibilityPrivate),
	}
	ReleaseStatusValues = []string{
		string(ReleaseStatusActive), string(ReleaseStatusBeta), string(ReleaseStatusDeprecated),
	}
	APIProtocolValues = []string{
		string(APIProtocolODataV2), string(APIProtocolODataV4), string(APIProtocolSOAPInbound),
		string(APIProtocolSOAPOutbound), string(APIProtocolRest), string(APIProtocolGraphQL),
		string(APIProtocolWebsocket), string(APIProtocolDeltaSharing), string(APIProtocolCustom),
	}
	AccessStrategyValues = []string{
		string(AccessStrategyOpen), string(AccessStrategyCustom),
	}
	ResourceDefinitionTypeValues = []string{
		string(DefinitionOpenAPIV2), string(DefinitionOpenAPIV3), string(DefinitionRAMLV1),
		string(DefinitionEDMX), string(DefinitionCSDLJSON), string(DefinitionWSDLV1),
		string(DefinitionWSDLV2), string(DefinitionAsyncAPIV2), string(DefinitionCustom),
	}
)
