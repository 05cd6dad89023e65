// Package models defines the ORD document model, the persisted graph records,
// and the validation issue taxonomy shared across the aggregation pipeline.
package models

import (
	"time"
)

// Document is one parsed ORD document as published by a provider. Documents
// are transient inputs; they are consumed by the pipeline and discarded after
// a successful merge.
type Document struct {
	OpenResourceDiscovery string `json:"openResourceDiscovery"` // declared spec version, e.g. "1.9"
	Description           string `json:"description,omitempty"`
	Perspective           string `json:"perspective,omitempty"`
	PolicyLevel           string `json:"policyLevel,omitempty"`
	CustomPolicyLevel     string `json:"customPolicyLevel,omitempty"`

	Products                []Product               `json:"products,omitempty"`
	Vendors                 []Vendor                `json:"vendors,omitempty"`
	Packages                []Package               `json:"packages,omitempty"`
	ConsumptionBundles      []ConsumptionBundle     `json:"consumptionBundles,omitempty"`
	APIResources            []APIResource           `json:"apiResources,omitempty"`
	EventResources          []EventResource         `json:"eventResources,omitempty"`
	EntityTypes             []EntityType            `json:"entityTypes,omitempty"`
	Capabilities            []Capability            `json:"capabilities,omitempty"`
	IntegrationDependencies []IntegrationDependency `json:"integrationDependencies,omitempty"`
	Tombstones              []Tombstone             `json:"tombstones,omitempty"`
}

// Entity is the capability set every ORD entity variant exposes. Variants are
// dispatched by Kind rather than deep inheritance.
type Entity interface {
	GetOrdID() string
	GetKind() Kind
	GetTitle() string
	GetVersion() string
	GetLastUpdate() *time.Time
	Base() *BaseEntity
}

// Entities returns every entity in the document in a stable order:
// taxonomy roots first, then packages and bundles, then resources, so that
// intra-document references resolve without a second registration pass.
func (d *Document) Entities() []Entity {
	entities := make([]Entity, 0,
		len(d.Vendors)+len(d.Products)+len(d.Packages)+len(d.ConsumptionBundles)+
			len(d.APIResources)+len(d.EventResources)+len(d.EntityTypes)+
			len(d.Capabilities)+len(d.IntegrationDependencies))

	for i := range d.Vendors {
		entities = append(entities, &d.Vendors[i])
	}
	for i := range d.Products {
		entities = append(entities, &d.Products[i])
	}
	for i := range d.Packages {
		entities = append(entities, &d.Packages[i])
	}
	for i := range d.ConsumptionBundles {
		entities = append(entities, &d.ConsumptionBundles[i])
	}
	for i := range d.APIResources {
		entities = append(entities, &d.APIResources[i])
	}
	for i := range d.EventResources {
		entities = append(entities, &d.EventResources[i])
	}
	for i := range d.EntityTypes {
		entities = append(entities, &d.EntityTypes[i])
	}
	for i := range d.Capabilities {
		entities = append(entities, &d.Capabilities[i])
	}
	for i := range d.IntegrationDependencies {
		entities = append(entities, &d.IntegrationDependencies[i])
	}

	return entities
}

// BaseEntity carries the identity and lifecycle fields shared by all variants.
type BaseEntity struct {
	OrdID            string           `json:"ordId"`
	LocalID          string           `json:"localId,omitempty"`
	CorrelationIDs   []string         `json:"correlationIds,omitempty"`
	Title            string           `json:"title"`
	ShortDescription string           `json:"shortDescription,omitempty"`
	Description      string           `json:"description,omitempty"`
	Version          string           `json:"version,omitempty"`
	LastUpdate       *time.Time       `json:"lastUpdate,omitempty"`
	ReleaseStatus    string           `json:"releaseStatus,omitempty"`
	DeprecationDate  *time.Time       `json:"deprecationDate,omitempty"`
	SunsetDate       *time.Time       `json:"sunsetDate,omitempty"`
	Successors       []string         `json:"successors,omitempty"`
	ChangelogEntries []ChangelogEntry `json:"changelogEntries,omitempty"`

	Labels              Labels `json:"labels,omitempty"`
	DocumentationLabels Labels `json:"documentationLabels,omitempty"`
}

func (b *BaseEntity) Base() *BaseEntity         { return b }
func (b *BaseEntity) GetOrdID() string          { return b.OrdID }
func (b *BaseEntity) GetTitle() string          { return b.Title }
func (b *BaseEntity) GetVersion() string        { return b.Version }
func (b *BaseEntity) GetLastUpdate() *time.Time { return b.LastUpdate }

// ResourceEntity adds the package membership and taxonomy fields shared by
// all entities contained in a package (everything except Package, Product,
// Vendor).
type ResourceEntity struct {
	BaseEntity

	PartOfPackage            string                       `json:"partOfPackage"`
	PartOfProducts           []string                     `json:"partOfProducts,omitempty"`
	PartOfConsumptionBundles []ConsumptionBundleReference `json:"partOfConsumptionBundles,omitempty"`

	Visibility     string   `json:"visibility,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Countries      []string `json:"countries,omitempty"`
	LineOfBusiness []string `json:"lineOfBusiness,omitempty"`
	Industry       []string `json:"industry,omitempty"`

	PolicyLevel       string `json:"policyLevel,omitempty"`
	CustomPolicyLevel string `json:"customPolicyLevel,omitempty"`
}

// ChangelogEntry records one version transition of an entity.
type ChangelogEntry struct {
	Version       string `json:"version"`
	ReleaseStatus string `json:"releaseStatus"`
	Date          string `json:"date"`
	Description   string `json:"description,omitempty"`
	URL           string `json:"url,omitempty"`
}

// ConsumptionBundleReference links a resource to a consumption bundle,
// optionally selecting which of the resource's entry points applies.
type ConsumptionBundleReference struct {
	OrdID             string `json:"ordId"`
	DefaultEntryPoint string `json:"defaultEntryPoint,omitempty"`
}

// AccessStrategy declares how a resource definition can be fetched.
type AccessStrategy struct {
	Type              string `json:"type"`
	CustomType        string `json:"customType,omitempty"`
	CustomDescription string `json:"customDescription,omitempty"`
}

// ResourceDefinition points at a machine-readable definition file (OpenAPI,
// AsyncAPI, EDMX, ...) with at least one access strategy.
type ResourceDefinition struct {
	Type             string           `json:"type"`
	CustomType       string           `json:"customType,omitempty"`
	MediaType        string           `json:"mediaType"`
	URL              string           `json:"url"`
	AccessStrategies []AccessStrategy `json:"accessStrategies"`
}

// APIResource describes a consumable API.
type APIResource struct {
	ResourceEntity

	APIProtocol         string               `json:"apiProtocol"`
	CustomAPIProtocol   string               `json:"customApiProtocol,omitempty"`
	EntryPoints         []string             `json:"entryPoints,omitempty"`
	ResourceDefinitions []ResourceDefinition `json:"resourceDefinitions,omitempty"`
	Direction           string               `json:"direction,omitempty"`
	EntityTypeMappings  []EntityTypeMapping  `json:"entityTypeMappings,omitempty"`
}

func (a *APIResource) GetKind() Kind { return KindAPIResource }

// EventResource describes a published event catalog.
type EventResource struct {
	ResourceEntity

	ResourceDefinitions []ResourceDefinition `json:"resourceDefinitions,omitempty"`
	EntityTypeMappings  []EntityTypeMapping  `json:"entityTypeMappings,omitempty"`
}

func (e *EventResource) GetKind() Kind { return KindEventResource }

// EntityTypeMapping relates a resource to the entity types it exposes.
type EntityTypeMapping struct {
	EntityTypeTargets []EntityTypeTarget `json:"entityTypeTargets,omitempty"`
}

// EntityTypeTarget references an entity type by ORD ID or correlation ID.
type EntityTypeTarget struct {
	OrdID         string `json:"ordId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// EntityType describes a business object type in the described system.
type EntityType struct {
	ResourceEntity

	Level              string   `json:"level,omitempty"`
	RelatedEntityTypes []string `json:"relatedEntityTypes,omitempty"`
}

func (e *EntityType) GetKind() Kind { return KindEntityType }

// Capability describes a use-case level capability of the system.
type Capability struct {
	ResourceEntity

	Type               string               `json:"type"`
	CustomType         string               `json:"customType,omitempty"`
	Definitions        []ResourceDefinition `json:"definitions,omitempty"`
	RelatedEntityTypes []string             `json:"relatedEntityTypes,omitempty"`
}

func (c *Capability) GetKind() Kind { return KindCapability }

// IntegrationAspect is one aspect of an integration dependency; its targets
// reference entity types and resources in other systems.
type IntegrationAspect struct {
	Title             string             `json:"title"`
	Description       string             `json:"description,omitempty"`
	Mandatory         *bool              `json:"mandatory,omitempty"`
	EntityTypeTargets []EntityTypeTarget `json:"entityTypeTargets,omitempty"`
	APIResources      []string           `json:"apiResources,omitempty"`
	EventResources    []string           `json:"eventResources,omitempty"`
}

// IntegrationDependency states that the described system needs resources of
// another system to fulfill a use case.
type IntegrationDependency struct {
	ResourceEntity

	Mandatory                      *bool               `json:"mandatory,omitempty"`
	Aspects                        []IntegrationAspect `json:"aspects,omitempty"`
	RelatedIntegrationDependencies []string            `json:"relatedIntegrationDependencies,omitempty"`
}

func (i *IntegrationDependency) GetKind() Kind { return KindIntegrationDependency }

// Package groups entities sharing vendor, lifecycle and taxonomy. It owns the
// inheritable attributes pushed down to contained resources.
type Package struct {
	BaseEntity

	Vendor         string   `json:"vendor,omitempty"`
	PartOfProducts []string `json:"partOfProducts,omitempty"`

	Tags           []string `json:"tags,omitempty"`
	Countries      []string `json:"countries,omitempty"`
	LineOfBusiness []string `json:"lineOfBusiness,omitempty"`
	Industry       []string `json:"industry,omitempty"`

	PolicyLevel       string `json:"policyLevel,omitempty"`
	CustomPolicyLevel string `json:"customPolicyLevel,omitempty"`
}

func (p *Package) GetKind() Kind { return KindPackage }

// ConsumptionBundle groups resources that share one credential boundary.
type ConsumptionBundle struct {
	BaseEntity

	CredentialExchangeStrategies []CredentialExchangeStrategy `json:"credentialExchangeStrategies,omitempty"`
}

func (c *ConsumptionBundle) GetKind() Kind { return KindConsumptionBundle }

// CredentialExchangeStrategy declares how credentials for a bundle are
// obtained. Execution is out of scope; only the declaration is modeled.
type CredentialExchangeStrategy struct {
	Type        string `json:"type"`
	CustomType  string `json:"customType,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Product is a commercial taxonomy root referenced by packages and resources.
type Product struct {
	BaseEntity

	Vendor string `json:"vendor"`
}

func (p *Product) GetKind() Kind { return KindProduct }

// Vendor is the taxonomy root for a vendor namespace. The merged graph holds
// exactly one vendor entity per vendor namespace.
type Vendor struct {
	BaseEntity
}

func (v *Vendor) GetKind() Kind { return KindVendor }

// Tombstone marks a previously published ORD ID as removed.
type Tombstone struct {
	OrdID       string    `json:"ordId"`
	RemovalDate time.Time `json:"removalDate"`
	Description string    `json:"description,omitempty"`
}
