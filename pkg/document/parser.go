// Package document parses single ORD documents and validates their
// intra-document structural invariants. Validation collects every issue
// instead of aborting on the first; the caller decides what is fatal for
// which fragment.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ordid"
)

// Validator checks a parsed document against a spec version's rule set.
// Implementations are pluggable so stricter external validators (OpenAPI/
// AsyncAPI definition checkers) can be substituted or chained.
type Validator interface {
	Validate(ctx context.Context, doc *models.Document) models.Issues
}

// Parser parses and validates raw ORD documents.
type Parser struct {
	extra []Validator
}

// NewParser creates a parser. Additional validators run after the built-in
// structural validation.
func NewParser(extra ...Validator) *Parser {
	return &Parser{extra: extra}
}

// Parse unmarshals one raw document and validates it. The returned issues
// contain every finding; the document is nil only when it cannot be decoded
// at all or declares an unsupported spec version.
func (p *Parser) Parse(ctx context.Context, raw []byte) (*models.Document, models.Issues) {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, models.Issues{models.StructuralError("$", "document is not valid JSON: %v", err)}
	}

	if doc.OpenResourceDiscovery == "" {
		return nil, models.Issues{models.StructuralError("$.openResourceDiscovery", "missing spec version")}
	}

	rules, ok := RuleSetFor(doc.OpenResourceDiscovery)
	if !ok {
		return nil, models.Issues{models.StructuralError("$.openResourceDiscovery",
			"unsupported spec version %q", doc.OpenResourceDiscovery)}
	}

	issues := validateDocument(&doc, rules)
	for _, v := range p.extra {
		issues = append(issues, v.Validate(ctx, &doc)...)
	}
	return &doc, issues
}

// structuralValidator is the built-in Validator over a fixed rule set,
// usable standalone through the validation endpoint.
type structuralValidator struct {
	rules RuleSet
}

// NewValidator returns the built-in structural validator for a spec version.
func NewValidator(specVersion string) (Validator, error) {
	rules, ok := RuleSetFor(specVersion)
	if !ok {
		return nil, fmt.Errorf("unsupported spec version %q", specVersion)
	}
	return &structuralValidator{rules: rules}, nil
}

func (v *structuralValidator) Validate(_ context.Context, doc *models.Document) models.Issues {
	return validateDocument(doc, v.rules)
}

func validateDocument(doc *models.Document, rules RuleSet) models.Issues {
	var issues models.Issues

	for i := range doc.Packages {
		issues = append(issues, validatePackage(&doc.Packages[i], fmt.Sprintf("$.packages[%d]", i), rules)...)
	}
	for i := range doc.Vendors {
		issues = append(issues, validateBase(&doc.Vendors[i].BaseEntity, models.KindVendor, fmt.Sprintf("$.vendors[%d]", i), rules)...)
	}
	for i := range doc.Products {
		path := fmt.Sprintf("$.products[%d]", i)
		issues = append(issues, validateBase(&doc.Products[i].BaseEntity, models.KindProduct, path, rules)...)
		if doc.Products[i].Vendor == "" {
			issues = append(issues, models.StructuralError(path+".vendor", "product requires a vendor reference"))
		}
	}
	for i := range doc.ConsumptionBundles {
		issues = append(issues, validateBase(&doc.ConsumptionBundles[i].BaseEntity, models.KindConsumptionBundle, fmt.Sprintf("$.consumptionBundles[%d]", i), rules)...)
	}
	for i := range doc.APIResources {
		issues = append(issues, validateAPIResource(&doc.APIResources[i], fmt.Sprintf("$.apiResources[%d]", i), rules)...)
	}
	for i := range doc.EventResources {
		path := fmt.Sprintf("$.eventResources[%d]", i)
		issues = append(issues, validateResource(&doc.EventResources[i].ResourceEntity, models.KindEventResource, path, rules)...)
		issues = append(issues, validateDefinitions(doc.EventResources[i].ResourceDefinitions, doc.EventResources[i].OrdID, path+".resourceDefinitions", rules)...)
	}
	for i := range doc.EntityTypes {
		issues = append(issues, validateResource(&doc.EntityTypes[i].ResourceEntity, models.KindEntityType, fmt.Sprintf("$.entityTypes[%d]", i), rules)...)
	}
	for i := range doc.Capabilities {
		path := fmt.Sprintf("$.capabilities[%d]", i)
		issues = append(issues, validateResource(&doc.Capabilities[i].ResourceEntity, models.KindCapability, path, rules)...)
		issues = append(issues, validateCustomPair(doc.Capabilities[i].Type, doc.Capabilities[i].CustomType, doc.Capabilities[i].OrdID, path+".type")...)
		issues = append(issues, validateDefinitions(doc.Capabilities[i].Definitions, doc.Capabilities[i].OrdID, path+".definitions", rules)...)
	}
	for i := range doc.IntegrationDependencies {
		issues = append(issues, validateResource(&doc.IntegrationDependencies[i].ResourceEntity, models.KindIntegrationDependency, fmt.Sprintf("$.integrationDependencies[%d]", i), rules)...)
	}
	for i := range doc.Tombstones {
		path := fmt.Sprintf("$.tombstones[%d]", i)
		if doc.Tombstones[i].OrdID == "" {
			issues = append(issues, models.StructuralError(path+".ordId", "tombstone requires an ordId"))
		} else if !ordid.Valid(doc.Tombstones[i].OrdID) {
			issues = append(issues, models.StructuralError(path+".ordId", "invalid ORD ID %q", doc.Tombstones[i].OrdID))
		}
		if doc.Tombstones[i].RemovalDate.IsZero() {
			issues = append(issues, models.StructuralError(path+".removalDate", "tombstone requires a removalDate"))
		}
	}

	return issues
}

func validateBase(base *models.BaseEntity, kind models.Kind, path string, rules RuleSet) models.Issues {
	var issues models.Issues

	if base.OrdID == "" {
		issues = append(issues, models.StructuralError(path+".ordId", "missing ordId"))
	} else {
		id, err := ordid.Parse(base.OrdID)
		switch {
		case err != nil:
			issues = append(issues, models.StructuralError(path+".ordId", "%v", err))
		case id.Kind != kind:
			issues = append(issues, issueFor(base.OrdID, path+".ordId",
				"ordId kind %q does not match entity variant %q", id.Kind, kind))
		default:
			issues = append(issues, validateMajorFragment(base, id, path)...)
		}
	}

	if base.Title == "" {
		issues = append(issues, issueFor(base.OrdID, path+".title", "missing title"))
	} else {
		issues = append(issues, validateShortText(base.OrdID, path+".title", base.Title, rules.MaxTitleLength)...)
	}
	if base.ShortDescription != "" {
		issues = append(issues, validateShortText(base.OrdID, path+".shortDescription", base.ShortDescription, rules.MaxShortDescriptionLength)...)
	}

	if base.ReleaseStatus != "" && !contains(rules.ReleaseStatusValues, base.ReleaseStatus) {
		issues = append(issues, issueFor(base.OrdID, path+".releaseStatus",
			"releaseStatus %q is not one of %v", base.ReleaseStatus, rules.ReleaseStatusValues))
	}

	for key := range base.Labels {
		if !models.ValidLabelKey(key) {
			issues = append(issues, issueFor(base.OrdID, path+".labels", "invalid label key %q", key))
		}
	}
	for key := range base.DocumentationLabels {
		if !models.ValidLabelKey(key) {
			issues = append(issues, issueFor(base.OrdID, path+".documentationLabels", "invalid documentation label key %q", key))
		}
	}

	return issues
}

// validateMajorFragment checks that the ORD ID's embedded major version
// matches the major component of `version`. A major bump requires minting a
// new ORD ID, so a mismatch is a structural error, not a lifecycle warning.
func validateMajorFragment(base *models.BaseEntity, id ordid.OrdID, path string) models.Issues {
	if base.Version == "" {
		return nil
	}
	major := base.Version
	if i := strings.Index(major, "."); i > 0 {
		major = major[:i]
	}
	if major != fmt.Sprintf("%d", id.Major) {
		return models.Issues{issueFor(base.OrdID, path,
			"ordId major version v%d does not match version %q", id.Major, base.Version)}
	}
	return nil
}

func validateResource(res *models.ResourceEntity, kind models.Kind, path string, rules RuleSet) models.Issues {
	issues := validateBase(&res.BaseEntity, kind, path, rules)

	if res.PartOfPackage == "" {
		issues = append(issues, issueFor(res.OrdID, path+".partOfPackage", "missing partOfPackage reference"))
	}

	if res.Visibility != "" && !contains(rules.VisibilityValues, res.Visibility) {
		issues = append(issues, issueFor(res.OrdID, path+".visibility",
			"visibility %q is not one of %v", res.Visibility, rules.VisibilityValues))
	}

	issues = append(issues, validateTags(res.OrdID, path+".tags", res.Tags)...)
	issues = append(issues, validateTags(res.OrdID, path+".countries", res.Countries)...)
	issues = append(issues, validateTags(res.OrdID, path+".lineOfBusiness", res.LineOfBusiness)...)
	issues = append(issues, validateTags(res.OrdID, path+".industry", res.Industry)...)

	if res.PolicyLevel != "" {
		issues = append(issues, validateCustomPair(res.PolicyLevel, res.CustomPolicyLevel, res.OrdID, path+".policyLevel")...)
	}

	return issues
}

func validatePackage(pkg *models.Package, path string, rules RuleSet) models.Issues {
	issues := validateBase(&pkg.BaseEntity, models.KindPackage, path, rules)

	if pkg.Version == "" {
		issues = append(issues, issueFor(pkg.OrdID, path+".version", "package requires a version"))
	}
	issues = append(issues, validateTags(pkg.OrdID, path+".tags", pkg.Tags)...)
	issues = append(issues, validateTags(pkg.OrdID, path+".countries", pkg.Countries)...)
	issues = append(issues, validateTags(pkg.OrdID, path+".lineOfBusiness", pkg.LineOfBusiness)...)
	issues = append(issues, validateTags(pkg.OrdID, path+".industry", pkg.Industry)...)
	if pkg.PolicyLevel != "" {
		issues = append(issues, validateCustomPair(pkg.PolicyLevel, pkg.CustomPolicyLevel, pkg.OrdID, path+".policyLevel")...)
	}

	return issues
}

func validateAPIResource(api *models.APIResource, path string, rules RuleSet) models.Issues {
	issues := validateResource(&api.ResourceEntity, models.KindAPIResource, path, rules)

	if api.APIProtocol == "" {
		issues = append(issues, issueFor(api.OrdID, path+".apiProtocol", "missing apiProtocol"))
	} else {
		if !contains(rules.APIProtocolValues, api.APIProtocol) {
			issues = append(issues, issueFor(api.OrdID, path+".apiProtocol",
				"apiProtocol %q is not allowed in spec version %s", api.APIProtocol, rules.SpecVersion))
		}
		issues = append(issues, validateCustomPair(api.APIProtocol, api.CustomAPIProtocol, api.OrdID, path+".apiProtocol")...)
	}

	issues = append(issues, validateDefinitions(api.ResourceDefinitions, api.OrdID, path+".resourceDefinitions", rules)...)

	// defaultEntryPoint must be one of the resource's own entryPoints.
	for i, ref := range api.PartOfConsumptionBundles {
		if ref.DefaultEntryPoint == "" {
			continue
		}
		if !contains(api.EntryPoints, ref.DefaultEntryPoint) {
			issues = append(issues, issueFor(api.OrdID,
				fmt.Sprintf("%s.partOfConsumptionBundles[%d].defaultEntryPoint", path, i),
				"defaultEntryPoint %q is not one of the resource's entryPoints", ref.DefaultEntryPoint))
		}
	}

	return issues
}

func validateDefinitions(defs []models.ResourceDefinition, ordID, path string, rules RuleSet) models.Issues {
	var issues models.Issues
	for i, def := range defs {
		defPath := fmt.Sprintf("%s[%d]", path, i)
		if def.URL == "" {
			issues = append(issues, issueFor(ordID, defPath+".url", "missing definition url"))
		}
		if def.Type == "" {
			issues = append(issues, issueFor(ordID, defPath+".type", "missing definition type"))
		} else {
			if !contains(rules.ResourceDefinitionValues, def.Type) {
				issues = append(issues, issueFor(ordID, defPath+".type",
					"definition type %q is not one of %v", def.Type, rules.ResourceDefinitionValues))
			}
			issues = append(issues, validateCustomPair(def.Type, def.CustomType, ordID, defPath+".type")...)
		}
		if len(def.AccessStrategies) < rules.MinAccessStrategies {
			issues = append(issues, issueFor(ordID, defPath+".accessStrategies",
				"at least %d access strategy required", rules.MinAccessStrategies))
		}
		for j, strategy := range def.AccessStrategies {
			strategyPath := fmt.Sprintf("%s.accessStrategies[%d]", defPath, j)
			if !contains(rules.AccessStrategyValues, strategy.Type) {
				issues = append(issues, issueFor(ordID, strategyPath+".type",
					"access strategy type %q is not one of %v", strategy.Type, rules.AccessStrategyValues))
			}
			issues = append(issues, validateCustomPair(strategy.Type, strategy.CustomType, ordID, strategyPath+".type")...)
		}
	}
	return issues
}

// validateCustomPair enforces the custom* companion rule: customType must be
// present iff the paired enum value is "custom".
func validateCustomPair(enumValue, customValue, ordID, path string) models.Issues {
	if enumValue == "custom" && customValue == "" {
		return models.Issues{issueFor(ordID, path, "value is %q but no custom type is given", enumValue)}
	}
	if enumValue != "custom" && customValue != "" {
		return models.Issues{issueFor(ordID, path, "custom type given but value is %q, not \"custom\"", enumValue)}
	}
	return nil
}

func validateTags(ordID, path string, values []string) models.Issues {
	var issues models.Issues
	for i, v := range values {
		if !tagRegex.MatchString(v) {
			issues = append(issues, issueFor(ordID, fmt.Sprintf("%s[%d]", path, i),
				"value %q contains characters outside the allowed set", v))
		}
	}
	return issues
}

// validateShortText limits length in characters, not bytes, so multibyte
// titles are not penalized.
func validateShortText(ordID, path, value string, maxLength int) models.Issues {
	var issues models.Issues
	if utf8.RuneCountInString(value) > maxLength {
		issues = append(issues, issueFor(ordID, path, "value exceeds %d characters", maxLength))
	}
	if strings.ContainsAny(value, "\r\n") {
		issues = append(issues, issueFor(ordID, path, "value must not contain line breaks"))
	}
	return issues
}

func issueFor(ordID, path, format string, args ...any) models.ValidationIssue {
	issue := models.StructuralError(path, format, args...)
	issue.OrdID = ordID
	return issue
}
