// Package ordid parses and validates ORD IDs: the globally unique,
// namespaced, typed, major-versioned identifiers of ORD entities.
package ordid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// An ORD ID has the shape <namespace>:<kind>:<localId>:v<major>, e.g.
// sap.billing:apiResource:CustomerInvoice:v2. Vendor and product IDs omit
// the trailing version fragment for the local id "" case but still carry all
// four segments in practice; the parser requires all four.
var ordIDRegex = regexp.MustCompile(`^([a-z0-9]+(?:[.][a-z0-9]+)*):([a-zA-Z]+):([a-zA-Z0-9._\-]+):v([0-9]+)$`)

// OrdID is a parsed ORD ID.
type OrdID struct {
	Namespace string
	Kind      models.Kind
	LocalID   string
	Major     int
}

// String reassembles the canonical form.
func (id OrdID) String() string {
	return fmt.Sprintf("%s:%s:%s:v%d", id.Namespace, id.Kind, id.LocalID, id.Major)
}

// VendorNamespace returns the leading vendor segment of the namespace.
func (id OrdID) VendorNamespace() string {
	if i := strings.Index(id.Namespace, "."); i > 0 {
		return id.Namespace[:i]
	}
	return id.Namespace
}

// Parse parses and validates an ORD ID string.
func Parse(raw string) (OrdID, error) {
	matches := ordIDRegex.FindStringSubmatch(raw)
	if matches == nil {
		return OrdID{}, fmt.Errorf("invalid ORD ID %q: expected <namespace>:<kind>:<localId>:v<major>", raw)
	}

	major, err := strconv.Atoi(matches[4])
	if err != nil {
		return OrdID{}, fmt.Errorf("invalid ORD ID %q: bad major version: %w", raw, err)
	}

	kind := models.Kind(matches[2])
	if !validKind(kind) {
		return OrdID{}, fmt.Errorf("invalid ORD ID %q: unknown kind %q", raw, matches[2])
	}

	return OrdID{
		Namespace: matches[1],
		Kind:      kind,
		LocalID:   matches[3],
		Major:     major,
	}, nil
}

// Valid reports whether raw is a well-formed ORD ID.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// KindOf returns the kind fragment of an ORD ID, or "" when malformed.
func KindOf(raw string) models.Kind {
	id, err := Parse(raw)
	if err != nil {
		return ""
	}
	return id.Kind
}

func validKind(kind models.Kind) bool {
	switch kind {
	case models.KindAPIResource, models.KindEventResource, models.KindEntityType,
		models.KindCapability, models.KindIntegrationDependency, models.KindPackage,
		models.KindConsumptionBundle, models.KindProduct, models.KindVendor:
		return true
	}
	return false
}
