package document

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RuleSet is the validation rule set for one ORD spec version. Rules evolve
// between versions, so the validator is parameterized by the version a
// document declares instead of being hard-coded to the latest.
type RuleSet struct {
	SpecVersion string

	MaxTitleLength            int
	MaxShortDescriptionLength int
	MinAccessStrategies       int

	VisibilityValues         []string
	ReleaseStatusValues      []string
	APIProtocolValues        []string
	AccessStrategyValues     []string
	ResourceDefinitionValues []string
}

// Tag fields allow alphanumerics plus `-_./ ` only.
var tagRegex = regexp.MustCompile(`^[a-zA-Z0-9-_./ ]+$`)

// supportedMinor is the newest minor per supported major spec version line.
const supportedMajor = 1
const supportedMinor = 9

// RuleSetFor returns the rule set for a declared spec version, or false when
// the version is unsupported.
func RuleSetFor(specVersion string) (RuleSet, bool) {
	major, minor, ok := parseSpecVersion(specVersion)
	if !ok || major != supportedMajor || minor > supportedMinor {
		return RuleSet{}, false
	}

	rules := RuleSet{
		SpecVersion:               specVersion,
		MaxTitleLength:            255,
		MaxShortDescriptionLength: 255,
		MinAccessStrategies:       1,
		VisibilityValues:          models.VisibilityValues,
		ReleaseStatusValues:       models.ReleaseStatusValues,
		AccessStrategyValues:      models.AccessStrategyValues,
		ResourceDefinitionValues:  models.ResourceDefinitionTypeValues,
		APIProtocolValues:         models.APIProtocolValues,
	}

	// delta-sharing and websocket protocols entered the spec in 1.6;
	// documents declaring an older version may not use them.
	if minor < 6 {
		rules.APIProtocolValues = without(rules.APIProtocolValues,
			string(models.APIProtocolDeltaSharing), string(models.APIProtocolWebsocket))
	}

	return rules, true
}

func parseSpecVersion(v string) (major, minor int, ok bool) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func without(values []string, exclude ...string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e] = true
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !excluded[v] {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
