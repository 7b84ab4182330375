package contract

import (
	"regexp"
	"strings"
)

// Closed vocabularies for enrichment and routing. Enrichment output is
// filtered against these lists so a hallucinated topic can never leak
// into the index, and intent routing can rely on exact membership.

// Topics is the closed topic vocabulary, in the order it is presented
// to the enrichment model.
var Topics = []string{
	// ==========================================================================
	// Work and pay
	// ==========================================================================
	"job_definitions",
	"wages",
	"promotions",
	"scheduling",
	"overtime",
	"sunday_premium",
	"travel_pay",
	"night_premium",

	// ==========================================================================
	// Time off
	// ==========================================================================
	"holidays",
	"personal_holidays",
	"vacation",
	"health_benefits",
	"bereavement",
	"jury_duty",
	"military_leave",
	"lunch_breaks",
	"rest_periods",

	// ==========================================================================
	// Job security
	// ==========================================================================
	"seniority",
	"layoff",
	"leaves",
	"sick_leave",
	"safety",
	"pension",

	// ==========================================================================
	// Rights and process
	// ==========================================================================
	"discipline",
	"union_rights",
	"grievance",
	"store_closing",
	"no_strike",
	"lie_detector",
	"work_jurisdiction",
	"dress_code",
	"dug",
	"management_rights",
	"union_security",
	"definitions",
}

// Classifications is the closed job-classification vocabulary. "all"
// marks provisions that apply to every classification.
var Classifications = []string{
	"all",
	"all_purpose_clerk",
	"courtesy_clerk",
	"head_clerk",
	"produce_manager",
	"bakery_manager",
	"cake_decorator",
	"non_foods_clerk",
	"floral_manager",
	"pharmacy_tech",
	"dug_shopper",
	"sanitation_clerk",
	"meat_cutter",
	"baker",
	"apprentice_meat_cutter",
}

// HighStakesTopics are subject keywords that mark a question as
// high-stakes: the worker may be facing discipline or danger and the
// answer should push toward steward escalation.
var HighStakesTopics = []string{
	"discharge",
	"termination",
	"fired",
	"discipline",
	"harassment",
	"discrimination",
	"retaliation",
	"safety",
	"injury",
	"immigration",
	"weingarten",
}

var (
	topicSet          = makeSet(Topics)
	classificationSet = makeSet(Classifications)
)

func makeSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// IsValidTopic reports whether topic is in the closed vocabulary.
func IsValidTopic(topic string) bool {
	_, ok := topicSet[strings.ToLower(strings.TrimSpace(topic))]
	return ok
}

// IsValidClassification reports whether class is in the closed vocabulary.
func IsValidClassification(class string) bool {
	_, ok := classificationSet[strings.ToLower(strings.TrimSpace(class))]
	return ok
}

// FilterTopics drops anything outside the topic vocabulary, preserving
// order and normalizing case.
func FilterTopics(topics []string) []string {
	var valid []string
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := topicSet[t]; ok {
			valid = append(valid, t)
		}
	}
	return valid
}

// FilterClassifications drops anything outside the classification
// vocabulary, preserving order and normalizing case.
func FilterClassifications(classes []string) []string {
	var valid []string
	for _, c := range classes {
		c = strings.ToLower(strings.TrimSpace(c))
		if _, ok := classificationSet[c]; ok {
			valid = append(valid, c)
		}
	}
	return valid
}

var (
	classSeparators = regexp.MustCompile(`[-/\s]+`)
	classStrip      = regexp.MustCompile(`[^a-z0-9_]`)
)

// NormalizeClassification converts a display name from the contract
// ("ALL PURPOSE CLERK", "D.U.G. Shopper") to its vocabulary key
// ("all_purpose_clerk", "dug_shopper").
func NormalizeClassification(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = classSeparators.ReplaceAllString(s, "_")
	return classStrip.ReplaceAllString(s, "")
}
