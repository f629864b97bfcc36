// Package kg describes the medical knowledge graph: node labels, relationship
// types and the records that flow into and out of it.
package kg

import (
	"encoding/json"
	"strings"
)

type Label string

const (
	LabelDisease    Label = "Disease"
	LabelSymptom    Label = "Symptom"
	LabelDrug       Label = "Drug"
	LabelFood       Label = "Food"
	LabelCheck      Label = "Check"
	LabelDepartment Label = "Department"
	LabelProducer   Label = "Producer"
)

// Labels is the fixed write order of the node phase.
var Labels = []Label{LabelDisease, LabelSymptom, LabelDrug, LabelFood, LabelCheck, LabelDepartment, LabelProducer}

type RelKind string

const (
	RelSymptom       RelKind = "symptom"
	RelCommonDrug    RelKind = "common_drug"
	RelRecommandDrug RelKind = "recommand_drug"
	RelDoEat         RelKind = "do_eat"
	RelNotEat        RelKind = "not_eat"
	RelRecommandEat  RelKind = "recommand_eat"
	RelCheck         RelKind = "check"
	RelCategory      RelKind = "category"
	RelAcompany      RelKind = "acompany"
	RelDepartment    RelKind = "department"
	RelDrugProducer  RelKind = "drug_producer"
)

// RelSpec fixes the endpoint labels, type and display name of one pair set.
type RelSpec struct {
	Kind    RelKind
	Start   Label
	End     Label
	Type    string
	Display string
}

var Relationships = []RelSpec{
	{RelSymptom, LabelDisease, LabelSymptom, "has_symptom", "症状"},
	{RelCommonDrug, LabelDisease, LabelDrug, "common_drug", "常用药品"},
	{RelRecommandDrug, LabelDisease, LabelDrug, "recommand_drug", "好评药品"},
	{RelDoEat, LabelDisease, LabelFood, "do_eat", "宜吃"},
	{RelNotEat, LabelDisease, LabelFood, "no_eat", "忌吃"},
	{RelRecommandEat, LabelDisease, LabelFood, "recommand_eat", "推荐食谱"},
	{RelCheck, LabelDisease, LabelCheck, "need_check", "诊断检查"},
	{RelCategory, LabelDisease, LabelDepartment, "belongs_to", "所属科室"},
	{RelAcompany, LabelDisease, LabelDisease, "acompany_with", "并发症"},
	{RelDepartment, LabelDepartment, LabelDepartment, "belongs_to", "属于"},
	{RelDrugProducer, LabelProducer, LabelDrug, "drugs_of", "生产药品"},
}

func SpecFor(kind RelKind) (RelSpec, bool) {
	for _, s := range Relationships {
		if s.Kind == kind {
			return s, true
		}
	}
	return RelSpec{}, false
}

// RelationshipTypes lists distinct relationship type names in declaration order.
func RelationshipTypes() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range Relationships {
		if !seen[s.Type] {
			seen[s.Type] = true
			out = append(out, s.Type)
		}
	}
	return out
}

// Pair is the dedup key of one edge within a relationship kind.
type Pair struct {
	Start string
	End   string
}

// Disease holds the attributes written onto a Disease node.
type Disease struct {
	Name           string   `json:"name" mapstructure:"name"`
	Desc           string   `json:"desc" mapstructure:"desc"`
	Prevent        string   `json:"prevent" mapstructure:"prevent"`
	Cause          string   `json:"cause" mapstructure:"cause"`
	EasyGet        string   `json:"easy_get" mapstructure:"easy_get"`
	CureLasttime   string   `json:"cure_lasttime" mapstructure:"cure_lasttime"`
	CuredProb      string   `json:"cured_prob" mapstructure:"cured_prob"`
	CureDepartment []string `json:"cure_department" mapstructure:"cure_department"`
	CureWay        []string `json:"cure_way" mapstructure:"cure_way"`
}

// Row is the parameter map used by the Disease upsert.
func (d Disease) Row() map[string]any {
	return map[string]any{
		"name":            d.Name,
		"desc":            d.Desc,
		"prevent":         d.Prevent,
		"cause":           d.Cause,
		"easy_get":        d.EasyGet,
		"cure_lasttime":   d.CureLasttime,
		"cured_prob":      d.CuredProb,
		"cure_department": nonNil(d.CureDepartment),
		"cure_way":        nonNil(d.CureWay),
	}
}

// DiseaseProperties is the SET list of the Disease upsert, in write order.
var DiseaseProperties = []string{"desc", "prevent", "cause", "easy_get", "cure_lasttime", "cured_prob", "cure_department", "cure_way"}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Extraction is what the entity extractor pulls out of a user message. It is
// never persisted.
type Extraction struct {
	Symptoms    []string `json:"symptoms"`
	DiseaseName string   `json:"disease_name"`
	Severity    string   `json:"severity"`
	Duration    string   `json:"duration"`
}

func (e Extraction) Empty() bool {
	return len(e.Symptoms) == 0 && e.DiseaseName == "" && e.Severity == "" && e.Duration == ""
}

// UnmarshalJSON accepts symptoms as a list or a single string and treats
// null fields as absent.
func (e *Extraction) UnmarshalJSON(b []byte) error {
	var raw struct {
		Symptoms    json.RawMessage `json:"symptoms"`
		DiseaseName *string         `json:"disease_name"`
		Severity    *string         `json:"severity"`
		Duration    *string         `json:"duration"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out Extraction
	symptoms, err := StringList(raw.Symptoms)
	if err != nil {
		return err
	}
	out.Symptoms = symptoms
	out.DiseaseName = deref(raw.DiseaseName)
	out.Severity = deref(raw.Severity)
	out.Duration = deref(raw.Duration)
	*e = out
	return nil
}

// StringList decodes a JSON list of strings, a single string, or null.
// Blank entries are dropped.
func StringList(raw json.RawMessage) ([]string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	var list []string
	if strings.HasPrefix(s, "[") {
		var anyList []any
		if err := json.Unmarshal(raw, &anyList); err != nil {
			return nil, err
		}
		for _, v := range anyList {
			if str, ok := v.(string); ok {
				list = append(list, str)
			}
		}
	} else {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		list = []string{one}
	}
	out := list[:0]
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
