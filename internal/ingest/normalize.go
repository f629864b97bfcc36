package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/medgraph/internal/kg"
)

// MalformedRecordError marks one corpus line that could not be used.
type MalformedRecordError struct {
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("ingest: line %d: %s", e.Line, e.Reason)
	}
	return "ingest: " + e.Reason
}

type record struct {
	Name           string          `json:"name"`
	Desc           json.RawMessage `json:"desc"`
	Prevent        json.RawMessage `json:"prevent"`
	Cause          json.RawMessage `json:"cause"`
	EasyGet        json.RawMessage `json:"easy_get"`
	CureLasttime   json.RawMessage `json:"cure_lasttime"`
	CuredProb      json.RawMessage `json:"cured_prob"`
	CureDepartment json.RawMessage `json:"cure_department"`
	CureWay        json.RawMessage `json:"cure_way"`
	Symptom        json.RawMessage `json:"symptom"`
	Acompany       json.RawMessage `json:"acompany"`
	CommonDrug     json.RawMessage `json:"common_drug"`
	RecommandDrug  json.RawMessage `json:"recommand_drug"`
	NotEat         json.RawMessage `json:"not_eat"`
	DoEat          json.RawMessage `json:"do_eat"`
	RecommandEat   json.RawMessage `json:"recommand_eat"`
	Check          json.RawMessage `json:"check"`
	DrugDetail     json.RawMessage `json:"drug_detail"`
}

// Contribution is everything one record adds to the graph.
type Contribution struct {
	Disease kg.Disease
	Nodes   map[kg.Label][]string
	Pairs   map[kg.RelKind][]kg.Pair
}

func (c *Contribution) node(label kg.Label, names ...string) {
	c.Nodes[label] = append(c.Nodes[label], names...)
}

func (c *Contribution) pairs(kind kg.RelKind, start string, ends []string) {
	for _, end := range ends {
		c.Pairs[kind] = append(c.Pairs[kind], kg.Pair{Start: start, End: end})
	}
}

// Normalize turns one corpus line into a Contribution. Bad JSON, a missing
// name, or a field of the wrong shape is a *MalformedRecordError.
func Normalize(line []byte) (*Contribution, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, &MalformedRecordError{Reason: "invalid json: " + err.Error()}
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, &MalformedRecordError{Reason: "missing name"}
	}

	var (
		lists = map[string][]string{}
		texts = map[string]string{}
	)
	for field, raw := range map[string]json.RawMessage{
		"cure_department": r.CureDepartment, "cure_way": r.CureWay, "symptom": r.Symptom,
		"acompany": r.Acompany, "common_drug": r.CommonDrug, "recommand_drug": r.RecommandDrug,
		"not_eat": r.NotEat, "do_eat": r.DoEat, "recommand_eat": r.RecommandEat,
		"check": r.Check, "drug_detail": r.DrugDetail,
	} {
		v, err := kg.StringList(raw)
		if err != nil {
			return nil, &MalformedRecordError{Reason: fmt.Sprintf("field %s: %v", field, err)}
		}
		lists[field] = v
	}
	for field, raw := range map[string]json.RawMessage{
		"desc": r.Desc, "prevent": r.Prevent, "cause": r.Cause, "easy_get": r.EasyGet,
		"cure_lasttime": r.CureLasttime, "cured_prob": r.CuredProb,
	} {
		v, err := text(raw)
		if err != nil {
			return nil, &MalformedRecordError{Reason: fmt.Sprintf("field %s: %v", field, err)}
		}
		texts[field] = v
	}

	c := &Contribution{
		Disease: kg.Disease{
			Name:           name,
			Desc:           texts["desc"],
			Prevent:        texts["prevent"],
			Cause:          texts["cause"],
			EasyGet:        texts["easy_get"],
			CureLasttime:   texts["cure_lasttime"],
			CuredProb:      texts["cured_prob"],
			CureDepartment: lists["cure_department"],
			CureWay:        lists["cure_way"],
		},
		Nodes: map[kg.Label][]string{},
		Pairs: map[kg.RelKind][]kg.Pair{},
	}

	c.node(kg.LabelDisease, name)
	c.node(kg.LabelSymptom, lists["symptom"]...)
	c.pairs(kg.RelSymptom, name, lists["symptom"])
	// Comorbid diseases only link to diseases that have their own record.
	c.pairs(kg.RelAcompany, name, lists["acompany"])

	dept := lists["cure_department"]
	c.node(kg.LabelDepartment, dept...)
	switch len(dept) {
	case 1:
		c.pairs(kg.RelCategory, name, dept[:1])
	case 2:
		c.Pairs[kg.RelDepartment] = append(c.Pairs[kg.RelDepartment], kg.Pair{Start: dept[1], End: dept[0]})
		c.pairs(kg.RelCategory, name, dept[1:])
	}

	c.node(kg.LabelDrug, lists["common_drug"]...)
	c.pairs(kg.RelCommonDrug, name, lists["common_drug"])
	c.node(kg.LabelDrug, lists["recommand_drug"]...)
	c.pairs(kg.RelRecommandDrug, name, lists["recommand_drug"])

	c.node(kg.LabelFood, lists["not_eat"]...)
	c.pairs(kg.RelNotEat, name, lists["not_eat"])
	c.node(kg.LabelFood, lists["do_eat"]...)
	c.pairs(kg.RelDoEat, name, lists["do_eat"])
	c.node(kg.LabelFood, lists["recommand_eat"]...)
	c.pairs(kg.RelRecommandEat, name, lists["recommand_eat"])

	c.node(kg.LabelCheck, lists["check"]...)
	c.pairs(kg.RelCheck, name, lists["check"])

	for _, item := range lists["drug_detail"] {
		producer, drug, ok := ParseDrugDetail(item)
		if !ok {
			continue
		}
		c.node(kg.LabelProducer, producer)
		c.Pairs[kg.RelDrugProducer] = append(c.Pairs[kg.RelDrugProducer], kg.Pair{Start: producer, End: drug})
	}
	return c, nil
}

// ParseDrugDetail splits "producer(drug)" entries. The producer is the text
// before the first "(", the drug the text after the last "(" without ")".
func ParseDrugDetail(item string) (producer, drug string, ok bool) {
	first := strings.Index(item, "(")
	if first < 0 {
		return "", "", false
	}
	last := strings.LastIndex(item, "(")
	producer = strings.TrimSpace(item[:first])
	drug = strings.TrimSpace(strings.ReplaceAll(item[last+1:], ")", ""))
	if producer == "" || drug == "" {
		return "", "", false
	}
	return producer, drug, true
}

// text accepts a string, a list of strings (joined), a number, or null.
func text(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", nil
	}
	switch s[0] {
	case '"':
		var v string
		err := json.Unmarshal(raw, &v)
		return strings.TrimSpace(v), err
	case '[':
		list, err := kg.StringList(raw)
		return strings.Join(list, "，"), err
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
