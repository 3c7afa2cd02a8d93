package decode

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/pkg/logger"
)

type record map[string]json.RawMessage

var retentionKeys = map[int][]string{
	1:  {"d1", "day_1", "1"},
	7:  {"d7", "day_7", "7"},
	30: {"d30", "day_30", "30"},
}

// DecodeCohorts parses the cohort response. Records are read from a "data"
// map keyed by campaign (in key order) or a "rows" list. Unknown shapes
// yield no rows and a warning.
func DecodeCohorts(body []byte, log logger.Func) []domain.CohortRow {
	var env struct {
		Data json.RawMessage `json:"data"`
		Rows json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		log(fmt.Sprintf("cohort response is not a JSON object: %v", err), logger.WARN, category)
		return nil
	}

	if !isNull(env.Data) {
		var byKey map[string]record
		if err := json.Unmarshal(env.Data, &byKey); err == nil {
			keys := make([]string, 0, len(byKey))
			for k := range byKey {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			rows := make([]domain.CohortRow, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, cohortRow(byKey[k], k))
			}
			return rows
		}
		var list []record
		if err := json.Unmarshal(env.Data, &list); err == nil {
			return cohortRows(list)
		}
	}

	if !isNull(env.Rows) {
		var list []record
		if err := json.Unmarshal(env.Rows, &list); err == nil {
			return cohortRows(list)
		}
	}

	log("cohort response has neither a data map nor a rows list", logger.WARN, category)
	return nil
}

func cohortRows(list []record) []domain.CohortRow {
	rows := make([]domain.CohortRow, 0, len(list))
	for _, rec := range list {
		rows = append(rows, cohortRow(rec, ""))
	}
	return rows
}

func cohortRow(rec record, fallbackName string) domain.CohortRow {
	name := rec.str("campaign_name")
	if name == "" {
		name = rec.str("campaign")
	}
	if name == "" {
		name = fallbackName
	}
	row := domain.CohortRow{
		MediaSource: rec.str("media_source"),
		Campaign:    name,
		Users:       int(math.Round(rec.num("users").Value)),
		Cost:        rec.num("cost").Value,
		Revenue:     rec.num("revenue").Value,
		ROI:         rec.num("roi").Value,
	}
	row.RetentionD1 = rec.retention(1)
	row.RetentionD7 = rec.retention(7)
	row.RetentionD30 = rec.retention(30)
	return row
}

func (r record) str(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var s FlexString
	_ = json.Unmarshal(raw, &s)
	return string(s)
}

func (r record) num(key string) FlexFloat {
	var f FlexFloat
	if raw, ok := r[key]; ok {
		_ = f.UnmarshalJSON(raw)
	}
	return f
}

// retention reads day-n retention from a nested "retention" object or from
// flat retention_day_n / retention_dn keys.
func (r record) retention(day int) *float64 {
	if raw, ok := r["retention"]; ok {
		var nested record
		if err := json.Unmarshal(raw, &nested); err == nil {
			for _, k := range retentionKeys[day] {
				if f := nested.num(k); f.Valid {
					return f.Ptr()
				}
			}
		}
	}
	for _, k := range []string{fmt.Sprintf("retention_day_%d", day), fmt.Sprintf("retention_d%d", day)} {
		if f := r.num(k); f.Valid {
			return f.Ptr()
		}
	}
	return nil
}
