// Package model defines the geo target record served by lookups.
package model

// Column positions of the geo targets table.
const (
	ColCriteriaID = iota
	ColName
	ColCanonicalName
	ColParentID
	ColCountryCode
	ColTargetType
	ColStatus
)

// Columns lists the record field names in table order.
var Columns = []string{
	"criteria_id",
	"name",
	"canonical_name",
	"parent_id",
	"country_code",
	"target_type",
	"status",
}

// Record is one row of the geo targets table.
type Record struct {
	CriteriaID    string `json:"criteria_id" yaml:"criteria_id" csv:"criteria_id"`
	Name          string `json:"name" yaml:"name" csv:"name"`
	CanonicalName string `json:"canonical_name" yaml:"canonical_name" csv:"canonical_name"`
	ParentID      string `json:"parent_id" yaml:"parent_id" csv:"parent_id"`
	CountryCode   string `json:"country_code" yaml:"country_code" csv:"country_code"`
	TargetType    string `json:"target_type" yaml:"target_type" csv:"target_type"`
	Status        string `json:"status" yaml:"status" csv:"status"`
}

// RecordFromRow maps a table row to a Record by column position.
// Missing trailing columns become empty strings.
func RecordFromRow(row []string) Record {
	col := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return Record{
		CriteriaID:    col(ColCriteriaID),
		Name:          col(ColName),
		CanonicalName: col(ColCanonicalName),
		ParentID:      col(ColParentID),
		CountryCode:   col(ColCountryCode),
		TargetType:    col(ColTargetType),
		Status:        col(ColStatus),
	}
}

// ToMap returns the record keyed by column name.
func (r Record) ToMap() map[string]string {
	return map[string]string{
		"criteria_id":    r.CriteriaID,
		"name":           r.Name,
		"canonical_name": r.CanonicalName,
		"parent_id":      r.ParentID,
		"country_code":   r.CountryCode,
		"target_type":    r.TargetType,
		"status":         r.Status,
	}
}
