package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DoseSlot identifies a position in a vaccination scheme. Doses are numbered
// 1..5; the booster uses 0 on the wire.
type DoseSlot int

const (
	SlotBooster DoseSlot = 0
	SlotDose1   DoseSlot = 1
	SlotDose2   DoseSlot = 2
	SlotDose3   DoseSlot = 3
	SlotDose4   DoseSlot = 4
	SlotDose5   DoseSlot = 5

	MaxDoses = 5
)

// Valid reports whether the slot is a dose or the booster.
func (s DoseSlot) Valid() bool {
	return s >= SlotBooster && s <= SlotDose5
}

// Order is the sort position of the slot; the booster sorts after dose 5.
func (s DoseSlot) Order() int {
	if s == SlotBooster {
		return MaxDoses + 1
	}
	return int(s)
}

func (s DoseSlot) String() string {
	if s == SlotBooster {
		return "booster"
	}
	return "dose " + strconv.Itoa(int(s))
}

// SlotColumns returns the storage columns of a slot: date, origin, observation
// and subtype override.
func SlotColumns(s DoseSlot) (date, origin, observation, subtype string) {
	if s == SlotBooster {
		return "booster", "booster_origin", "booster_obs", "booster_type"
	}
	prefix := "dose_" + strconv.Itoa(int(s))
	return prefix, prefix + "_origin", prefix + "_obs", prefix + "_type"
}

// RawSlot is the unparsed content of one slot of a stored record.
type RawSlot struct {
	Date        string `json:"date,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Observation string `json:"observation,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
}

// Empty reports whether the slot carries no date text.
func (s RawSlot) Empty() bool {
	return s.Date == ""
}

// VaccinationRecord is one stored row: a person enrolled in one vaccine subtype.
// Dates are kept as text because legacy imports contain malformed values.
type VaccinationRecord struct {
	ID               uuid.UUID `db:"id" json:"id"`
	DocumentNumber   string    `db:"document_number" json:"document_number"`
	FullName         string    `db:"full_name" json:"full_name"`
	Sex              *string   `db:"sex" json:"sex,omitempty"`
	Region           *string   `db:"region" json:"region,omitempty"`
	SubRegion        *string   `db:"sub_region" json:"sub_region,omitempty"`
	Position         *string   `db:"position" json:"position,omitempty"`
	Allergies        *string   `db:"allergies" json:"allergies,omitempty"`
	Contraindication *string   `db:"contraindication" json:"contraindication,omitempty"`
	EmploymentStatus *string   `db:"employment_status" json:"employment_status,omitempty"`
	ActiveYear       *int      `db:"active_year" json:"active_year,omitempty"`
	VaccineType      string    `db:"vaccine_type" json:"vaccine_type"`
	Origin           *string   `db:"origin" json:"origin,omitempty"`
	ResponsibleNurse *string   `db:"responsible_nurse" json:"responsible_nurse,omitempty"`

	Dose1       *string `db:"dose_1" json:"dose_1,omitempty"`
	Dose1Origin *string `db:"dose_1_origin" json:"dose_1_origin,omitempty"`
	Dose1Obs    *string `db:"dose_1_obs" json:"dose_1_obs,omitempty"`
	Dose1Type   *string `db:"dose_1_type" json:"dose_1_type,omitempty"`

	Dose2       *string `db:"dose_2" json:"dose_2,omitempty"`
	Dose2Origin *string `db:"dose_2_origin" json:"dose_2_origin,omitempty"`
	Dose2Obs    *string `db:"dose_2_obs" json:"dose_2_obs,omitempty"`
	Dose2Type   *string `db:"dose_2_type" json:"dose_2_type,omitempty"`

	Dose3       *string `db:"dose_3" json:"dose_3,omitempty"`
	Dose3Origin *string `db:"dose_3_origin" json:"dose_3_origin,omitempty"`
	Dose3Obs    *string `db:"dose_3_obs" json:"dose_3_obs,omitempty"`
	Dose3Type   *string `db:"dose_3_type" json:"dose_3_type,omitempty"`

	Dose4       *string `db:"dose_4" json:"dose_4,omitempty"`
	Dose4Origin *string `db:"dose_4_origin" json:"dose_4_origin,omitempty"`
	Dose4Obs    *string `db:"dose_4_obs" json:"dose_4_obs,omitempty"`
	Dose4Type   *string `db:"dose_4_type" json:"dose_4_type,omitempty"`

	Dose5       *string `db:"dose_5" json:"dose_5,omitempty"`
	Dose5Origin *string `db:"dose_5_origin" json:"dose_5_origin,omitempty"`
	Dose5Obs    *string `db:"dose_5_obs" json:"dose_5_obs,omitempty"`
	Dose5Type   *string `db:"dose_5_type" json:"dose_5_type,omitempty"`

	Booster       *string `db:"booster" json:"booster,omitempty"`
	BoosterOrigin *string `db:"booster_origin" json:"booster_origin,omitempty"`
	BoosterObs    *string `db:"booster_obs" json:"booster_obs,omitempty"`
	BoosterType   *string `db:"booster_type" json:"booster_type,omitempty"`

	ValidationText *string   `db:"validation_text" json:"validation_text,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (r *VaccinationRecord) fields(s DoseSlot) (date, origin, obs, typ **string) {
	switch s {
	case SlotDose1:
		return &r.Dose1, &r.Dose1Origin, &r.Dose1Obs, &r.Dose1Type
	case SlotDose2:
		return &r.Dose2, &r.Dose2Origin, &r.Dose2Obs, &r.Dose2Type
	case SlotDose3:
		return &r.Dose3, &r.Dose3Origin, &r.Dose3Obs, &r.Dose3Type
	case SlotDose4:
		return &r.Dose4, &r.Dose4Origin, &r.Dose4Obs, &r.Dose4Type
	case SlotDose5:
		return &r.Dose5, &r.Dose5Origin, &r.Dose5Obs, &r.Dose5Type
	default:
		return &r.Booster, &r.BoosterOrigin, &r.BoosterObs, &r.BoosterType
	}
}

// Slot returns the raw content of a slot.
func (r *VaccinationRecord) Slot(s DoseSlot) RawSlot {
	date, origin, obs, typ := r.fields(s)
	return RawSlot{
		Date:        Deref(*date),
		Origin:      Deref(*origin),
		Observation: Deref(*obs),
		Subtype:     Deref(*typ),
	}
}

// SetSlot overwrites a slot. Empty strings are stored as NULL.
func (r *VaccinationRecord) SetSlot(s DoseSlot, raw RawSlot) {
	date, origin, obs, typ := r.fields(s)
	*date = Ref(raw.Date)
	*origin = Ref(raw.Origin)
	*obs = Ref(raw.Observation)
	*typ = Ref(raw.Subtype)
}

// DoseDates returns the raw date text of dose slots 1..5.
func (r *VaccinationRecord) DoseDates() [MaxDoses]string {
	var out [MaxDoses]string
	for i := 0; i < MaxDoses; i++ {
		out[i] = r.Slot(DoseSlot(i + 1)).Date
	}
	return out
}

// HasAnyDate reports whether any dose or booster date is present.
func (r *VaccinationRecord) HasAnyDate() bool {
	for s := SlotBooster; s <= SlotDose5; s++ {
		if !r.Slot(s).Empty() {
			return true
		}
	}
	return false
}

// Person holds the descriptive fields shared by all rows of one person.
type Person struct {
	DocumentNumber   string  `json:"document_number"`
	FullName         string  `json:"full_name"`
	Sex              *string `json:"sex,omitempty"`
	Region           *string `json:"region,omitempty"`
	SubRegion        *string `json:"sub_region,omitempty"`
	Position         *string `json:"position,omitempty"`
	Allergies        *string `json:"allergies,omitempty"`
	Contraindication *string `json:"contraindication,omitempty"`
	EmploymentStatus *string `json:"employment_status,omitempty"`
	ActiveYear       *int    `json:"active_year,omitempty"`
	ResponsibleNurse *string `json:"responsible_nurse,omitempty"`
}

// Person extracts the descriptive fields of the record.
func (r *VaccinationRecord) Person() Person {
	return Person{
		DocumentNumber:   r.DocumentNumber,
		FullName:         r.FullName,
		Sex:              r.Sex,
		Region:           r.Region,
		SubRegion:        r.SubRegion,
		Position:         r.Position,
		Allergies:        r.Allergies,
		Contraindication: r.Contraindication,
		EmploymentStatus: r.EmploymentStatus,
		ActiveYear:       r.ActiveYear,
		ResponsibleNurse: r.ResponsibleNurse,
	}
}

// RecordFilters narrows a record query.
type RecordFilters struct {
	Query     string    `form:"query"`
	Region    string    `form:"region"`
	SubRegion string    `form:"sub_region"`
	Allergies string    `form:"allergies"`
	StartDate time.Time `form:"start_date" time_format:"2006-01-02"`
	EndDate   time.Time `form:"end_date" time_format:"2006-01-02"`
	From      *int      `form:"from" binding:"omitempty,min=0"`
	To        *int      `form:"to" binding:"omitempty,min=0"`
}

// CreateRecordRequest enrolls a person into a vaccine subtype.
type CreateRecordRequest struct {
	DocumentNumber   string  `json:"document_number" binding:"required,max=32"`
	FullName         string  `json:"full_name" binding:"required,max=200"`
	VaccineType      string  `json:"vaccine_type" binding:"required,max=80"`
	Sex              *string `json:"sex"`
	Region           *string `json:"region"`
	SubRegion        *string `json:"sub_region"`
	Position         *string `json:"position"`
	Allergies        *string `json:"allergies"`
	Contraindication *string `json:"contraindication"`
	EmploymentStatus *string `json:"employment_status"`
	ActiveYear       *int    `json:"active_year"`
	ResponsibleNurse *string `json:"responsible_nurse"`
}

// RegisterDoseRequest stores one dose on a record.
type RegisterDoseRequest struct {
	Slot        *int   `json:"slot" binding:"required,min=0,max=5"`
	Date        string `json:"date" binding:"required,datetime=2006-01-02"`
	Origin      string `json:"origin" binding:"max=80"`
	Subtype     string `json:"subtype" binding:"max=80"`
	Responsible string `json:"responsible" binding:"max=200"`
	Observation string `json:"observation" binding:"max=1000"`
	IsUpdate    bool   `json:"is_update"`
}

// UpdateWorkerRequest edits the descriptive fields of every row of a person.
type UpdateWorkerRequest struct {
	FullName         *string `json:"full_name" binding:"omitempty,max=200"`
	Sex              *string `json:"sex"`
	Region           *string `json:"region"`
	SubRegion        *string `json:"sub_region"`
	Position         *string `json:"position"`
	Allergies        *string `json:"allergies"`
	Contraindication *string `json:"contraindication"`
	EmploymentStatus *string `json:"employment_status" binding:"omitempty,oneof=active inactive"`
	ActiveYear       *int    `json:"active_year" binding:"omitempty,min=1900,max=2100"`
	Reason           string  `json:"reason" binding:"required,max=1000"`
}

// Locations lists distinct regions and sub-regions.
type Locations struct {
	Regions     []string   `json:"regions"`
	SubRegions  []string   `json:"sub_regions"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ref returns nil for "" and a pointer otherwise.
func Ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ReportFilters selects the cohort of a compliance report.
type ReportFilters struct {
	Region    string    `form:"region"`
	SubRegion string    `form:"sub_region"`
	StartDate time.Time `form:"start_date" time_format:"2006-01-02"`
	EndDate   time.Time `form:"end_date" time_format:"2006-01-02"`
}

// LocationRow is one region/sub-region pair read while building Locations.
type LocationRow struct {
	Region    *string `db:"region"`
	SubRegion *string `db:"sub_region"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page converts the inclusive from/to window into offset and limit.
func (f RecordFilters) Page() (offset, limit int) {
	if f.From != nil {
		offset = *f.From
	}
	limit = DefaultPageSize
	if f.To != nil && *f.To >= offset {
		limit = *f.To - offset + 1
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}
