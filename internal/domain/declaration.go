package domain

import "time"

type IngestionMethod string

const (
	MethodFileUpload     IngestionMethod = "FILE_UPLOAD"
	MethodManualEntry    IngestionMethod = "MANUAL_ENTRY"
	MethodAPIPush        IngestionMethod = "API_PUSH"
	MethodERPAPI         IngestionMethod = "ERP_API"
	MethodERPExport      IngestionMethod = "ERP_EXPORT"
	MethodSupplierPortal IngestionMethod = "SUPPLIER_PORTAL"
)

// IngestionMethods lists every supported method in a stable order.
var IngestionMethods = []IngestionMethod{
	MethodFileUpload,
	MethodManualEntry,
	MethodAPIPush,
	MethodERPAPI,
	MethodERPExport,
	MethodSupplierPortal,
}

func (m IngestionMethod) Valid() bool {
	for _, known := range IngestionMethods {
		if m == known {
			return true
		}
	}
	return false
}

// ReferenceFirst reports whether evidence for the method may be sealed
// before its content is available.
func (m IngestionMethod) ReferenceFirst() bool {
	return m == MethodSupplierPortal
}

type DeclaredScope string

const (
	ScopeOrganization DeclaredScope = "ORGANIZATION"
	ScopeSite         DeclaredScope = "SITE"
	ScopeSupplier     DeclaredScope = "SUPPLIER"
	ScopeProduct      DeclaredScope = "PRODUCT"
)

func (s DeclaredScope) Valid() bool {
	switch s {
	case ScopeOrganization, ScopeSite, ScopeSupplier, ScopeProduct:
		return true
	}
	return false
}

// EntityBound reports whether the scope names canonical target entities
// that must be resolved at seal time.
func (s DeclaredScope) EntityBound() bool {
	return s == ScopeSite || s == ScopeSupplier || s == ScopeProduct
}

type RetentionPolicy string

const (
	RetentionRegulatory10Y RetentionPolicy = "REGULATORY_10Y"
	RetentionRegulatory7Y  RetentionPolicy = "REGULATORY_7Y"
	RetentionCustom        RetentionPolicy = "CUSTOM"
)

func (p RetentionPolicy) Valid() bool {
	switch p {
	case RetentionRegulatory10Y, RetentionRegulatory7Y, RetentionCustom:
		return true
	}
	return false
}

// RetentionEnd returns the end of the retention window starting at from.
// customDays is only consulted for CUSTOM.
func (p RetentionPolicy) RetentionEnd(from time.Time, customDays int) time.Time {
	switch p {
	case RetentionRegulatory10Y:
		return from.AddDate(10, 0, 0)
	case RetentionRegulatory7Y:
		return from.AddDate(7, 0, 0)
	default:
		return from.AddDate(0, 0, customDays)
	}
}

const SourceSystemInternalManual = "INTERNAL_MANUAL"

// Declaration is the provenance statement for a future evidence record.
// Exactly one of the method detail objects is set and it must match
// IngestionMethod.
type Declaration struct {
	IngestionMethod IngestionMethod `json:"ingestion_method"`
	SourceSystem    string          `json:"source_system"`
	DatasetType     string          `json:"dataset_type"`
	DeclaredScope   DeclaredScope   `json:"declared_scope"`
	ScopeTargetIDs  []string        `json:"scope_target_ids,omitempty"`
	Purpose         string          `json:"purpose"`
	LegalBasis      string          `json:"legal_basis"`
	RetentionPolicy RetentionPolicy `json:"retention_policy"`
	RetentionDays   int             `json:"retention_days,omitempty"`

	FileUpload     *FileUploadDetails     `json:"file_upload,omitempty"`
	ManualEntry    *ManualEntryDetails    `json:"manual_entry,omitempty"`
	APIPush        *APIPushDetails        `json:"api_push,omitempty"`
	ERPAPI         *ERPAPIDetails         `json:"erp_api,omitempty"`
	ERPExport      *ERPExportDetails      `json:"erp_export,omitempty"`
	SupplierPortal *SupplierPortalDetails `json:"supplier_portal,omitempty"`
}

// MethodDetails is implemented by every per-method variant.
type MethodDetails interface {
	Method() IngestionMethod
}

type FileUploadDetails struct {
	DocumentReference string `json:"document_reference,omitempty"`
}

type ManualEntryDetails struct {
	Justification string `json:"justification"`
}

type APIPushDetails struct {
	ClientID             string     `json:"client_id"`
	ManifestDigestSHA256 string     `json:"manifest_digest_sha256"`
	StartedAtUTC         *time.Time `json:"started_at_utc,omitempty"`
	FinishedAtUTC        *time.Time `json:"finished_at_utc,omitempty"`
}

type ERPAPIDetails struct {
	ERPInstance          string     `json:"erp_instance"`
	RunID                string     `json:"run_id"`
	StartedAtUTC         *time.Time `json:"started_at_utc"`
	FinishedAtUTC        *time.Time `json:"finished_at_utc"`
	ManifestDigestSHA256 string     `json:"manifest_digest_sha256"`
}

type ERPExportDetails struct {
	ERPInstance   string     `json:"erp_instance"`
	ExportJobID   string     `json:"export_job_id"`
	ExportedAtUTC *time.Time `json:"exported_at_utc"`
}

type SupplierPortalDetails struct {
	PortalSubmissionID string `json:"portal_submission_id"`
	SupplierID         string `json:"supplier_id"`
}

func (FileUploadDetails) Method() IngestionMethod     { return MethodFileUpload }
func (ManualEntryDetails) Method() IngestionMethod    { return MethodManualEntry }
func (APIPushDetails) Method() IngestionMethod        { return MethodAPIPush }
func (ERPAPIDetails) Method() IngestionMethod         { return MethodERPAPI }
func (ERPExportDetails) Method() IngestionMethod      { return MethodERPExport }
func (SupplierPortalDetails) Method() IngestionMethod { return MethodSupplierPortal }

// Variants returns every method detail object present on the declaration.
func (d Declaration) Variants() []MethodDetails {
	var out []MethodDetails
	if d.FileUpload != nil {
		out = append(out, *d.FileUpload)
	}
	if d.ManualEntry != nil {
		out = append(out, *d.ManualEntry)
	}
	if d.APIPush != nil {
		out = append(out, *d.APIPush)
	}
	if d.ERPAPI != nil {
		out = append(out, *d.ERPAPI)
	}
	if d.ERPExport != nil {
		out = append(out, *d.ERPExport)
	}
	if d.SupplierPortal != nil {
		out = append(out, *d.SupplierPortal)
	}
	return out
}

// ManifestDigest returns the declared manifest digest for methods that
// carry one.
func (d Declaration) ManifestDigest() string {
	switch d.IngestionMethod {
	case MethodAPIPush:
		if d.APIPush != nil {
			return d.APIPush.ManifestDigestSHA256
		}
	case MethodERPAPI:
		if d.ERPAPI != nil {
			return d.ERPAPI.ManifestDigestSHA256
		}
	}
	return ""
}

// BindingTargets returns the canonical entity ids the declaration must be
// bound to at seal time, in declaration order without duplicates.
func (d Declaration) BindingTargets() (DeclaredScope, []string) {
	scope := d.DeclaredScope
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if d.IngestionMethod == MethodSupplierPortal {
		scope = ScopeSupplier
		if d.SupplierPortal != nil {
			add(d.SupplierPortal.SupplierID)
		}
		if d.DeclaredScope == ScopeSupplier {
			for _, id := range d.ScopeTargetIDs {
				add(id)
			}
		}
		return scope, ids
	}
	if !scope.EntityBound() {
		return scope, nil
	}
	for _, id := range d.ScopeTargetIDs {
		add(id)
	}
	return scope, ids
}

// Clone returns a deep copy so callers can normalize without aliasing.
func (d Declaration) Clone() Declaration {
	out := d
	if d.ScopeTargetIDs != nil {
		out.ScopeTargetIDs = append([]string(nil), d.ScopeTargetIDs...)
	}
	if d.FileUpload != nil {
		v := *d.FileUpload
		out.FileUpload = &v
	}
	if d.ManualEntry != nil {
		v := *d.ManualEntry
		out.ManualEntry = &v
	}
	if d.APIPush != nil {
		v := *d.APIPush
		v.StartedAtUTC = cloneTime(d.APIPush.StartedAtUTC)
		v.FinishedAtUTC = cloneTime(d.APIPush.FinishedAtUTC)
		out.APIPush = &v
	}
	if d.ERPAPI != nil {
		v := *d.ERPAPI
		v.StartedAtUTC = cloneTime(d.ERPAPI.StartedAtUTC)
		v.FinishedAtUTC = cloneTime(d.ERPAPI.FinishedAtUTC)
		out.ERPAPI = &v
	}
	if d.ERPExport != nil {
		v := *d.ERPExport
		v.ExportedAtUTC = cloneTime(d.ERPExport.ExportedAtUTC)
		out.ERPExport = &v
	}
	if d.SupplierPortal != nil {
		v := *d.SupplierPortal
		out.SupplierPortal = &v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
