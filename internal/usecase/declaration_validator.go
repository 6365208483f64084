package usecase

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

const (
	maxShortField = 256
	maxLongField  = 2000
	maxRetention  = 36500
)

// ValidateOptions tunes digest checks. Simulation accepts digests that
// SimulatedDigest recognizes in place of real SHA-256 hex.
type ValidateOptions struct {
	Simulation      bool
	SimulatedDigest func(string) bool
}

type ValidationResult struct {
	OK          bool
	FieldErrors []domain.FieldError
	// Notices report normalizations applied to caller input, such as
	// method-forced provenance. They never fail validation.
	Notices    []domain.FieldError
	Normalized domain.Declaration
}

// Err returns a *domain.ValidationError when the result failed.
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return domain.NewValidationError(r.FieldErrors...)
}

type requiredField struct {
	name    string
	present func(d domain.Declaration) bool
}

// methodRule is the single source of truth for one ingestion method.
type methodRule struct {
	variant   string
	hasDetail func(d domain.Declaration) bool
	required  []requiredField
	normalize func(d *domain.Declaration) []domain.FieldError
	check     func(d domain.Declaration, opts ValidateOptions) []domain.FieldError
}

var commonRequired = []requiredField{
	{name: "source_system", present: func(d domain.Declaration) bool { return d.SourceSystem != "" }},
	{name: "dataset_type", present: func(d domain.Declaration) bool { return d.DatasetType != "" }},
	{name: "declared_scope", present: func(d domain.Declaration) bool { return d.DeclaredScope != "" }},
	{name: "purpose", present: func(d domain.Declaration) bool { return d.Purpose != "" }},
	{name: "legal_basis", present: func(d domain.Declaration) bool { return d.LegalBasis != "" }},
	{name: "retention_policy", present: func(d domain.Declaration) bool { return d.RetentionPolicy != "" }},
}

var methodRules = map[domain.IngestionMethod]methodRule{
	domain.MethodFileUpload: {
		variant:   "file_upload",
		hasDetail: func(d domain.Declaration) bool { return d.FileUpload != nil },
		normalize: func(d *domain.Declaration) []domain.FieldError {
			if d.FileUpload == nil {
				d.FileUpload = &domain.FileUploadDetails{}
			}
			d.FileUpload.DocumentReference = strings.TrimSpace(d.FileUpload.DocumentReference)
			return nil
		},
		check: func(d domain.Declaration, _ ValidateOptions) []domain.FieldError {
			var errs []domain.FieldError
			errs = append(errs, reservedSourceSystem(d)...)
			errs = append(errs, maxLen("file_upload.document_reference", d.FileUpload.DocumentReference, maxShortField)...)
			return errs
		},
	},
	domain.MethodManualEntry: {
		variant:   "manual_entry",
		hasDetail: func(d domain.Declaration) bool { return d.ManualEntry != nil },
		required: []requiredField{
			{name: "manual_entry.justification", present: func(d domain.Declaration) bool {
				return d.ManualEntry != nil && d.ManualEntry.Justification != ""
			}},
		},
		normalize: func(d *domain.Declaration) []domain.FieldError {
			var notices []domain.FieldError
			if d.SourceSystem != domain.SourceSystemInternalManual {
				if d.SourceSystem != "" {
					notices = append(notices, domain.FieldError{
						Field: "source_system",
						Error: "overridden",
						Hint:  "MANUAL_ENTRY always records " + domain.SourceSystemInternalManual,
					})
				}
				d.SourceSystem = domain.SourceSystemInternalManual
			}
			if d.ManualEntry != nil {
				d.ManualEntry.Justification = strings.TrimSpace(d.ManualEntry.Justification)
			}
			return notices
		},
		check: func(d domain.Declaration, _ ValidateOptions) []domain.FieldError {
			return maxLen("manual_entry.justification", d.ManualEntry.Justification, maxLongField)
		},
	},
	domain.MethodAPIPush: {
		variant:   "api_push",
		hasDetail: func(d domain.Declaration) bool { return d.APIPush != nil },
		required: []requiredField{
			{name: "api_push.client_id", present: func(d domain.Declaration) bool {
				return d.APIPush != nil && d.APIPush.ClientID != ""
			}},
			{name: "api_push.manifest_digest_sha256", present: func(d domain.Declaration) bool {
				return d.APIPush != nil && d.APIPush.ManifestDigestSHA256 != ""
			}},
		},
		normalize: func(d *domain.Declaration) []domain.FieldError {
			if p := d.APIPush; p != nil {
				p.ClientID = strings.TrimSpace(p.ClientID)
				p.ManifestDigestSHA256 = strings.TrimSpace(p.ManifestDigestSHA256)
				p.StartedAtUTC = utcPtr(p.StartedAtUTC)
				p.FinishedAtUTC = utcPtr(p.FinishedAtUTC)
			}
			return nil
		},
		check: func(d domain.Declaration, opts ValidateOptions) []domain.FieldError {
			var errs []domain.FieldError
			errs = append(errs, reservedSourceSystem(d)...)
			errs = append(errs, maxLen("api_push.client_id", d.APIPush.ClientID, maxShortField)...)
			errs = append(errs, digestFormat("api_push.manifest_digest_sha256", d.APIPush.ManifestDigestSHA256, opts)...)
			errs = append(errs, timeOrder("api_push", d.APIPush.StartedAtUTC, d.APIPush.FinishedAtUTC)...)
			return errs
		},
	},
	domain.MethodERPAPI: {
		variant:   "erp_api",
		hasDetail: func(d domain.Declaration) bool { return d.ERPAPI != nil },
		required: []requiredField{
			{name: "erp_api.erp_instance", present: func(d domain.Declaration) bool {
				return d.ERPAPI != nil && d.ERPAPI.ERPInstance != ""
			}},
			{name: "erp_api.run_id", present: func(d domain.Declaration) bool {
				return d.ERPAPI != nil && d.ERPAPI.RunID != ""
			}},
			{name: "erp_api.started_at_utc", present: func(d domain.Declaration) bool {
				return d.ERPAPI != nil && d.ERPAPI.StartedAtUTC != nil
			}},
			{name: "erp_api.finished_at_utc", present: func(d domain.Declaration) bool {
				return d.ERPAPI != nil && d.ERPAPI.FinishedAtUTC != nil
			}},
			{name: "erp_api.manifest_digest_sha256", present: func(d domain.Declaration) bool {
				return d.ERPAPI != nil && d.ERPAPI.ManifestDigestSHA256 != ""
			}},
		},
		normalize: func(d *domain.Declaration) []domain.FieldError {
			if p := d.ERPAPI; p != nil {
				p.ERPInstance = strings.TrimSpace(p.ERPInstance)
				p.RunID = strings.TrimSpace(p.RunID)
				p.ManifestDigestSHA256 = strings.TrimSpace(p.ManifestDigestSHA256)
				p.StartedAtUTC = utcPtr(p.StartedAtUTC)
				p.FinishedAtUTC = utcPtr(p.FinishedAtUTC)
			}
			return nil
		},
		check: func(d domain.Declaration, opts ValidateOptions) []domain.FieldError {
			var errs []domain.FieldError
			errs = append(errs, reservedSourceSystem(d)...)
			errs = append(errs, maxLen("erp_api.erp_instance", d.ERPAPI.ERPInstance, maxShortField)...)
			errs = append(errs, maxLen("erp_api.run_id", d.ERPAPI.RunID, maxShortField)...)
			errs = append(errs, digestFormat("erp_api.manifest_digest_sha256", d.ERPAPI.ManifestDigestSHA256, opts)...)
			errs = append(errs, timeOrder("erp_api", d.ERPAPI.StartedAtUTC, d.ERPAPI.FinishedAtUTC)...)
			return errs
		},
	},
	domain.MethodERPExport: {
		variant:   "erp_export",
		hasDetail: func(d domain.Declaration) bool { return d.ERPExport != nil },
		required: []requiredField{
			{name: "erp_export.erp_instance", present: func(d domain.Declaration) bool {
				return d.ERPExport != nil && d.ERPExport.ERPInstance != ""
			}},
			{name: "erp_export.export_job_id", present: func(d domain.Declaration) bool {
				return d.ERPExport != nil && d.ERPExport.ExportJobID != ""
			}},
			{name: "erp_export.exported_at_utc", present: func(d domain.Declaration) bool {
				return d.ERPExport != nil && d.ERPExport.ExportedAtUTC != nil
			}},
		},
		normalize: func(d *domain.Declaration) []domain.FieldError {
			if p := d.ERPExport; p != nil {
				p.ERPInstance = strings.TrimSpace(p.ERPInstance)
				p.ExportJobID = strings.TrimSpace(p.ExportJobID)
				p.ExportedAtUTC = utcPtr(p.ExportedAtUTC)
			}
			return nil
		},
		check: func(d domain.Declaration, _ ValidateOptions) []domain.FieldError {
			var errs []domain.FieldError
			errs = append(errs, reservedSourceSystem(d)...)
			errs = append(errs, maxLen("erp_export.erp_instance", d.ERPExport.ERPInstance, maxShortField)...)
			errs = append(errs, maxLen("erp_export.export_job_id", d.ERPExport.ExportJobID, maxShortField)...)
			return errs
		},
	},
	domain.MethodSupplierPortal: {
		variant:   "supplier_portal",
		hasDetail: func(d domain.Declaration) bool { return d.SupplierPortal != nil },
		required: []requiredField{
			{name: "supplier_portal.portal_submission_id", present: func(d domain.Declaration) bool {
				return d.SupplierPortal != nil && d.SupplierPortal.PortalSubmissionID != ""
			}},
			{name: "supplier_portal.supplier_id", present: func(d domain.Declaration) bool {
				return d.SupplierPortal != nil && d.SupplierPortal.SupplierID != ""
			}},
		},
		normalize: func(d *domain.Declaration) []domain.FieldError {
			if p := d.SupplierPortal; p != nil {
				p.PortalSubmissionID = strings.TrimSpace(p.PortalSubmissionID)
				p.SupplierID = strings.TrimSpace(p.SupplierID)
			}
			return nil
		},
		check: func(d domain.Declaration, _ ValidateOptions) []domain.FieldError {
			var errs []domain.FieldError
			errs = append(errs, reservedSourceSystem(d)...)
			errs = append(errs, maxLen("supplier_portal.portal_submission_id", d.SupplierPortal.PortalSubmissionID, maxShortField)...)
			errs = append(errs, maxLen("supplier_portal.supplier_id", d.SupplierPortal.SupplierID, maxShortField)...)
			return errs
		},
	},
}

var allVariants = []struct {
	name    string
	present func(d domain.Declaration) bool
}{
	{"file_upload", func(d domain.Declaration) bool { return d.FileUpload != nil }},
	{"manual_entry", func(d domain.Declaration) bool { return d.ManualEntry != nil }},
	{"api_push", func(d domain.Declaration) bool { return d.APIPush != nil }},
	{"erp_api", func(d domain.Declaration) bool { return d.ERPAPI != nil }},
	{"erp_export", func(d domain.Declaration) bool { return d.ERPExport != nil }},
	{"supplier_portal", func(d domain.Declaration) bool { return d.SupplierPortal != nil }},
}

// RequiredFields lists the declaration fields a method requires, common
// fields first. Conditional requirements (retention_days,
// scope_target_ids) are not included.
func RequiredFields(method domain.IngestionMethod) []string {
	rule, ok := methodRules[method]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(commonRequired)+len(rule.required))
	for _, f := range commonRequired {
		out = append(out, f.name)
	}
	for _, f := range rule.required {
		out = append(out, f.name)
	}
	return out
}

// DeclarationValidator is pure: it never touches storage and has no side
// effects on its input.
type DeclarationValidator struct{}

func (DeclarationValidator) Validate(decl domain.Declaration, opts ValidateOptions) ValidationResult {
	d := decl.Clone()
	normalizeCommon(&d)

	rule, ok := methodRules[d.IngestionMethod]
	if !ok {
		field := domain.FieldError{Field: "ingestion_method", Error: "required"}
		if d.IngestionMethod != "" {
			field = domain.FieldError{Field: "ingestion_method", Error: "unsupported", Hint: methodHint()}
		}
		return ValidationResult{FieldErrors: []domain.FieldError{field}, Normalized: d}
	}

	var notices []domain.FieldError
	if rule.normalize != nil {
		notices = rule.normalize(&d)
	}

	var errs []domain.FieldError
	for _, v := range allVariants {
		if v.name != rule.variant && v.present(d) {
			errs = append(errs, domain.FieldError{
				Field: v.name,
				Error: "not allowed",
				Hint:  "only " + rule.variant + " may accompany " + string(d.IngestionMethod),
			})
		}
	}

	missingDetail := len(rule.required) > 0 && !rule.hasDetail(d)
	for _, f := range commonRequired {
		if !f.present(d) {
			errs = append(errs, domain.FieldError{Field: f.name, Error: "required"})
		}
	}
	if missingDetail {
		errs = append(errs, domain.FieldError{Field: rule.variant, Error: "required"})
	} else {
		for _, f := range rule.required {
			if !f.present(d) {
				errs = append(errs, domain.FieldError{Field: f.name, Error: "required"})
			}
		}
	}

	errs = append(errs, checkCommon(d)...)
	if !missingDetail && rule.check != nil && rule.hasDetail(d) {
		errs = append(errs, rule.check(d, opts)...)
	}

	sortFieldErrors(errs)
	return ValidationResult{
		OK:          len(errs) == 0,
		FieldErrors: errs,
		Notices:     notices,
		Normalized:  d,
	}
}

// ValidateForMethod also enforces that the draft's fixed method was not
// changed.
func (v DeclarationValidator) ValidateForMethod(decl domain.Declaration, method domain.IngestionMethod, opts ValidateOptions) ValidationResult {
	res := v.Validate(decl, opts)
	if decl.IngestionMethod != method {
		res.OK = false
		res.FieldErrors = append(res.FieldErrors, domain.FieldError{
			Field: "ingestion_method",
			Error: "immutable",
			Hint:  "draft was created for " + string(method) + "; start a new draft to change method",
		})
		sortFieldErrors(res.FieldErrors)
	}
	return res
}

func normalizeCommon(d *domain.Declaration) {
	d.IngestionMethod = domain.IngestionMethod(strings.TrimSpace(string(d.IngestionMethod)))
	d.SourceSystem = strings.TrimSpace(d.SourceSystem)
	d.DatasetType = strings.TrimSpace(d.DatasetType)
	d.DeclaredScope = domain.DeclaredScope(strings.TrimSpace(string(d.DeclaredScope)))
	d.Purpose = strings.TrimSpace(d.Purpose)
	d.LegalBasis = strings.TrimSpace(d.LegalBasis)
	d.RetentionPolicy = domain.RetentionPolicy(strings.TrimSpace(string(d.RetentionPolicy)))
	if d.ScopeTargetIDs != nil {
		ids := make([]string, 0, len(d.ScopeTargetIDs))
		for _, id := range d.ScopeTargetIDs {
			ids = append(ids, strings.TrimSpace(id))
		}
		d.ScopeTargetIDs = ids
	}
}

func checkCommon(d domain.Declaration) []domain.FieldError {
	var errs []domain.FieldError
	errs = append(errs, maxLen("source_system", d.SourceSystem, maxShortField)...)
	errs = append(errs, maxLen("dataset_type", d.DatasetType, maxShortField)...)
	errs = append(errs, maxLen("purpose", d.Purpose, maxLongField)...)
	errs = append(errs, maxLen("legal_basis", d.LegalBasis, maxShortField)...)

	if d.DeclaredScope != "" && !d.DeclaredScope.Valid() {
		errs = append(errs, domain.FieldError{Field: "declared_scope", Error: "unsupported", Hint: "one of ORGANIZATION, SITE, SUPPLIER, PRODUCT"})
	}
	if d.DeclaredScope.EntityBound() && len(d.ScopeTargetIDs) == 0 {
		errs = append(errs, domain.FieldError{Field: "scope_target_ids", Error: "required", Hint: "entity scopes name at least one target"})
	}
	seen := make(map[string]struct{}, len(d.ScopeTargetIDs))
	for _, id := range d.ScopeTargetIDs {
		if id == "" {
			errs = append(errs, domain.FieldError{Field: "scope_target_ids", Error: "empty id"})
			continue
		}
		if len(id) > maxShortField {
			errs = append(errs, domain.FieldError{Field: "scope_target_ids", Error: "too long"})
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, domain.FieldError{Field: "scope_target_ids", Error: "duplicate id", Hint: id})
			continue
		}
		seen[id] = struct{}{}
	}

	if d.RetentionPolicy != "" && !d.RetentionPolicy.Valid() {
		errs = append(errs, domain.FieldError{Field: "retention_policy", Error: "unsupported", Hint: "one of REGULATORY_10Y, REGULATORY_7Y, CUSTOM"})
	}
	switch {
	case d.RetentionPolicy == domain.RetentionCustom && d.RetentionDays == 0:
		errs = append(errs, domain.FieldError{Field: "retention_days", Error: "required", Hint: "CUSTOM retention needs a day count"})
	case d.RetentionPolicy == domain.RetentionCustom && (d.RetentionDays < 1 || d.RetentionDays > maxRetention):
		errs = append(errs, domain.FieldError{Field: "retention_days", Error: "out of range", Hint: "1..36500"})
	case d.RetentionPolicy != domain.RetentionCustom && d.RetentionDays != 0:
		errs = append(errs, domain.FieldError{Field: "retention_days", Error: "not allowed", Hint: "only CUSTOM retention takes a day count"})
	}
	return errs
}

func reservedSourceSystem(d domain.Declaration) []domain.FieldError {
	if d.SourceSystem == domain.SourceSystemInternalManual {
		return []domain.FieldError{{
			Field: "source_system",
			Error: "reserved",
			Hint:  domain.SourceSystemInternalManual + " is only valid for MANUAL_ENTRY",
		}}
	}
	return nil
}

func maxLen(field, value string, limit int) []domain.FieldError {
	if len(value) > limit {
		return []domain.FieldError{{Field: field, Error: "too long", Hint: "max " + strconv.Itoa(limit) + " bytes"}}
	}
	return nil
}

func digestFormat(field, value string, opts ValidateOptions) []domain.FieldError {
	if value == "" {
		return nil
	}
	if crypto.IsSHA256Hex(value) {
		return nil
	}
	if opts.Simulation && opts.SimulatedDigest != nil && opts.SimulatedDigest(value) {
		return nil
	}
	return []domain.FieldError{{Field: field, Error: "malformed digest", Hint: "64 lowercase hex characters"}}
}

func timeOrder(prefix string, started, finished *time.Time) []domain.FieldError {
	if started == nil || finished == nil {
		return nil
	}
	if finished.Before(*started) {
		return []domain.FieldError{{
			Field: prefix + ".finished_at_utc",
			Error: "before started_at_utc",
			Hint:  "finished_at_utc must not precede started_at_utc",
		}}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func methodHint() string {
	names := make([]string, 0, len(domain.IngestionMethods))
	for _, m := range domain.IngestionMethods {
		names = append(names, string(m))
	}
	return "one of " + strings.Join(names, ", ")
}

func sortFieldErrors(errs []domain.FieldError) {
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Field < errs[j].Field
	})
}
