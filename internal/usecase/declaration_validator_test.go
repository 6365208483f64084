package usecase

import (
	"strings"
	"testing"
	"time"

	"seald/internal/domain"
)

const validDigest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func hasField(fields []domain.FieldError, field, errText string) bool {
	for _, f := range fields {
		if f.Field == field && (errText == "" || f.Error == errText) {
			return true
		}
	}
	return false
}

func TestValidateReportsEveryRequiredFieldAtOnce(t *testing.T) {
	res := DeclarationValidator{}.Validate(domain.Declaration{IngestionMethod: domain.MethodERPAPI}, ValidateOptions{})
	if res.OK {
		t.Fatal("expected failure")
	}
	for _, field := range []string{"source_system", "dataset_type", "declared_scope", "purpose", "legal_basis", "retention_policy", "erp_api"} {
		if !hasField(res.FieldErrors, field, "required") {
			t.Fatalf("missing required error for %s in %+v", field, res.FieldErrors)
		}
	}
	for i := 1; i < len(res.FieldErrors); i++ {
		if res.FieldErrors[i].Field < res.FieldErrors[i-1].Field {
			t.Fatalf("field errors not sorted: %+v", res.FieldErrors)
		}
	}
}

func TestValidateMethodRules(t *testing.T) {
	started := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(d *domain.Declaration)
		opts   ValidateOptions
		field  string
		err    string
	}{
		{
			name:   "unknown method",
			mutate: func(d *domain.Declaration) { d.IngestionMethod = "FAX" },
			field:  "ingestion_method",
			err:    "unsupported",
		},
		{
			name:   "foreign variant",
			mutate: func(d *domain.Declaration) { d.ManualEntry = &domain.ManualEntryDetails{Justification: "x"} },
			field:  "manual_entry",
			err:    "not allowed",
		},
		{
			name:   "reserved source system",
			mutate: func(d *domain.Declaration) { d.SourceSystem = domain.SourceSystemInternalManual },
			field:  "source_system",
			err:    "reserved",
		},
		{
			name:   "custom retention without days",
			mutate: func(d *domain.Declaration) { d.RetentionPolicy = domain.RetentionCustom },
			field:  "retention_days",
			err:    "required",
		},
		{
			name:   "days on fixed retention",
			mutate: func(d *domain.Declaration) { d.RetentionDays = 30 },
			field:  "retention_days",
			err:    "not allowed",
		},
		{
			name: "custom retention out of range",
			mutate: func(d *domain.Declaration) {
				d.RetentionPolicy = domain.RetentionCustom
				d.RetentionDays = 40000
			},
			field: "retention_days",
			err:   "out of range",
		},
		{
			name:   "entity scope without targets",
			mutate: func(d *domain.Declaration) { d.DeclaredScope = domain.ScopeSite },
			field:  "scope_target_ids",
			err:    "required",
		},
		{
			name: "duplicate targets",
			mutate: func(d *domain.Declaration) {
				d.DeclaredScope = domain.ScopeSite
				d.ScopeTargetIDs = []string{"S1", " S1 "}
			},
			field: "scope_target_ids",
			err:   "duplicate id",
		},
		{
			name:   "purpose too long",
			mutate: func(d *domain.Declaration) { d.Purpose = strings.Repeat("p", maxLongField+1) },
			field:  "purpose",
			err:    "too long",
		},
		{
			name: "erp run finished before start",
			mutate: func(d *domain.Declaration) {
				d.IngestionMethod = domain.MethodERPAPI
				d.FileUpload = nil
				d.ERPAPI = &domain.ERPAPIDetails{ERPInstance: "prd", RunID: "r1", StartedAtUTC: &started, FinishedAtUTC: &finished, ManifestDigestSHA256: validDigest}
			},
			field: "erp_api.finished_at_utc",
			err:   "before started_at_utc",
		},
		{
			name: "malformed manifest digest",
			mutate: func(d *domain.Declaration) {
				d.IngestionMethod = domain.MethodAPIPush
				d.FileUpload = nil
				d.APIPush = &domain.APIPushDetails{ClientID: "c1", ManifestDigestSHA256: "SIM-0000"}
			},
			field: "api_push.manifest_digest_sha256",
			err:   "malformed digest",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decl := fileUploadDecl()
			tc.mutate(&decl)
			res := DeclarationValidator{}.Validate(decl, tc.opts)
			if res.OK {
				t.Fatalf("expected failure")
			}
			if !hasField(res.FieldErrors, tc.field, tc.err) {
				t.Fatalf("expected %s/%s, got %+v", tc.field, tc.err, res.FieldErrors)
			}
		})
	}
}

func TestValidateSimulationAcceptsSimulatedDigest(t *testing.T) {
	decl := fileUploadDecl()
	decl.IngestionMethod = domain.MethodAPIPush
	decl.FileUpload = nil
	decl.APIPush = &domain.APIPushDetails{ClientID: "c1", ManifestDigestSHA256: "SIM-0000"}
	opts := ValidateOptions{Simulation: true, SimulatedDigest: func(s string) bool { return strings.HasPrefix(s, "SIM-") }}
	if res := (DeclarationValidator{}).Validate(decl, opts); !res.OK {
		t.Fatalf("simulation should accept simulated digest: %+v", res.FieldErrors)
	}
	if res := (DeclarationValidator{}).Validate(decl, ValidateOptions{SimulatedDigest: opts.SimulatedDigest}); res.OK {
		t.Fatal("simulated digest must be rejected outside simulation")
	}
}

func TestValidateManualEntryForcesSourceSystem(t *testing.T) {
	decl := fileUploadDecl()
	decl.IngestionMethod = domain.MethodManualEntry
	decl.FileUpload = nil
	decl.ManualEntry = &domain.ManualEntryDetails{Justification: "  meter was offline  "}
	res := DeclarationValidator{}.Validate(decl, ValidateOptions{})
	if !res.OK {
		t.Fatalf("unexpected errors %+v", res.FieldErrors)
	}
	if res.Normalized.SourceSystem != domain.SourceSystemInternalManual {
		t.Fatalf("expected forced source system, got %q", res.Normalized.SourceSystem)
	}
	if !hasField(res.Notices, "source_system", "overridden") {
		t.Fatalf("expected override notice, got %+v", res.Notices)
	}
	if res.Normalized.ManualEntry.Justification != "meter was offline" {
		t.Fatalf("justification not trimmed: %q", res.Normalized.ManualEntry.Justification)
	}
	if decl.SourceSystem != "SAP" || decl.ManualEntry.Justification != "  meter was offline  " {
		t.Fatal("validation mutated its input")
	}
}

func TestValidateForMethodRejectsMethodChange(t *testing.T) {
	res := DeclarationValidator{}.ValidateForMethod(fileUploadDecl(), domain.MethodERPExport, ValidateOptions{})
	if res.OK || !hasField(res.FieldErrors, "ingestion_method", "immutable") {
		t.Fatalf("expected immutable method error, got %+v", res.FieldErrors)
	}
}

func TestRequiredFieldsListsCommonFirst(t *testing.T) {
	fields := RequiredFields(domain.MethodSupplierPortal)
	if len(fields) != len(commonRequired)+2 {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields[0] != "source_system" || fields[len(fields)-1] != "supplier_portal.supplier_id" {
		t.Fatalf("unexpected order %v", fields)
	}
	if RequiredFields("FAX") != nil {
		t.Fatal("unknown method should have no fields")
	}
}
