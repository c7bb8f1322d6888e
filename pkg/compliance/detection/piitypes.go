package detection

import (
	"sort"

	"mercator-hq/custodian/pkg/compliance"
)

// BuiltinPIITypes are the PII type tags every deployment accepts. Detectors
// emitting other tags need them listed in detection.extra_pii_types.
var BuiltinPIITypes = []string{
	// Identity
	"person_name",
	"email",
	"phone",
	"address",
	"date_of_birth",
	"ssn",
	"passport_number",
	"drivers_license",
	"national_id",
	"tax_id",
	"ip_address",
	"username",

	// Financial
	"credit_card",
	"bank_account",
	"routing_number",
	"iban",

	// Medical
	"medical_record_number",
	"health_plan_id",
	"lab_result",
	"diagnosis",
	"medication",
	"provider_name",

	// Legal
	"case_number",
	"client_name",
	"privileged_communication",

	// Credentials
	"api_key",
	"password",
}

// typeSet is the accepted set of normalized PII types.
type typeSet map[string]struct{}

func newTypeSet(extra []string) typeSet {
	s := make(typeSet, len(BuiltinPIITypes)+len(extra))
	for _, t := range BuiltinPIITypes {
		s[t] = struct{}{}
	}
	for _, t := range extra {
		if n := compliance.NormalizePIIType(t); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

func (s typeSet) has(t string) bool {
	_, ok := s[t]
	return ok
}

func (s typeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
