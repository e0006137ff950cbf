// Package cyprus normalizes the Cyprus companies register: an organisations
// stream, an officials stream, and a separate registered-office stream that
// is folded in through an address-by-sequence-number lookup built in a prior
// pass.
package cyprus

import (
	"errors"
	"fmt"
	"io"

	"github.com/opensanctions/graph/pkg/datasets"
	"github.com/opensanctions/graph/pkg/mapping"
	"github.com/opensanctions/graph/pkg/model"
	"github.com/opensanctions/graph/pkg/text"
)

// Meta describes the dataset.
var Meta = datasets.Metadata{
	Name:   "cy_companies",
	Title:  "Cyprus Companies Section Registry",
	Prefix: "oc-companies-cy",
	URL:    "https://www.data.gov.cy/node/4016/dataset/download",
}

// OrgTypes maps the register's organisation-type letters onto the registry
// prefixes used in registration numbers. Rows with other type codes (blank,
// or the "Εμπορική Επωνυμία" trade-name marker) are not companies and are
// skipped.
var OrgTypes = map[string]string{
	"C": "HE", // company
	"P": "S",  // partnership
	"O": "AE", // overseas company
	"N": "BN", // business name
	"B": "B",
}

// organisationSpec maps the straightforward organisation columns. The two
// name-status columns repeat the status fields and are ignored on audit.
var organisationSpec = &mapping.Spec{
	Name:    "cy_companies/organisations",
	Dataset: "cy_companies",
	Version: "1",
	Fields: []mapping.Field{
		{Source: "ORGANISATION_NAME", Property: "name"},
		{Source: "ORGANISATION_STATUS", Property: "status"},
		{Source: "REGISTRATION_DATE", Property: "incorporationDate", Type: mapping.FieldDate, Required: true},
		{Source: "ORGANISATION_STATUS_DATE", Property: "modifiedAt", Type: mapping.FieldDate},
	},
	Ignore: []string{"NAME_STATUS_CODE", "NAME_STATUS"},
}

// Specs returns the built-in mapping specs of this dataset.
func Specs() []*mapping.Spec {
	return []*mapping.Spec{organisationSpec}
}

// CompanyID derives the structured company id from the organisation type
// code and registration number, e.g. ("C", "125617") -> "…-he125617".
func CompanyID(rc *datasets.Context, orgType, regNr string) string {
	prefix, ok := OrgTypes[orgType]
	if !ok {
		return ""
	}
	return rc.Assigner.Slug(prefix + regNr)
}

// LoadAddresses builds the sequence-number lookup from the registered
// office stream. Underscore blank-fillers are stripped; addresses that
// normalize to nothing are dropped.
func LoadAddresses(records datasets.RecordReader) (map[string]string, error) {
	addresses := make(map[string]string)
	for {
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			return addresses, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading address record: %w", err)
		}

		seqNo := rec.Pop("ADDRESS_SEQ_NO")
		if seqNo == "" {
			continue
		}
		address := text.Join(", ",
			text.Clean(rec.Pop("BUILDING")),
			text.Clean(rec.Pop("STREET")),
			text.Clean(rec.Pop("TERRITORY")),
		)
		if address != "" {
			addresses[seqNo] = address
		}
	}
}

// ParseOrganisations processes the organisations stream, attaching
// registered-office addresses from the lookup built by LoadAddresses.
func ParseOrganisations(rc *datasets.Context, records datasets.RecordReader, addresses map[string]string) error {
	spec := rc.Spec(organisationSpec.Name, organisationSpec)
	for {
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading organisation record: %w", err)
		}
		rc.Record()
		parseOrganisation(rc, spec, rec, addresses)
	}
}

func parseOrganisation(rc *datasets.Context, spec *mapping.Spec, rec *model.RawRecord, addresses map[string]string) {
	orgType := rec.Pop("ORGANISATION_TYPE_CODE")
	regNr := rec.Pop("REGISTRATION_NO")
	if _, ok := OrgTypes[orgType]; !ok {
		// Blank rows and trade-name entries are not companies.
		return
	}

	entity := model.NewEntity(model.SchemaOrganization)
	entity.ID = CompanyID(rc, orgType, regNr)
	if entity.ID == "" {
		rc.Skip(model.ErrMissingNaturalKey, "org_type", orgType)
		return
	}

	res, err := spec.Apply(rec)
	if err != nil {
		rc.Skip(err, "id", entity.ID)
		return
	}
	for _, unknown := range res.UnknownCodes {
		rc.Warn("unknown code", "id", entity.ID, "code", unknown)
	}
	entity.AddAll(res.Attributes)

	// Overseas companies are foreign-registered: they get a country link
	// rather than a local jurisdiction.
	if orgType == "O" {
		entity.Add("country", "cy")
	} else {
		entity.Add("jurisdiction", "cy")
	}

	ocID := OrgTypes[orgType] + regNr
	entity.Add("opencorporatesUrl", "https://opencorporates.com/companies/cy/"+ocID)
	entity.Add("registrationNumber", ocID)
	entity.Add("registrationNumber", orgType+regNr)

	legalForm := rec.Pop("ORGANISATION_TYPE")
	if subType := rec.Pop("ORGANISATION_SUB_TYPE"); subType != "" {
		legalForm = text.Join(" - ", legalForm, subType)
	}
	entity.Add("legalForm", legalForm)

	entity.Add("address", addresses[rec.Pop("ADDRESS_SEQ_NO")])

	if err := rc.Emitter.EmitEntity(entity); err != nil {
		rc.Skip(err, "id", entity.ID)
		return
	}

	if leftover := spec.Audit(rec); len(leftover) > 0 {
		rc.Warn("unmapped source fields", "id", entity.ID, "fields", leftover)
	}
}

// ParseOfficials processes the officials stream. It must run after
// ParseOrganisations in the same run, since directorships reference the
// company ids emitted there.
func ParseOfficials(rc *datasets.Context, records datasets.RecordReader) error {
	for {
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading official record: %w", err)
		}
		rc.Record()
		parseOfficial(rc, rec)
	}
}

func parseOfficial(rc *datasets.Context, rec *model.RawRecord) {
	orgType := rec.Pop("ORGANISATION_TYPE_CODE")
	if _, ok := OrgTypes[orgType]; !ok {
		return
	}
	regNr := rec.Pop("REGISTRATION_NO")
	name := rec.Pop("PERSON_OR_ORGANISATION_NAME")
	position := rec.Pop("OFFICIAL_POSITION")

	// The register does not say whether an official is a person or a
	// company, so the unspecified kind is used.
	official := model.NewEntity(model.SchemaLegalEntity)
	official.ID = rc.Assigner.HashID(orgType, regNr, name)
	if official.ID == "" {
		rc.Skip(model.ErrMissingNaturalKey, "org_type", orgType, "reg_nr", regNr)
		return
	}
	official.Add("name", name)
	if err := rc.Emitter.EmitEntity(official); err != nil {
		rc.Skip(err, "id", official.ID)
		return
	}

	companyID := CompanyID(rc, orgType, regNr)
	rel := model.NewRelationship(model.RelDirectorship, official.ID, companyID, position)
	rel.ID = rc.Assigner.Relationship(string(rel.Kind), rel.SourceID, rel.TargetID, rel.Role)
	if err := rc.Emitter.EmitRelationship(rel); err != nil {
		rc.Skip(err, "id", rel.ID)
	}
}
