// Package germany normalizes the German trade register (Handelsregister)
// extract. Records arrive as deeply nested objects: company attributes plus
// an embedded officer list, where company-type officers are described by a
// free-text register reference that is parsed back into a structured key.
package germany

import (
	"errors"
	"fmt"
	"io"

	"github.com/opensanctions/graph/pkg/datasets"
	"github.com/opensanctions/graph/pkg/mapping"
	"github.com/opensanctions/graph/pkg/model"
	"github.com/opensanctions/graph/pkg/reference"
	"github.com/opensanctions/graph/pkg/text"
)

// Meta describes the dataset.
var Meta = datasets.Metadata{
	Name:   "de_offeneregister",
	Title:  "German Trade Register (Handelsregister)",
	Prefix: "de",
	URL:    "https://daten.offeneregister.de/de_companies_ocdata.jsonl.bz2",
}

// Scheme classifies one register section: the legal form it implies and
// whether entries registered there are ownable assets.
type Scheme struct {
	LegalForm string
	Asset     bool
}

// Schemes keys the register sections: commercial register A and B hold
// tradable companies, the rest hold associations, partnerships, and
// cooperatives.
var Schemes = map[string]Scheme{
	"HRA": {LegalForm: "Unternehmen", Asset: true},
	"HRB": {LegalForm: "Kapitalgesellschaft", Asset: true},
	"VR":  {LegalForm: "Verein", Asset: false},
	"PR":  {LegalForm: "Partnerschaft (Personengesellschaft)", Asset: false},
	"GnR": {LegalForm: "Genossenschaft", Asset: false},
}

// relRule keys the officer-edge dispatch: the officer's registered role
// together with whether the company is an ownable asset.
type relRule struct {
	Role  string
	Asset bool
}

// relRules enumerates every (role, asset) combination the source is known
// to produce. Owner-like roles become ownership edges only when the company
// is an asset; everything else is a directorship. Combinations outside the
// table are left unresolved and produce no edge.
var relRules = map[relRule]model.RelKind{
	{"Geschäftsführer", true}:                      model.RelDirectorship,
	{"Geschäftsführer", false}:                     model.RelDirectorship,
	{"Inhaber", true}:                              model.RelOwnership,
	{"Inhaber", false}:                             model.RelDirectorship,
	{"Liquidator", true}:                           model.RelDirectorship,
	{"Liquidator", false}:                          model.RelDirectorship,
	{"Persönlich haftender Gesellschafter", true}:  model.RelOwnership,
	{"Persönlich haftender Gesellschafter", false}: model.RelDirectorship,
	{"Prokurist", true}:                            model.RelDirectorship,
	{"Prokurist", false}:                           model.RelDirectorship,
	{"Vorstand", true}:                             model.RelDirectorship,
	{"Vorstand", false}:                            model.RelDirectorship,
}

// EdgeKind resolves the edge kind for an officer role against a company
// class. The second result is false when the combination is not in the rule
// table.
func EdgeKind(role string, asset bool) (model.RelKind, bool) {
	kind, ok := relRules[relRule{Role: role, Asset: asset}]
	return kind, ok
}

// officerSpec maps the nested other_attributes object, shared by the
// officer node and its edge.
var officerSpec = &mapping.Spec{
	Name:    "de_offeneregister/officers",
	Dataset: "de_offeneregister",
	Version: "1",
	Fields: []mapping.Field{
		{Source: "firstname", Property: "firstName"},
		{Source: "lastname", Property: "lastName"},
		{Source: "city", Property: "address"},
		{Source: "position", Property: "role"},
		{Source: "start_date", Property: "startDate"},
		{Source: "end_date", Property: "endDate"},
		{Source: "flag", Property: "description"},
	},
}

// Specs returns the built-in mapping specs of this dataset.
func Specs() []*mapping.Spec {
	return []*mapping.Spec{officerSpec}
}

// A Parser holds per-run state: the memoized reference extractor shared
// across all officer names of the run.
type Parser struct {
	refs *reference.Extractor
}

// NewParser creates a parser with a fresh extractor cache.
func NewParser() *Parser {
	return &Parser{refs: reference.NewExtractor()}
}

// ParseRecords processes the register stream.
func (p *Parser) ParseRecords(rc *datasets.Context, records datasets.RecordReader) error {
	spec := rc.Spec(officerSpec.Name, officerSpec)
	for {
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading register record: %w", err)
		}
		rc.Record()
		p.parseRecord(rc, spec, rec)
	}
}

// parseRecord emits the company node, then one node and edge per officer.
func (p *Parser) parseRecord(rc *datasets.Context, spec *mapping.Spec, rec *model.RawRecord) {
	meta := rec.PopRecord("all_attributes")
	if meta == nil {
		rc.Skip(model.ErrMissingNaturalKey, "reason", "no all_attributes")
		return
	}
	regArt := meta.Pop("_registerArt")
	scheme, ok := Schemes[regArt]
	if !ok {
		rc.Skip(model.ErrMissingNaturalKey, "register_art", regArt)
		return
	}

	company := model.NewEntity(model.SchemaOrganization)
	regNr := meta.Pop("native_company_number")
	company.ID = rc.Assigner.Slug(regNr)
	if company.ID == "" {
		rc.Skip(model.ErrMissingNaturalKey, "register_art", regArt)
		return
	}
	company.Add("legalForm", scheme.LegalForm)
	company.Add("registrationNumber", regNr)
	company.Add("registrationNumber", text.Join(" ", regArt, meta.Pop("_registerNummer")))
	company.Add("status", rec.Pop("current_status"))
	if ocID := rec.Pop("company_number"); ocID != "" {
		company.Add("opencorporatesUrl", "https://opencorporates.com/companies/de/"+ocID)
	}
	company.Add("jurisdiction", rec.Pop("jurisdiction_code"))
	company.Add("name", rec.Pop("name"))
	company.Add("address", rec.Pop("registered_address"))
	for _, prev := range rec.PopList("previous_names") {
		company.Add("previousName", prev.Pop("company_name"))
	}
	company.Add("retrievedAt", rec.Pop("retrieved_at"))

	if err := rc.Emitter.EmitEntity(company); err != nil {
		rc.Skip(err, "id", company.ID)
		return
	}

	for _, officer := range rec.PopList("officers") {
		p.parseOfficer(rc, spec, company, scheme, officer)
	}
}

// parseOfficer emits the officer node followed by its edge to the company.
func (p *Parser) parseOfficer(rc *datasets.Context, spec *mapping.Spec, company *model.Entity, scheme Scheme, data *model.RawRecord) {
	kindLabel := data.Pop("type")
	name := data.Pop("name")
	role := data.Pop("position")

	var officer *model.Entity
	var relSummary string
	switch kindLabel {
	case "person":
		officer = model.NewEntity(model.SchemaPerson)
		officer.Add("name", name)
		officer.ID = p.opaqueOfficerID(rc, company, name)
	case "company":
		officer = model.NewEntity(model.SchemaOrganization)
		if ref, ok := p.refs.Extract(name); ok {
			officer.Add("name", ref.Name)
			officer.Add("address", ref.City)
			officer.Add("registrationNumber", ref.RegistrationNumber())
			officer.Add("registrationNumber", text.Join(" ", ref.RegisterType, ref.RegisterNumber))
			officer.ID = rc.Assigner.Slug(ref.Court, ref.RegisterType, ref.RegisterNumber)
			relSummary = ref.Summary
		} else {
			officer.Add("name", name)
			officer.ID = p.opaqueOfficerID(rc, company, name)
		}
	default:
		rc.Warn("unknown officer type", "type", kindLabel, "company", company.ID)
		officer = model.NewEntity(model.SchemaLegalEntity)
		officer.Add("name", name)
		officer.ID = p.opaqueOfficerID(rc, company, name)
	}
	if officer.ID == "" {
		rc.Skip(model.ErrMissingNaturalKey, "company", company.ID)
		return
	}

	attrs := map[string][]string{}
	if other := data.PopRecord("other_attributes"); other != nil {
		res, err := spec.Apply(other)
		if err != nil {
			rc.Skip(err, "id", officer.ID)
			return
		}
		attrs = res.Attributes
	}
	officer.AddAll(attrs)

	if err := rc.Emitter.EmitEntity(officer); err != nil {
		rc.Skip(err, "id", officer.ID)
		return
	}

	kind, ok := EdgeKind(role, scheme.Asset)
	if !ok {
		rc.Warn("unresolved officer role", "role", role, "company", company.ID)
		return
	}
	rel := model.NewRelationship(kind, officer.ID, company.ID, role)
	rel.ID = rc.Assigner.Relationship(string(rel.Kind), rel.SourceID, rel.TargetID, rel.Role)
	rel.Add("summary", relSummary)
	rel.AddAll(attrs)
	if err := rc.Emitter.EmitRelationship(rel); err != nil {
		rc.Skip(err, "id", rel.ID)
	}
}

// opaqueOfficerID derives the fallback officer key from the company id and
// the fingerprinted officer name, so spelling variants of the same name on
// the same company converge.
func (p *Parser) opaqueOfficerID(rc *datasets.Context, company *model.Entity, name string) string {
	print := text.Fingerprint(name)
	if print == "" {
		return ""
	}
	return rc.Assigner.Slug("officer", rc.Assigner.ContentHash(company.ID, print))
}
