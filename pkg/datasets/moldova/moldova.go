// Package moldova normalizes the Moldovan state company register. Directors,
// founders, and beneficial owners arrive as compound list fields on the
// company row and are decomposed into linked entities.
package moldova

import (
	"errors"
	"fmt"
	"io"

	"github.com/opensanctions/graph/pkg/compound"
	"github.com/opensanctions/graph/pkg/datasets"
	"github.com/opensanctions/graph/pkg/mapping"
	"github.com/opensanctions/graph/pkg/model"
)

// Meta describes the dataset.
var Meta = datasets.Metadata{
	Name:   "md_companies",
	Title:  "Moldova Company Registry",
	Prefix: "oc-companies-md",
	URL:    "https://date.gov.md/ro/system/files/resources/",
}

// ownerRole is the fixed role on beneficial-owner edges; the source tags the
// owner with a country code instead of a role.
const ownerRole = "beneficiarilor efectivi"

// companySpec covers the scalar company columns. The compound list columns
// are decomposed separately and are not part of the field mapping.
var companySpec = &mapping.Spec{
	Name:    "md_companies/companies",
	Dataset: "md_companies",
	Version: "1",
	Fields: []mapping.Field{
		{Source: "Denumirea completă", Property: "name"},
		{Source: "Data înregistrării", Property: "incorporationDate"},
		{Source: "Data lichidării", Property: "dissolutionDate"},
		{Source: "Forma org./jurid.", Property: "legalForm"},
	},
}

// Specs returns the built-in mapping specs of this dataset.
func Specs() []*mapping.Spec {
	return []*mapping.Spec{companySpec}
}

// ParseCompanies processes the company stream. Each row yields the company
// node plus one node and edge per decomposed director, founder, and
// beneficial owner.
func ParseCompanies(rc *datasets.Context, records datasets.RecordReader) error {
	spec := rc.Spec(companySpec.Name, companySpec)
	for {
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading company record: %w", err)
		}
		rc.Record()
		parseCompany(rc, spec, rec)
	}
}

func parseCompany(rc *datasets.Context, spec *mapping.Spec, rec *model.RawRecord) {
	idno := rec.Pop("IDNO/ Cod fiscal")
	address := rec.Pop("Adresa")

	company := model.NewEntity(model.SchemaOrganization)
	if idno != "" {
		company.ID = rc.Assigner.Slug(idno)
	}
	if company.ID == "" {
		// Some rows carry no fiscal code; fall back to hashing the name
		// and address together.
		name := rec.Pop("Denumirea completă")
		company.ID = rc.Assigner.HashID(name, address)
		company.Add("name", name)
	}
	if company.ID == "" {
		rc.Skip(model.ErrMissingNaturalKey, "idno", idno)
		return
	}

	res, err := spec.Apply(rec)
	if err != nil {
		rc.Skip(err, "id", company.ID)
		return
	}
	company.AddAll(res.Attributes)
	company.Add("jurisdiction", "md")
	company.Add("address", address)
	if idno != "" {
		company.Add("registrationNumber", idno)
	}

	if err := rc.Emitter.EmitEntity(company); err != nil {
		rc.Skip(err, "id", company.ID)
		return
	}

	parseDirectors(rc, company, rec.PopAny("Lista conducătorilor"))
	parseFounders(rc, company, rec.PopAny("Lista fondatorilor"))
	parseOwners(rc, company, rec.PopAny("Lista beneficiarilor efectivi"))

	if leftover := spec.Audit(rec); len(leftover) > 0 {
		rc.Warn("unmapped source fields", "id", company.ID, "fields", leftover)
	}
}

// parseDirectors splits the director list; each director's role follows the
// name in square brackets, e.g. "MUNTEANU OLGA [Administrator]".
func parseDirectors(rc *datasets.Context, company *model.Entity, value any) {
	subs, err := compound.Decompose(value, "],", "[", "]")
	if err != nil {
		rc.Warn("director list is not text", "id", company.ID, "value", value)
		return
	}
	for _, sub := range subs {
		director := emitMember(rc, company, sub.Body)
		if director == nil {
			continue
		}
		emitEdge(rc, model.RelDirectorship, director, company, sub.Tag)
	}
}

// parseFounders splits the founder list; the parenthesised tag is the
// ownership percentage, carried on the edge as the role.
func parseFounders(rc *datasets.Context, company *model.Entity, value any) {
	subs, err := compound.Decompose(value, "),", "(", ")")
	if err != nil {
		rc.Warn("founder list is not text", "id", company.ID, "value", value)
		return
	}
	for _, sub := range subs {
		founder := emitMember(rc, company, sub.Body)
		if founder == nil {
			continue
		}
		emitEdge(rc, model.RelOwnership, founder, company, sub.Tag)
	}
}

// parseOwners splits the beneficial-owner list; the parenthesised tag is a
// country code, carried on the owner node rather than the edge.
func parseOwners(rc *datasets.Context, company *model.Entity, value any) {
	subs, err := compound.Decompose(value, "),", "(", ")")
	if err != nil {
		rc.Warn("owner list is not text", "id", company.ID, "value", value)
		return
	}
	for _, sub := range subs {
		owner := model.NewEntity(model.SchemaLegalEntity)
		owner.ID = rc.Assigner.HashID(company.ID, sub.Body)
		owner.Add("name", sub.Body)
		owner.Add("country", sub.Tag)
		if err := rc.Emitter.EmitEntity(owner); err != nil {
			rc.Skip(err, "id", owner.ID)
			continue
		}
		emitEdge(rc, model.RelOwnership, owner, company, ownerRole)
	}
}

// emitMember emits the LegalEntity node for one decomposed list member,
// keyed by the company id and the member name.
func emitMember(rc *datasets.Context, company *model.Entity, name string) *model.Entity {
	member := model.NewEntity(model.SchemaLegalEntity)
	member.ID = rc.Assigner.HashID(company.ID, name)
	member.Add("name", name)
	if err := rc.Emitter.EmitEntity(member); err != nil {
		rc.Skip(err, "id", member.ID)
		return nil
	}
	return member
}

func emitEdge(rc *datasets.Context, kind model.RelKind, source, target *model.Entity, role string) {
	rel := model.NewRelationship(kind, source.ID, target.ID, role)
	rel.ID = rc.Assigner.Relationship(string(rel.Kind), rel.SourceID, rel.TargetID, rel.Role)
	if err := rc.Emitter.EmitRelationship(rel); err != nil {
		rc.Skip(err, "id", rel.ID)
	}
}
