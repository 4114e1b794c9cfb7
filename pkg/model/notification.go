package model

import "time"

// MutationKind identifies what kind of mutation the host application
// performed. The set is closed; the host maps its own events onto it
// at the boundary so downstream grouping is exhaustive.
type MutationKind string

const (
	KindCodingCreate    MutationKind = "coding.create"
	KindCodingApply     MutationKind = "coding.apply"
	KindCodingRemove    MutationKind = "coding.remove"
	KindSourcesImport   MutationKind = "sources.import"
	KindSourcesEdit     MutationKind = "sources.edit"
	KindSourcesDelete   MutationKind = "sources.delete"
	KindCasesCreate     MutationKind = "cases.create"
	KindCasesAssign     MutationKind = "cases.assign"
	KindCasesDelete     MutationKind = "cases.delete"
	KindJournalsWrite   MutationKind = "journals.write"
	KindJournalsDelete  MutationKind = "journals.delete"
	KindAttributesSet   MutationKind = "attributes.set"
	KindAttributesClear MutationKind = "attributes.clear"
)

// Category is the coarse grouping used when summarizing a batch of
// mutations into a single commit message.
type Category string

const (
	CategoryCoding     Category = "coding"
	CategorySources    Category = "sources"
	CategoryCases      Category = "cases"
	CategoryJournals   Category = "journals"
	CategoryAttributes Category = "attributes"
	CategoryOther      Category = "other"
)

// Category maps a mutation kind to its coarse category. Kinds the
// subsystem does not know about collapse into CategoryOther rather
// than being rejected; the notification feed is owned by the host.
func (k MutationKind) Category() Category {
	switch k {
	case KindCodingCreate, KindCodingApply, KindCodingRemove:
		return CategoryCoding
	case KindSourcesImport, KindSourcesEdit, KindSourcesDelete:
		return CategorySources
	case KindCasesCreate, KindCasesAssign, KindCasesDelete:
		return CategoryCases
	case KindJournalsWrite, KindJournalsDelete:
		return CategoryJournals
	case KindAttributesSet, KindAttributesClear:
		return CategoryAttributes
	default:
		return CategoryOther
	}
}

// MutationNotification is a single change notice emitted by the host
// application's business-rule engine. Immutable; not persisted.
type MutationNotification struct {
	Kind           MutationKind `json:"kind"`
	OccurredAt     time.Time    `json:"occurred_at"`
	SubjectSummary string       `json:"subject_summary"`
}
