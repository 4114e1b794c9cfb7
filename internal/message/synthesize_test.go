package message_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scribelab/chronicle/internal/message"
	"github.com/scribelab/chronicle/pkg/model"
)

func n(kind model.MutationKind, subject string) model.MutationNotification {
	return model.MutationNotification{
		Kind:           kind,
		OccurredAt:     time.Now(),
		SubjectSummary: subject,
	}
}

func TestSynthesize_Empty(t *testing.T) {
	assert.Equal(t, "", message.Synthesize(nil))
}

func TestSynthesize_Single(t *testing.T) {
	got := message.Synthesize([]model.MutationNotification{
		n(model.KindCodingApply, "code 'trust' on interview_01"),
	})
	assert.Equal(t, "coding.apply: code 'trust' on interview_01", got)
}

func TestSynthesize_SingleWithoutSubject(t *testing.T) {
	got := message.Synthesize([]model.MutationNotification{
		n(model.KindSourcesImport, ""),
	})
	assert.Equal(t, "sources.import", got)
}

func TestSynthesize_GroupsByCategory(t *testing.T) {
	got := message.Synthesize([]model.MutationNotification{
		n(model.KindCodingCreate, "code 'trust'"),
		n(model.KindCodingApply, "code 'trust' on interview_01"),
		n(model.KindSourcesImport, "interview_02.txt"),
	})
	assert.Equal(t, "2 coding changes, 1 sources changes", got)
}

func TestSynthesize_SortsCategories(t *testing.T) {
	got := message.Synthesize([]model.MutationNotification{
		n(model.KindSourcesImport, "a"),
		n(model.KindJournalsWrite, "b"),
		n(model.KindCodingApply, "c"),
		n(model.KindSourcesEdit, "d"),
	})
	assert.Equal(t, "1 coding changes, 1 journals changes, 2 sources changes", got)
}

func TestSynthesize_UnknownKindsGroupAsOther(t *testing.T) {
	got := message.Synthesize([]model.MutationNotification{
		n("plugin.custom", "a"),
		n("plugin.exotic", "b"),
	})
	assert.Equal(t, "2 other changes", got)
}
