package provision

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/console-reconciler/internal/console"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/executor"
	"github.com/dvloznov/console-reconciler/internal/jobs"
	"github.com/dvloznov/console-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/ui"
	"github.com/dvloznov/console-reconciler/internal/ui/uitest"
)

func TestParsePlayerRecords(t *testing.T) {
	input := "\ufeff#1 - Phone: 9991234567, Email: -, Affiliate: AFF1\n" +
		"\n" +
		"garbage line\n" +
		"#2 - phone: 9991234568, email: a@b.com, affiliate: AFF2  \r\n" +
		"#3 - Phone: 12ab, Email: -, Affiliate: X\n"

	recs, err := ParsePlayerRecords(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, domain.PlayerRecord{Seq: 2, Phone: "9991234568", Email: "a@b.com", Affiliate: "AFF2", Line: 4}, recs[0])
	assert.Equal(t, domain.PlayerRecord{Seq: 1, Phone: "9991234567", Email: "-", Affiliate: "AFF1", Line: 1}, recs[1])
	assert.False(t, recs[1].HasEmail())
}

func TestParsePlayerRecords_Empty(t *testing.T) {
	recs, err := ParsePlayerRecords(context.Background(), strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

var playerConcepts = []locator.Concept{
	ConceptOverlay, ConceptOpen, ConceptPlayerID, ConceptPhone,
	ConceptEmail, ConceptAffiliateName, ConceptAffiliateID,
}

type fakePlayerForm struct {
	page *uitest.Page
	els  map[locator.Concept]*uitest.Element
	// submitted collects the Player ID value at every Enter.
	submitted []string
}

func newFakePlayerForm() *fakePlayerForm {
	f := &fakePlayerForm{page: uitest.NewPage(), els: map[locator.Concept]*uitest.Element{}}
	for _, c := range playerConcepts {
		el := f.page.NewElement(string(c))
		f.els[c] = el
		f.page.Set(ui.ByCSS("#"+string(c)), el)
	}
	f.els[ConceptOverlay].SetVisible(false)
	f.els[ConceptAffiliateID].OnPress = func(ui.Key) {
		f.submitted = append(f.submitted, f.els[ConceptPlayerID].Value())
	}
	return f
}

func (f *fakePlayerForm) provisioner(store jobs.JobStore) *Provisioner {
	reg := locator.NewRegistry()
	for _, c := range playerConcepts {
		reg.Register(c, locator.Rule{Strategy: locator.CSS("#" + string(c))})
	}
	exec := executor.New(f.page, executor.Options{
		OverlayTimeout: 10 * time.Millisecond,
		SettleWindow:   5 * time.Millisecond,
		PollInterval:   time.Millisecond,
	})
	con := console.New(f.page, locator.New(f.page, reg, time.Millisecond), exec)
	return New(con, 10*time.Millisecond, store)
}

func TestRun_ReverseOrderAndEmailSkip(t *testing.T) {
	input := "#1 - Phone: 9991234567, Email: -, Affiliate: AFF1\n" +
		"#2 - Phone: 9991234568, Email: a@b.com, Affiliate: AFF2\n"
	players, err := ParsePlayerRecords(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	f := newFakePlayerForm()
	store := inmemory.NewStore()
	res, err := f.provisioner(store).Run(context.Background(), players)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Submitted)

	assert.Equal(t, []string{"9991234568", "9991234567"}, f.submitted)
	assert.Equal(t, []string{"type:a@b.com"}, f.els[ConceptEmail].Actions())
	assert.Equal(t, []string{"type:AFF2", "type:AFF1"}, f.els[ConceptAffiliateName].Actions())

	list, err := store.ListJobs(context.Background(), jobs.JobFilter{Type: jobs.JobTypeProvisionPlayer})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "9991234568", list[0].Key)
	assert.Equal(t, jobs.JobStatusCompleted, list[1].Status)
}

func TestRun_FailedPlayerDoesNotStopRun(t *testing.T) {
	f := newFakePlayerForm()
	f.els[ConceptPhone].FailTypes(ui.KindUnknown, 1)

	players := []domain.PlayerRecord{
		{Seq: 2, Phone: "222", Email: "-", Affiliate: "A"},
		{Seq: 1, Phone: "111", Email: "-", Affiliate: "B"},
	}
	res, err := f.provisioner(nil).Run(context.Background(), players)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Submitted)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrProvision)
	assert.Equal(t, []string{"111"}, f.submitted)
}
