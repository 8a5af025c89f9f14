package enumerator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/filters"
)

type fakeMailbox struct {
	ids        []string
	headers    map[string]connector.Header
	bodies     map[string]string
	listErr    error
	headerErrs map[string]error
	fetched    []string
}

func (f *fakeMailbox) Name() string { return "fake" }

func (f *fakeMailbox) Connect(context.Context) (connector.SessionInfo, error) { return connector.SessionInfo{}, nil }

func (f *fakeMailbox) EnsureConnected(context.Context) error { return nil }

func (f *fakeMailbox) Close() error { return nil }

func (f *fakeMailbox) Available() bool { return true }

func (f *fakeMailbox) MarkRead(context.Context, []string) error { return nil }

func (f *fakeMailbox) List(context.Context) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeMailbox) FetchHeader(_ context.Context, id string) (connector.Header, error) {
	if err := f.headerErrs[id]; err != nil {
		return connector.Header{}, err
	}
	return f.headers[id], nil
}

func (f *fakeMailbox) FetchMessage(_ context.Context, id string) (*connector.RawMessage, error) {
	f.fetched = append(f.fetched, id)
	return &connector.RawMessage{Header: f.headers[id], Body: f.bodies[id]}, nil
}

type fakeStore struct {
	known  map[string]bool
	seen   []string
	exists error
}

func (s *fakeStore) MessageExists(_ context.Context, id string) (bool, error) {
	if s.exists != nil {
		return false, s.exists
	}
	return s.known[id], nil
}

func (s *fakeStore) MarkSeen(_ context.Context, id string) error {
	s.seen = append(s.seen, id)
	return nil
}

func reportHeader(msgID, subject string) connector.Header {
	return connector.Header{
		MessageID: msgID,
		Subject:   subject,
		Date:      time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC),
	}
}

func newChain(t *testing.T) filters.Chain {
	t.Helper()
	subject, err := filters.NewSubjectFilter(config.IngestConfig{
		SubjectRegex:     "^Duplicati Backup report for",
		SourceRegex:      `\w*`,
		DestinationRegex: `\w*`,
		Delimiter:        "-",
	}, zap.NewNop())
	require.NoError(t, err)
	return filters.NewChain(filters.RequiredHeadersFilter{}, subject)
}

func TestEnumeratorClassifiesMessages(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{
		ids: []string{"1", "2", "3", "4"},
		headers: map[string]connector.Header{
			"1": reportHeader("new@x", "Duplicati Backup report for workstation1-nas2"),
			"2": reportHeader("old@x", "Duplicati Backup report for laptop-cloud"),
			"3": reportHeader("other@x", "Lunch on friday?"),
			"4": {MessageID: "nodate@x", Subject: "Duplicati Backup report for a-b"},
		},
		bodies: map[string]string{"1": "ExaminedFiles: 120"},
	}
	store := &fakeStore{known: map[string]bool{"old@x": true}}
	e := New(mb, connector.Account{Name: "fake"}, newChain(t), store)

	n, err := e.CheckForNewMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	item, err := e.NextMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCandidate, item.Outcome)
	assert.Equal(t, "workstation1", item.Source)
	assert.Equal(t, "nas2", item.Destination)
	require.NotNil(t, item.Message)
	assert.Equal(t, "ExaminedFiles: 120", item.Message.Body)
	assert.Equal(t, "1", item.Message.ID)

	item, err = e.NextMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeKnown, item.Outcome)
	assert.Nil(t, item.Message)
	assert.Equal(t, []string{"old@x"}, store.seen)

	item, err = e.NextMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, item.Outcome)
	assert.Equal(t, filters.SkipSubjectMismatch, item.SkipReason)

	item, err = e.NextMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, item.Outcome)
	assert.Equal(t, filters.SkipMissingHeaders, item.SkipReason)
	assert.Equal(t, "missing date", item.SkipDetail)

	_, err = e.NextMessage(ctx)
	assert.ErrorIs(t, err, ErrEndOfBatch)
	_, err = e.NextMessage(ctx)
	assert.ErrorIs(t, err, ErrEndOfBatch)

	assert.Equal(t, []string{"1"}, mb.fetched, "only candidates are fetched in full")
	assert.Equal(t, []string{"2"}, e.ConsumedIDs())
	assert.Equal(t, 0, e.Remaining())
}

func TestEnumeratorEmptyMailbox(t *testing.T) {
	e := New(&fakeMailbox{}, connector.Account{}, newChain(t), &fakeStore{})
	n, err := e.CheckForNewMessages(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = e.NextMessage(context.Background())
	assert.ErrorIs(t, err, ErrEndOfBatch)
}

func TestEnumeratorRewindsOnCheck(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{
		ids:     []string{"7"},
		headers: map[string]connector.Header{"7": reportHeader("a@x", "Duplicati Backup report for pc-usb")},
	}
	e := New(mb, connector.Account{}, newChain(t), &fakeStore{})

	_, err := e.CheckForNewMessages(ctx)
	require.NoError(t, err)
	_, err = e.NextMessage(ctx)
	require.NoError(t, err)
	e.Consumed("7")
	assert.Equal(t, []string{"7"}, e.ConsumedIDs())

	_, err = e.CheckForNewMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, e.ConsumedIDs())
	assert.Equal(t, 1, e.Remaining())
}

func TestEnumeratorHeaderErrorKeepsID(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("socket closed")
	mb := &fakeMailbox{
		ids:        []string{"9", "10"},
		headers:    map[string]connector.Header{"10": reportHeader("b@x", "Duplicati Backup report for pc-usb")},
		headerErrs: map[string]error{"9": boom},
	}
	e := New(mb, connector.Account{}, newChain(t), &fakeStore{})
	_, err := e.CheckForNewMessages(ctx)
	require.NoError(t, err)

	item, err := e.NextMessage(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "9", item.Header.ID)

	item, err = e.NextMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCandidate, item.Outcome)
}

func TestEnumeratorStoreError(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{
		ids:     []string{"1"},
		headers: map[string]connector.Header{"1": reportHeader("c@x", "Duplicati Backup report for pc-usb")},
	}
	e := New(mb, connector.Account{}, newChain(t), &fakeStore{exists: errors.New("db locked")})
	_, err := e.CheckForNewMessages(ctx)
	require.NoError(t, err)

	_, err = e.NextMessage(ctx)
	require.ErrorContains(t, err, "db locked")
	assert.Empty(t, mb.fetched)
}

func TestEnumeratorListError(t *testing.T) {
	e := New(&fakeMailbox{listErr: connector.ErrUnavailable}, connector.Account{}, newChain(t), &fakeStore{})
	_, err := e.CheckForNewMessages(context.Background())
	assert.ErrorIs(t, err, connector.ErrUnavailable)
}
