package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dwilches/phabricator-slack-notifier/internal/phab"
	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

type fakeTracker struct {
	transactions []types.Transaction
	err          error
	links        map[string]string
	owners       map[string]string
}

func (f *fakeTracker) Transactions(_ context.Context, _ types.ObjectType, _ string, _ []string) ([]types.Transaction, error) {
	return f.transactions, f.err
}

func (f *fakeTracker) Link(_ context.Context, phid string) (string, error) {
	link, ok := f.links[phid]
	if !ok {
		return "", fmt.Errorf("no link for %s", phid)
	}
	return link, nil
}

func (f *fakeTracker) Owner(_ context.Context, phid string) (string, bool, error) {
	owner, ok := f.owners[phid]
	return owner, ok, nil
}

type fakeDirectory struct {
	users map[string]types.User
}

func (f *fakeDirectory) User(id string) (types.User, bool) {
	if user, ok := f.users[id]; ok {
		return user, true
	}
	for _, user := range f.users {
		if user.Username == id {
			return user, true
		}
	}
	return types.User{}, false
}

func (f *fakeDirectory) Mention(id string) (string, bool) {
	user, ok := f.User(id)
	if !ok || user.SlackID == "" {
		return "", false
	}
	return "<@" + user.SlackID + ">", true
}

type captureSender struct {
	messages []types.Message
}

func (c *captureSender) Send(_ context.Context, msg types.Message) {
	c.messages = append(c.messages, msg)
}

func (c *captureSender) bySeverity(severity types.Severity) []types.Message {
	var out []types.Message
	for _, msg := range c.messages {
		if msg.Severity == severity {
			out = append(out, msg)
		}
	}
	return out
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[string]types.User{
		"PHID-USER-alice": {PHID: "PHID-USER-alice", Username: "alice", RealName: "Alice Doe", SlackID: "U1"},
		"PHID-USER-bob":   {PHID: "PHID-USER-bob", Username: "bob", RealName: "Bob Roe", SlackID: "U2"},
		"PHID-USER-carol": {PHID: "PHID-USER-carol", Username: "carol", RealName: "Carol Poe", SlackID: "U3"},
	}}
}

func testRouter(t *testing.T, channels map[string]string) *ChannelRouter {
	t.Helper()
	if channels == nil {
		channels = map[string]string{types.DefaultChannelKey: "#general"}
	}
	router, err := NewChannelRouter(channels)
	require.NoError(t, err)
	return router
}

func testPayload(objectType, objectPHID string, txPHIDs ...string) types.Payload {
	var payload types.Payload
	payload.Object.Type = objectType
	payload.Object.PHID = objectPHID
	for _, phid := range txPHIDs {
		payload.Transactions = append(payload.Transactions, struct {
			PHID string `json:"phid"`
		}{PHID: phid})
	}
	return payload
}

func TestHandle_TaskCreate(t *testing.T) {
	tracker := &fakeTracker{
		transactions: []types.Transaction{
			{Type: types.TaskCreate, AuthorPHID: "PHID-USER-alice", ObjectPHID: "PHID-TASK-1"},
		},
		links: map[string]string{"PHID-TASK-1": "L"},
	}
	sender := &captureSender{}
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, testRouter(t, nil))

	d.Handle(context.Background(), testPayload("TASK", "PHID-TASK-1", "PHID-XACT-1"))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "User alice created task L", sender.messages[0].Text)
	assert.Empty(t, sender.messages[0].Channel)
}

func TestHandle_UnknownObjectType_DebugNotePerTransaction(t *testing.T) {
	tracker := &fakeTracker{
		transactions: []types.Transaction{
			{Type: "wiki-edit", AuthorPHID: "PHID-USER-alice"},
			{Type: "wiki-edit", AuthorPHID: "PHID-USER-bob"},
		},
	}
	sender := &captureSender{}
	router := testRouter(t, map[string]string{
		types.DefaultChannelKey: "#general",
		types.DebugChannelKey:   "#debug",
	})
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, router)

	d.Handle(context.Background(), testPayload("WIKI", "PHID-WIKI-1", "PHID-XACT-1", "PHID-XACT-2"))

	require.Len(t, sender.messages, 2)
	for _, msg := range sender.messages {
		assert.Equal(t, "#debug", msg.Channel)
		assert.Equal(t, types.SeverityInfo, msg.Severity)
		assert.Contains(t, msg.Text, "No message will be generated")
	}
}

func TestHandle_UnknownObjectType_ThroughEnrichment(t *testing.T) {
	// Same property as above, but through the real Conduit client instead
	// of a fake tracker: unknown-object-type transactions must survive
	// enrichment and reach the debug sink, one note per transaction.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"data":[
			{"type":"edit","authorPHID":"PHID-USER-alice","objectPHID":"PHID-WIKI-1","fields":{}},
			{"type":"move","authorPHID":"PHID-USER-bob","objectPHID":"PHID-WIKI-1","fields":{}}
		]},"error_code":null,"error_info":null}`))
	}))
	defer srv.Close()

	tracker, err := phab.NewClient(zap.NewNop(), phab.ClientConfig{URL: srv.URL, Token: "api-test"})
	require.NoError(t, err)

	sender := &captureSender{}
	router := testRouter(t, map[string]string{
		types.DefaultChannelKey: "#general",
		types.DebugChannelKey:   "#debug",
	})
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, router)

	d.Handle(context.Background(), testPayload("WIKI", "PHID-WIKI-1", "PHID-XACT-1", "PHID-XACT-2"))

	require.Len(t, sender.messages, 2)
	for _, msg := range sender.messages {
		assert.Equal(t, "#debug", msg.Channel)
		assert.Equal(t, types.SeverityInfo, msg.Severity)
		assert.Contains(t, msg.Text, "No message will be generated")
	}
}

func TestHandle_UnknownObjectType_NoDebugSink(t *testing.T) {
	tracker := &fakeTracker{
		transactions: []types.Transaction{{Type: "wiki-edit"}},
	}
	sender := &captureSender{}
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, testRouter(t, nil))

	d.Handle(context.Background(), testPayload("WIKI", "PHID-WIKI-1", "PHID-XACT-1"))

	assert.Empty(t, sender.messages)
}

func TestHandle_UnknownSubtype_DebugNote(t *testing.T) {
	tracker := &fakeTracker{
		transactions: []types.Transaction{
			{Type: "task-subscribe", AuthorPHID: "PHID-USER-alice", ObjectPHID: "PHID-TASK-1"},
		},
		links: map[string]string{"PHID-TASK-1": "L"},
	}
	sender := &captureSender{}
	router := testRouter(t, map[string]string{
		types.DefaultChannelKey: "#general",
		types.DebugChannelKey:   "#debug",
	})
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, router)

	d.Handle(context.Background(), testPayload("TASK", "PHID-TASK-1", "PHID-XACT-1"))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "#debug", sender.messages[0].Channel)
}

func TestHandle_UnknownAuthor_SingleErrorReport(t *testing.T) {
	// Three transactions, the first with an unresolvable author: the whole
	// batch aborts into exactly one error-severity report.
	tracker := &fakeTracker{
		transactions: []types.Transaction{
			{Type: types.TaskCreate, AuthorPHID: "PHID-USER-ghost", ObjectPHID: "PHID-TASK-1"},
			{Type: types.TaskCreate, AuthorPHID: "PHID-USER-alice", ObjectPHID: "PHID-TASK-1"},
			{Type: types.TaskCreate, AuthorPHID: "PHID-USER-bob", ObjectPHID: "PHID-TASK-1"},
		},
		links: map[string]string{"PHID-TASK-1": "L"},
	}
	sender := &captureSender{}
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, testRouter(t, nil))

	payload := testPayload("TASK", "PHID-TASK-1", "PHID-XACT-1", "PHID-XACT-2", "PHID-XACT-3")
	d.Handle(context.Background(), payload)

	require.Len(t, sender.messages, 1)
	report := sender.messages[0]
	assert.Equal(t, types.SeverityError, report.Severity)
	assert.Contains(t, report.Text, "unknown Phabricator user: PHID-USER-ghost")
	assert.Contains(t, report.Text, "PHID-TASK-1")
	assert.Contains(t, report.Text, "Stacktrace")
	assert.Empty(t, sender.bySeverity(""), "no per-transaction messages after abort")
}

func TestHandle_EnrichmentError_ErrorReport(t *testing.T) {
	tracker := &fakeTracker{err: fmt.Errorf("conduit is down")}
	sender := &captureSender{}
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, testRouter(t, nil))

	d.Handle(context.Background(), testPayload("TASK", "PHID-TASK-1", "PHID-XACT-1"))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, types.SeverityError, sender.messages[0].Severity)
	assert.Contains(t, sender.messages[0].Text, "conduit is down")
}

func TestHandle_NeverPanics(t *testing.T) {
	// A nil router field would panic inside rendering; Handle must convert
	// that into an error report instead of crashing the request.
	tracker := &fakeTracker{
		transactions: []types.Transaction{
			{Type: types.DiffCreate, AuthorPHID: "PHID-USER-alice", ObjectPHID: "PHID-DREV-1", RepoName: "repo"},
		},
		links:  map[string]string{"PHID-DREV-1": "D1"},
		owners: map[string]string{"PHID-DREV-1": "PHID-USER-alice"},
	}
	sender := &captureSender{}
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, testRouter(t, nil))
	d.router = nil

	assert.NotPanics(t, func() {
		d.Handle(context.Background(), testPayload("DREV", "PHID-DREV-1", "PHID-XACT-1"))
	})
	require.Len(t, sender.messages, 1)
	assert.Equal(t, types.SeverityError, sender.messages[0].Severity)
}

func TestHandle_BatchOrderPreserved(t *testing.T) {
	tracker := &fakeTracker{
		transactions: []types.Transaction{
			{Type: types.TaskCreate, AuthorPHID: "PHID-USER-alice", ObjectPHID: "PHID-TASK-1"},
			{Type: types.TaskClaim, AuthorPHID: "PHID-USER-bob", ObjectPHID: "PHID-TASK-1"},
		},
		links: map[string]string{"PHID-TASK-1": "L"},
	}
	sender := &captureSender{}
	d := NewDispatcher(zap.NewNop(), tracker, testDirectory(), sender, testRouter(t, nil))

	d.Handle(context.Background(), testPayload("TASK", "PHID-TASK-1", "PHID-XACT-1", "PHID-XACT-2"))

	require.Len(t, sender.messages, 2)
	assert.Equal(t, "User alice created task L", sender.messages[0].Text)
	assert.Equal(t, "User bob claimed task L", sender.messages[1].Text)
}
