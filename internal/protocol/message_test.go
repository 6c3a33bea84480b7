package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxcop/flow/internal/protocol"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		wantErr  bool
	}{
		{name: "login", raw: `{"type":"login","name":"Alice"}`, wantType: "login"},
		{name: "unknown type passes through", raw: `{"type":"bogus"}`, wantType: "bogus"},
		{name: "not json", raw: `hello there`, wantErr: true},
		{name: "json but not an object", raw: `[1,2,3]`, wantErr: true},
		{name: "missing type", raw: `{"name":"Alice"}`, wantErr: true},
		{name: "type not a string", raw: `{"type":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := protocol.ParseEnvelope([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, env.Type)
		})
	}
}

func TestParseEnvelopeMissingTypeSentinel(t *testing.T) {
	_, err := protocol.ParseEnvelope([]byte(`{"name":"Alice"}`))
	assert.ErrorIs(t, err, protocol.ErrMissingType)

	_, err = protocol.ParseEnvelope([]byte(`{"type":{}}`))
	assert.ErrorIs(t, err, protocol.ErrMissingType)

	// A syntax error is not a missing-type error.
	_, err = protocol.ParseEnvelope([]byte(`{{`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, protocol.ErrMissingType)
}

func TestInboundPointerFieldsDetectMissing(t *testing.T) {
	var login protocol.Login
	require.NoError(t, json.Unmarshal([]byte(`{"type":"login"}`), &login))
	assert.Nil(t, login.Name)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"login","name":""}`), &login))
	require.NotNil(t, login.Name)
	assert.Equal(t, "", *login.Name, "empty string is present, not missing")

	// The decoded value is used as-is: no quote stripping.
	require.NoError(t, json.Unmarshal([]byte(`{"type":"login","name":"\"quoted\""}`), &login))
	assert.Equal(t, `"quoted"`, *login.Name)

	var sess protocol.Session
	require.NoError(t, json.Unmarshal([]byte(`{"type":"session","offer":"abc"}`), &sess))
	assert.Nil(t, sess.Port)

	// A non-integer port is a schema error, not silently truncated.
	assert.Error(t, json.Unmarshal([]byte(`{"type":"session","offer":"abc","port":40001.5}`), &sess))
}

func TestRosterFrame(t *testing.T) {
	raw := protocol.Roster([]protocol.UserInfo{{ID: "u1", Name: "Alice"}})

	var got struct {
		Type  string              `json:"type"`
		Users []protocol.UserInfo `json:"users"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "login", got.Type)
	require.Len(t, got.Users, 1)
	assert.Equal(t, "Alice", got.Users[0].Name)

	// An empty roster must serialize as [], not null.
	assert.JSONEq(t, `{"type":"login","users":[]}`, string(protocol.Roster(nil)))
}

func TestRelayFrames(t *testing.T) {
	sender := protocol.UserInfo{ID: "u1", Name: "Alice"}

	assert.JSONEq(t,
		`{"type":"chat","sender":{"id":"u1","name":"Alice"},"content":"hi"}`,
		string(protocol.ChatRelay(sender, "hi")))

	assert.JSONEq(t,
		`{"type":"file","sender":{"id":"u1","name":"Alice"},"name":"a.png","content":"aGk="}`,
		string(protocol.FileRelay(sender, "a.png", "aGk=")))

	assert.JSONEq(t,
		`{"type":"join","user":{"id":"u1","name":"Alice"}}`,
		string(protocol.Join(sender)))

	assert.JSONEq(t,
		`{"type":"leave","user":{"id":"u1","name":"Alice"}}`,
		string(protocol.Leave(sender)))
}

func TestRendezvousFrames(t *testing.T) {
	assert.JSONEq(t,
		`{"type":"offer","origin":"u1","id":"o1"}`,
		string(protocol.OfferNotice("u1", "o1")))

	assert.JSONEq(t,
		`{"type":"confirm","accept":true,"offer":"o1"}`,
		string(protocol.Confirm(true, "o1")))

	assert.JSONEq(t,
		`{"type":"confirm","accept":false,"offer":"o1"}`,
		string(protocol.Confirm(false, "o1")))

	assert.JSONEq(t,
		`{"type":"peer","addr":"203.0.113.7:40001","offer":"o1"}`,
		string(protocol.Peer("203.0.113.7:40001", "o1")))
}
