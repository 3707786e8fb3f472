package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("", "secret")
	assert.Error(t, err)

	_, err = NewClient("ftp://relayer", "secret")
	assert.Error(t, err)

	_, err = NewClient("http://relayer:9000/", "secret")
	assert.NoError(t, err)
}

func TestGrantSubmitsSignedRequest(t *testing.T) {
	var gotPath, gotSig, gotTS string
	var gotBody submitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSig = r.Header.Get("X-Gateway-Signature")
		gotTS = r.Header.Get("X-Gateway-Timestamp")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(submitResponse{TxHash: "0xabc"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "gateway-secret")
	require.NoError(t, err)

	hash, err := c.Grant(context.Background(), "42", "0xDoCtOr")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
	assert.Equal(t, "/v1/access/grant", gotPath)
	assert.Equal(t, "42", gotBody.TokenID)
	assert.Equal(t, "0xdoctor", gotBody.Grantee, "grantee should be lowercased")
	assert.NotEmpty(t, gotTS)

	payload, _ := json.Marshal(gotBody)
	want := "sha256=" + SignPayload(append([]byte(gotTS), payload...), "gateway-secret")
	assert.Equal(t, want, gotSig)
}

func TestGrantRejectsEmptyTxHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	_, err = c.Grant(context.Background(), "42", "0xdoctor")
	assert.Error(t, err)
}

func TestSubmitSurfacesGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nonce too low", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	_, err = c.Revoke(context.Background(), "42", "0xdoctor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestHasAccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/access/42/0xdoctor", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"has_access": true})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "s")
	require.NoError(t, err)

	ok, err := c.HasAccess(context.Background(), "42", "0xDOCTOR")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGrantedAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/access/42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string][]string{"addresses": {"0xa", "0xb"}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "s")
	require.NoError(t, err)

	addrs, err := c.GrantedAddresses(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, addrs)
}

func TestTxStatus(t *testing.T) {
	cases := []struct {
		body string
		want TxState
	}{
		{`{"status":"pending"}`, TxPending},
		{`{"status":"confirmed"}`, TxConfirmed},
		{`{"status":"failed"}`, TxFailed},
		{`{"status":"weird"}`, TxUnknown},
	}

	for _, tc := range cases {
		body := tc.body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		c, err := NewClient(srv.URL, "s")
		require.NoError(t, err)

		state, err := c.TxStatus(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.Equal(t, tc.want, state)
		srv.Close()
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"token_id":"42"}`)
	sig := SignPayload(payload, "secret")
	assert.True(t, VerifySignature(payload, "secret", sig))
	assert.False(t, VerifySignature(payload, "other", sig))
	assert.False(t, VerifySignature([]byte("tampered"), "secret", sig))
}
