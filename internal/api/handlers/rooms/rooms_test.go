package rooms_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/test"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRelay(t *testing.T, closure func(s *api.Server, baseURL string)) {
	t.Helper()
	test.WithTestServer(t, test.DefaultTestConfig(t), test.ServerRoles{Relay: true}, closure)
}

func post(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIssueIndex(t *testing.T) {
	withRelay(t, func(s *api.Server, baseURL string) {
		endpoint := baseURL + "/rooms/tx-1-keygen/issue_unique_idx"

		issued := func(body string) int64 {
			resp := post(t, endpoint, body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var out types.IssueIndexResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			return *out.UniqueIdx
		}

		assert.Equal(t, int64(1), issued(""))
		assert.Equal(t, int64(3), issued(`{"party_index":3}`))
		assert.Equal(t, int64(2), issued(`{}`))

		resp := post(t, endpoint, `{"party_index":3}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		var httpErr types.PublicHTTPError
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&httpErr))
		assert.Equal(t, string(types.PublicHTTPErrorTypeIndexTaken), *httpErr.Type)

		// indices are per room
		resp = post(t, baseURL+"/rooms/tx-1-offline/issue_unique_idx", `{"party_index":3}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRoomValidation(t *testing.T) {
	withRelay(t, func(s *api.Server, baseURL string) {
		resp := post(t, baseURL+"/rooms/bad%20room/issue_unique_idx", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = post(t, baseURL+"/rooms/tx-1-keygen/issue_unique_idx", `{"party_index":70000}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = post(t, baseURL+"/rooms/tx-1-keygen/broadcast", `{"receiver":2,"body":"aGk="}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "sender is required")

		resp = post(t, baseURL+"/rooms/tx-1-keygen/broadcast", `{"sender":1,"receiver":0,"body":"aGk="}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		req, err := http.NewRequest(http.MethodGet, baseURL+"/rooms/tx-1-keygen/subscribe", nil)
		require.NoError(t, err)
		req.Header.Set("Last-Event-ID", "abc")
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestSubscribeStreamsFromLastEventID(t *testing.T) {
	withRelay(t, func(s *api.Server, baseURL string) {
		for _, body := range []string{`{"sender":1,"receiver":null,"body":"AA=="}`, `{"sender":2,"receiver":1,"body":"AQ=="}`, `{"sender":1,"body":"Ag=="}`} {
			resp := post(t, baseURL+"/rooms/r-online/broadcast", body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rooms/r-online/subscribe", nil)
		require.NoError(t, err)
		req.Header.Set("Last-Event-ID", "0")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		reader := bufio.NewReader(resp.Body)
		var ids []string
		var data []string
		for len(ids) < 2 {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "id: "):
				ids = append(ids, strings.TrimPrefix(line, "id: "))
			case strings.HasPrefix(line, "data: "):
				data = append(data, strings.TrimPrefix(line, "data: "))
			}
		}
		assert.Equal(t, []string{"1", "2"}, ids)

		var msg relay.Message
		require.NoError(t, json.Unmarshal([]byte(data[0]), &msg))
		assert.Equal(t, uint16(2), msg.Sender)
		require.NotNil(t, msg.Receiver)
		assert.Equal(t, uint16(1), *msg.Receiver)
		assert.Equal(t, []byte{1}, msg.Body)

		// a heartbeat comment arrives while the room is idle
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, ":") {
				break
			}
		}
	})
}

func TestRelayClientAgainstRelay(t *testing.T) {
	withRelay(t, func(s *api.Server, baseURL string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := relay.NewClient(relay.Options{BaseURL: baseURL, IdleTimeout: time.Second})
		require.NoError(t, err)

		alice, err := client.Join(ctx, "s1-keygen", 0)
		require.NoError(t, err)
		defer alice.Close()
		bob, err := client.Join(ctx, "s1-keygen", 0)
		require.NoError(t, err)
		defer bob.Close()
		assert.Equal(t, uint16(1), alice.PartyIndex())
		assert.Equal(t, uint16(2), bob.PartyIndex())

		_, err = client.Join(ctx, "s1-keygen", 2)
		assert.True(t, mpcerrors.Is(err, mpcerrors.KindJoin))

		require.NoError(t, alice.Send(ctx, relay.NewBroadcast(1, []byte("round 1"))))
		require.NoError(t, bob.Send(ctx, relay.NewBroadcast(2, []byte("round 1 bob"))))
		require.NoError(t, alice.Send(ctx, relay.NewP2P(1, 2, []byte("p2p"))))

		var got [][]byte
		for i := 0; i < 3; i++ {
			msg, err := bob.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(i), msg.Seq)
			got = append(got, msg.Body)
		}
		assert.Equal(t, [][]byte{[]byte("round 1"), []byte("round 1 bob"), []byte("p2p")}, got)

		// a resumed room only sees what came after its cursor
		cursor := bob.Cursor()
		require.NoError(t, bob.Close())
		require.NoError(t, alice.Send(ctx, relay.NewBroadcast(1, []byte("after close"))))

		resumed, err := client.Resume("s1-keygen", 2, cursor)
		require.NoError(t, err)
		defer resumed.Close()
		msg, err := resumed.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), msg.Seq)
		assert.True(t, bytes.Equal([]byte("after close"), msg.Body))
	})
}
