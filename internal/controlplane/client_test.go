package controlplane

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/convoctl/internal/testutil/fakeplane"
	"github.com/danmuck/convoctl/internal/testutil/testlog"
	"github.com/danmuck/convoctl/internal/testutil/tlstest"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*ClientConfig)) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.BaseURL = baseURL
	cfg.AppID = "app-1"
	cfg.Credentials = Credentials{Key: "k", Secret: "s"}
	cfg.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientJoinSendsAuthAndDocument(t *testing.T) {
	testlog.Start(t)

	plane := fakeplane.New(t, "app-1")
	client := newTestClient(t, plane.URL(), nil)

	resp, err := client.Join(context.Background(), []byte(`{"name":"a","properties":{}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.True(t, resp.OK())
	require.Equal(t, JoinStarted, ParseJoin(resp.Body).Kind)

	calls := plane.Calls()
	require.Len(t, calls, 1)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("k:s"))
	require.Equal(t, want, calls[0].Auth)
	require.Equal(t, "/app-1/join", calls[0].Path)
	require.JSONEq(t, `{"name":"a","properties":{}}`, string(calls[0].Body))
	require.NotEmpty(t, calls[0].RequestID)
	require.Equal(t, resp.RequestID, calls[0].RequestID)
}

func TestClientLeaveAndListPaths(t *testing.T) {
	testlog.Start(t)

	plane := fakeplane.New(t, "app-1")
	plane.Seed("X")
	client := newTestClient(t, plane.URL(), func(c *ClientConfig) { c.ListLimit = 5 })

	resp, err := client.ListActive(context.Background())
	require.NoError(t, err)
	list, err := ParseListActive(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "X", list.Sessions[0].AgentID)

	resp, err = client.Leave(context.Background(), "X")
	require.NoError(t, err)
	require.True(t, ParseLeave(resp.Body).OK)

	calls := plane.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, http.MethodGet, calls[0].Method)
	require.Contains(t, calls[0].Query, "state=2")
	require.Contains(t, calls[0].Query, "limit=5")
	require.Equal(t, "/app-1/agents/X/leave", calls[1].Path)
	require.Empty(t, plane.Running())
}

func TestClientNon2xxIsNotAnError(t *testing.T) {
	testlog.Start(t)

	plane := fakeplane.New(t, "app-1")
	plane.Queue(fakeplane.OpJoin, fakeplane.Reply{Status: http.StatusConflict, Body: `{"reason":"TaskConflict"}`})
	client := newTestClient(t, plane.URL(), nil)

	resp, err := client.Join(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Equal(t, JoinConflict, ParseJoin(resp.Body).Kind)
}

func TestClientTransportErrors(t *testing.T) {
	testlog.Start(t)

	plane := fakeplane.New(t, "app-1")
	plane.Queue(fakeplane.OpJoin, fakeplane.Reply{Drop: true})
	plane.Queue(fakeplane.OpLeave, fakeplane.Reply{Status: http.StatusOK, Body: `{"code":0}`, Delay: 500 * time.Millisecond})
	client := newTestClient(t, plane.URL(), func(c *ClientConfig) { c.Timeout = 100 * time.Millisecond })

	_, err := client.Join(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, ErrTransport)

	_, err = client.Leave(context.Background(), "X")
	require.ErrorIs(t, err, ErrTransport)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, OpLeave, terr.Op)
	require.True(t, terr.Timeout(), "expected timeout, got %v", terr.Err)
}

func TestClientUnreachableHost(t *testing.T) {
	testlog.Start(t)

	client := newTestClient(t, "http://127.0.0.1:1", nil)
	_, err := client.ListActive(context.Background())
	require.ErrorIs(t, err, ErrTransport)
}

func TestClientCustomCABundle(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "convoctl-test-ca")
	plane := fakeplane.NewTLS(t, "app-1", ca.ServerTLSConfig(t, "fakeplane"))

	untrusted := newTestClient(t, plane.URL(), nil)
	_, err := untrusted.ListActive(context.Background())
	require.ErrorIs(t, err, ErrTransport)

	trusted := newTestClient(t, plane.URL(), func(c *ClientConfig) { c.CAFile = ca.CAFile() })
	resp, err := trusted.ListActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestNewClientValidation(t *testing.T) {
	testlog.Start(t)

	_, err := NewClient(ClientConfig{Credentials: Credentials{Key: "k", Secret: "s"}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(ClientConfig{AppID: "a"})
	require.ErrorIs(t, err, ErrCredentialsRequired)

	_, err = NewClient(ClientConfig{AppID: "a", BaseURL: "not a url", Credentials: Credentials{Key: "k", Secret: "s"}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(ClientConfig{AppID: "a", CAFile: "/does/not/exist", Credentials: Credentials{Key: "k", Secret: "s"}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	client := newTestClient(t, "http://127.0.0.1:1", nil)
	_, err = client.Leave(context.Background(), " ")
	require.True(t, strings.Contains(err.Error(), "agent id required"))
}
