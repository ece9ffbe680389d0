package activitypub

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/queue"
	"github.com/deemkeen/loxodon/storage"
	"github.com/deemkeen/loxodon/util"
)

// MockHTTPClient replays canned responses by URL and records every request
// for assertions. Unknown URLs answer 404.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses map[string]mockResponse
	Requests  []*http.Request
	Bodies    [][]byte
}

type mockResponse struct {
	status      int
	contentType string
	body        []byte
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{responses: map[string]mockResponse{}}
}

func (m *MockHTTPClient) SetResponse(url string, status int, body []byte) {
	m.SetTypedResponse(url, status, domain.ContentTypeActivity, body)
}

func (m *MockHTTPClient) SetTypedResponse(url string, status int, contentType string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = mockResponse{status: status, contentType: contentType, body: body}
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	m.Requests = append(m.Requests, req)
	m.Bodies = append(m.Bodies, body)

	canned, ok := m.responses[req.URL.String()]
	if !ok {
		canned = mockResponse{status: http.StatusNotFound}
	}

	resp := &http.Response{
		StatusCode: canned.status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader(canned.body)),
		Request:    req,
	}
	if canned.contentType != "" {
		resp.Header.Set("Content-Type", canned.contentType)
	}
	return resp, nil
}

// RequestsTo returns the recorded requests that targeted url.
func (m *MockHTTPClient) RequestsTo(url string) []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*http.Request
	for _, req := range m.Requests {
		if req.URL.String() == url {
			out = append(out, req)
		}
	}
	return out
}

// newTestDeps builds a Deps over a temp basedir with a mock transport.
func newTestDeps(t *testing.T) (*Deps, *MockHTTPClient) {
	t.Helper()

	conf := &util.AppConfig{BaseDir: t.TempDir(), Conf: util.DefaultServerConfig()}
	conf.Conf.Host = "here.example"

	client := NewMockHTTPClient()
	deps := &Deps{
		Conf:   conf,
		Store:  storage.New(conf),
		Queue:  queue.New(conf),
		Client: client,
	}
	return deps, client
}

// newTestUser creates a local account with a fresh 2048-bit keypair.
func newTestUser(t *testing.T, deps *Deps, uid string) *domain.User {
	t.Helper()

	key := generateTestKey(t)
	user := &domain.User{
		Config: domain.UserConfig{UID: uid, Name: uid},
		Keys: domain.KeyPair{
			Secret: privateKeyToPEM(key),
			Public: publicKeyToPEM(t, &key.PublicKey),
		},
	}
	if err := deps.Store.AddUser(user); err != nil {
		t.Fatalf("AddUser(%s): %v", uid, err)
	}
	return user
}

// remotePeer is a fake federated actor living on the mock transport. Its
// private key signs inbound requests in FSM tests.
type remotePeer struct {
	ID    string
	Inbox string
	Key   *rsa.PrivateKey
	Doc   map[string]any
}

// newRemotePeer registers an actor document for id on the mock client. The
// actor advertises a personal inbox only.
func newRemotePeer(t *testing.T, client *MockHTTPClient, id string) *remotePeer {
	t.Helper()

	key := generateTestKey(t)
	doc := map[string]any{
		"@context":          domain.ContextActivityStreams,
		"id":                id,
		"type":              "Person",
		"preferredUsername": "peer",
		"inbox":             id + "/inbox",
		"publicKey": map[string]any{
			"id":           id + "#main-key",
			"owner":        id,
			"publicKeyPem": publicKeyToPEM(t, &key.PublicKey),
		},
	}
	client.SetResponse(id, http.StatusOK, mustJSON(t, doc))
	return &remotePeer{ID: id, Inbox: id + "/inbox", Key: key, Doc: doc}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
