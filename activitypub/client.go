package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

// Response is the reduced view of a remote answer the federation layer
// works with: integer status, lowercased headers, raw body.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Permanent reports a status that will never succeed on retry.
func (r *Response) Permanent() bool {
	return r.Status == http.StatusNotFound || r.Status == http.StatusGone
}

// SignedGet fetches url as the given user with an HTTP signature over an
// empty-body digest and an ActivityPub accept header.
func SignedGet(deps *Deps, user *domain.User, url string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", domain.ContentTypeActivity)

	return send(deps, user, req, nil)
}

// SignedPost delivers body to url as the given user, signed with a SHA-256
// body digest.
func SignedPost(deps *Deps, user *domain.User, url string, body []byte) (*Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", domain.ContentTypeActivity)

	return send(deps, user, req, body)
}

func send(deps *Deps, user *domain.User, req *http.Request, body []byte) (*Response, error) {
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("User-Agent", util.UserAgent())

	privateKey, err := ParsePrivateKey(user.Keys.Secret)
	if err != nil {
		return nil, fmt.Errorf("parse private key of %s: %w", user.UID(), err)
	}

	keyID := deps.Conf.ActorURL(user.UID()) + "#main-key"
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return nil, err
	}

	tid := util.Tid()
	archive(deps, tid, "SEND", requestDump(req, body))

	resp, err := deps.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	out := &Response{
		Status:  resp.StatusCode,
		Headers: make(map[string]string, len(resp.Header)),
	}
	for name, values := range resp.Header {
		if len(values) > 0 {
			out.Headers[strings.ToLower(name)] = values[0]
		}
	}
	out.Body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", req.URL, err)
	}

	archive(deps, tid, "RECV", responseDump(out))
	return out, nil
}

// DigestHeader returns the SHA-256 digest header value for a request body.
// A GET digests the empty string.
func DigestHeader(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// CheckDigest verifies a received digest header against the actual body.
// Only the SHA-256 form is accepted.
func CheckDigest(header string, body []byte) bool {
	value, ok := strings.CutPrefix(header, "SHA-256=")
	if !ok {
		return false
	}
	return value == strings.TrimPrefix(DigestHeader(body), "SHA-256=")
}

// archive persists a request/response pair under {basedir}/archive for
// audit when dbglevel >= 2.
func archive(deps *Deps, tid float64, kind string, data []byte) {
	if deps.Conf.Conf.DbgLevel < 2 {
		return
	}
	dir := filepath.Join(deps.Conf.BaseDir, "archive")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	name := fmt.Sprintf("%.6f_%s.txt", tid, kind)
	os.WriteFile(filepath.Join(dir, name), data, 0644)
}

func requestDump(req *http.Request, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\n", req.Method, req.URL)
	for name, values := range req.Header {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToLower(name), strings.Join(values, ", "))
	}
	b.WriteByte('\n')
	b.Write(body)
	return b.Bytes()
}

func responseDump(resp *Response) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP %d\n", resp.Status)
	for name, value := range resp.Headers {
		fmt.Fprintf(&b, "%s: %s\n", name, value)
	}
	b.WriteByte('\n')
	b.Write(resp.Body)
	return b.Bytes()
}
