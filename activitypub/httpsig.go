package activitypub

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"

	"code.superseriousbusiness.org/httpsig"
)

// HTTP Signatures, draft-cavage-12 profile as spoken across the fediverse:
// rsa-sha256 over (request-target) host digest date, SHA-256 body digest,
// keyId pointing at the actor document's #main-key.

// SignRequest signs req in place. The body is read from req and restored,
// so the request stays usable. The signer computes and sets the Digest
// header itself (the empty digest for a bodyless request), so the caller
// must not set one beforehand.
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyID string) error {
	if privateKey == nil {
		return fmt.Errorf("no private key")
	}

	body := []byte{}
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{httpsig.RequestTarget, "host", "digest", "date"},
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}

	if err := signer.SignRequest(privateKey, keyID, req, body); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	return nil
}

// VerifyRequest checks the Signature header of req against a PEM public
// key and returns the actor URL the signature names (keyId with the
// fragment stripped). Any missing announced header or a bad signature is an
// error; the caller drops the activity without retry.
func VerifyRequest(req *http.Request, publicKeyPEM string) (string, error) {
	publicKey, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("parse signature header: %w", err)
	}

	keyID := verifier.KeyId()
	if keyID == "" {
		return "", fmt.Errorf("signature has no keyId")
	}

	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	actor, _, _ := strings.Cut(keyID, "#")
	return actor, nil
}

// SignatureKeyID returns the actor URL announced by the Signature header
// without verifying anything, so the sender's key can be fetched first.
func SignatureKeyID(req *http.Request) (string, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("parse signature header: %w", err)
	}
	actor, _, _ := strings.Cut(verifier.KeyId(), "#")
	if actor == "" {
		return "", fmt.Errorf("signature has no keyId")
	}
	return actor, nil
}

// ParsePrivateKey reads an RSA private key from PEM, accepting both PKCS#1
// ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return key, nil
}

// ParsePublicKey reads an RSA public key from PEM, accepting both PKIX
// ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") encodings. Older fediverse
// software still publishes the latter.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", parsed)
	}
	return key, nil
}
