// Package auth computes the HMAC request signatures expected by a Backend.AI
// manager.
//
// Signing is a pure function of the request metadata and the credentials: the
// same SignInput always produces the same headers, and changing the method,
// relative URL (including query order), content type, timestamp or API
// version changes the digest.
package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// HashType names the digest used for HMAC signing
type HashType string

const (
	HashSHA256 HashType = "sha256"
	HashSHA384 HashType = "sha384"
	HashSHA512 HashType = "sha512"
	HashSHA1   HashType = "sha1"
	HashMD5    HashType = "md5"
)

// DefaultHashType is used when credentials leave the hash type empty
const DefaultHashType = HashSHA256

var hashRegistry = map[HashType]func() hash.Hash{
	HashSHA256: sha256.New,
	HashSHA384: sha512.New384,
	HashSHA512: sha512.New,
	HashSHA1:   sha1.New,
	HashMD5:    md5.New,
}

// Constructor returns the hash constructor for h
func (h HashType) Constructor() (func() hash.Hash, error) {
	name := h.normalize()
	fn, ok := hashRegistry[name]
	if !ok {
		return nil, clienterrors.UnsupportedHash(string(h))
	}
	return fn, nil
}

// Valid reports whether h names a supported hash
func (h HashType) Valid() bool {
	_, ok := hashRegistry[h.normalize()]
	return ok
}

func (h HashType) normalize() HashType {
	if h == "" {
		return DefaultHashType
	}
	return HashType(strings.ToLower(string(h)))
}

// Credentials identify the caller to the manager
type Credentials struct {
	AccessKey string
	SecretKey string
	HashType  HashType
}

// TimestampLayout is the format of the Date header and of the signed timestamp
const TimestampLayout = time.RFC3339

// SignInput is the frozen request metadata covered by a signature
type SignInput struct {
	Method      string
	APIVersion  string
	Endpoint    string // base URL; only its host[:port] is signed
	Date        time.Time
	RelURL      string // path plus encoded query in request order
	ContentType string
	Credentials Credentials
}

// Sign returns the Authorization, Date and X-BackendAI-Version headers for in,
// together with the hex signature.
func Sign(in SignInput) (http.Header, string, error) {
	if in.Credentials.AccessKey == "" {
		return nil, "", clienterrors.MissingCredentials("access_key")
	}
	if in.Credentials.SecretKey == "" {
		return nil, "", clienterrors.MissingCredentials("secret_key")
	}
	newHash, err := in.Credentials.HashType.Constructor()
	if err != nil {
		return nil, "", err
	}

	host, err := endpointHost(in.Endpoint)
	if err != nil {
		return nil, "", err
	}

	canonical := canonicalString(in, host, newHash)

	date := in.Date.UTC()
	key := hmacSum(newHash, []byte(in.Credentials.SecretKey), []byte(date.Format("20060102")))
	key = hmacSum(newHash, key, []byte(host))
	signature := hex.EncodeToString(hmacSum(newHash, key, []byte(canonical)))

	hashName := strings.ToUpper(string(in.Credentials.HashType.normalize()))
	headers := http.Header{}
	headers.Set(protocol.HeaderAuthorization, fmt.Sprintf("%s signMethod=HMAC-%s, credential=%s:%s",
		protocol.AuthScheme, hashName, in.Credentials.AccessKey, signature))
	headers.Set(protocol.HeaderDate, date.Format(TimestampLayout))
	headers.Set(protocol.HeaderAPIVersion, in.APIVersion)
	return headers, signature, nil
}

// CanonicalString returns the string that Sign digests for in
func CanonicalString(in SignInput) (string, error) {
	newHash, err := in.Credentials.HashType.Constructor()
	if err != nil {
		return "", err
	}
	host, err := endpointHost(in.Endpoint)
	if err != nil {
		return "", err
	}
	return canonicalString(in, host, newHash), nil
}

func canonicalString(in SignInput, host string, newHash func() hash.Hash) string {
	// The body never participates; the manager expects the empty-body digest.
	bodyHash := hex.EncodeToString(newHash().Sum(nil))

	return strings.Join([]string{
		strings.ToUpper(in.Method),
		in.RelURL,
		in.Date.UTC().Format(TimestampLayout),
		"host:" + host,
		"content-type:" + SignedContentType(in.ContentType),
		"x-backendai-version:" + in.APIVersion,
		bodyHash,
	}, "\n")
}

// SignedContentType reduces a Content-Type value to the lower-cased media type
// that is covered by the signature. Parameters such as a multipart boundary
// are dropped.
func SignedContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func endpointHost(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", clienterrors.SignatureError(fmt.Sprintf("invalid endpoint %q", endpoint), err)
	}
	return u.Host, nil
}

func hmacSum(newHash func() hash.Hash, key, data []byte) []byte {
	mac := hmac.New(newHash, key)
	mac.Write(data)
	return mac.Sum(nil)
}
